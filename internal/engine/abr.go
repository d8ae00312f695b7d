package engine

import (
	"math"
	"time"

	"streamplex/internal/streaming"
)

const (
	// defaultEstimate is the bandwidth assumed before any sample, bits/sec.
	defaultEstimate = 500000
	// bandwidthFactor applies when staying on or dropping to a level.
	bandwidthFactor = 0.95
	// bandwidthUpFactor applies when climbing to a higher bitrate.
	bandwidthUpFactor = 0.7
	// minSampleDuration bounds per-sample weight for near-instant loads.
	minSampleDuration = 50 * time.Millisecond
)

// ewma is an exponentially weighted moving average where each sample's
// weight is its duration in seconds.
type ewma struct {
	alpha       float64
	estimate    float64
	totalWeight float64
}

func newEWMA(halfLife float64) *ewma {
	return &ewma{alpha: math.Exp(math.Log(0.5) / halfLife)}
}

func (e *ewma) sample(weight, value float64) {
	adj := math.Pow(e.alpha, weight)
	e.estimate = value*(1-adj) + adj*e.estimate
	e.totalWeight += weight
}

// value corrects for the zero initial estimate.
func (e *ewma) value() float64 {
	zeroFactor := 1 - math.Pow(e.alpha, e.totalWeight)
	if zeroFactor == 0 {
		return 0
	}
	return e.estimate / zeroFactor
}

// bandwidthEstimator pairs a fast and a slow average. The fast one reacts
// to drops, the slow one damps recoveries; the estimate is their minimum.
type bandwidthEstimator struct {
	fast *ewma
	slow *ewma
}

func newBandwidthEstimator(fastHalfLife, slowHalfLife float64) *bandwidthEstimator {
	return &bandwidthEstimator{fast: newEWMA(fastHalfLife), slow: newEWMA(slowHalfLife)}
}

func (b *bandwidthEstimator) sample(elapsed time.Duration, byteLength int) {
	if elapsed < minSampleDuration {
		elapsed = minSampleDuration
	}
	secs := elapsed.Seconds()
	bps := float64(byteLength) * 8 / secs
	b.fast.sample(secs, bps)
	b.slow.sample(secs, bps)
}

func (b *bandwidthEstimator) estimate() float64 {
	if b.fast.totalWeight == 0 {
		return defaultEstimate
	}
	return math.Min(b.fast.value(), b.slow.value())
}

// chooseLevel returns the highest-bitrate level the estimate can sustain,
// or the lowest-bitrate level when none fits.
func chooseLevel(levels []streaming.Level, current int, estimate float64) int {
	best, lowest := -1, 0
	for i, l := range levels {
		if l.Bitrate < levels[lowest].Bitrate {
			lowest = i
		}
		factor := bandwidthFactor
		if current >= 0 && current < len(levels) && l.Bitrate > levels[current].Bitrate {
			factor = bandwidthUpFactor
		}
		if float64(l.Bitrate) > estimate*factor {
			continue
		}
		if best < 0 || l.Bitrate > levels[best].Bitrate {
			best = i
		}
	}
	if best < 0 {
		return lowest
	}
	return best
}

// downgrade returns the next lower-bitrate level than current, or current.
func downgrade(levels []streaming.Level, current int) int {
	next := current
	for i, l := range levels {
		if l.Bitrate >= levels[current].Bitrate {
			continue
		}
		if next == current || l.Bitrate > levels[next].Bitrate {
			next = i
		}
	}
	return next
}
