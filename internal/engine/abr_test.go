package engine

import (
	"math"
	"testing"
	"time"

	"streamplex/internal/streaming"
)

func TestEWMA_converges(t *testing.T) {
	e := newEWMA(3)
	for i := 0; i < 50; i++ {
		e.sample(1, 1000000)
	}
	if got := e.value(); math.Abs(got-1000000) > 1 {
		t.Errorf("expected ~1000000, got %v", got)
	}
}

func TestEWMA_first_sample_unbiased(t *testing.T) {
	e := newEWMA(9)
	e.sample(2, 800000)
	if got := e.value(); math.Abs(got-800000) > 1e-6 {
		t.Errorf("single sample should be reported as is, got %v", got)
	}
}

func TestBandwidthEstimator(t *testing.T) {
	b := newBandwidthEstimator(3, 9)
	if got := b.estimate(); got != defaultEstimate {
		t.Errorf("expected default estimate, got %v", got)
	}

	// 1 MB in one second, then a sudden drop to 100 KB per second.
	b.sample(time.Second, 1000000)
	b.sample(time.Second, 100000)
	fast, slow := b.fast.value(), b.slow.value()
	if fast >= slow {
		t.Errorf("fast average should react more to the drop: fast=%v slow=%v", fast, slow)
	}
	if got := b.estimate(); got != fast {
		t.Errorf("estimate should be the minimum, got %v want %v", got, fast)
	}
}

func TestChooseLevel(t *testing.T) {
	levels := []streaming.Level{
		{Height: 1080, Bitrate: 5000000},
		{Height: 720, Bitrate: 2800000},
		{Height: 360, Bitrate: 400000},
	}

	t.Run("initial_default_estimate", func(t *testing.T) {
		if got := chooseLevel(levels, -1, defaultEstimate); got != 2 {
			t.Errorf("got %d want 2", got)
		}
	})

	t.Run("nothing_fits_returns_lowest", func(t *testing.T) {
		if got := chooseLevel(levels, 0, 1000); got != 2 {
			t.Errorf("got %d want 2", got)
		}
	})

	t.Run("climbing_needs_headroom", func(t *testing.T) {
		// 3.5 Mbps covers 2.8 Mbps at 0.95 but not at 0.7.
		if got := chooseLevel(levels, 2, 3500000); got != 2 {
			t.Errorf("from 360p: got %d want 2", got)
		}
		if got := chooseLevel(levels, 1, 3500000); got != 1 {
			t.Errorf("staying on 720p: got %d want 1", got)
		}
	})

	t.Run("high_estimate_picks_top", func(t *testing.T) {
		if got := chooseLevel(levels, 2, 20000000); got != 0 {
			t.Errorf("got %d want 0", got)
		}
	})
}

func TestDowngrade(t *testing.T) {
	levels := []streaming.Level{
		{Height: 1080, Bitrate: 5000000},
		{Height: 360, Bitrate: 400000},
		{Height: 720, Bitrate: 2800000},
	}
	if got := downgrade(levels, 0); got != 2 {
		t.Errorf("from 1080p: got %d want 2", got)
	}
	if got := downgrade(levels, 2); got != 1 {
		t.Errorf("from 720p: got %d want 1", got)
	}
	if got := downgrade(levels, 1); got != 1 {
		t.Errorf("lowest level stays: got %d want 1", got)
	}
}
