// Package player provides a headless media output target: a playback clock
// over buffered media ranges, fed by a streaming engine.
package player

import (
	"errors"
	"sort"
	"sync"
	"time"

	"streamplex/internal/streaming"
)

// DefaultFrameRate is used to convert late media into dropped frames.
const DefaultFrameRate = 30

// mergeGap is the largest hole, in seconds, that still joins two ranges.
const mergeGap = 0.05

// ErrEmptySegment is returned by Append for a segment without payload.
var ErrEmptySegment = errors.New("empty segment payload")

// Playhead is a wall-clock driven playback position over buffered ranges.
// Playback stalls at the end of the range containing the position.
type Playhead struct {
	mu        sync.Mutex
	now       func() time.Time
	frameRate float64

	ranges   []streaming.TimeRange
	position float64
	anchor   time.Time
	playing  bool
	dropped  int
}

// New returns a paused playhead at position 0.
func New(frameRate float64) *Playhead {
	return NewWithClock(frameRate, time.Now)
}

// NewWithClock is New with an injectable clock.
func NewWithClock(frameRate float64, now func() time.Time) *Playhead {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Playhead{now: now, frameRate: frameRate, anchor: now()}
}

// CurrentTime implements streaming.MediaTarget.
func (p *Playhead) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

// SetCurrentTime implements streaming.MediaTarget. Negative positions clamp to 0.
func (p *Playhead) SetCurrentTime(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t < 0 {
		t = 0
	}
	p.position = t
	p.anchor = p.now()
}

// Buffered implements streaming.MediaTarget.
func (p *Playhead) Buffered() []streaming.TimeRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]streaming.TimeRange, len(p.ranges))
	copy(out, p.ranges)
	return out
}

// DroppedFrames implements streaming.DroppedFrameCounter.
func (p *Playhead) DroppedFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Play starts advancing the position.
func (p *Playhead) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.anchor = p.now()
	p.playing = true
}

// Pause freezes the position.
func (p *Playhead) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commitLocked()
	p.playing = false
}

// Playing reports whether the playhead is advancing.
func (p *Playhead) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Append buffers duration seconds of media starting at start. The part of
// the segment that is already behind the position counts as dropped frames.
func (p *Playhead) Append(start, duration float64, data []byte) error {
	if len(data) == 0 {
		return ErrEmptySegment
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.commitLocked()
	end := start + duration
	if start < p.position {
		late := p.position - start
		if late > duration {
			late = duration
		}
		p.dropped += int(late * p.frameRate)
	}
	p.ranges = mergeRanges(append(p.ranges, streaming.TimeRange{Start: start, End: end}))
	return nil
}

// Trim drops buffered media before t.
func (p *Playhead) Trim(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commitLocked()
	kept := p.ranges[:0]
	for _, r := range p.ranges {
		if r.End <= t {
			continue
		}
		if r.Start < t {
			r.Start = t
		}
		kept = append(kept, r)
	}
	p.ranges = kept
}

// Reset flushes the buffer, keeping the position.
func (p *Playhead) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commitLocked()
	p.ranges = nil
}

// currentLocked returns the live position, stalled at the buffered edge.
func (p *Playhead) currentLocked() float64 {
	if !p.playing {
		return p.position
	}
	t := p.position + p.now().Sub(p.anchor).Seconds()
	edge := p.position
	for _, r := range p.ranges {
		if p.position >= r.Start && p.position < r.End {
			edge = r.End
			break
		}
	}
	if t > edge {
		t = edge
	}
	return t
}

// commitLocked folds elapsed playback into position so stalls do not
// accumulate time.
func (p *Playhead) commitLocked() {
	p.position = p.currentLocked()
	p.anchor = p.now()
}

func mergeRanges(ranges []streaming.TimeRange) []streaming.TimeRange {
	if len(ranges) < 2 {
		return ranges
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+mergeGap {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
