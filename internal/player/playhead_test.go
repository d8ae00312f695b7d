package player

import (
	"errors"
	"testing"
	"time"

	"streamplex/internal/streaming"
)

var _ streaming.DroppedFrameCounter = (*Playhead)(nil)

type manualClock struct {
	t time.Time
}

func newClock() *manualClock {
	return &manualClock{t: time.Unix(1700000000, 0)}
}

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

func TestPlayhead_Append_merges_ranges(t *testing.T) {
	p := New(30)
	_ = p.Append(0, 2, []byte{1})
	_ = p.Append(2, 2, []byte{1})
	_ = p.Append(10, 2, []byte{1})

	got := p.Buffered()
	if len(got) != 2 {
		t.Fatalf("expected 2 ranges, got %v", got)
	}
	if got[0].Start != 0 || got[0].End != 4 {
		t.Errorf("first range: got %+v", got[0])
	}
	if got[1].Start != 10 || got[1].End != 12 {
		t.Errorf("second range: got %+v", got[1])
	}
}

func TestPlayhead_Append_empty(t *testing.T) {
	p := New(30)
	if err := p.Append(0, 2, nil); !errors.Is(err, ErrEmptySegment) {
		t.Errorf("expected ErrEmptySegment, got %v", err)
	}
}

func TestPlayhead_playback_stalls_at_buffer_edge(t *testing.T) {
	clock := newClock()
	p := NewWithClock(30, clock.now)
	_ = p.Append(0, 4, []byte{1})

	p.Play()
	clock.advance(seconds(3))
	if got := p.CurrentTime(); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}

	clock.advance(seconds(10))
	if got := p.CurrentTime(); got != 4 {
		t.Errorf("expected stall at 4, got %v", got)
	}

	// More media resumes playback from the stall point, not from wall time.
	_ = p.Append(4, 4, []byte{1})
	clock.advance(seconds(1))
	if got := p.CurrentTime(); got != 5 {
		t.Errorf("expected 5 after resume, got %v", got)
	}

	p.Pause()
	clock.advance(seconds(2))
	if got := p.CurrentTime(); got != 5 {
		t.Errorf("paused playhead should not move, got %v", got)
	}
}

func TestPlayhead_late_media_counts_dropped_frames(t *testing.T) {
	p := New(25)
	p.SetCurrentTime(10)

	_ = p.Append(9, 2, []byte{1})
	if got := p.DroppedFrames(); got != 25 {
		t.Errorf("expected 25 dropped frames, got %d", got)
	}

	_ = p.Append(0, 2, []byte{1})
	if got := p.DroppedFrames(); got != 75 {
		t.Errorf("expected cumulative 75, got %d", got)
	}
}

func TestPlayhead_SetCurrentTime_clamps_negative(t *testing.T) {
	p := New(30)
	p.SetCurrentTime(-5)
	if got := p.CurrentTime(); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestPlayhead_Trim_and_Reset(t *testing.T) {
	p := New(30)
	_ = p.Append(0, 10, []byte{1})
	_ = p.Append(20, 10, []byte{1})

	p.Trim(5)
	got := p.Buffered()
	if len(got) != 2 || got[0].Start != 5 {
		t.Errorf("Trim: got %v", got)
	}

	p.Trim(15)
	if got := p.Buffered(); len(got) != 1 || got[0].Start != 20 {
		t.Errorf("Trim past first range: got %v", got)
	}

	p.Reset()
	if got := p.Buffered(); len(got) != 0 {
		t.Errorf("Reset: got %v", got)
	}
}
