package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"streamplex/internal/streaming"
)

const (
	// liveSyncSegments is how far behind the live edge playback starts.
	liveSyncSegments = 3
	// bufferPollInterval paces the loader while the forward buffer is full.
	bufferPollInterval = 250 * time.Millisecond
	// maxMediaRecoveries is how many times one segment may fail to append
	// before the session is given up.
	maxMediaRecoveries = 3
)

// ErrStatus is wrapped by fetch failures caused by a non-200 response.
var ErrStatus = errors.New("unexpected status")

// loader is the goroutine-owned state of one engine's fetch loop.
type loader struct {
	e      *Engine
	src    string
	target streaming.MediaTarget
	sink   Sink
	abr    *bandwidthEstimator

	variants  []variant
	levels    []streaming.Level
	level     int
	playlist  *mediaPlaylist
	pos       int
	nextStart float64
	nextSeq   uint64
	forceDown bool

	mediaFailures int
}

func newLoader(e *Engine, src string, target streaming.MediaTarget) *loader {
	sink, _ := target.(Sink)
	return &loader{
		e:      e,
		src:    src,
		target: target,
		sink:   sink,
		abr:    newBandwidthEstimator(e.cfg.AbrEwmaFast, e.cfg.AbrEwmaSlow),
		level:  -1,
	}
}

func (l *loader) run(ctx context.Context) {
	if !l.loadManifest(ctx) {
		return
	}
	for ctx.Err() == nil {
		if !l.step(ctx) {
			return
		}
	}
}

func (l *loader) loadManifest(ctx context.Context) bool {
	base, err := url.Parse(l.src)
	if err != nil {
		l.fail(streaming.ErrorOther, fmt.Sprintf("invalid source: %v", err))
		return false
	}

	for {
		variants, media, err := l.fetchManifest(ctx, base)
		if err == nil {
			l.variants = variants
			l.levels = make([]streaming.Level, len(variants))
			for i, v := range variants {
				l.levels[i] = v.level
			}
			l.e.setLevels(variants)
			l.e.send(streaming.ManifestParsed{Levels: l.levels})

			if media != nil {
				l.reposition(media)
				l.playlist = media
				l.level = 0
				l.e.setCurrent(0)
				l.e.send(streaming.LevelSwitched{Index: 0})
			}
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		l.fail(streaming.ErrorNetwork, fmt.Sprintf("manifestLoadError: %v", err))
		if !l.park(ctx) {
			return false
		}
	}
}

func (l *loader) fetchManifest(ctx context.Context, base *url.URL) ([]variant, *mediaPlaylist, error) {
	data, _, err := l.fetch(ctx, l.src)
	if err != nil {
		return nil, nil, err
	}
	return decodeManifest(data, base)
}

// step loads one segment, switching level or refreshing the playlist first
// when needed. It returns false when the loader should exit.
func (l *loader) step(ctx context.Context) bool {
	if next := l.selectLevel(); l.playlist == nil || next != l.level {
		if !l.switchLevel(ctx, next) {
			return ctx.Err() == nil
		}
	}

	if !l.waitForBuffer(ctx) {
		return false
	}
	l.followSeek()

	if l.pos >= len(l.playlist.segments) {
		if l.playlist.closed {
			return l.idle(ctx)
		}
		return l.refresh(ctx)
	}

	seg := l.playlist.segments[l.pos]
	data, elapsed, err := l.fetch(ctx, seg.uri)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		l.fail(streaming.ErrorNetwork, fmt.Sprintf("fragLoadError: %v", err))
		return l.park(ctx)
	}
	l.abr.sample(elapsed, len(data))

	start := seg.start
	if !l.playlist.closed {
		start = l.nextStart
	}
	if l.sink != nil {
		var appendErr error
		if !l.e.withSink(func() { appendErr = l.sink.Append(start, seg.duration, data) }) {
			return false
		}
		if appendErr != nil {
			l.mediaFailures++
			if l.mediaFailures > maxMediaRecoveries {
				l.fail(streaming.ErrorOther, fmt.Sprintf("bufferAppendError after %d recoveries: %v", maxMediaRecoveries, appendErr))
				return false
			}
			l.fail(streaming.ErrorMedia, fmt.Sprintf("bufferAppendError: %v", appendErr))
			return l.park(ctx)
		}
		l.mediaFailures = 0
	}
	l.e.send(streaming.SegmentLoaded{ByteLength: len(data), Duration: seg.duration})

	if l.sink != nil && l.e.cfg.BackBufferLength > 0 {
		cutoff := l.target.CurrentTime() - l.e.cfg.BackBufferLength
		if !l.e.withSink(func() { l.sink.Trim(cutoff) }) {
			return false
		}
	}
	l.nextStart = start + seg.duration
	l.nextSeq = seg.seq + 1
	l.pos++

	if l.e.pinned() < 0 && elapsed > l.e.cfg.MaxLoadingDelay && l.bufferAhead() < l.e.cfg.MaxStarvationDelay.Seconds() {
		l.forceDown = true
	}
	return true
}

func (l *loader) selectLevel() int {
	if p := l.e.pinned(); p >= 0 {
		return p
	}
	if l.forceDown && l.level >= 0 {
		l.forceDown = false
		return downgrade(l.levels, l.level)
	}
	return chooseLevel(l.levels, l.level, l.abr.estimate())
}

func (l *loader) switchLevel(ctx context.Context, next int) bool {
	pl, err := l.loadPlaylist(ctx, next)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		l.fail(streaming.ErrorNetwork, fmt.Sprintf("levelLoadError: %v", err))
		l.park(ctx)
		return false
	}

	l.reposition(pl)
	l.playlist = pl
	prev := l.level
	l.level = next
	l.e.setCurrent(next)
	if prev != next {
		l.e.send(streaming.LevelSwitched{Index: next})
	}
	return true
}

func (l *loader) loadPlaylist(ctx context.Context, level int) (*mediaPlaylist, error) {
	uri := l.variants[level].uri
	base, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	data, _, err := l.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	return decodeMediaPlaylist(data, base)
}

// reposition finds where to continue loading in a new playlist.
func (l *loader) reposition(pl *mediaPlaylist) {
	switch {
	case pl.closed:
		l.pos = pl.indexAt(l.nextStart)
	case l.playlist == nil:
		l.pos = max(0, len(pl.segments)-liveSyncSegments)
	default:
		if i := pl.indexOfSeq(l.nextSeq); i >= 0 {
			l.pos = i
		} else if len(pl.segments) > 0 && l.nextSeq < pl.segments[0].seq {
			l.pos = 0
		} else {
			l.pos = len(pl.segments)
		}
	}
}

// followSeek moves the load position after the playhead jumped. On-demand
// playlists only.
func (l *loader) followSeek() {
	if !l.playlist.closed {
		return
	}
	want := l.target.CurrentTime()
	for _, r := range l.target.Buffered() {
		if want >= r.Start && want < r.End {
			want = r.End
			break
		}
	}
	if i := l.playlist.indexAt(want); i != l.pos {
		l.pos = i
		if i < len(l.playlist.segments) {
			l.nextStart = l.playlist.segments[i].start
		}
	}
}

func (l *loader) bufferAhead() float64 {
	cur := l.target.CurrentTime()
	for _, r := range l.target.Buffered() {
		if cur >= r.Start && cur < r.End {
			return r.End - cur
		}
	}
	return 0
}

// waitForBuffer blocks while the forward buffer is at its target.
func (l *loader) waitForBuffer(ctx context.Context) bool {
	limit := l.e.cfg.MaxBufferLength
	if ceiling := l.e.cfg.MaxMaxBufferLength; ceiling > 0 && ceiling < limit {
		limit = ceiling
	}
	if limit <= 0 {
		return true
	}
	for l.bufferAhead() >= limit {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(bufferPollInterval):
		}
	}
	return true
}

// refresh reloads a live playlist after one target duration.
func (l *loader) refresh(ctx context.Context) bool {
	wait := time.Duration(l.playlist.targetDuration * float64(time.Second))
	if wait <= 0 {
		wait = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
	}

	pl, err := l.loadPlaylist(ctx, l.level)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		l.fail(streaming.ErrorNetwork, fmt.Sprintf("levelLoadError: %v", err))
		return l.park(ctx)
	}
	l.reposition(pl)
	l.playlist = pl
	return true
}

// idle waits at the end of an on-demand playlist for a seek or a command.
func (l *loader) idle(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.e.resume:
		return true
	case <-time.After(bufferPollInterval):
		return true
	}
}

// fail reports a fatal error. Stale resume signals are dropped first so
// only a command issued in response can release park.
func (l *loader) fail(kind streaming.ErrorKind, details string) {
	select {
	case <-l.e.resume:
	default:
	}
	l.e.log.Warn("engine fatal error",
		slog.String("src", l.src),
		slog.String("kind", kind.String()),
		slog.String("details", details))
	l.e.send(streaming.EngineError{Kind: kind, Fatal: true, Details: details})
}

// park waits for StartLoad or RecoverMediaError, then for the retry delay
// so a failure that repeats immediately cannot spin.
func (l *loader) park(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.e.resume:
	}
	if l.e.cfg.FragLoadingRetryDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.e.cfg.FragLoadingRetryDelay):
		return true
	}
}

// fetch GETs uri with the configured timeout, retrying with a fixed delay.
// Each retry is reported as a non-fatal network error.
func (l *loader) fetch(ctx context.Context, uri string) ([]byte, time.Duration, error) {
	var lastErr error
	for attempt := 0; attempt <= l.e.cfg.FragLoadingMaxRetry; attempt++ {
		if attempt > 0 {
			l.e.send(streaming.EngineError{
				Kind:    streaming.ErrorNetwork,
				Details: fmt.Sprintf("retry %d for %s: %v", attempt, uri, lastErr),
			})
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(l.e.cfg.FragLoadingRetryDelay):
			}
		}

		started := time.Now()
		data, err := l.get(ctx, uri)
		if err == nil {
			return data, time.Since(started), nil
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("fetch %s: %w", uri, lastErr)
}

func (l *loader) get(ctx context.Context, uri string) ([]byte, error) {
	if l.e.cfg.FragLoadingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.e.cfg.FragLoadingTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
