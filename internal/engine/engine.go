// Package engine implements a headless HLS streaming engine: it fetches the
// manifest and segments over HTTP, picks levels with a dual-EWMA bandwidth
// estimate, and feeds segments into a media target.
package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"streamplex/internal/streaming"
)

// Sink is implemented by media targets that accept segment payloads.
// Targets without it only receive the playback-side contract.
type Sink interface {
	Append(start, duration float64, data []byte) error
	Trim(before float64)
	Reset()
}

// Factory builds engines sharing one HTTP client.
type Factory struct {
	client *http.Client
	log    *slog.Logger
}

// NewFactory returns a Factory. A nil client disables streaming support.
func NewFactory(client *http.Client, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Factory{client: client, log: log}
}

// Supported implements streaming.EngineFactory.
func (f *Factory) Supported() bool {
	return f.client != nil
}

// New implements streaming.EngineFactory.
func (f *Factory) New(cfg streaming.EngineConfig, handler streaming.EventHandler) streaming.Engine {
	return newEngine(f.client, f.log, cfg, handler)
}

// Engine is one streaming session. Loading starts once both a source and a
// media target are set, and runs on its own goroutine.
type Engine struct {
	client *http.Client
	log    *slog.Logger
	cfg    streaming.EngineConfig
	emit   streaming.EventHandler

	ctx    context.Context
	cancel context.CancelFunc
	resume chan struct{}

	// sinkMu orders media writes against Destroy.
	sinkMu sync.Mutex

	mu        sync.Mutex
	src       string
	target    streaming.MediaTarget
	levels    []variant
	current   int
	manual    int
	started   bool
	destroyed bool
}

func newEngine(client *http.Client, log *slog.Logger, cfg streaming.EngineConfig, handler streaming.EventHandler) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		client:  client,
		log:     log,
		cfg:     cfg,
		emit:    handler,
		ctx:     ctx,
		cancel:  cancel,
		resume:  make(chan struct{}, 1),
		current: -1,
		manual:  -1,
	}
	if !cfg.AutoLevel {
		e.manual = 0
	}
	return e
}

// LoadSource implements streaming.Engine.
func (e *Engine) LoadSource(src string) {
	e.mu.Lock()
	e.src = src
	e.mu.Unlock()
	e.maybeStart()
}

// AttachMedia implements streaming.Engine.
func (e *Engine) AttachMedia(target streaming.MediaTarget) {
	e.mu.Lock()
	e.target = target
	e.mu.Unlock()
	e.maybeStart()
}

// SetLevel implements streaming.Engine. The pin applies from the next segment.
func (e *Engine) SetLevel(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 {
		e.manual = -1
		return
	}
	e.manual = i
}

// EnableAutoLevel implements streaming.Engine.
func (e *Engine) EnableAutoLevel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manual = -1
}

// StartLoad implements streaming.Engine.
func (e *Engine) StartLoad() {
	e.wake()
}

// RecoverMediaError implements streaming.Engine. The sink is flushed and the
// failed segment is fetched again.
func (e *Engine) RecoverMediaError() {
	e.mu.Lock()
	target := e.target
	e.mu.Unlock()
	if sink, ok := target.(Sink); ok {
		e.withSink(sink.Reset)
	}
	e.wake()
}

// Destroy implements streaming.Engine. It does not wait for in-flight
// requests, but once it returns the media target is no longer written to.
// It is safe to call from an event handler.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.cancel()
	src := e.src
	e.mu.Unlock()

	// Wait out a media write that started before cancel.
	e.sinkMu.Lock()
	e.sinkMu.Unlock()
	e.log.Debug("engine destroyed", slog.String("src", src))
}

// Levels implements streaming.Engine.
func (e *Engine) Levels() []streaming.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]streaming.Level, len(e.levels))
	for i, v := range e.levels {
		out[i] = v.level
	}
	return out
}

// CurrentLevel implements streaming.Engine.
func (e *Engine) CurrentLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// AutoLevel reports whether automatic level selection is active.
func (e *Engine) AutoLevel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manual < 0
}

func (e *Engine) maybeStart() {
	e.mu.Lock()
	if e.started || e.destroyed || e.src == "" || e.target == nil {
		e.mu.Unlock()
		return
	}
	e.started = true
	src, target := e.src, e.target
	e.mu.Unlock()

	e.log.Debug("engine starting",
		slog.String("src", src),
		slog.Bool("auto_level", e.cfg.AutoLevel),
		slog.Float64("max_buffer_length", e.cfg.MaxBufferLength),
		slog.Bool("low_latency", e.cfg.LowLatencyMode),
	)
	go newLoader(e, src, target).run(e.ctx)
}

// withSink runs fn unless the engine has been destroyed, reporting whether
// it ran. fn must not emit events.
func (e *Engine) withSink(fn func()) bool {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	if e.ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

func (e *Engine) wake() {
	select {
	case e.resume <- struct{}{}:
	default:
	}
}

// send delivers an event unless the engine has been destroyed.
func (e *Engine) send(ev streaming.Event) {
	if e.ctx.Err() != nil || e.emit == nil {
		return
	}
	e.emit(ev)
}

func (e *Engine) setLevels(levels []variant) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.levels = levels
	if e.manual >= len(levels) {
		e.manual = len(levels) - 1
	}
}

func (e *Engine) setCurrent(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = i
}

// pinned returns the manually selected level, or -1 in automatic mode.
func (e *Engine) pinned() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.manual >= len(e.levels) {
		return -1
	}
	return e.manual
}
