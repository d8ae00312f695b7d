package streaming

import "sync"

type fakeEngine struct {
	mu      sync.Mutex
	cfg     EngineConfig
	handler EventHandler
	src     string
	target  MediaTarget
	levels  []Level
	current int
	auto    bool

	pins       []int
	autoCalls  int
	startLoads int
	recoveries int
	destroys   int
}

func (e *fakeEngine) LoadSource(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = src
}

func (e *fakeEngine) AttachMedia(target MediaTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.target = target
}

func (e *fakeEngine) SetLevel(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pins = append(e.pins, i)
	e.current = i
	e.auto = false
}

func (e *fakeEngine) EnableAutoLevel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoCalls++
	e.auto = true
}

func (e *fakeEngine) StartLoad() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLoads++
}

func (e *fakeEngine) RecoverMediaError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recoveries++
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroys++
}

func (e *fakeEngine) Levels() []Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Level, len(e.levels))
	copy(out, e.levels)
	return out
}

func (e *fakeEngine) CurrentLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.auto {
		return -1
	}
	return e.current
}

// parse sets the level list and emits ManifestParsed.
func (e *fakeEngine) parse(levels ...Level) {
	e.mu.Lock()
	e.levels = levels
	e.mu.Unlock()
	e.handler(ManifestParsed{Levels: levels})
}

func (e *fakeEngine) emit(ev Event) {
	e.handler(ev)
}

func (e *fakeEngine) counts() (startLoads, recoveries, destroys int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLoads, e.recoveries, e.destroys
}

type fakeFactory struct {
	mu        sync.Mutex
	supported bool
	checks    int
	engines   []*fakeEngine
}

func (f *fakeFactory) Supported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.supported
}

func (f *fakeFactory) New(cfg EngineConfig, handler EventHandler) Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{cfg: cfg, handler: handler, auto: cfg.AutoLevel}
	f.engines = append(f.engines, e)
	return e
}

func (f *fakeFactory) last() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

type fakeMedia struct {
	mu       sync.Mutex
	current  float64
	buffered []TimeRange
	dropped  int
	seeks    []float64
}

func (m *fakeMedia) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *fakeMedia) SetCurrentTime(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
	m.seeks = append(m.seeks, t)
}

func (m *fakeMedia) Buffered() []TimeRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TimeRange, len(m.buffered))
	copy(out, m.buffered)
	return out
}

func (m *fakeMedia) DroppedFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *fakeMedia) setDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = n
}

// plainMedia has no dropped-frame counter.
type plainMedia struct {
	current float64
}

func (m *plainMedia) CurrentTime() float64     { return m.current }
func (m *plainMedia) SetCurrentTime(t float64) { m.current = t }
func (m *plainMedia) Buffered() []TimeRange    { return nil }
