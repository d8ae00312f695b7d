package dashboard

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"streamplex/internal/streaming"
)

// stubEngine parses a fixed two-level manifest as soon as media is attached.
type stubEngine struct {
	mu      sync.Mutex
	handler streaming.EventHandler
	levels  []streaming.Level
	pinned  int
}

func (e *stubEngine) LoadSource(string) {}

func (e *stubEngine) AttachMedia(streaming.MediaTarget) {
	levels := []streaming.Level{{Height: 1080, Bitrate: 5000000}, {Height: 720, Bitrate: 2800000}}
	e.mu.Lock()
	e.levels = levels
	e.mu.Unlock()
	e.handler(streaming.ManifestParsed{Levels: levels})
	e.handler(streaming.LevelSwitched{Index: 1})
}

func (e *stubEngine) SetLevel(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned = i
}

func (e *stubEngine) EnableAutoLevel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned = -1
}

func (e *stubEngine) StartLoad()         {}
func (e *stubEngine) RecoverMediaError() {}
func (e *stubEngine) Destroy()           {}

func (e *stubEngine) Levels() []streaming.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]streaming.Level(nil), e.levels...)
}

func (e *stubEngine) CurrentLevel() int { return 1 }

type stubFactory struct {
	supported bool

	mu      sync.Mutex
	engines []*stubEngine
}

func (f *stubFactory) Supported() bool { return f.supported }

func (f *stubFactory) New(_ streaming.EngineConfig, handler streaming.EventHandler) streaming.Engine {
	e := &stubEngine{handler: handler, pinned: -1}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e
}

func (f *stubFactory) last() *stubEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, supported bool) (*Service, *stubFactory) {
	t.Helper()
	f := &stubFactory{supported: supported}
	svc := NewService(NewRegistry(), f, testLogger(), Options{})
	t.Cleanup(svc.Close)
	return svc, f
}
