package streaming

import "time"

// MediaTarget is the output a streaming engine renders into. It reports the
// playback position and buffered ranges and accepts seeks.
type MediaTarget interface {
	CurrentTime() float64
	SetCurrentTime(t float64)
	Buffered() []TimeRange
}

// DroppedFrameCounter is implemented by media targets that can report a
// cumulative dropped-frame count.
type DroppedFrameCounter interface {
	DroppedFrames() int
}

// Engine is one adaptive streaming session. Commands must not block on
// event delivery: an engine may be commanded from inside its own event
// handler, including Destroy.
type Engine interface {
	LoadSource(src string)
	AttachMedia(target MediaTarget)

	// SetLevel pins the engine to level i.
	SetLevel(i int)
	// EnableAutoLevel clears any pin and resumes automatic selection.
	EnableAutoLevel()
	// StartLoad restarts manifest/segment loading after a network failure.
	StartLoad()
	// RecoverMediaError resets the media pipeline without reloading the manifest.
	RecoverMediaError()
	// Destroy releases every resource. Safe to call more than once.
	Destroy()

	Levels() []Level
	CurrentLevel() int
}

// EngineFactory builds engines. Supported is the runtime capability check.
type EngineFactory interface {
	Supported() bool
	New(cfg EngineConfig, handler EventHandler) Engine
}

// EngineConfig is the tuning handed to an engine for one session.
type EngineConfig struct {
	MaxBufferLength    float64 // forward buffer target, seconds
	MaxMaxBufferLength float64 // forward buffer ceiling, seconds
	BackBufferLength   float64 // back buffer retention, seconds

	FragLoadingTimeout    time.Duration
	FragLoadingMaxRetry   int
	FragLoadingRetryDelay time.Duration

	AbrEwmaFast        float64 // half-life in seconds
	AbrEwmaSlow        float64 // half-life in seconds
	MaxStarvationDelay time.Duration
	MaxLoadingDelay    time.Duration

	EnableWorker   bool
	LowLatencyMode bool
	Progressive    bool

	// AutoLevel starts the session with automatic level selection.
	AutoLevel bool
}

const (
	backBufferLength      = 90
	fragLoadingTimeout    = 20000 * time.Millisecond
	fragLoadingMaxRetry   = 6
	fragLoadingRetryDelay = 500 * time.Millisecond
	abrEwmaFast           = 3.0
	abrEwmaSlow           = 9.0
	maxStarvationDelay    = 4 * time.Second
	maxLoadingDelay       = 4 * time.Second
)

// NewEngineConfig derives the engine tuning from a session configuration.
func NewEngineConfig(cfg SessionConfig) EngineConfig {
	return EngineConfig{
		MaxBufferLength:       cfg.BufferLength,
		MaxMaxBufferLength:    cfg.MaxBufferLength,
		BackBufferLength:      backBufferLength,
		FragLoadingTimeout:    fragLoadingTimeout,
		FragLoadingMaxRetry:   fragLoadingMaxRetry,
		FragLoadingRetryDelay: fragLoadingRetryDelay,
		AbrEwmaFast:           abrEwmaFast,
		AbrEwmaSlow:           abrEwmaSlow,
		MaxStarvationDelay:    maxStarvationDelay,
		MaxLoadingDelay:       maxLoadingDelay,
		EnableWorker:          true,
		LowLatencyMode:        false,
		Progressive:           true,
		AutoLevel:             cfg.EnableAdaptive,
	}
}

// Event is a notification emitted by an engine. The set of events is closed.
type Event interface {
	isEvent()
}

// EventHandler receives engine events in emission order.
type EventHandler func(Event)

// ManifestParsed carries the levels of a freshly parsed manifest.
type ManifestParsed struct {
	Levels []Level
}

// LevelSwitched reports that playback moved to level Index.
type LevelSwitched struct {
	Index int
}

// SegmentLoaded reports one successfully fetched segment.
type SegmentLoaded struct {
	ByteLength int
	Duration   float64
}

// EngineError reports an engine failure. Only fatal errors affect state.
type EngineError struct {
	Kind    ErrorKind
	Fatal   bool
	Details string
}

func (ManifestParsed) isEvent() {}
func (LevelSwitched) isEvent()  {}
func (SegmentLoaded) isEvent()  {}
func (EngineError) isEvent()    {}
