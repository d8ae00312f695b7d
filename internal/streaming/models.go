package streaming

import "fmt"

// AutoQuality is the synthetic quality label that stands for automatic
// level selection. It is always the first entry of AvailableQualities.
const AutoQuality = "Auto"

// SessionConfig holds the immutable per-controller streaming inputs.
type SessionConfig struct {
	// ChunkSize is the segment length in seconds. Only used by SeekToChunk.
	ChunkSize float64 `json:"chunkSize"`
	// BufferLength is the forward buffer target in seconds.
	BufferLength float64 `json:"bufferLength"`
	// MaxBufferLength is the forward buffer ceiling in seconds.
	MaxBufferLength float64 `json:"maxBufferLength"`
	// EnableAdaptive permits automatic bitrate switching.
	EnableAdaptive bool `json:"enableAdaptive"`
	// QualityLevels lists the labels a UI is allowed to display. Advisory only;
	// the real levels come from the manifest.
	QualityLevels []string `json:"qualityLevels"`
}

// DefaultSessionConfig mirrors the dashboard defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ChunkSize:       10,
		BufferLength:    30,
		MaxBufferLength: 600,
		EnableAdaptive:  true,
		QualityLevels:   []string{AutoQuality, "1080p", "720p", "480p", "360p", "240p"},
	}
}

// Stats is the streaming statistics block owned by a Controller.
type Stats struct {
	CurrentBitrate int     `json:"currentBitrate"` // bits/sec of the active level
	DroppedFrames  int     `json:"droppedFrames"`  // runtime-reported cumulative count
	BufferLevel    float64 `json:"bufferLevel"`    // seconds buffered ahead of the playhead
	NetworkSpeed   float64 `json:"networkSpeed"`   // bits/sec of the last segment
	ChunkCount     int     `json:"chunkCount"`     // segments loaded in this session
}

// Level is one quality variant reported by the engine.
type Level struct {
	Height  int `json:"height"`
	Bitrate int `json:"bitrate"`
}

// TimeRange is a buffered interval of media time, in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON views.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateDestroyed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Snapshot is a read-only copy of the controller's observable state.
type Snapshot struct {
	State              State    `json:"state"`
	CurrentQuality     string   `json:"currentQuality"`
	AvailableQualities []string `json:"availableQualities"`
	Stats              Stats    `json:"streamingStats"`
	IsLoading          bool     `json:"isLoading"`
	Error              string   `json:"error,omitempty"`
}
