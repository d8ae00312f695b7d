package streaming

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStatsInterval is the period of the dropped-frame refresh.
const DefaultStatsInterval = time.Second

// Recorder receives streaming telemetry. metrics.Metrics satisfies it.
type Recorder interface {
	SessionStarted()
	SessionEnded()
	SegmentLoaded(byteLength int)
	LevelSwitched(quality string)
	FatalError(kind string)
	ObserveStats(bitrate int, bufferLevel, networkSpeed float64, droppedFrames int)
}

// Options configures a Controller. All fields are optional.
type Options struct {
	Logger        *slog.Logger
	Recorder      Recorder
	StatsInterval time.Duration
}

// session is one live engine attachment.
type session struct {
	id     string
	engine Engine
}

// Controller owns at most one engine session for a media target and turns
// engine events into observable state.
//
// Public operations are serialized with each other. Engine events go through
// dispatch, which holds the state lock only while mutating; engine commands
// are always issued with no lock held.
type Controller struct {
	target    MediaTarget
	factory   EngineFactory
	cfg       SessionConfig
	log       *slog.Logger
	rec       Recorder
	interval  time.Duration
	supported bool

	opMu sync.Mutex

	mu             sync.Mutex
	session        *session
	state          State
	currentQuality string
	available      []string
	stats          Stats
	isLoading      bool
	errMsg         string
	stopTimer      context.CancelFunc
	timerDone      chan struct{}

	watchMu  sync.Mutex
	watchers map[chan Snapshot]struct{}
}

// NewController returns a controller bound to target. The capability check
// runs once here. When target is non-nil the periodic stats refresh starts
// immediately and runs until Destroy.
func NewController(target MediaTarget, factory EngineFactory, cfg SessionConfig, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	interval := opts.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}

	c := &Controller{
		target:         target,
		factory:        factory,
		cfg:            cfg,
		log:            log,
		rec:            opts.Recorder,
		interval:       interval,
		supported:      factory != nil && factory.Supported(),
		state:          StateIdle,
		currentQuality: AutoQuality,
		available:      []string{},
		watchers:       make(map[chan Snapshot]struct{}),
	}

	c.mu.Lock()
	c.startTimerLocked()
	c.mu.Unlock()
	return c
}

// Supported reports the cached capability check.
func (c *Controller) Supported() bool {
	return c.supported
}

// Config returns a copy of the session configuration.
func (c *Controller) Config() SessionConfig {
	cfg := c.cfg
	cfg.QualityLevels = append([]string(nil), c.cfg.QualityLevels...)
	return cfg
}

// Initialize starts a session for src. It is a no-op without a media target
// or engine support. A live session is destroyed before the new one starts.
func (c *Controller) Initialize(src string) {
	if c.target == nil || !c.supported {
		return
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	prev := c.session
	c.session = nil
	c.mu.Unlock()

	if prev != nil {
		c.log.Info("replacing streaming session", slog.String("session_id", prev.id))
		prev.engine.Destroy()
		if c.rec != nil {
			c.rec.SessionEnded()
		}
	}

	s := &session{id: uuid.NewString()}
	s.engine = c.factory.New(NewEngineConfig(c.cfg), func(ev Event) {
		c.dispatch(s, ev)
	})

	c.mu.Lock()
	c.session = s
	c.state = StateLoading
	c.isLoading = true
	c.errMsg = ""
	c.currentQuality = AutoQuality
	c.available = []string{}
	c.stats = Stats{}
	c.startTimerLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.rec != nil {
		c.rec.SessionStarted()
	}
	c.log.Info("streaming session initialized",
		slog.String("session_id", s.id),
		slog.String("src", src),
		slog.Float64("buffer_length", c.cfg.BufferLength),
		slog.Float64("max_buffer_length", c.cfg.MaxBufferLength),
	)
	c.publish(snap)

	s.engine.LoadSource(src)
	s.engine.AttachMedia(c.target)
}

// ChangeQuality pins the engine to the level labelled label, or resumes
// automatic selection for AutoQuality. Unknown labels leave the engine
// alone. CurrentQuality is set to label either way.
func (c *Controller) ChangeQuality(label string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return
	}
	idx := levelIndex(c.available, label)
	c.currentQuality = label
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if label == AutoQuality {
		s.engine.EnableAutoLevel()
	} else if idx >= 0 && idx < len(s.engine.Levels()) {
		s.engine.SetLevel(idx)
	} else {
		c.log.Debug("quality not available, pin ignored",
			slog.String("session_id", s.id),
			slog.String("quality", label))
	}
	c.publish(snap)
}

// Destroy releases the engine session and stops the stats refresh. It is
// idempotent and leaves the controller ready for another Initialize.
func (c *Controller) Destroy() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	s := c.session
	c.session = nil
	stop, done := c.stopTimer, c.timerDone
	c.stopTimer, c.timerDone = nil, nil
	changed := s != nil || c.state != StateDestroyed && c.state != StateIdle
	if changed {
		c.state = StateDestroyed
		c.isLoading = false
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if s != nil {
		s.engine.Destroy()
		if c.rec != nil {
			c.rec.SessionEnded()
		}
		c.log.Info("streaming session destroyed", slog.String("session_id", s.id))
	}
	if changed {
		c.publish(snap)
	}
}

// SeekToChunk moves playback to chunkIndex*ChunkSize seconds. Range checks
// are left to the media target.
func (c *Controller) SeekToChunk(chunkIndex int) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	active := c.session != nil
	c.mu.Unlock()

	if !active || c.target == nil || c.cfg.ChunkSize <= 0 {
		return
	}
	c.target.SetCurrentTime(float64(chunkIndex) * c.cfg.ChunkSize)
}

// RefreshStats copies the media target's dropped-frame counter into the
// stats. The periodic timer calls it every interval.
func (c *Controller) RefreshStats() {
	counter, ok := c.target.(DroppedFrameCounter)
	if !ok {
		return
	}
	dropped := counter.DroppedFrames()

	c.mu.Lock()
	c.stats.DroppedFrames = dropped
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.rec != nil {
		c.rec.ObserveStats(snap.Stats.CurrentBitrate, snap.Stats.BufferLevel, snap.Stats.NetworkSpeed, snap.Stats.DroppedFrames)
	}
	c.publish(snap)
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Watch streams snapshots until ctx is done. Slow readers only see the most
// recent snapshot. The current state is delivered first.
func (c *Controller) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	ch <- c.Snapshot()

	c.watchMu.Lock()
	c.watchers[ch] = struct{}{}
	c.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		c.watchMu.Lock()
		delete(c.watchers, ch)
		close(ch)
		c.watchMu.Unlock()
	}()
	return ch
}

// dispatch is the single entry point for engine events. Events from a
// session that is no longer current are dropped.
func (c *Controller) dispatch(s *session, ev Event) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}

	var follow func()
	switch e := ev.(type) {
	case ManifestParsed:
		c.onManifestParsed(e)
	case LevelSwitched:
		c.onLevelSwitched(s, e)
	case SegmentLoaded:
		c.onSegmentLoaded(e)
	case EngineError:
		follow = c.onError(s, e)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if follow != nil {
		follow()
	}
	c.publish(snap)
}

func (c *Controller) onManifestParsed(e ManifestParsed) {
	c.isLoading = false
	c.errMsg = ""
	c.state = StateReady
	c.available = qualityLabels(e.Levels)
}

func (c *Controller) onLevelSwitched(s *session, e LevelSwitched) {
	levels := s.engine.Levels()
	if e.Index < 0 || e.Index >= len(levels) {
		c.log.Warn("level switched to unknown level",
			slog.String("session_id", s.id),
			slog.Int("level", e.Index),
			slog.Int("levels", len(levels)))
		return
	}
	level := levels[e.Index]
	c.currentQuality = Classify(level.Height)
	c.stats.CurrentBitrate = level.Bitrate
	if c.rec != nil {
		c.rec.LevelSwitched(c.currentQuality)
	}
}

func (c *Controller) onSegmentLoaded(e SegmentLoaded) {
	c.stats.ChunkCount++
	if e.Duration > 0 {
		c.stats.NetworkSpeed = float64(e.ByteLength) * 8 / e.Duration
	} else {
		c.stats.NetworkSpeed = 0
	}
	c.stats.BufferLevel = 0
	if ranges := c.target.Buffered(); len(ranges) > 0 {
		c.stats.BufferLevel = ranges[0].End - c.target.CurrentTime()
	}
	if c.rec != nil {
		c.rec.SegmentLoaded(e.ByteLength)
	}
}

// onError updates state for fatal errors and returns the recovery command to
// run once the lock is released.
func (c *Controller) onError(s *session, e EngineError) func() {
	if !e.Fatal {
		c.log.Warn("streaming error",
			slog.String("session_id", s.id),
			slog.String("kind", e.Kind.String()),
			slog.String("details", e.Details))
		return nil
	}

	c.log.Error("fatal streaming error",
		slog.String("session_id", s.id),
		slog.String("kind", e.Kind.String()),
		slog.String("details", e.Details))
	if c.rec != nil {
		c.rec.FatalError(e.Kind.String())
	}

	c.errMsg = e.Kind.message()
	c.state = StateError

	switch e.Kind {
	case ErrorNetwork:
		return s.engine.StartLoad
	case ErrorMedia:
		return s.engine.RecoverMediaError
	default:
		c.session = nil
		c.isLoading = false
		return func() {
			s.engine.Destroy()
			if c.rec != nil {
				c.rec.SessionEnded()
			}
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	available := make([]string, len(c.available))
	copy(available, c.available)
	return Snapshot{
		State:              c.state,
		CurrentQuality:     c.currentQuality,
		AvailableQualities: available,
		Stats:              c.stats,
		IsLoading:          c.isLoading,
		Error:              c.errMsg,
	}
}

// startTimerLocked starts the stats refresh if a target exists and no
// refresh is running. Caller must hold c.mu.
func (c *Controller) startTimerLocked() {
	if c.target == nil || c.stopTimer != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stopTimer, c.timerDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RefreshStats()
			}
		}
	}()
}

// timerActive reports whether the stats refresh is running.
func (c *Controller) timerActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTimer != nil
}

func (c *Controller) publish(snap Snapshot) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for ch := range c.watchers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
