package dashboard

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamplex/internal/player"
	"streamplex/internal/streaming"
)

var (
	// ErrUnsupported is returned when the engine factory cannot stream.
	ErrUnsupported = errors.New("adaptive streaming is not supported")

	// ErrInvalidSource is returned for an empty source URL.
	ErrInvalidSource = errors.New("source url is required")
)

// Options configures a Service.
type Options struct {
	Config        streaming.SessionConfig
	FrameRate     float64
	StatsInterval time.Duration
	Recorder      streaming.Recorder
}

// Service creates players and applies dashboard commands to them.
type Service struct {
	players *Registry
	factory streaming.EngineFactory
	log     *slog.Logger
	opts    Options
}

// NewService returns a Service that builds controllers from factory.
// A zero Options.Config selects streaming.DefaultSessionConfig.
func NewService(players *Registry, factory streaming.EngineFactory, log *slog.Logger, opts Options) *Service {
	if opts.Config.ChunkSize == 0 && len(opts.Config.QualityLevels) == 0 {
		opts.Config = streaming.DefaultSessionConfig()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = player.DefaultFrameRate
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{players: players, factory: factory, log: log, opts: opts}
}

// DefaultConfig returns the session configuration new players start from.
func (s *Service) DefaultConfig() streaming.SessionConfig {
	cfg := s.opts.Config
	cfg.QualityLevels = append([]string(nil), cfg.QualityLevels...)
	return cfg
}

// CreatePlayer registers a new player using cfg.
func (s *Service) CreatePlayer(cfg streaming.SessionConfig) *Player {
	ph := player.New(s.opts.FrameRate)
	id := PlayerID(uuid.NewString())
	ctrl := streaming.NewController(ph, s.factory, cfg, streaming.Options{
		Logger:        s.log.With(slog.String("player_id", string(id))),
		Recorder:      s.opts.Recorder,
		StatsInterval: s.opts.StatsInterval,
	})
	p := &Player{
		ID:         id,
		Playhead:   ph,
		Controller: ctrl,
		CreatedAt:  time.Now().UTC(),
		done:       make(chan struct{}),
	}
	s.players.Add(p)
	return p
}

// Player returns the player with the given id.
func (s *Service) Player(id PlayerID) (*Player, error) {
	return s.players.Get(id)
}

// Players returns every registered player.
func (s *Service) Players() []*Player {
	return s.players.List()
}

// DeletePlayer destroys the player's session and unregisters it.
func (s *Service) DeletePlayer(id PlayerID) error {
	p, err := s.players.Remove(id)
	if err != nil {
		return err
	}
	p.Controller.Destroy()
	p.Playhead.Pause()
	p.close()
	return nil
}

// StartSession attaches src to the player, replacing any live session.
func (s *Service) StartSession(id PlayerID, src string) error {
	p, err := s.players.Get(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(src) == "" {
		return ErrInvalidSource
	}
	if !p.Controller.Supported() {
		return ErrUnsupported
	}
	p.Controller.Initialize(src)
	return nil
}

// StopSession destroys the player's session. The player stays registered.
func (s *Service) StopSession(id PlayerID) error {
	p, err := s.players.Get(id)
	if err != nil {
		return err
	}
	p.Controller.Destroy()
	return nil
}

// ChangeQuality pins the player's quality, or resumes automatic selection.
func (s *Service) ChangeQuality(id PlayerID, quality string) error {
	p, err := s.players.Get(id)
	if err != nil {
		return err
	}
	p.Controller.ChangeQuality(quality)
	return nil
}

// SeekToChunk moves the player's playhead to the start of chunk.
func (s *Service) SeekToChunk(id PlayerID, chunk int) error {
	p, err := s.players.Get(id)
	if err != nil {
		return err
	}
	p.Controller.SeekToChunk(chunk)
	return nil
}

// SetPlaying starts or pauses playback.
func (s *Service) SetPlaying(id PlayerID, playing bool) error {
	p, err := s.players.Get(id)
	if err != nil {
		return err
	}
	if playing {
		p.Playhead.Play()
	} else {
		p.Playhead.Pause()
	}
	return nil
}

// ActivePlayerCount returns the number of registered players.
func (s *Service) ActivePlayerCount() int {
	return s.players.Count()
}

// Close destroys every player. Used at shutdown.
func (s *Service) Close() {
	for _, p := range s.players.List() {
		if _, err := s.players.Remove(p.ID); err == nil {
			p.Controller.Destroy()
			p.close()
		}
	}
}
