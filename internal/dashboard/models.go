package dashboard

import (
	"sync"
	"time"

	"streamplex/internal/player"
	"streamplex/internal/streaming"
)

// PlayerID uniquely identifies a dashboard player.
type PlayerID string

// Player is one headless video element with its streaming controller.
type Player struct {
	ID         PlayerID
	Playhead   *player.Playhead
	Controller *streaming.Controller
	CreatedAt  time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed once the player has been removed.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) close() {
	p.closeOnce.Do(func() {
		if p.done != nil {
			close(p.done)
		}
	})
}

// SessionRequest is the body of POST /players/{id}/session.
type SessionRequest struct {
	Src string `json:"src"`
}

// QualityRequest is the body of PUT /players/{id}/quality.
type QualityRequest struct {
	Quality string `json:"quality"`
}

// SeekRequest is the body of POST /players/{id}/seek.
type SeekRequest struct {
	Chunk *int `json:"chunk"`
}

// PlayerView is the JSON representation of a player.
type PlayerView struct {
	ID          PlayerID `json:"id"`
	Supported   bool     `json:"supported"`
	Playing     bool     `json:"playing"`
	CurrentTime float64  `json:"currentTime"`
	streaming.Snapshot
	BitrateLabel      string                  `json:"bitrateLabel"`
	NetworkSpeedLabel string                  `json:"networkSpeedLabel"`
	Buffered          []streaming.TimeRange   `json:"buffered"`
	Config            streaming.SessionConfig `json:"config"`
}

// View renders p with the controller snapshot snap.
func (p *Player) View(snap streaming.Snapshot) PlayerView {
	buffered := p.Playhead.Buffered()
	if buffered == nil {
		buffered = []streaming.TimeRange{}
	}
	return PlayerView{
		ID:                p.ID,
		Supported:         p.Controller.Supported(),
		Playing:           p.Playhead.Playing(),
		CurrentTime:       p.Playhead.CurrentTime(),
		Snapshot:          snap,
		BitrateLabel:      streaming.FormatBitrate(snap.Stats.CurrentBitrate),
		NetworkSpeedLabel: streaming.FormatSpeed(snap.Stats.NetworkSpeed),
		Buffered:          buffered,
		Config:            p.Controller.Config(),
	}
}
