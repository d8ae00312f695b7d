package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"

	"streamplex/internal/streaming"
)

const eventStreamContentType = "text/event-stream"

// Handler exposes dashboard HTTP endpoints using go-chi.
type Handler struct {
	svc   *Service
	log   *slog.Logger
	media http.Handler
}

// NewHandler returns a Handler for svc. When upstream is non-nil, /media/*
// is proxied to it through transport (the offline cache in production).
func NewHandler(svc *Service, log *slog.Logger, upstream *url.URL, transport http.RoundTripper) *Handler {
	h := &Handler{svc: svc, log: log}
	if upstream != nil {
		h.media = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.Out.URL.Path = "/" + chi.URLParam(pr.In, "*")
				pr.Out.URL.RawPath = ""
				pr.SetURL(upstream)
			},
			Transport: transport,
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				log.Warn("media proxy failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
				w.WriteHeader(http.StatusBadGateway)
			},
		}
	}
	return h
}

// Register mounts the dashboard routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/players", func(r chi.Router) {
		r.Post("/", h.CreatePlayer)
		r.Get("/", h.ListPlayers)
		r.Route("/{player_id}", func(r chi.Router) {
			r.Get("/", h.GetPlayer)
			r.Delete("/", h.DeletePlayer)
			r.Post("/session", h.StartSession)
			r.Delete("/session", h.StopSession)
			r.Put("/quality", h.ChangeQuality)
			r.Post("/seek", h.Seek)
			r.Post("/play", h.Play)
			r.Post("/pause", h.Pause)
			r.Get("/events", h.Events)
		})
	})
	r.Get("/media/*", h.Media)
}

// CreatePlayer handles POST /players. The optional body overrides fields
// of the default session configuration.
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug("invalid player config", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p := h.svc.CreatePlayer(cfg)
	h.log.Info("player created",
		slog.String("player_id", string(p.ID)),
		slog.Float64("chunk_size", cfg.ChunkSize),
		slog.Bool("enable_adaptive", cfg.EnableAdaptive))
	h.writeJSON(w, http.StatusCreated, p.View(p.Controller.Snapshot()))
}

// ListPlayers handles GET /players.
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	players := h.svc.Players()
	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, p.View(p.Controller.Snapshot()))
	}
	h.writeJSON(w, http.StatusOK, views)
}

// GetPlayer handles GET /players/{player_id}.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Player(playerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p.View(p.Controller.Snapshot()))
}

// DeletePlayer handles DELETE /players/{player_id}.
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	id := playerID(r)
	if err := h.svc.DeletePlayer(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info("player deleted", slog.String("player_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

// StartSession handles POST /players/{player_id}/session.
// Body: { "src": "https://cdn.example.com/master.m3u8" }.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.apply(w, r, func(id PlayerID) error { return h.svc.StartSession(id, req.Src) })
}

// StopSession handles DELETE /players/{player_id}/session.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.svc.StopSession)
}

// ChangeQuality handles PUT /players/{player_id}/quality.
// Body: { "quality": "720p" } or { "quality": "Auto" }.
func (h *Handler) ChangeQuality(w http.ResponseWriter, r *http.Request) {
	var req QualityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quality == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.apply(w, r, func(id PlayerID) error { return h.svc.ChangeQuality(id, req.Quality) })
}

// Seek handles POST /players/{player_id}/seek. Body: { "chunk": 3 }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Chunk == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.apply(w, r, func(id PlayerID) error { return h.svc.SeekToChunk(id, *req.Chunk) })
}

// Play handles POST /players/{player_id}/play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(id PlayerID) error { return h.svc.SetPlaying(id, true) })
}

// Pause handles POST /players/{player_id}/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(id PlayerID) error { return h.svc.SetPlaying(id, false) })
}

// Events handles GET /players/{player_id}/events as a server-sent event
// stream of player views, one per controller state change. The stream ends
// after the final snapshot of a deleted player.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Player(playerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", eventStreamContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates := p.Controller.Watch(r.Context())
	for {
		select {
		case <-p.Done():
			select {
			case snap, ok := <-updates:
				if ok {
					h.writeEvent(w, flusher, p, snap)
				}
			default:
			}
			return
		case snap, ok := <-updates:
			if !ok || !h.writeEvent(w, flusher, p, snap) {
				return
			}
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, flusher http.Flusher, p *Player, snap streaming.Snapshot) bool {
	data, err := json.Marshal(p.View(snap))
	if err != nil {
		h.log.Error("encode player event", slog.String("error", err.Error()))
		return false
	}
	if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// Media handles GET /media/*, proxying to the upstream origin.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.media.ServeHTTP(w, r)
}

// apply runs op for the path's player and responds with the updated view.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, op func(PlayerID) error) {
	id := playerID(r)
	if err := op(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Player(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p.View(p.Controller.Snapshot()))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrInvalidSource):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, ErrUnsupported):
		h.log.Info("session rejected",
			slog.String("player_id", string(playerID(r))),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		h.log.Error("player command failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response", slog.String("error", err.Error()))
	}
}

func playerID(r *http.Request) PlayerID {
	return PlayerID(chi.URLParam(r, "player_id"))
}
