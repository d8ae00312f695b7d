package dashboard

import (
	"errors"
	"sort"
	"sync"
)

// ErrPlayerNotFound is returned for an unknown player id.
var ErrPlayerNotFound = errors.New("player not found")

// Registry is a concurrency-safe set of players keyed by id.
type Registry struct {
	mu      sync.RWMutex
	players map[PlayerID]*Player
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[PlayerID]*Player)}
}

// Add stores p, replacing any player with the same id.
func (r *Registry) Add(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[p.ID] = p
}

// Get returns the player with the given id.
func (r *Registry) Get(id PlayerID) (*Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// Remove deletes and returns the player with the given id.
func (r *Registry) Remove(id PlayerID) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	delete(r.players, id)
	return p, nil
}

// List returns all players ordered by creation time.
func (r *Registry) List() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of players. Used for metrics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}
