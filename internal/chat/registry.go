package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry caches one Session per client and loads it on first use.
type Registry struct {
	cfg         Config
	invalidator *Invalidator

	mu       sync.Mutex
	sessions map[string]*Session

	// discarded holds, per evicted client, the messages whose reply was dropped.
	discarded map[string]map[string]bool
}

// NewRegistry builds a registry. invalidator may be nil for single-instance
// deployments.
func NewRegistry(cfg Config, invalidator *Invalidator) *Registry {
	r := &Registry{
		invalidator: invalidator,
		sessions:    make(map[string]*Session),
		discarded:   make(map[string]map[string]bool),
	}
	onSaved := cfg.OnSaved
	cfg.OnSaved = func(clientID string, cleared bool) {
		if onSaved != nil {
			onSaved(clientID, cleared)
		}
		r.announce(clientID, cleared)
	}
	r.cfg = cfg.withDefaults()
	return r
}

// Session returns the cached session of clientID, loading it from storage
// on first access.
func (r *Registry) Session(ctx context.Context, clientID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[clientID]; ok {
		return s, nil
	}
	s := NewSession(clientID, r.cfg)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	s.failOrphaned(ctx, r.discarded[clientID])
	delete(r.discarded, clientID)
	r.sessions[clientID] = s
	return s, nil
}

// Evict drops the cached session so the next access reloads from storage.
// Replies still pending on the dropped session are discarded.
func (r *Registry) Evict(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	if !ok {
		return
	}
	delete(r.sessions, clientID)
	if discarded := s.retire(); len(discarded) > 0 {
		r.discarded[clientID] = discarded
	}
}

// Listen evicts sessions changed by other instances until ctx is done.
func (r *Registry) Listen(ctx context.Context) error {
	if r.invalidator == nil {
		<-ctx.Done()
		return nil
	}
	return r.invalidator.Listen(ctx, func(msg InvalidateMessage) {
		log.Debug().Str("client_id", msg.ClientID).Str("scope", msg.Scope).Msg("session invalidated by peer")
		r.Evict(msg.ClientID)
	})
}

func (r *Registry) announce(clientID string, cleared bool) {
	if r.invalidator == nil {
		return
	}
	scope := ScopeHistory
	if cleared {
		scope = ScopeCleared
	}
	go r.invalidator.Publish(context.Background(), clientID, scope)
}
