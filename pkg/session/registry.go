package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"lsmview/pkg/manifest"
	"lsmview/pkg/metrics"

	"github.com/google/uuid"
)

// Registry holds the open sessions, so several dumps (or several cursors
// over the same dump) can be inspected side by side.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	mc       metrics.Collector
	strict   bool
}

// NewRegistry returns an empty registry. With strict set, dumps whose edits
// disagree with the state they apply to are rejected; otherwise the
// inconsistencies are logged and the dump is opened anyway.
func NewRegistry(mc metrics.Collector, strict bool) *Registry {
	if mc == nil {
		mc = metrics.Discard
	}
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		mc:       mc,
		strict:   strict,
	}
}

// Create opens a session over data and registers it.
func (r *Registry) Create(name string, data *manifest.Data) (*Session, error) {
	if err := r.checkConsistency(name, data); err != nil {
		return nil, err
	}

	s, err := New(name, data, r.mc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.mc.SetGauge("sessions", nil, float64(n))
	slog.Info("session created", "id", s.ID(), "name", name, "edits", s.NumEdits())
	return s, nil
}

// Load reads the dump at path and opens a session over it.
func (r *Registry) Load(path string) (*Session, error) {
	data, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	return r.Create(path, data)
}

func (r *Registry) checkConsistency(name string, data *manifest.Data) error {
	if err := data.Validate(); err != nil {
		return fmt.Errorf("invalid manifest dump: %w", err)
	}

	violations := data.CheckConsistency()
	if len(violations) == 0 {
		return nil
	}
	if r.strict {
		return fmt.Errorf("%w: %s (%d total)", manifest.ErrInconsistentEdit, violations[0].Error(), len(violations))
	}
	for _, v := range violations {
		slog.Warn("inconsistent version edit", "name", name, "edit", v.Edit, "level", int(v.Level), "file", v.File, "kind", v.Kind.String())
	}
	return nil
}

func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Remove closes and unregisters a session.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Close()
	r.mc.SetGauge("sessions", nil, float64(n))
	slog.Info("session removed", "id", id)
	return nil
}

// List returns the sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Created().Before(out[j].Created())
	})
	return out
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	r.mc.SetGauge("sessions", nil, 0)
}
