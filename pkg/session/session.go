package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lsmview/pkg/clock"
	"lsmview/pkg/listener"
	"lsmview/pkg/manifest"
	"lsmview/pkg/metrics"
	"lsmview/pkg/types"
	"lsmview/pkg/version"

	"github.com/google/uuid"
)

// Session is one inspection of a manifest dump. It serializes cursor moves
// (from callers and from playback) against queries, so every query observes
// the state after a completed move.
type Session struct {
	id      uuid.UUID
	name    string
	created time.Time
	mc      metrics.Collector

	mu  sync.RWMutex
	v   *version.Version
	gen clock.Logical

	playMu sync.Mutex
	player *listener.Listener[time.Time]
}

// New creates a session over data positioned at the first edit.
func New(name string, data *manifest.Data, mc metrics.Collector) (*Session, error) {
	v, err := version.New(data)
	if err != nil {
		return nil, err
	}
	if mc == nil {
		mc = metrics.Discard
	}

	s := &Session{
		id:      uuid.New(),
		name:    name,
		created: time.Now(),
		mc:      mc,
		v:       v,
	}
	s.move(func(int) int { return 0 })

	return s, nil
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) Created() time.Time {
	return s.created
}

// move sets the cursor to target(current) and reports whether it changed.
func (s *Session) move(target func(cursor int) int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	before := s.v.Cursor()
	s.v.SetCursor(target(before))
	after := s.v.Cursor()
	if after == before {
		return false
	}
	s.gen.Tick()

	direction, n := "forward", after-before
	if n < 0 {
		direction, n = "backward", -n
	}
	s.mc.IncCounter("cursor_moves_total", nil, 1)
	s.mc.IncCounter("edits_replayed_total", map[string]string{"direction": direction}, float64(n))
	s.mc.ObserveHistogram("cursor_move_seconds", nil, time.Since(start).Seconds())

	return true
}

// SetCursor moves to edit index, clamped into the log, and returns the
// resulting cursor.
func (s *Session) SetCursor(index int) int {
	s.move(func(int) int { return index })
	return s.Cursor()
}

// Step stops playback and moves the cursor by delta edits.
func (s *Session) Step(delta int) int {
	s.StopPlayback()
	s.move(func(cursor int) int { return cursor + delta })
	return s.Cursor()
}

func (s *Session) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.Cursor()
}

// Generation counts completed cursor moves. It changes whenever the layout
// does.
func (s *Session) Generation() uint64 {
	return s.gen.Now()
}

func (s *Session) NumEdits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.NumEdits()
}

// View is a snapshot of the session state for presentation.
type View struct {
	ID          uuid.UUID
	Name        string
	Cursor      int
	NumEdits    int
	Generation  uint64
	Description string
	Levels      [types.NumLevels][]types.FileID
	Files       [types.NumLevels][]*manifest.FileMetadata
	Summaries   []version.LevelSummary
	Playing     bool
}

// View returns a consistent snapshot of the current state.
func (s *Session) View() View {
	playing := s.Playing()

	s.mu.RLock()
	defer s.mu.RUnlock()

	view := View{
		ID:         s.id,
		Name:       s.name,
		Cursor:     s.v.Cursor(),
		NumEdits:   s.v.NumEdits(),
		Generation: s.gen.Now(),
		Levels:     s.v.Levels(),
		Summaries:  s.v.Summaries(),
		Playing:    playing,
	}
	for i := range view.Files {
		view.Files[i] = s.v.Files(types.Level(i))
	}
	if view.Cursor >= 0 {
		// The cursor always points at an existing edit.
		view.Description, _ = s.v.DescribeEdit(view.Cursor)
	}
	return view
}

func (s *Session) Levels() [types.NumLevels][]types.FileID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.Levels()
}

func (s *Session) Files(level types.Level) []*manifest.FileMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.Files(level)
}

func (s *Session) LevelSize(level types.Level) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.LevelSize(level)
}

func (s *Session) DescribeEdit(index int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.DescribeEdit(index)
}

func (s *Session) Edit(index int) (manifest.VersionEdit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edit, err := s.v.Edit(index)
	if err != nil {
		return manifest.VersionEdit{}, err
	}
	return *edit, nil
}

func (s *Session) FindOverlaps(level types.Level, id types.FileID) (version.Overlaps, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, err := s.v.FindOverlaps(level, id)
	if err != nil {
		return version.Overlaps{}, err
	}
	s.mc.IncCounter("overlap_queries_total", map[string]string{"level": level.String()}, 1)
	return o, nil
}

func (s *Session) DescribeFile(level types.Level, id types.FileID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.DescribeFile(level, id)
}

// StartPlayback advances the cursor by increment every interval until it
// stops moving, StopPlayback is called, or ctx is done.
func (s *Session) StartPlayback(ctx context.Context, increment int, interval time.Duration) error {
	if increment == 0 || interval <= 0 {
		return fmt.Errorf("%w: increment=%d interval=%s", ErrInvalidPlayback, increment, interval)
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()

	if s.player != nil {
		return ErrPlaybackRunning
	}

	ticker := time.NewTicker(interval)
	var l *listener.Listener[time.Time]
	l = listener.New(ticker.C,
		func(time.Time) error {
			if !s.move(func(cursor int) int { return cursor + increment }) {
				return listener.ErrStop
			}
			return nil
		},
		func() {
			ticker.Stop()
			s.playMu.Lock()
			if s.player == l {
				s.player = nil
			}
			s.playMu.Unlock()
			slog.Debug("playback stopped", "session", s.id, "cursor", s.Cursor())
		},
	)
	s.player = l
	l.Start(ctx)

	slog.Debug("playback started", "session", s.id, "increment", increment, "interval", interval)
	return nil
}

// StopPlayback stops a running playback and reports whether one was running.
func (s *Session) StopPlayback() bool {
	s.playMu.Lock()
	l := s.player
	s.player = nil
	s.playMu.Unlock()

	if l == nil {
		return false
	}
	l.Stop()
	return true
}

// Playing reports whether playback is running.
func (s *Session) Playing() bool {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	return s.player != nil
}

// PlaybackDone returns a channel closed when the current playback ends, or
// nil when nothing is playing.
func (s *Session) PlaybackDone() <-chan struct{} {
	s.playMu.Lock()
	defer s.playMu.Unlock()
	if s.player == nil {
		return nil
	}
	return s.player.Done()
}

// Close stops playback.
func (s *Session) Close() {
	s.StopPlayback()
}
