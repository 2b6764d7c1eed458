package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Store keeps everything in process. Each target's observation series and
// state live behind their own lock, so probes of different targets never
// contend on a shared one.
type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]*domain.Target

	seriesMu sync.RWMutex
	series   map[domain.TargetID]*series

	seq atomic.Uint64

	settingsMu sync.RWMutex
	settings   domain.NotificationConfig
}

type series struct {
	mu    sync.RWMutex
	obs   []*domain.Observation // ascending (CheckedAt, Seq)
	state domain.TargetState
	seen  bool
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]*domain.Target),
		series:  make(map[domain.TargetID]*series),
	}
}

func (m *Store) Close() {}

// ---- TargetStore ----

func (m *Store) Add(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = t.Clone()
	return nil
}

func (m *Store) Create(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if _, ok := m.targets[t.ID]; ok {
		return fmt.Errorf("target %s: %w", t.ID, domain.ErrConflict)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = t.Clone()
	return nil
}

func (m *Store) List(ctx context.Context) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.Target) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

// Delete removes the target together with its history.
func (m *Store) Delete(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	_, ok := m.targets[id]
	delete(m.targets, id)
	m.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	m.seriesMu.Lock()
	delete(m.series, id)
	m.seriesMu.Unlock()
	return nil
}

func (m *Store) SetPaused(ctx context.Context, id domain.TargetID, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Paused = paused
	return nil
}

// ---- ObservationStore ----

func (m *Store) lookup(id domain.TargetID, create bool) *series {
	m.seriesMu.RLock()
	s := m.series[id]
	m.seriesMu.RUnlock()
	if s != nil || !create {
		return s
	}
	m.seriesMu.Lock()
	defer m.seriesMu.Unlock()
	if s = m.series[id]; s == nil {
		s = &series{}
		m.series[id] = s
	}
	return s
}

func (m *Store) Append(ctx context.Context, obs *domain.Observation, next domain.TargetState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.lookup(obs.TargetID, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	obs.Seq = m.seq.Add(1)
	stored := *obs
	// out-of-order timestamps are rare; keep the series sorted anyway
	i := len(s.obs)
	for i > 0 && s.obs[i-1].CheckedAt.After(stored.CheckedAt) {
		i--
	}
	s.obs = slices.Insert(s.obs, i, &stored)
	s.state = next
	s.seen = true
	return nil
}

func (m *Store) Query(ctx context.Context, id domain.TargetID, since time.Time) ([]*domain.Observation, error) {
	s := m.lookup(id, false)
	if s == nil {
		return []*domain.Observation{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.firstSince(since)
	out := make([]*domain.Observation, 0, len(s.obs)-i)
	for _, o := range s.obs[i:] {
		c := *o
		out = append(out, &c)
	}
	return out, nil
}

func (m *Store) Counts(ctx context.Context, id domain.TargetID, since time.Time) (int, int, error) {
	s := m.lookup(id, false)
	if s == nil {
		return 0, 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var up, total int
	for _, o := range s.obs[s.firstSince(since):] {
		total++
		if o.Up() {
			up++
		}
	}
	return up, total, nil
}

func (s *series) firstSince(since time.Time) int {
	return sort.Search(len(s.obs), func(i int) bool { return !s.obs[i].CheckedAt.Before(since) })
}

func (m *Store) State(ctx context.Context, id domain.TargetID) (domain.TargetState, bool, error) {
	s := m.lookup(id, false)
	if s == nil {
		return domain.UnknownState(id), false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.seen {
		return domain.UnknownState(id), false, nil
	}
	return s.state, true, nil
}

func (m *Store) States(ctx context.Context) ([]domain.TargetState, error) {
	m.seriesMu.RLock()
	all := make([]*series, 0, len(m.series))
	for _, s := range m.series {
		all = append(all, s)
	}
	m.seriesMu.RUnlock()

	out := make([]domain.TargetState, 0, len(all))
	for _, s := range all {
		s.mu.RLock()
		if s.seen {
			out = append(out, s.state)
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b domain.TargetState) int { return cmpID(a.TargetID, b.TargetID) })
	return out, nil
}

// ---- SettingsStore ----

func (m *Store) NotificationConfig(ctx context.Context) (domain.NotificationConfig, error) {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.settings, nil
}

func (m *Store) SetNotificationConfig(ctx context.Context, cfg domain.NotificationConfig) error {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	m.settings = cfg
	return nil
}

func cmpID(a, b domain.TargetID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
