package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/metrics"
)

const (
	DefaultResolution = time.Second
	DefaultResync     = 5 * time.Second
)

// Executor runs one probe cycle for a target: probe, record, track state.
// It returns an error when nothing could be recorded.
type Executor interface {
	Execute(ctx context.Context, t *domain.Target) (*domain.Observation, error)
}

// Source lists the targets that should be scheduled.
type Source interface {
	List(ctx context.Context) ([]*domain.Target, error)
}

// Scheduler owns one logical timer per target. A single dispatch loop wakes
// every Resolution and starts probes for due targets in their own
// goroutines. At most one probe per target runs at a time; a tick that finds
// the previous probe still running is dropped.
type Scheduler struct {
	Logger     *zap.Logger
	Exec       Executor
	Source     Source
	Metrics    *metrics.Metrics
	Resolution time.Duration
	Resync     time.Duration

	mu       sync.Mutex
	entries  map[domain.TargetID]*entry
	inflight map[domain.TargetID]*run
	base     context.Context
	wg       sync.WaitGroup
	trigger  chan struct{}

	now    func() time.Time
	jitter func(time.Duration) time.Duration
}

type entry struct {
	target   *domain.Target
	interval time.Duration
	next     time.Time
	paused   bool
}

type run struct {
	cancel context.CancelFunc
}

func New(logger *zap.Logger, exec Executor, source Source, m *metrics.Metrics, resolution, resync time.Duration) *Scheduler {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	if resync <= 0 {
		resync = DefaultResync
	}
	return &Scheduler{
		Logger:     logger,
		Exec:       exec,
		Source:     source,
		Metrics:    m,
		Resolution: resolution,
		Resync:     resync,
		entries:    make(map[domain.TargetID]*entry),
		inflight:   make(map[domain.TargetID]*run),
		base:       context.Background(),
		trigger:    make(chan struct{}, 1),
		now:        time.Now,
		jitter:     func(d time.Duration) time.Duration { return rand.N(d) },
	}
}

// Schedule starts periodic probing of t, or updates an existing schedule.
// The first fire time of a new target is randomized within one interval.
// For an existing target the new definition and interval apply from the
// next tick on; the pending fire time is kept.
func (s *Scheduler) Schedule(t *domain.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(t)
	s.Metrics.SetScheduled(len(s.entries))
}

func (s *Scheduler) upsertLocked(t *domain.Target) {
	e, ok := s.entries[t.ID]
	if !ok {
		interval := t.Interval()
		s.entries[t.ID] = &entry{
			target:   t.Clone(),
			interval: interval,
			next:     s.now().Add(s.jitter(interval)),
			paused:   t.Paused,
		}
		s.Logger.Info("target_scheduled",
			zap.String("target_id", string(t.ID)),
			zap.String("protocol", string(t.Protocol)),
			zap.Duration("interval", interval),
		)
		return
	}
	e.target = t.Clone()
	e.interval = t.Interval()
	if t.Paused && !e.paused {
		s.cancelLocked(t.ID)
	}
	e.paused = t.Paused
}

// Unschedule stops probing id and cancels a probe in flight.
func (s *Scheduler) Unschedule(id domain.TargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	s.Metrics.SetScheduled(len(s.entries))
}

func (s *Scheduler) removeLocked(id domain.TargetID) {
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	s.cancelLocked(id)
	s.Logger.Info("target_unscheduled", zap.String("target_id", string(id)))
}

// Pause suspends firing for id and cancels a probe in flight. The timer
// keeps its phase, so Resume continues on the same grid.
func (s *Scheduler) Pause(id domain.TargetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.paused = true
	e.target.Paused = true
	s.cancelLocked(id)
	return nil
}

func (s *Scheduler) Resume(id domain.TargetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.paused = false
	e.target.Paused = false
	return nil
}

// Scheduled reports whether id has a timer.
func (s *Scheduler) Scheduled(id domain.TargetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

func (s *Scheduler) cancelLocked(id domain.TargetID) {
	if r, ok := s.inflight[id]; ok {
		r.cancel()
	}
}

// RunNow probes t immediately on the caller's goroutine. It shares the
// in-flight guard with scheduled ticks and fails with
// domain.ErrProbeInFlight instead of starting a second attempt.
func (s *Scheduler) RunNow(ctx context.Context, t *domain.Target) (*domain.Observation, error) {
	s.mu.Lock()
	if _, busy := s.inflight[t.ID]; busy {
		s.mu.Unlock()
		return nil, domain.ErrProbeInFlight
	}
	pctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	s.inflight[t.ID] = r
	s.mu.Unlock()
	defer s.finish(t.ID, r)

	return s.Exec.Execute(pctx, t.Clone())
}

func (s *Scheduler) finish(id domain.TargetID, r *run) {
	r.cancel()
	s.mu.Lock()
	if s.inflight[id] == r {
		delete(s.inflight, id)
	}
	s.mu.Unlock()
}

// Trigger asks the loop to reconcile with the Source now rather than at the
// next resync.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives the dispatch loop until ctx is cancelled, then waits for
// running probes to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.reconcile(ctx)

	tick := time.NewTicker(s.Resolution)
	defer tick.Stop()
	resync := time.NewTicker(s.Resync)
	defer resync.Stop()

	s.Logger.Info("scheduler_started", zap.Duration("resolution", s.Resolution))
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.Logger.Info("scheduler_stopped")
			return nil
		case <-tick.C:
			s.tick(s.now())
		case <-resync.C:
			s.reconcile(ctx)
		case <-s.trigger:
			s.reconcile(ctx)
		}
	}
}

// reconcile makes the schedule match the Source: new targets are added,
// changed ones updated, vanished ones removed.
func (s *Scheduler) reconcile(ctx context.Context) {
	if s.Source == nil {
		return
	}
	ts, err := s.Source.List(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.Logger.Warn("scheduler_list_error", zap.Error(err))
		}
		return
	}
	seen := make(map[domain.TargetID]struct{}, len(ts))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		seen[t.ID] = struct{}{}
		s.upsertLocked(t)
	}
	for id := range s.entries {
		if _, ok := seen[id]; !ok {
			s.removeLocked(id)
		}
	}
	s.Metrics.SetScheduled(len(s.entries))
}

type job struct {
	ctx    context.Context
	target *domain.Target
	run    *run
}

func (s *Scheduler) tick(now time.Time) {
	var (
		jobs    []job
		dropped []domain.TargetID
	)
	s.mu.Lock()
	for id, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		e.next = advance(e.next, e.interval, now)
		if e.paused {
			continue
		}
		if _, busy := s.inflight[id]; busy {
			dropped = append(dropped, id)
			continue
		}
		ctx, cancel := context.WithCancel(s.base)
		r := &run{cancel: cancel}
		s.inflight[id] = r
		s.wg.Add(1)
		jobs = append(jobs, job{ctx: ctx, target: e.target.Clone(), run: r})
	}
	s.mu.Unlock()

	for _, id := range dropped {
		s.Metrics.TickDropped()
		s.Logger.Warn("scheduler_tick_dropped",
			zap.String("target_id", string(id)),
			zap.String("reason", "previous probe still running"),
		)
	}
	for _, j := range jobs {
		go s.execute(j)
	}
}

func (s *Scheduler) execute(j job) {
	defer s.wg.Done()
	defer s.finish(j.target.ID, j.run)

	obs, err := s.Exec.Execute(j.ctx, j.target)
	if err != nil {
		if j.ctx.Err() != nil {
			s.Logger.Debug("probe_cancelled", zap.String("target_id", string(j.target.ID)))
			return
		}
		// retried on the next tick
		s.Logger.Warn("probe_cycle_failed",
			zap.String("target_id", string(j.target.ID)),
			zap.Error(err),
		)
		return
	}
	s.Logger.Debug("probe_completed",
		zap.String("target_id", string(j.target.ID)),
		zap.String("address", j.target.Address),
		zap.String("status", string(obs.Status)),
		zap.Float64("latency_ms", obs.LatencyMS),
		zap.String("error", obs.Error),
	)
}

// advance moves next forward by whole intervals until it is after now, so a
// late wake-up skips missed ticks without shifting the phase.
func advance(next time.Time, interval time.Duration, now time.Time) time.Time {
	next = next.Add(interval)
	if !next.After(now) {
		missed := now.Sub(next)/interval + 1
		next = next.Add(missed * interval)
	}
	return next
}
