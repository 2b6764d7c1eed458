package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
)

// Scheduler is the part of the scheduler the service drives.
type Scheduler interface {
	Schedule(t *domain.Target)
	Unschedule(id domain.TargetID)
	Pause(id domain.TargetID) error
	Resume(id domain.TargetID) error
	RunNow(ctx context.Context, t *domain.Target) (*domain.Observation, error)
}

type Service struct {
	log      *zap.Logger
	targets  repo.TargetStore
	obs      repo.ObservationStore
	settings repo.SettingsStore
	sched    Scheduler
	now      func() time.Time
}

func NewService(log *zap.Logger, targets repo.TargetStore, obs repo.ObservationStore, settings repo.SettingsStore, sched Scheduler) *Service {
	return &Service{
		log:      log,
		targets:  targets,
		obs:      obs,
		settings: settings,
		sched:    sched,
		now:      time.Now,
	}
}

// Uptime is the availability of one target over a window.
type Uptime struct {
	TargetID domain.TargetID `json:"target_id"`
	Window   string          `json:"window"`
	Percent  float64         `json:"uptime"`
	Up       int             `json:"up"`
	Total    int             `json:"total"`
}

// TargetStatus is one row of the overview.
type TargetStatus struct {
	Target *domain.Target     `json:"target"`
	State  domain.TargetState `json:"state"`
	Uptime float64            `json:"uptime"`
}

// CurrentState returns the derived state of id; a target that was never
// probed is unknown.
func (s *Service) CurrentState(ctx context.Context, id domain.TargetID) (domain.TargetState, error) {
	if _, err := s.targets.Get(ctx, id); err != nil {
		return domain.TargetState{}, err
	}
	st, _, err := s.obs.State(ctx, id)
	return st, err
}

// Logs returns the observations of id within window, oldest first.
func (s *Service) Logs(ctx context.Context, id domain.TargetID, window string) ([]*domain.Observation, error) {
	d, err := domain.ParseWindow(window)
	if err != nil {
		return nil, err
	}
	if _, err := s.targets.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.obs.Query(ctx, id, s.now().Add(-d))
}

func (s *Service) Uptime(ctx context.Context, id domain.TargetID, window string) (Uptime, error) {
	if window == "" {
		window = domain.DefaultUptimeWindow
	}
	d, err := domain.ParseWindow(window)
	if err != nil {
		return Uptime{}, err
	}
	if _, err := s.targets.Get(ctx, id); err != nil {
		return Uptime{}, err
	}
	up, total, err := s.obs.Counts(ctx, id, s.now().Add(-d))
	if err != nil {
		return Uptime{}, err
	}
	return Uptime{TargetID: id, Window: window, Percent: domain.UptimeRatio(up, total), Up: up, Total: total}, nil
}

// Overview lists every target with its state and default-window uptime.
func (s *Service) Overview(ctx context.Context) ([]TargetStatus, error) {
	ts, err := s.targets.List(ctx)
	if err != nil {
		return nil, err
	}
	d, err := domain.ParseWindow(domain.DefaultUptimeWindow)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-d)
	out := make([]TargetStatus, 0, len(ts))
	for _, t := range ts {
		st, _, err := s.obs.State(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		up, total, err := s.obs.Counts(ctx, t.ID, since)
		if err != nil {
			return nil, err
		}
		out = append(out, TargetStatus{Target: t, State: st, Uptime: domain.UptimeRatio(up, total)})
	}
	return out, nil
}

// RunNow probes id immediately, subject to the same in-flight guard as
// scheduled probes.
func (s *Service) RunNow(ctx context.Context, id domain.TargetID) (*domain.Observation, error) {
	t, err := s.targets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Paused {
		return nil, domain.ErrPaused
	}
	return s.sched.RunNow(ctx, t)
}

func (s *Service) Pause(ctx context.Context, id domain.TargetID) error {
	if err := s.targets.SetPaused(ctx, id, true); err != nil {
		return err
	}
	if err := s.sched.Pause(id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.log.Info("target_paused", zap.String("target_id", string(id)))
	return nil
}

func (s *Service) Resume(ctx context.Context, id domain.TargetID) error {
	if err := s.targets.SetPaused(ctx, id, false); err != nil {
		return err
	}
	err := s.sched.Resume(id)
	if errors.Is(err, domain.ErrNotFound) {
		// not picked up by the scheduler yet
		t, gerr := s.targets.Get(ctx, id)
		if gerr != nil {
			return gerr
		}
		s.sched.Schedule(t)
		err = nil
	}
	if err != nil {
		return err
	}
	s.log.Info("target_resumed", zap.String("target_id", string(id)))
	return nil
}

func (s *Service) Targets(ctx context.Context) ([]*domain.Target, error) {
	return s.targets.List(ctx)
}

func (s *Service) Target(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	return s.targets.Get(ctx, id)
}

// AddTarget validates t, stores it and starts probing it. An existing id is
// replaced; the new definition applies from the next probe cycle.
func (s *Service) AddTarget(ctx context.Context, t *domain.Target) error {
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.targets.Add(ctx, t); err != nil {
		return err
	}
	s.sched.Schedule(t)
	s.log.Info("target_saved",
		zap.String("target_id", string(t.ID)),
		zap.String("protocol", string(t.Protocol)),
		zap.String("address", t.Address),
	)
	return nil
}

// CreateTarget validates and stores a new target. An id already in use
// fails with domain.ErrConflict.
func (s *Service) CreateTarget(ctx context.Context, t *domain.Target) error {
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.targets.Create(ctx, t); err != nil {
		return err
	}
	s.sched.Schedule(t)
	s.log.Info("target_created",
		zap.String("target_id", string(t.ID)),
		zap.String("protocol", string(t.Protocol)),
		zap.String("address", t.Address),
	)
	return nil
}

// UpdateTarget replaces an existing definition. The pause state is only
// changed through Pause and Resume.
func (s *Service) UpdateTarget(ctx context.Context, t *domain.Target) error {
	cur, err := s.targets.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	t.CreatedAt = cur.CreatedAt
	t.Paused = cur.Paused
	return s.AddTarget(ctx, t)
}

func (s *Service) DeleteTarget(ctx context.Context, id domain.TargetID) error {
	// stop probing first so a finishing probe cannot append to a deleted log
	s.sched.Unschedule(id)
	if err := s.targets.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("target_deleted", zap.String("target_id", string(id)))
	return nil
}

// Import validates every definition first and stores them only when all are
// valid. Targets already present are updated in place but keep their pause
// state; the file's paused flag applies only to new targets.
func (s *Service) Import(ctx context.Context, ts []*domain.Target) error {
	var errs error
	for i, t := range ts {
		t.ApplyDefaults()
		if err := t.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("target %d (%s): %w", i, t.ID, err))
		}
	}
	if errs != nil {
		return errs
	}
	for _, t := range ts {
		// pause state set through the API survives a reload of the file
		if cur, err := s.targets.Get(ctx, t.ID); err == nil {
			t.CreatedAt = cur.CreatedAt
			t.Paused = cur.Paused
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := s.targets.Add(ctx, t); err != nil {
			return err
		}
		s.sched.Schedule(t)
	}
	s.log.Info("targets_imported", zap.Int("count", len(ts)))
	return nil
}

func (s *Service) NotificationSettings(ctx context.Context) (domain.NotificationConfig, error) {
	return s.settings.NotificationConfig(ctx)
}

func (s *Service) UpdateNotificationSettings(ctx context.Context, cfg domain.NotificationConfig) error {
	if cfg.Enabled && (cfg.TelegramBotToken == "" || cfg.TelegramChatID == "") {
		return &domain.ConfigError{Field: "notifications", Msg: "bot token and chat id are required when enabled"}
	}
	return s.settings.SetNotificationConfig(ctx, cfg)
}
