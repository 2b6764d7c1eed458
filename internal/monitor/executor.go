// Package monitor ties probes, state tracking, the log store and alerting
// together, and exposes the operations the management layer calls.
package monitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/probe"
	"github.com/hamed0406/pingwatch/internal/repo"
	"github.com/hamed0406/pingwatch/internal/tracker"
)

// Runner produces one observation for a target.
type Runner interface {
	Run(ctx context.Context, t *domain.Target) (*domain.Observation, error)
}

// AlertSink accepts alerts without blocking.
type AlertSink interface {
	Enqueue(a notify.Alert) bool
}

// Executor runs one full probe cycle: probe, fold the observation into the
// target state, append both atomically, then hand any transition to the
// alert sink.
type Executor struct {
	log     *zap.Logger
	runner  Runner
	store   repo.ObservationStore
	alerts  AlertSink
	metrics *metrics.Metrics
}

func NewExecutor(log *zap.Logger, runner Runner, store repo.ObservationStore, alerts AlertSink, m *metrics.Metrics) *Executor {
	return &Executor{log: log, runner: runner, store: store, alerts: alerts, metrics: m}
}

func (e *Executor) Execute(ctx context.Context, t *domain.Target) (*domain.Observation, error) {
	start := time.Now()
	obs, err := e.runner.Run(ctx, t)
	if err != nil {
		var fault *probe.FaultError
		if errors.As(err, &fault) {
			e.log.Error("probe_fault",
				zap.String("target_id", string(t.ID)),
				zap.String("correlation_id", fault.CorrelationID),
			)
		}
		return nil, err
	}
	e.metrics.ObserveProbe(string(t.Protocol), string(obs.Status), time.Since(start))

	// paused or removed while the probe was running
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev, _, err := e.store.State(ctx, t.ID)
	if err != nil {
		e.metrics.StorageError()
		return nil, &domain.StorageError{Op: "load state", Err: err}
	}
	next, change := tracker.Apply(prev, obs)
	if err := e.store.Append(ctx, obs, next); err != nil {
		e.metrics.StorageError()
		e.log.Error("observation_append_failed",
			zap.String("target_id", string(t.ID)),
			zap.Error(err),
		)
		return nil, &domain.StorageError{Op: "append observation", Err: err}
	}

	if change != nil {
		e.metrics.StateChange(string(change.Current))
		e.log.Info("target_state_changed",
			zap.String("target_id", string(t.ID)),
			zap.String("address", t.Address),
			zap.String("previous", string(change.Previous)),
			zap.String("current", string(change.Current)),
			zap.String("error", obs.Error),
		)
		if e.alerts != nil {
			e.alerts.Enqueue(notify.NewAlert(t, change))
		}
	}
	return obs, nil
}
