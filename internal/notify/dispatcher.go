package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/metrics"
)

type DispatcherConfig struct {
	QueueSize       int
	Attempts        int
	Timeout         time.Duration // per delivery attempt
	InitialBackoff  time.Duration
	AlertOnRecovery bool
}

func (c *DispatcherConfig) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
}

// Dispatcher delivers alerts off the probe path. Enqueue never blocks: when
// the queue is full the alert is dropped and logged. Each channel gets a
// bounded number of attempts; failures are logged and counted, never
// returned to the producer.
type Dispatcher struct {
	log       *zap.Logger
	notifiers []Notifier
	metrics   *metrics.Metrics
	cfg       DispatcherConfig
	queue     chan Alert
}

func NewDispatcher(log *zap.Logger, m *metrics.Metrics, cfg DispatcherConfig, notifiers ...Notifier) *Dispatcher {
	cfg.defaults()
	var ns []Notifier
	for _, n := range notifiers {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return &Dispatcher{
		log:       log,
		notifiers: ns,
		metrics:   m,
		cfg:       cfg,
		queue:     make(chan Alert, cfg.QueueSize),
	}
}

// Enqueue reports whether the alert was accepted.
func (d *Dispatcher) Enqueue(a Alert) bool {
	if a.Recovery() && !d.cfg.AlertOnRecovery {
		return false
	}
	if len(d.notifiers) == 0 {
		return false
	}
	select {
	case d.queue <- a:
		return true
	default:
		d.metrics.Notification("dropped")
		d.log.Warn("notify_queue_full",
			zap.String("target_id", string(a.TargetID)),
			zap.String("status", string(a.Status)),
		)
		return false
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.log.Warn("notify_pending_discarded", zap.Int("count", n))
			}
			return nil
		case a := <-d.queue:
			d.Deliver(ctx, a)
		}
	}
}

// Deliver sends a to every channel and returns the combined failures.
func (d *Dispatcher) Deliver(ctx context.Context, a Alert) error {
	var errs error
	for _, n := range d.notifiers {
		if err := d.send(ctx, n, a); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			d.metrics.Notification("failed")
			continue
		}
		d.metrics.Notification("sent")
	}
	if errs != nil {
		d.log.Warn("notify_delivery_failed",
			zap.String("target_id", string(a.TargetID)),
			zap.String("status", string(a.Status)),
			zap.Error(errs),
		)
	}
	return errs
}

func (d *Dispatcher) send(ctx context.Context, n Notifier, a Alert) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff
	bo.MaxInterval = 10 * d.cfg.InitialBackoff

	operation := func() (struct{}, error) {
		actx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return struct{}{}, n.Send(actx, a)
	}
	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(d.cfg.Attempts)))
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
