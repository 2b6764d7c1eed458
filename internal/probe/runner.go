package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// DefaultTimeout bounds every probe regardless of protocol.
const DefaultTimeout = 10 * time.Second

// timeoutGrace is how long a cancelled checker may take to unwind before the
// runner reports the timeout on its own.
const timeoutGrace = 100 * time.Millisecond

var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// FaultError is an unexpected internal failure of a checker. Unlike probe
// failures it does not become an observation.
type FaultError struct {
	CorrelationID string
	Protocol      domain.Protocol
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s checker fault (correlation_id: %s)", e.Protocol, e.CorrelationID)
}

// Runner dispatches a target to its protocol checker under a hard timeout
// and turns the result into an Observation.
type Runner struct {
	Logger   *zap.Logger
	Checkers map[domain.Protocol]Checker
	Timeout  time.Duration

	now func() time.Time
}

func NewRunner(logger *zap.Logger, timeout time.Duration, checkers map[domain.Protocol]Checker) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Logger: logger, Checkers: checkers, Timeout: timeout, now: time.Now}
}

// DefaultCheckers returns the real network checkers, each wrapped in a
// RetryChecker when attempts > 1.
func DefaultCheckers(timeout time.Duration, attempts int, backoff time.Duration) map[domain.Protocol]Checker {
	wrap := func(c Checker) Checker {
		if attempts <= 1 {
			return c
		}
		return &RetryChecker{Inner: c, Attempts: attempts, Backoff: backoff}
	}
	return map[domain.Protocol]Checker{
		domain.ProtocolHTTP: wrap(NewHTTPChecker(timeout)),
		domain.ProtocolTCP:  wrap(NewTCPChecker()),
		domain.ProtocolDNS:  wrap(NewDNSChecker()),
		domain.ProtocolPing: wrap(NewPingChecker()),
	}
}

type outcome struct {
	res CheckResult
	err error
}

// Run probes t once. Probe failures come back as a down observation; an
// error is returned only for a checker fault, an unknown protocol, or when
// ctx itself was cancelled (nothing should be recorded then).
func (r *Runner) Run(ctx context.Context, t *domain.Target) (*domain.Observation, error) {
	chk, ok := r.Checkers[t.Protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, t.Protocol)
	}

	pctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() { done <- r.safeCheck(pctx, chk, t) }()

	var (
		o        outcome
		timedOut bool
	)
	select {
	case o = <-done:
		timedOut = errors.Is(pctx.Err(), context.DeadlineExceeded)
	case <-pctx.Done():
		timedOut = errors.Is(pctx.Err(), context.DeadlineExceeded)
		select {
		case o = <-done:
		case <-time.After(timeoutGrace):
			o = outcome{res: CheckResult{LatencyMS: msSince(start)}}
		}
	}
	if o.err != nil {
		return nil, o.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// a probe that ran into its deadline is down, whatever partial result
	// the checker managed to produce
	res := o.res
	if timedOut {
		res.Success = false
		res.Reason = domain.ReasonTimeout
		res.Message = fmt.Sprintf("timeout after %s", r.Timeout)
	}

	obs := &domain.Observation{
		ID:         uuid.NewString(),
		TargetID:   t.ID,
		Status:     domain.StatusDown,
		LatencyMS:  max(res.LatencyMS, 0),
		StatusCode: res.StatusCode,
		Cert:       res.Cert,
		Ping:       res.Ping,
		DNS:        res.DNS,
		CheckedAt:  r.now().UTC(),
	}
	if res.Success {
		obs.Status = domain.StatusUp
	} else {
		obs.Error = res.Message
		obs.Reason = res.Reason
	}
	return obs, nil
}

// safeCheck contains checker panics and logs them with a correlation id.
func (r *Runner) safeCheck(ctx context.Context, chk Checker, t *domain.Target) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			id := uuid.NewString()
			r.Logger.Error("probe_panic",
				zap.String("correlation_id", id),
				zap.String("target_id", string(t.ID)),
				zap.String("protocol", string(t.Protocol)),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			o = outcome{err: &FaultError{CorrelationID: id, Protocol: t.Protocol}}
		}
	}()
	return outcome{res: chk.Check(ctx, t)}
}
