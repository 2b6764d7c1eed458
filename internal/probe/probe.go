package probe

import (
	"context"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// CheckResult is the unified result of a single check.
//
// Fields:
//   - Message: response status on success, the failure text otherwise.
//   - Reason: one of the domain.Reason* values when Success is false.
//   - StatusCode: HTTP status code when available; 0 for other protocols and transport errors.
//   - Cert, Ping, DNS: protocol detail, nil when not applicable.
type CheckResult struct {
	Success    bool
	LatencyMS  float64
	Message    string
	Reason     string
	StatusCode int
	Cert       *domain.CertInfo
	Ping       *domain.PingInfo
	DNS        *domain.DNSInfo
}

// Checker performs a single check of a target. Expected failures (network
// errors, mismatches, cancellation) are reported in the result, never panicked.
type Checker interface {
	Check(ctx context.Context, t *domain.Target) CheckResult
}

func msSince(start time.Time) float64 {
	return time.Since(start).Seconds() * 1000
}

func failed(reason, msg string, latency float64) CheckResult {
	return CheckResult{Reason: reason, Message: msg, LatencyMS: latency}
}
