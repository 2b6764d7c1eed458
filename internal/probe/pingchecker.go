package probe

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// LossThreshold is the packet loss percentage at which a host is down.
const LossThreshold = 50.0

type PingStats struct {
	Sent     int
	Received int
	RTTs     []time.Duration
}

// Pinger sends count echo requests to host. On error it still returns the
// statistics gathered so far.
type Pinger interface {
	Ping(ctx context.Context, host string, count int) (PingStats, error)
}

type PingChecker struct {
	Pinger Pinger
}

func NewPingChecker() *PingChecker {
	return &PingChecker{Pinger: NewICMPPinger()}
}

func (p *PingChecker) Check(ctx context.Context, t *domain.Target) CheckResult {
	count := t.PacketCount
	if count < 1 {
		count = domain.DefaultPacketCount
	}
	start := time.Now()
	stats, err := p.Pinger.Ping(ctx, domain.Host(t.Address), count)
	if err != nil && stats.Sent == 0 {
		return failed(domain.ReasonPingError, err.Error(), msSince(start))
	}
	if err != nil && ctx.Err() != nil {
		// cut short by the deadline; the partial stats prove nothing
		out := failed(domain.ReasonTimeout, err.Error(), msSince(start))
		out.Ping = summarize(stats, count)
		return out
	}

	info := summarize(stats, count)
	out := CheckResult{
		Success:   info.PacketLoss < LossThreshold,
		LatencyMS: info.AvgMS,
		Ping:      info,
		Message:   fmt.Sprintf("%d/%d replies", stats.Received, count),
	}
	if !out.Success {
		out.Reason = domain.ReasonPacketLoss
		out.Message = fmt.Sprintf("packet loss %.1f%%", info.PacketLoss)
		if err != nil {
			out.Message += ": " + err.Error()
		}
	}
	return out
}

// summarize counts unsent packets as lost.
func summarize(s PingStats, count int) *domain.PingInfo {
	info := &domain.PingInfo{PacketLoss: 100}
	if count > 0 {
		info.PacketLoss = math.Round(float64(count-s.Received)*1000/float64(count)) / 10
	}
	if len(s.RTTs) == 0 {
		return info
	}
	var sum float64
	info.MinMS = math.Inf(1)
	for _, rtt := range s.RTTs {
		ms := float64(rtt) / float64(time.Millisecond)
		sum += ms
		info.MinMS = math.Min(info.MinMS, ms)
		info.MaxMS = math.Max(info.MaxMS, ms)
	}
	info.AvgMS = sum / float64(len(s.RTTs))
	return info
}
