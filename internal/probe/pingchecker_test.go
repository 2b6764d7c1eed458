package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

type fakePinger struct {
	stats PingStats
	err   error
	host  string
	count int
}

func (f *fakePinger) Ping(ctx context.Context, host string, count int) (PingStats, error) {
	f.host, f.count = host, count
	return f.stats, f.err
}

func rtts(ms ...int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, m := range ms {
		out[i] = time.Duration(m) * time.Millisecond
	}
	return out
}

func TestPingChecker_AllReplies(t *testing.T) {
	p := &fakePinger{stats: PingStats{Sent: 4, Received: 4, RTTs: rtts(10, 20, 30, 40)}}
	out := (&PingChecker{Pinger: p}).Check(context.Background(), &domain.Target{Address: "host.example", PacketCount: 4})
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.Ping.PacketLoss != 0 || out.Ping.MinMS != 10 || out.Ping.MaxMS != 40 || out.Ping.AvgMS != 25 {
		t.Fatalf("unexpected stats %+v", out.Ping)
	}
	if out.LatencyMS != 25 {
		t.Fatalf("latency should be the average rtt, got %v", out.LatencyMS)
	}
	if p.host != "host.example" || p.count != 4 {
		t.Fatalf("pinger called with %q/%d", p.host, p.count)
	}
}

func TestPingChecker_LossAtThresholdIsDown(t *testing.T) {
	p := &fakePinger{stats: PingStats{Sent: 4, Received: 2, RTTs: rtts(10, 10)}}
	out := (&PingChecker{Pinger: p}).Check(context.Background(), &domain.Target{Address: "h", PacketCount: 4})
	if out.Success {
		t.Fatalf("50%% loss should be down, got %+v", out)
	}
	if out.Reason != domain.ReasonPacketLoss || !strings.Contains(out.Message, "50.0%") {
		t.Fatalf("unexpected failure %q / %q", out.Reason, out.Message)
	}
}

func TestPingChecker_LossBelowThresholdIsUp(t *testing.T) {
	p := &fakePinger{stats: PingStats{Sent: 4, Received: 3, RTTs: rtts(5, 5, 5)}}
	out := (&PingChecker{Pinger: p}).Check(context.Background(), &domain.Target{Address: "h", PacketCount: 4})
	if !out.Success {
		t.Fatalf("25%% loss should be up, got %+v", out)
	}
	if out.Ping.PacketLoss != 25 {
		t.Fatalf("want 25%% loss, got %v", out.Ping.PacketLoss)
	}
}

func TestPingChecker_ResolveFailure(t *testing.T) {
	p := &fakePinger{err: errors.New("resolve nope: no such host")}
	out := (&PingChecker{Pinger: p}).Check(context.Background(), &domain.Target{Address: "nope"})
	if out.Success || out.Reason != domain.ReasonPingError {
		t.Fatalf("want ping_error, got %+v", out)
	}
	if p.count != domain.DefaultPacketCount {
		t.Fatalf("default packet count not applied, got %d", p.count)
	}
}

func TestSummarize_UnsentCountsAsLost(t *testing.T) {
	info := summarize(PingStats{Sent: 1, Received: 1, RTTs: rtts(7)}, 3)
	if info.PacketLoss != 66.7 {
		t.Fatalf("want 66.7%% loss, got %v", info.PacketLoss)
	}
}

func TestPingChecker_DeadlineCutsSeriesShort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &fakePinger{stats: PingStats{Sent: 3, Received: 3, RTTs: rtts(5, 5, 5)}, err: context.Canceled}
	out := (&PingChecker{Pinger: p}).Check(ctx, &domain.Target{Address: "h", PacketCount: 4})
	if out.Success || out.Reason != domain.ReasonTimeout {
		t.Fatalf("interrupted series must fail with timeout, got %+v", out)
	}
	if out.Ping == nil || out.Ping.PacketLoss != 25 {
		t.Fatalf("partial stats should still be reported, got %+v", out.Ping)
	}
}
