package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// TCPChecker reports up when a connection to host:port completes. Latency
// is the connect time.
type TCPChecker struct{}

func NewTCPChecker() *TCPChecker { return &TCPChecker{} }

func (c *TCPChecker) Check(ctx context.Context, t *domain.Target) CheckResult {
	port := t.Port
	if port == 0 {
		port = domain.DefaultPort
	}
	addr := net.JoinHostPort(domain.Host(t.Address), strconv.Itoa(port))

	start := time.Now()
	conn, err := dialContext(ctx, "tcp", addr, t.ProxyURL)
	latency := msSince(start)
	if err != nil {
		return failed(domain.ReasonConnect, fmt.Sprintf("could not connect to %s: %v", addr, err), latency)
	}
	_ = conn.Close()
	return CheckResult{Success: true, LatencyMS: latency, Message: "connected to " + addr}
}
