package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Alert is the outbound message for one state change.
type Alert struct {
	TargetID   domain.TargetID `json:"target_id"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	Protocol   domain.Protocol `json:"protocol"`
	Status     domain.Status   `json:"status"`
	Previous   domain.Status   `json:"previous"`
	Error      string          `json:"error,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	LatencyMS  float64         `json:"latency_ms"`
	At         time.Time       `json:"at"`
}

func NewAlert(t *domain.Target, ch *domain.StateChange) Alert {
	a := Alert{
		TargetID: t.ID,
		Name:     t.Name,
		Address:  t.Address,
		Protocol: t.Protocol,
		Status:   ch.Current,
		Previous: ch.Previous,
	}
	if o := ch.Observation; o != nil {
		a.Error = o.Error
		a.StatusCode = o.StatusCode
		a.LatencyMS = o.LatencyMS
		a.At = o.CheckedAt
	}
	if a.Name == "" {
		a.Name = t.Address
	}
	return a
}

func (a Alert) Recovery() bool { return a.Status == domain.StatusUp }

func (a Alert) Title() string {
	if a.Recovery() {
		return "🟢 Target RECOVERED"
	}
	return "🔴 Target DOWN"
}

// Text renders the alert body, one field per line.
func (a Alert) Text() string {
	httpTxt := "n/a"
	if a.StatusCode != 0 {
		httpTxt = fmt.Sprintf("%d", a.StatusCode)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nAddress: %s\nProtocol: %s\nStatus: %s\n", a.Name, a.Address, a.Protocol, strings.ToUpper(string(a.Status)))
	if a.Protocol == domain.ProtocolHTTP {
		fmt.Fprintf(&b, "HTTP: %s\n", httpTxt)
	}
	fmt.Fprintf(&b, "Latency: %.0f ms\n", a.LatencyMS)
	if a.Error != "" {
		fmt.Fprintf(&b, "Reason: %s\n", a.Error)
	}
	fmt.Fprintf(&b, "Checked: %s", a.At.UTC().Format(time.RFC3339))
	return b.String()
}

// Notifier delivers alerts to one channel. An unconfigured channel returns
// nil without doing anything.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}
