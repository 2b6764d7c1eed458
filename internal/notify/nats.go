package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "pingwatch.state"

// NATS publishes every alert as JSON on a subject for downstream consumers.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(url, subject string, log *zap.Logger) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("pingwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats_disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATS{conn: nc, subject: subject}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Send(ctx context.Context, a Alert) error {
	if n == nil || n.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(n.subject)
	msg.Header.Set("Target-Id", string(a.TargetID))
	msg.Header.Set("Status", string(a.Status))
	msg.Data = b
	return n.conn.PublishMsg(msg)
}

func (n *NATS) Close() {
	if n == nil || n.conn == nil {
		return
	}
	_ = n.conn.Drain()
}
