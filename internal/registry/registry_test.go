package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
)

const sample = `
targets:
  - id: api
    name: Public API
    protocol: http
    address: https://api.example.com/health
    interval: 30s
    headers:
      X-Env: "${PINGWATCH_TEST_ENV:-prod}"
    labels: [prod, edge]
  - id: db
    protocol: tcp
    address: db.internal
    port: 5432
    interval: 60
  - id: ns
    protocol: dns
    address: example.com
    interval: 5m
    dns_record_type: mx
    dns_expected: mail.example.com
    headers: '{"ignored":"yes"}'
  - id: gw
    protocol: ping
    address: 10.0.0.1
    interval: 10s
    paused: true
`

func TestParse(t *testing.T) {
	ts, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, ts, 4)

	api := ts[0]
	assert.Equal(t, domain.TargetID("api"), api.ID)
	assert.Equal(t, 30, api.IntervalSec)
	assert.Equal(t, "GET", api.Method)
	assert.Equal(t, 200, api.ExpectedStatus)
	assert.Equal(t, "prod", api.Headers["X-Env"])
	assert.True(t, api.HasLabel("edge"))

	db := ts[1]
	assert.Equal(t, 60, db.IntervalSec)
	assert.Equal(t, "db.internal", db.Name)

	ns := ts[2]
	assert.Equal(t, 300, ns.IntervalSec)
	assert.Equal(t, "MX", ns.RecordType)
	assert.Equal(t, "yes", ns.Headers["ignored"])

	gw := ts[3]
	assert.True(t, gw.Paused)
	assert.Equal(t, domain.DefaultPacketCount, gw.PacketCount)
}

func TestParse_ReportsEveryProblem(t *testing.T) {
	_, err := Parse([]byte(`
targets:
  - protocol: http
    address: https://a.example
    interval: 10s
  - id: dup
    protocol: tcp
    address: a
    interval: 10s
  - id: dup
    protocol: tcp
    address: b
    interval: 10s
  - id: fast
    protocol: http
    address: https://b.example
    interval: 500ms
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "id is required")
	assert.Contains(t, msg, "duplicate id")
	assert.Contains(t, msg, "(fast)")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestParse_InvalidHeaderPayload(t *testing.T) {
	_, err := Parse([]byte(`
targets:
  - id: a
    protocol: http
    address: https://a.example
    interval: 10s
    headers: '{not json'
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestParse_MissingEnvVar(t *testing.T) {
	_, err := Parse([]byte(`
targets:
  - id: a
    protocol: http
    address: https://${PINGWATCH_TEST_UNSET_HOST}/health
    interval: 10s
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PINGWATCH_TEST_UNSET_HOST")
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets: []\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []*domain.Target, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zap.NewNop(), func(_ context.Context, ts []*domain.Target) error {
			got <- ts
			return nil
		})
	}()

	// the watcher registers asynchronously; rewrite until it reacts, slower
	// than the settle delay so the reload is not postponed forever
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case ts := <-got:
			require.Len(t, ts, 4)
			cancel()
			require.NoError(t, <-done)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
		case <-deadline:
			t.Fatal("watcher did not reload the file")
		}
	}
}
