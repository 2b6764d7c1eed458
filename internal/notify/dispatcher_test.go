package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
)

type recordingNotifier struct {
	name  string
	mu    sync.Mutex
	calls int
	fail  int // fail the first n sends
	err   error
	sent  chan Alert
	block chan struct{}
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(ctx context.Context, a Alert) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()
	if n <= r.fail {
		if r.err != nil {
			return r.err
		}
		return errors.New("channel unavailable")
	}
	if r.sent != nil {
		r.sent <- a
	}
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func fastConfig() DispatcherConfig {
	return DispatcherConfig{QueueSize: 4, Attempts: 3, Timeout: time.Second, InitialBackoff: time.Millisecond, AlertOnRecovery: true}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	n := &recordingNotifier{name: "flaky", fail: 2}
	d := NewDispatcher(zap.NewNop(), nil, fastConfig(), n)

	require.NoError(t, d.Deliver(context.Background(), downAlert()))
	assert.Equal(t, 3, n.count())
}

func TestDispatcher_BoundedAttempts(t *testing.T) {
	n := &recordingNotifier{name: "down", fail: 100}
	d := NewDispatcher(zap.NewNop(), nil, fastConfig(), n)

	err := d.Deliver(context.Background(), downAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down:")
	assert.Equal(t, 3, n.count())
}

func TestDispatcher_PermanentErrorNotRetried(t *testing.T) {
	n := &recordingNotifier{name: "bad", fail: 100, err: backoff.Permanent(errors.New("403 forbidden"))}
	d := NewDispatcher(zap.NewNop(), nil, fastConfig(), n)

	require.Error(t, d.Deliver(context.Background(), downAlert()))
	assert.Equal(t, 1, n.count())
}

func TestDispatcher_OneChannelFailingDoesNotBlockOthers(t *testing.T) {
	bad := &recordingNotifier{name: "bad", fail: 100}
	good := &recordingNotifier{name: "good"}
	d := NewDispatcher(zap.NewNop(), nil, fastConfig(), bad, nil, good)

	err := d.Deliver(context.Background(), downAlert())
	require.Error(t, err)
	assert.Equal(t, 1, good.count())
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	n := &recordingNotifier{name: "slow", block: make(chan struct{})}
	defer close(n.block)
	cfg := fastConfig()
	cfg.QueueSize = 2
	d := NewDispatcher(zap.NewNop(), nil, cfg, n)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Enqueue(downAlert())
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.False(t, d.Enqueue(downAlert()))
}

func TestDispatcher_RecoveryToggle(t *testing.T) {
	cfg := fastConfig()
	cfg.AlertOnRecovery = false
	d := NewDispatcher(zap.NewNop(), nil, cfg, &recordingNotifier{name: "n"})

	up := downAlert()
	up.Status = domain.StatusUp
	assert.False(t, d.Enqueue(up))
	assert.True(t, d.Enqueue(downAlert()))
}

func TestDispatcher_RunDelivers(t *testing.T) {
	n := &recordingNotifier{name: "n", sent: make(chan Alert, 1)}
	d := NewDispatcher(zap.NewNop(), nil, fastConfig(), n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	require.True(t, d.Enqueue(downAlert()))
	select {
	case a := <-n.sent:
		assert.Equal(t, domain.TargetID("t1"), a.TargetID)
	case <-time.After(time.Second):
		t.Fatal("alert not delivered")
	}
}

func TestDispatcher_NoChannelsIsNoop(t *testing.T) {
	d := NewDispatcher(zap.NewNop(), nil, fastConfig(), nil)
	assert.False(t, d.Enqueue(downAlert()))
}
