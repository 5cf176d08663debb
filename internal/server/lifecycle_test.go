package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	startFn func() error
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	// Block until stopped
	for !m.stopped.Load() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	logger := zaptest.NewLogger(t)
	lc := NewLifecycle(logger)

	svc1 := &mockService{}
	svc2 := &mockService{}

	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	// Wait for services to start
	deadline := time.After(2 * time.Second)
	for {
		if svc1.started.Load() && svc2.started.Load() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("services did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	assert.True(t, svc1.started.Load())
	assert.True(t, svc2.started.Load())

	// Trigger shutdown
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
}

// acceptorLikeService mimics the Telnet Acceptor's Start/Stop/ActiveSessions
// shape, so Lifecycle's session-draining log line can be exercised without
// pulling in internal/acceptor (which already imports internal/server's
// sibling internal/config).
type acceptorLikeService struct {
	mockService
	sessions atomic.Int32
}

func (a *acceptorLikeService) ActiveSessions() int { return int(a.sessions.Load()) }

func TestLifecycleLogsActiveSessionsOnShutdown(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	lc := NewLifecycle(logger)

	svc := &acceptorLikeService{}
	svc.sessions.Store(3)
	lc.Add("telnet", svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !svc.started.Load() {
		select {
		case <-deadline:
			t.Fatal("service did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	var found bool
	for _, entry := range logs.All() {
		if entry.Message == "stopping service" {
			found = true
			assert.Equal(t, "telnet", entry.ContextMap()["service"])
			assert.EqualValues(t, 3, entry.ContextMap()["active_sessions"])
		}
	}
	assert.True(t, found, "expected a \"stopping service\" log entry with active_sessions")
}

// plainService implements Service but not SessionCounter, confirming
// shutdown logging degrades gracefully for services that don't track
// session counts.
type plainService struct {
	mockService
}

func TestLifecycleOmitsActiveSessionsWhenNotASessionCounter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	lc := NewLifecycle(logger)

	svc := &plainService{}
	lc.Add("plain", svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !svc.started.Load() {
		select {
		case <-deadline:
			t.Fatal("service did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	<-done

	for _, entry := range logs.All() {
		if entry.Message == "stopping service" {
			_, hasCount := entry.ContextMap()["active_sessions"]
			assert.False(t, hasCount)
		}
	}
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	err := svc.Start()
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}
