package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until stopped and records both transitions.
type blockingService struct {
	started atomic.Bool
	stopped atomic.Bool
	onStop  func()
}

func (s *blockingService) Start() error {
	s.started.Store(true)
	for !s.stopped.Load() {
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func (s *blockingService) Stop() {
	if s.onStop != nil {
		s.onStop()
	}
	s.stopped.Store(true)
}

func TestLifecycle_RunStopsAllOnCancel(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	first := &blockingService{}
	second := &blockingService{}
	lc.Add("first", first)
	lc.Add("second", second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return first.started.Load() && second.started.Load()
	}, 2*time.Second, 10*time.Millisecond, "services did not start")

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, first.stopped.Load())
	assert.True(t, second.stopped.Load())
}

func TestLifecycle_StopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	svcs := []*blockingService{
		{onStop: record("first")},
		{onStop: record("second")},
		{onStop: record("third")},
	}
	lc.Add("first", svcs[0])
	lc.Add("second", svcs[1])
	lc.Add("third", svcs[2])

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, s := range svcs {
			if !s.started.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "services did not start")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestLifecycle_ServiceFailureStopsTheRest(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	healthy := &blockingService{}
	lc.Add("healthy", healthy)
	lc.Add("failing", &FuncService{
		StartFn: func() error { return errors.New("bind: address in use") },
		StopFn:  func() {},
	})

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down after service failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestFuncService_Delegates(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}

	require.NoError(t, svc.Start())
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)
}
