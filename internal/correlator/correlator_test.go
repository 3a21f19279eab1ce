package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	mu            sync.Mutex
	subscribed    []string
	unsubscribed  []string
	acked         []string
	unsubscribeErr error
}

func (f *fakeBus) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeBus) Unsubscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topic)
	return f.unsubscribeErr
}

func (f *fakeBus) Ack(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, topic)
	return nil
}

func (f *fakeBus) unsubscribedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.unsubscribed))
	copy(out, f.unsubscribed)
	return out
}

type fakeFetcher struct {
	objects map[string]map[string]interface{}
	err     error
}

func (f *fakeFetcher) GetJSON(_ context.Context, key string, out interface{}) error {
	if f.err != nil {
		return f.err
	}
	obj, ok := f.objects[key]
	if !ok {
		return errors.New("not found")
	}
	target := out.(*map[string]interface{})
	*target = obj
	return nil
}

func startCorrelator(t *testing.T, bus busClient, fetcher resultFetcher) (*Correlator, func()) {
	t.Helper()
	c := New(bus, fetcher, "cache/", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, cancel
}

func TestWaitForResultResolvesOnMatchingFrame(t *testing.T) {
	bus := &fakeBus{}
	c, cancel := startCorrelator(t, bus, &fakeFetcher{})
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		payload, err := c.WaitForResult(context.Background(), "guid-1", time.Second)
		resultCh <- Result{Payload: payload, Err: err}
	}()

	time.Sleep(20 * time.Millisecond)
	c.OnMessage(map[string]interface{}{"guid": "guid-1", "code": float64(0), "asm": []interface{}{}})

	select {
	case res := <-resultCh:
		require.NoError(t, res.Err)
		assert.Equal(t, "guid-1", res.Payload["guid"])
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved")
	}

	assert.Eventually(t, func() bool { return len(bus.unsubscribedTopics()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestWaitForResultTimesOut(t *testing.T) {
	bus := &fakeBus{}
	c, cancel := startCorrelator(t, bus, &fakeFetcher{})
	defer cancel()

	_, err := c.WaitForResult(context.Background(), "guid-2", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForResultRejectsDuplicateRegistration(t *testing.T) {
	bus := &fakeBus{}
	c, cancel := startCorrelator(t, bus, &fakeFetcher{})
	defer cancel()

	go func() {
		_, _ = c.WaitForResult(context.Background(), "guid-3", time.Second)
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := c.WaitForResult(context.Background(), "guid-3", time.Second)
	assert.ErrorIs(t, err, ErrAlreadyWaiting)
}

func TestOnMessageIgnoresUnknownGUID(t *testing.T) {
	bus := &fakeBus{}
	c, cancel := startCorrelator(t, bus, &fakeFetcher{})
	defer cancel()

	c.OnMessage(map[string]interface{}{"guid": "nobody-waiting"})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, bus.unsubscribedTopics())
}

func TestWaitForResultResolvesOverflowedFrame(t *testing.T) {
	bus := &fakeBus{}
	fetcher := &fakeFetcher{objects: map[string]map[string]interface{}{
		"cache/abc.json": {"code": float64(0), "asm": []interface{}{"ret"}},
	}}
	c, cancel := startCorrelator(t, bus, fetcher)
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		payload, err := c.WaitForResult(context.Background(), "guid-4", time.Second)
		resultCh <- Result{Payload: payload, Err: err}
	}()
	time.Sleep(20 * time.Millisecond)
	c.OnMessage(map[string]interface{}{"guid": "guid-4", "s3Key": "abc.json"})

	select {
	case res := <-resultCh:
		require.NoError(t, res.Err)
		assert.Equal(t, float64(0), res.Payload["code"])
		assert.Equal(t, "guid-4", res.Payload["guid"])
	case <-time.After(time.Second):
		t.Fatal("overflowed result never resolved")
	}
}

func TestWaitForResultSyntheticErrorOnFetchFailure(t *testing.T) {
	bus := &fakeBus{}
	fetcher := &fakeFetcher{err: errors.New("s3 unavailable")}
	c, cancel := startCorrelator(t, bus, fetcher)
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		payload, err := c.WaitForResult(context.Background(), "guid-5", time.Second)
		resultCh <- Result{Payload: payload, Err: err}
	}()
	time.Sleep(20 * time.Millisecond)
	c.OnMessage(map[string]interface{}{"guid": "guid-5", "s3Key": "missing.json"})

	select {
	case res := <-resultCh:
		require.NoError(t, res.Err)
		assert.Equal(t, -1, res.Payload["code"])
		assert.Equal(t, false, res.Payload["okToCache"])
	case <-time.After(time.Second):
		t.Fatal("synthetic error result never delivered")
	}
}
