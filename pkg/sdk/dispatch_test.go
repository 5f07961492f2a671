package sdk

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	t.Parallel()

	d := newDispatcher(0)
	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, d.tryDo(func() { got = append(got, i) }))
	}
	_, err := d.call(func() (any, error) { return nil, nil })
	require.NoError(t, err)
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestDispatcherCallReturnsResult(t *testing.T) {
	t.Parallel()

	d := newDispatcher(4)
	v, err := d.call(func() (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = d.call(func() (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	v, err = d.call(nil)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestDispatcherSerializesConcurrentCalls(t *testing.T) {
	t.Parallel()

	d := newDispatcher(8)
	t.Cleanup(d.stop)
	counter := 0
	var wg sync.WaitGroup
	wg.Add(50)
	for g := 0; g < 50; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, _ = d.call(func() (any, error) {
					counter++
					return nil, nil
				})
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1000, counter)
}

func TestNilDispatcher(t *testing.T) {
	t.Parallel()

	var d *dispatcher
	require.False(t, d.tryDo(func() {}))
	_, err := d.call(func() (any, error) { return nil, nil })
	require.Error(t, err)
}

func TestDispatcherStopDrainsAndRestarts(t *testing.T) {
	t.Parallel()

	d := newDispatcher(4)
	require.False(t, d.running())

	var mu sync.Mutex
	var got []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
		}
	}
	require.True(t, d.tryDo(record("a")))
	require.True(t, d.running())
	d.stop()
	d.stop()
	require.False(t, d.running())

	_, err := d.call(func() (any, error) {
		record("b")()
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, d.running())
	d.stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, time.Millisecond)
}

func TestDispatcherCallWaitsForRoom(t *testing.T) {
	t.Parallel()

	d := newDispatcher(1)
	t.Cleanup(d.stop)
	block := make(chan struct{})
	require.True(t, d.tryDo(func() { <-block }))
	require.Eventually(t, func() bool { return d.tryDo(func() {}) }, 5*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		_, _ = d.call(func() (any, error) { return nil, nil })
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("call returned while the queue was blocked")
	case <-time.After(20 * time.Millisecond):
	}
	close(block)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("call never ran")
	}
}
