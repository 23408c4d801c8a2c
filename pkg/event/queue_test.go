package event_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlink-go/simlink/pkg/event"
	"github.com/simlink-go/simlink/pkg/registry"
)

func TestQueuePreservesOrder(t *testing.T) {
	q := event.NewQueue()

	for i := 0; i < 100; i++ {
		q.PushUpdate(fmt.Sprintf("p%d", i), i, true)
	}
	require.Equal(t, 100, q.Len())

	for i := 0; i < 100; i++ {
		e, ok := q.Pop()
		require.True(t, ok)
		require.NotNil(t, e.Update)
		assert.Equal(t, i, e.Update.Value)
	}
}

func TestQueueBlockingPop(t *testing.T) {
	q := event.NewQueue()

	got := make(chan event.Event, 1)
	go func() {
		e, _ := q.Pop()
		got <- e
	}()

	time.Sleep(20 * time.Millisecond)
	q.PushUpdate("late", 1.0, false)

	select {
	case e := <-got:
		assert.Equal(t, "late", e.Update.Path)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestQueueCloseUnblocksAndDrains(t *testing.T) {
	q := event.NewQueue()
	q.PushUpdate("a", 1.0, false)
	q.Close()

	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", e.Update.Path)

	_, ok = q.Pop()
	assert.False(t, ok)

	// Push after close is dropped.
	q.PushUpdate("b", 2.0, false)
	assert.Equal(t, 0, q.Len())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := event.NewQueue()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.PushUpdate("p", i, false)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, q.Len())
}

func TestDispatcherNotifiesCascadingUpdates(t *testing.T) {
	reg := registry.New(registry.Config{})
	reg.GetOrCreate("sim/alt", registry.KindFloat)

	var mu sync.Mutex
	var seen []any
	_, err := reg.AddListener("sim/alt", func(path string, value any) {
		mu.Lock()
		seen = append(seen, value)
		mu.Unlock()
	})
	require.NoError(t, err)

	q := event.NewQueue()
	d := event.NewDispatcher(q, reg, nil, nil)
	d.Start()

	q.PushUpdate("sim/alt", 1.0, true)
	q.PushUpdate("sim/alt", 2.0, false) // stored elsewhere, no notify
	q.PushUpdate("sim/alt", 3.0, true)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{1.0, 3.0}, seen)
}

func TestDispatcherSurvivesPanickingListener(t *testing.T) {
	reg := registry.New(registry.Config{})
	reg.GetOrCreate("sim/alt", registry.KindFloat)

	var mu sync.Mutex
	calls := 0
	_, err := reg.AddListener("sim/alt", func(path string, value any) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	})
	require.NoError(t, err)

	q := event.NewQueue()
	d := event.NewDispatcher(q, reg, nil, nil)
	d.Start()

	q.PushUpdate("sim/alt", 1.0, true)
	q.PushUpdate("sim/alt", 2.0, true)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestDispatcherForwardsControls(t *testing.T) {
	reg := registry.New(registry.Config{})

	controls := make(chan event.Control, 2)
	q := event.NewQueue()
	d := event.NewDispatcher(q, reg, nil, func(c event.Control) {
		controls <- c
	})
	d.Start()

	q.PushControl(event.ControlReload)
	q.PushControl(event.ControlStop)
	d.Stop()

	assert.Equal(t, event.ControlReload, <-controls)
	assert.Equal(t, event.ControlStop, <-controls)
}
