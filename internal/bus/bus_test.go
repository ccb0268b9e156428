package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBus_DeliversInOrder(t *testing.T) {
	b := NewMessageBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	b.Subscribe("test", func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Line)
	})
	go b.Dispatch(ctx)

	for _, line := range []string{"a", "b", "c"} {
		require.True(t, b.Publish(ctx, Event{Kind: EventLine, Line: line}), "publish %q", line)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMessageBus_PublishHonorsContext(t *testing.T) {
	b := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, b.Publish(ctx, Event{Kind: EventLine}), "first publish should fit in the buffer")
	cancel()
	assert.False(t, b.Publish(ctx, Event{Kind: EventLine}), "publish on a full bus with cancelled context should fail")
}

func TestMessageBus_DispatchFlushesOnCancel(t *testing.T) {
	b := NewMessageBus(8)
	var got []string
	b.Subscribe("test", func(ev Event) { got = append(got, ev.Line) })

	ctx, cancel := context.WithCancel(context.Background())
	for _, line := range []string{"a", "b"} {
		b.Publish(ctx, Event{Kind: EventLine, Line: line})
	}
	cancel()
	b.Dispatch(ctx)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEventKind_String(t *testing.T) {
	cases := map[EventKind]string{
		EventLine:     "line",
		EventRecord:   "record",
		EventStarted:  "started",
		EventStopped:  "stopped",
		EventKind(99): "unknown",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String(), "kind %d", k)
	}
}
