package notify

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdtech/pairgate/internal/model"
	redisclient "github.com/gdtech/pairgate/internal/redis"
	"github.com/gdtech/pairgate/internal/session"
)

// newTestBroker builds a broker on an unconnected redis client. go-redis
// subscriptions connect lazily, so pump lifecycle and broadcast fan-out are
// exercisable without a server; only actual message delivery needs one.
func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	client := &redisclient.Client{Client: goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})}
	broker := NewBroker(client)
	t.Cleanup(broker.Close)
	return broker
}

func (b *Broker) pumpStop(sessionID string) (chan struct{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stop, ok := b.pumps[sessionID]
	return stop, ok
}

func (b *Broker) pumpCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pumps)
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestBrokerPumpLifecycle(t *testing.T) {
	t.Run("clients of one session share a single pump", func(t *testing.T) {
		b := newTestBroker(t)

		first := b.Subscribe("sess-1")
		stop, ok := b.pumpStop("sess-1")
		require.True(t, ok)

		second := b.Subscribe("sess-1")
		assert.Equal(t, 1, b.pumpCount())
		assert.Equal(t, 2, b.ClientCount("sess-1"))

		b.Unsubscribe(first)
		assert.False(t, isClosed(stop), "pump must outlive remaining clients")

		b.Unsubscribe(second)
		assert.True(t, isClosed(stop))
		assert.Equal(t, 0, b.pumpCount())
	})

	t.Run("last unsubscribe releases the pump", func(t *testing.T) {
		b := newTestBroker(t)

		client := b.Subscribe("sess-1")
		stop, ok := b.pumpStop("sess-1")
		require.True(t, ok)

		b.Unsubscribe(client)

		assert.True(t, isClosed(stop))
		assert.Equal(t, 0, b.pumpCount())
		assert.Equal(t, 0, b.ClientCount("sess-1"))
	})

	t.Run("resubscribing starts one fresh pump, never two", func(t *testing.T) {
		b := newTestBroker(t)

		client := b.Subscribe("sess-1")
		firstStop, ok := b.pumpStop("sess-1")
		require.True(t, ok)
		b.Unsubscribe(client)

		reclient := b.Subscribe("sess-1")
		defer b.Unsubscribe(reclient)

		secondStop, ok := b.pumpStop("sess-1")
		require.True(t, ok)
		assert.NotEqual(t, firstStop, secondStop, "stopped pump must not be reused")
		assert.True(t, isClosed(firstStop))
		assert.False(t, isClosed(secondStop))
		assert.Equal(t, 1, b.pumpCount())
	})
}

func TestBrokerBroadcast(t *testing.T) {
	t.Run("delivers to every client of the session once", func(t *testing.T) {
		b := newTestBroker(t)

		first := b.Subscribe("sess-1")
		second := b.Subscribe("sess-1")
		other := b.Subscribe("sess-2")
		defer b.Unsubscribe(first)
		defer b.Unsubscribe(second)
		defer b.Unsubscribe(other)

		b.broadcast("sess-1", session.StatusEvent{Status: model.StatusOpen})

		assert.Len(t, first.Events, 1)
		assert.Len(t, second.Events, 1)
		assert.Len(t, other.Events, 0)
	})

	t.Run("after resubscribe each event arrives exactly once", func(t *testing.T) {
		b := newTestBroker(t)

		client := b.Subscribe("sess-1")
		b.Unsubscribe(client)

		reclient := b.Subscribe("sess-1")
		defer b.Unsubscribe(reclient)

		b.broadcast("sess-1", session.StatusEvent{Status: model.StatusVerified})

		require.Len(t, reclient.Events, 1)
		got := <-reclient.Events
		assert.Equal(t, model.StatusVerified, got.Status)
	})
}
