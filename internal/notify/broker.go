// Package notify fans session status events out to SSE clients. Events travel
// through redis pub/sub so every instance behind a load balancer sees
// transitions for sessions supervised elsewhere.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/gdtech/pairgate/internal/redis"
	"github.com/gdtech/pairgate/internal/session"
)

const (
	HeartbeatInterval = 30 * time.Second
)

type Client struct {
	SessionID string
	Events    chan session.StatusEvent
	Done      chan struct{}
}

type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // sessionID -> set of clients
	pumps   map[string]chan struct{}    // sessionID -> stop channel of its redis pump
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		pumps:   make(map[string]chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// PublishStatus implements session.Notifier.
func (b *Broker) PublishStatus(ctx context.Context, sessionID string, event session.StatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionChannel(sessionID)
	return b.redis.Publish(ctx, channel, data).Err()
}

// Subscribe registers an SSE client for a session. The first client of a
// session starts its redis pump; later clients share it. Pump start and
// client registration happen under the same critical section, so a
// concurrent Unsubscribe can never leave two pumps on one channel.
func (b *Broker) Subscribe(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Events:    make(chan session.StatusEvent, 100),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[sessionID] == nil {
		b.clients[sessionID] = make(map[*Client]bool)
		stop := make(chan struct{})
		b.pumps[sessionID] = stop
		go b.subscribeToRedis(sessionID, stop)
	}
	b.clients[sessionID][client] = true
	clientCount := len(b.clients[sessionID])
	b.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

// Unsubscribe removes the client; the last client of a session also stops the
// session's redis pump, so ephemeral sessions do not pin goroutines or redis
// subscriptions after their watchers are gone.
func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.SessionID]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.SessionID)
			if stop, ok := b.pumps[client.SessionID]; ok {
				close(stop)
				delete(b.pumps, client.SessionID)
			}
		}

		log.Info().
			Str("sessionId", client.SessionID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) subscribeToRedis(sessionID string, stop <-chan struct{}) {
	channel := redisclient.SessionChannel(sessionID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("sessionId", sessionID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case <-stop:
			log.Debug().
				Str("sessionId", sessionID).
				Str("channel", channel).
				Msg("redis pubsub released")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event session.StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal status event")
				continue
			}

			b.broadcast(sessionID, event)
		}
	}
}

func (b *Broker) broadcast(sessionID string, event session.StatusEvent) {
	b.mu.RLock()
	clients := b.clients[sessionID]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("sessionId", sessionID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.pumps = make(map[string]chan struct{})
}

func (b *Broker) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[sessionID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
