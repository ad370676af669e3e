package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gdtech/pairgate/internal/apperrors"
	redisclient "github.com/gdtech/pairgate/internal/redis"
)

const (
	taskKindCredentials   = "credentials"
	taskKindChannelFollow = "channel_follow"
)

// queueTask is the wire shape pushed onto the delivery queue for an external
// worker to drain.
type queueTask struct {
	Kind        string `json:"kind"`
	PhoneNumber string `json:"phoneNumber"`
	Blob        string `json:"blob,omitempty"` // base64
	QueuedAt    int64  `json:"queuedAt"`
}

// QueueSink enqueues delivery work onto a redis list instead of sending it
// directly, for deployments where a separate worker owns the messaging
// connection. It implements both CredentialSink and ChannelSubscriber.
type QueueSink struct {
	redis *redisclient.Client
}

func NewQueueSink(redisClient *redisclient.Client) *QueueSink {
	return &QueueSink{redis: redisClient}
}

func (q *QueueSink) Deliver(ctx context.Context, phoneNumber string, blob []byte) error {
	return q.push(ctx, queueTask{
		Kind:        taskKindCredentials,
		PhoneNumber: phoneNumber,
		Blob:        base64.StdEncoding.EncodeToString(blob),
		QueuedAt:    time.Now().UnixMilli(),
	})
}

func (q *QueueSink) Subscribe(ctx context.Context, phoneNumber string) error {
	return q.push(ctx, queueTask{
		Kind:        taskKindChannelFollow,
		PhoneNumber: phoneNumber,
		QueuedAt:    time.Now().UnixMilli(),
	})
}

func (q *QueueSink) push(ctx context.Context, task queueTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return apperrors.Internal("marshal delivery task").WithCause(err)
	}

	key := redisclient.DeliveryQueueKey()
	if err := q.redis.LPush(ctx, key, data).Err(); err != nil {
		return apperrors.External(fmt.Sprintf("enqueue %s task", task.Kind)).WithCause(err)
	}

	log.Debug().
		Str("kind", task.Kind).
		Str("phoneNumber", task.PhoneNumber).
		Msg("delivery task enqueued")
	return nil
}
