package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const (
	// maxVisibilityDelay is the longest a queue message can stay hidden.
	maxVisibilityDelay = 7 * 24 * time.Hour
	// neverExpire keeps a message until it is consumed. The default time to
	// live equals maxVisibilityDelay, which would drop far reminders unseen.
	neverExpire int32 = -1
)

type queueClient interface {
	Create(ctx context.Context, o *azqueue.CreateOptions) (azqueue.CreateQueueResponse, error)
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// ReminderQueue schedules reminders as delayed queue messages. A message
// becomes visible to consumers when its reminder is due.
type ReminderQueue struct {
	queue queueClient
	now   func() time.Time
}

// NewReminderQueue creates a ReminderQueue from the given connection string.
func NewReminderQueue(connStr, queueName string) (*ReminderQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &ReminderQueue{queue: q, now: time.Now}, nil
}

// Migrate creates the queue when it does not exist yet.
func (q *ReminderQueue) Migrate(ctx context.Context) error {
	if _, err := q.queue.Create(ctx, nil); err != nil && !isStatus(err, 409) {
		return err
	}
	return nil
}

func (q *ReminderQueue) Schedule(ctx context.Context, r domain.Reminder) error {
	data, err := sonic.MarshalString(r)
	if err != nil {
		return err
	}
	delay := visibilityDelay(r.At, q.now())
	secs := int32(delay / time.Second)
	ttl := neverExpire
	if _, err := q.queue.EnqueueMessage(ctx, data, &azqueue.EnqueueMessageOptions{VisibilityTimeout: &secs, TimeToLive: &ttl}); err != nil {
		return err
	}
	log.WithFields(log.Fields{"entity": r.EntityID, "type": r.EntityType, "delay": delay}).Debug("reminder enqueued")
	return nil
}

// visibilityDelay clamps the time until at to what the queue accepts.
// Reminders further out than the limit are redelivered early and the
// consumer is expected to re-enqueue them.
func visibilityDelay(at, now time.Time) time.Duration {
	d := at.Sub(now)
	if d < 0 {
		return 0
	}
	if d > maxVisibilityDelay {
		return maxVisibilityDelay
	}
	return d
}
