package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"kanban-api/domain"
)

type fakeQueue struct {
	sent       []string
	visibility []int32
	ttl        []int32
	created    int
	failWith   error
}

func (f *fakeQueue) Create(ctx context.Context, o *azqueue.CreateOptions) (azqueue.CreateQueueResponse, error) {
	f.created++
	return azqueue.CreateQueueResponse{}, nil
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	if f.failWith != nil {
		return azqueue.EnqueueMessagesResponse{}, f.failWith
	}
	f.sent = append(f.sent, content)
	f.visibility = append(f.visibility, *o.VisibilityTimeout)
	f.ttl = append(f.ttl, *o.TimeToLive)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestReminderQueueSchedule(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fq := &fakeQueue{}
	q := &ReminderQueue{queue: fq, now: func() time.Time { return now }}

	r := domain.Reminder{EntityType: "task", EntityID: "t1", BoardID: "b1", Title: "Ship", UserIDs: []string{"u1"}, At: now.Add(90 * time.Minute)}
	if err := q.Schedule(context.Background(), r); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(fq.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fq.sent))
	}
	if fq.visibility[0] != 90*60 {
		t.Fatalf("visibility = %d", fq.visibility[0])
	}
	if fq.ttl[0] != neverExpire {
		t.Fatalf("ttl = %d", fq.ttl[0])
	}
	var got domain.Reminder
	if err := sonic.UnmarshalString(fq.sent[0], &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.EntityID != "t1" || got.BoardID != "b1" || !got.At.Equal(r.At) {
		t.Fatalf("unexpected payload: %#v", got)
	}
}

func TestReminderQueueKeepsFarReminders(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fq := &fakeQueue{}
	q := &ReminderQueue{queue: fq, now: func() time.Time { return now }}

	r := domain.Reminder{EntityType: "subtask", EntityID: "s1", UserIDs: []string{"u1"}, At: now.Add(30 * 24 * time.Hour)}
	if err := q.Schedule(context.Background(), r); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if time.Duration(fq.visibility[0])*time.Second != maxVisibilityDelay {
		t.Fatalf("visibility = %d", fq.visibility[0])
	}
	if fq.ttl[0] != neverExpire {
		t.Fatalf("message would expire before it becomes visible: ttl = %d", fq.ttl[0])
	}
}

func TestReminderQueuePropagatesErrors(t *testing.T) {
	fq := &fakeQueue{failWith: errors.New("enqueue failure")}
	q := &ReminderQueue{queue: fq, now: time.Now}
	err := q.Schedule(context.Background(), domain.Reminder{EntityID: "t1", UserIDs: []string{"u1"}, At: time.Now()})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestReminderQueueMigrate(t *testing.T) {
	fq := &fakeQueue{}
	q := &ReminderQueue{queue: fq, now: time.Now}
	if err := q.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if fq.created != 1 {
		t.Fatalf("expected queue creation, got %d", fq.created)
	}
}

func TestVisibilityDelay(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want time.Duration
	}{
		{name: "past", at: now.Add(-time.Hour), want: 0},
		{name: "soon", at: now.Add(time.Minute), want: time.Minute},
		{name: "beyond limit", at: now.Add(30 * 24 * time.Hour), want: maxVisibilityDelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := visibilityDelay(tt.at, now); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
