package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

func sample() Notification {
	a := &models.Assignment{ID: "u1", SchoolID: "s1", StudentID: "st", OwnerTeacherID: "t"}
	ev := &models.TransitionEvent{
		ID: "e1", UnitID: "u1", EventType: models.EventStatusTransition, ActorUserID: "st",
		FromStatus: models.StatusViewed, ToStatus: models.StatusSubmitted,
		CreatedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	return FromEvent(a, ev)
}

func TestChannel(t *testing.T) {
	if got := Channel("abc"); got != "gradekeeper:school:abc:assignments" {
		t.Fatalf("Channel = %q", got)
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel("s1"))
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	n := sample()
	if err := NewRedisPublisher(rdb).Publish(ctx, n); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got Notification
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if got.UnitID != "u1" || got.ToStatus != models.StatusSubmitted || got.FromStatus != models.StatusViewed {
			t.Fatalf("unexpected notification: %+v", got)
		}
		if !got.At.Equal(n.At) {
			t.Fatalf("At = %v, want %v", got.At, n.At)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisPublisher_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	if err := NewRedisPublisher(rdb).Publish(context.Background(), sample()); err == nil {
		t.Fatal("expected error with server down")
	}
}

func TestLogPublisher(t *testing.T) {
	if err := NewLogPublisher(nil).Publish(context.Background(), sample()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
