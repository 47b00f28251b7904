package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:       "user-1",
		EventType:    RealtimeEventResourceChanged,
		ResourceKind: "notebook",
		ResourceIDs:  []string{"nb-a", "nb-b"},
		Timestamp:    time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventResourceChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventResourceChanged, received.EventType)
		}
		if len(received.ResourceIDs) != 2 {
			t.Fatalf("expected 2 resource ids, got %d", len(received.ResourceIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:       "user-3",
		EventType:    RealtimeEventResourceChanged,
		ResourceKind: "note",
		ResourceIDs:  []string{"note-c"},
		Timestamp:    time.Now().UTC(),
	})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherFirehoseReceivesEveryUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firehose, cleanup := dispatcher.Subscribe(ctx, realtimeAllKey)
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:       "user-4",
		EventType:    RealtimeEventResourceChanged,
		ResourceKind: "notebook",
		ResourceIDs:  []string{"nb-d"},
		Timestamp:    time.Now().UTC(),
	})
	dispatcher.Publish(RealtimeMessage{
		UserID:       "user-5",
		EventType:    RealtimeEventResourceChanged,
		ResourceKind: "note",
		ResourceIDs:  []string{"note-e"},
		Timestamp:    time.Now().UTC(),
	})

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-firehose:
			seen[msg.UserID] = true
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected firehose delivery within deadline")
		}
	}
	if !seen["user-4"] || !seen["user-5"] {
		t.Fatalf("expected events from both users, got %v", seen)
	}
}

func TestRealtimeDispatcherSubscribeEmptyKeyClosed(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()

	select {
	case _, open := <-stream:
		if open {
			t.Fatal("expected closed stream for empty subscription key")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected closed stream immediately")
	}
}
