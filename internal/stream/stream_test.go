package stream

import (
	"context"
	"testing"
	"time"

	"carbonledger.org/internal/audit"
)

func TestSubscribeReceivesPublishedEntries(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Publish(audit.Entry{ID: "01H", Action: "login", Outcome: audit.OutcomeSuccess})

	select {
	case got := <-ch:
		if got.Action != "login" {
			t.Fatalf("unexpected entry: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for entry")
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancel")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(audit.Entry{Action: "tick"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestFanoutPublishesAppendedEntries(t *testing.T) {
	s := New()
	rec := &Fanout{Recorder: audit.NewMemory(), Stream: s}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	stored, err := rec.Append(context.Background(), audit.Entry{Action: "role.created", Category: audit.CategoryAdmin})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected generated id")
	}

	select {
	case got := <-ch:
		if got.ID != stored.ID {
			t.Fatalf("stream entry mismatch: %s vs %s", got.ID, stored.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fanout entry")
	}

	recent, err := rec.Recent(context.Background(), 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent: %v len=%d", err, len(recent))
	}
}
