package stream

import (
	"context"
	"sync"

	"carbonledger.org/internal/audit"
)

// Stream fan-outs activity entries to all active subscribers (SSE clients
// watching the activity feed).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Entry
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan audit.Entry)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// entries. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan audit.Entry {
	ch := make(chan audit.Entry, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the entry to all subscribers.
func (s *Stream) Publish(e audit.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Fanout wraps a Recorder so every appended entry is also published to
// stream subscribers. The durable write happens first; a publish never
// fails the append.
type Fanout struct {
	Recorder audit.Recorder
	Stream   *Stream
}

var _ audit.Recorder = (*Fanout)(nil)

func (f *Fanout) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	stored, err := f.Recorder.Append(ctx, e)
	if err != nil {
		return audit.Entry{}, err
	}
	if f.Stream != nil {
		f.Stream.Publish(stored)
	}
	return stored, nil
}

func (f *Fanout) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	return f.Recorder.Recent(ctx, limit)
}
