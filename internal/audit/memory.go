package audit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is an in-memory Recorder for tests and single-process setups.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

var _ Recorder = (*Memory)(nil)

// NewMemory constructs an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// WithMemoryClock overrides the time source (useful for tests).
func (m *Memory) WithMemoryClock(fn func() time.Time) *Memory {
	if fn != nil {
		m.now = fn
	}
	return m
}

// Append stores the entry. Entries are never rewritten afterwards.
func (m *Memory) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.Action == "" {
		return Entry{}, errors.New("audit: action is required")
	}
	e = Normalize(e, m.now())
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (m *Memory) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
