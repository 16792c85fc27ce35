// Package presence tracks live sessions per user, decoupled from the user
// profile record. A user is online while at least one session is connected;
// only the first-connect and last-disconnect edges are interesting to the
// rest of the system.
package presence

import (
	"context"
	"sync"
)

// Registry counts live sessions per user id.
type Registry interface {
	// Connect records a new session and reports whether it is the user's
	// first live session.
	Connect(ctx context.Context, userID int64) (first bool, err error)
	// Disconnect removes a session and reports whether it was the user's
	// last live session.
	Disconnect(ctx context.Context, userID int64) (last bool, err error)
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// MemoryRegistry is the in-process implementation, suitable for a single
// server instance and for tests.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[int64]int
}

var _ Registry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[int64]int)}
}

func (r *MemoryRegistry) Connect(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[userID]++
	return r.sessions[userID] == 1, nil
}

func (r *MemoryRegistry) Disconnect(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.sessions[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(r.sessions, userID)
		return true, nil
	}
	r.sessions[userID] = n - 1
	return false, nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sessions[userID] > 0, nil
}
