package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/qa"
)

// lockTable hands out one mutex per entry id so updates to different entries
// never serialize against each other. Locks are reference-counted and
// removed from the table once the last holder releases, keeping the table
// proportional to in-flight work rather than total entries.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entryLock
}

type entryLock struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]*entryLock)}
}

// acquire takes the lock for id, waiting at most wait. It fails fast with
// ErrLockConflict instead of queuing unboundedly; callers surface that as a
// retryable error. The returned release must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, id uuid.UUID, wait time.Duration) (release func(), err error) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &entryLock{sem: make(chan struct{}, 1)}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			t.put(id, l)
		}, nil
	case <-timer.C:
		t.put(id, l)
		return nil, qa.ErrLockConflict
	case <-ctx.Done():
		t.put(id, l)
		return nil, ctx.Err()
	}
}

func (t *lockTable) put(id uuid.UUID, l *entryLock) {
	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
	t.mu.Unlock()
}
