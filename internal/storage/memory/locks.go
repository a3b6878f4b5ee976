package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tillbook/internal/errs"
)

// lockTable hands out one exclusive slot per key. A slot is a 1-buffered
// channel so acquisition can race a timer and the caller's context.
type lockTable struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[uuid.UUID]chan struct{})}
}

func (lt *lockTable) slot(id uuid.UUID) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	ch, ok := lt.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.slots[id] = ch
	}
	return ch
}

// acquire takes every key in the given order within timeout. On failure
// nothing stays held.
func (lt *lockTable) acquire(ctx context.Context, keys []uuid.UUID, timeout time.Duration) (func(), error) {
	held := make([]chan struct{}, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	if len(keys) == 0 {
		return release, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, k := range keys {
		ch := lt.slot(k)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			release()
			return nil, fmt.Errorf("%w: lock on %s not acquired within %s", errs.ErrContention, k, timeout)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
