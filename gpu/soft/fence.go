package soft

import (
	"context"
	"sync"

	"github.com/vkngwrapper/armature/gpu"
)

type fenceWaiter struct {
	value uint64
	done  chan struct{}
}

// Fence implements gpu.Fence
type Fence struct {
	mutex     sync.Mutex
	completed uint64
	waiters   []fenceWaiter
}

var _ gpu.Fence = &Fence{}

func (f *Fence) CompletedValue() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.completed
}

func (f *Fence) Wait(ctx context.Context, value uint64) error {
	f.mutex.Lock()
	if f.completed >= value {
		f.mutex.Unlock()
		return nil
	}

	waiter := fenceWaiter{value: value, done: make(chan struct{})}
	f.waiters = append(f.waiters, waiter)
	f.mutex.Unlock()

	select {
	case <-waiter.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete advances the fence to value, waking any waiters it satisfies. The fence never
// moves backward.
func (f *Fence) Complete(value uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if value <= f.completed {
		return
	}
	f.completed = value

	remaining := f.waiters[:0]
	for _, waiter := range f.waiters {
		if waiter.value <= value {
			close(waiter.done)
		} else {
			remaining = append(remaining, waiter)
		}
	}
	f.waiters = remaining
}

func (f *Fence) Release() {}
