package command

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/memutils/deferred"
	"github.com/vkngwrapper/armature/state"
)

// Queue submits command lists to one hardware queue and owns the fence that tracks their
// completion. Submissions are serialized: the pending states of each list are reconciled
// with the GlobalTracker in the same order the lists reach the GPU.
type Queue struct {
	logger    *slog.Logger
	device    gpu.Device
	queueType gpu.QueueType
	native    gpu.CommandQueue
	fence     gpu.Fence
	global    *state.GlobalTracker
	options   ListOptions

	submitMutex sync.Mutex
	lastSignal  uint64

	poolMutex sync.Mutex
	inFlight  deferred.Queue[*List]
	available []*List
	listCount int
}

// NewQueue creates a hardware queue of queueType along with its fence
func NewQueue(logger *slog.Logger, device gpu.Device, queueType gpu.QueueType, global *state.GlobalTracker, options ListOptions) (*Queue, error) {
	native, err := device.CreateCommandQueue(queueType)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s queue", queueType)
	}

	fence, err := device.CreateFence(0)
	if err != nil {
		native.Release()
		return nil, errors.Wrapf(err, "failed to create fence for %s queue", queueType)
	}

	return newQueue(logger, device, native, fence, global, options), nil
}

func newQueue(logger *slog.Logger, device gpu.Device, native gpu.CommandQueue, fence gpu.Fence, global *state.GlobalTracker, options ListOptions) *Queue {
	return &Queue{
		logger:    logger,
		device:    device,
		queueType: native.Type(),
		native:    native,
		fence:     fence,
		global:    global,
		options:   options,
	}
}

func (q *Queue) Type() gpu.QueueType           { return q.queueType }
func (q *Queue) Native() gpu.CommandQueue      { return q.native }
func (q *Queue) Fence() gpu.Fence              { return q.fence }
func (q *Queue) CompletedFence() uint64        { return q.fence.CompletedValue() }
func (q *Queue) IsFenceComplete(v uint64) bool { return v <= q.fence.CompletedValue() }

// LastSignaledFence returns the most recent fence value the queue was asked to signal
func (q *Queue) LastSignaledFence() uint64 {
	q.submitMutex.Lock()
	defer q.submitMutex.Unlock()

	return q.lastSignal
}

// GetCommandList returns a list ready for recording, reusing one whose last submission
// has completed when possible
func (q *Queue) GetCommandList() (*List, error) {
	q.poolMutex.Lock()
	defer q.poolMutex.Unlock()

	q.inFlight.Release(q.fence.CompletedValue(), func(list *List) {
		q.available = append(q.available, list)
	})

	var list *List
	if len(q.available) > 0 {
		list = q.available[len(q.available)-1]
		q.available = q.available[:len(q.available)-1]
	} else {
		native, err := q.device.CreateCommandList(q.queueType)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create %s command list", q.queueType)
		}

		list, err = newList(q.logger, q.device, native, q.global, q.options)
		if err != nil {
			native.Release()
			return nil, err
		}

		q.listCount++
		q.logger.Debug("Queue::GetCommandList",
			slog.String("Queue", q.queueType.String()),
			slog.Int("ListCount", q.listCount),
		)
	}

	err := list.reset()
	if err != nil {
		q.available = append(q.available, list)
		return nil, err
	}

	return list, nil
}

// Execute submits lists in order and returns the fence value that completes once they
// have all run. Each list whose first resource states differ from the device timeline
// is preceded by a barrier-only list that performs the missing transitions. Every list
// returns to the queue's pool; callers must not use them afterward. If the barrier lists
// cannot be created, nothing is submitted and the lists may be executed again. A failure
// after the global states have moved leaves them ahead of the GPU and must be treated as
// device loss.
func (q *Queue) Execute(lists ...*List) (uint64, error) {
	for _, list := range lists {
		if !list.closed {
			return 0, errors.New("command lists must be closed before execution")
		}
		if list.queueType != q.queueType {
			return 0, errors.Errorf("%s command list cannot be executed on a %s queue", list.queueType, q.queueType)
		}
	}

	q.submitMutex.Lock()
	defer q.submitMutex.Unlock()

	// Every list that could need a barrier list gets one before the global states move, so
	// running out of lists leaves the tracker untouched
	spares := make([]*List, 0, len(lists))
	for range lists {
		spare, err := q.GetCommandList()
		if err != nil {
			q.returnSpares(spares)
			return 0, err
		}
		spares = append(spares, spare)
	}

	trackers := make([]*state.LocalTracker, 0, len(lists))
	for _, list := range lists {
		trackers = append(trackers, list.tracker)
	}
	barriers := q.global.ResolvePending(trackers...)

	natives := make([]gpu.CommandList, 0, len(lists)*2)
	var barrierLists []*List
	for i, list := range lists {
		if len(barriers[i]) > 0 {
			barrierList := spares[0]
			spares = spares[1:]

			barrierList.pendingBarriers = append(barrierList.pendingBarriers, barriers[i]...)
			err := barrierList.Close()
			if err != nil {
				q.returnSpares(spares)
				q.recycle(append(barrierLists, barrierList), q.lastSignal)
				return 0, err
			}

			barrierLists = append(barrierLists, barrierList)
			natives = append(natives, barrierList.native)
		}
		natives = append(natives, list.native)
	}
	q.returnSpares(spares)

	err := q.native.ExecuteCommandLists(natives...)
	if err != nil {
		q.recycle(barrierLists, q.lastSignal)
		return 0, errors.Wrapf(err, "failed to execute %d command lists on %s queue", len(natives), q.queueType)
	}

	fence, err := q.signal()
	if err != nil {
		return 0, err
	}

	q.recycle(barrierLists, fence)
	q.recycle(lists, fence)

	q.logger.Debug("Queue::Execute",
		slog.String("Queue", q.queueType.String()),
		slog.Int("ListCount", len(lists)),
		slog.Int("BarrierListCount", len(barrierLists)),
		slog.Uint64("Fence", fence),
	)
	return fence, nil
}

// returnSpares closes lists that were never recorded and puts them back in the pool
func (q *Queue) returnSpares(spares []*List) {
	if len(spares) == 0 {
		return
	}

	q.poolMutex.Lock()
	defer q.poolMutex.Unlock()

	for _, list := range spares {
		err := list.Close()
		if err != nil {
			q.logger.Error("Queue::returnSpares failed to close an unused command list",
				slog.String("Queue", q.queueType.String()),
				slog.Any("Error", err),
			)
			list.destroy()
			q.listCount--
			continue
		}
		q.available = append(q.available, list)
	}
}

func (q *Queue) recycle(lists []*List, fence uint64) {
	if len(lists) == 0 {
		return
	}

	q.poolMutex.Lock()
	defer q.poolMutex.Unlock()

	for _, list := range lists {
		list.fence = fence
		q.inFlight.Push(fence, list)
	}
}

func (q *Queue) signal() (uint64, error) {
	value := q.lastSignal + 1
	err := q.native.Signal(q.fence, value)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to signal %s queue fence to %d", q.queueType, value)
	}

	q.lastSignal = value
	return value, nil
}

// Signal returns a fence value that completes once all work submitted so far has run
func (q *Queue) Signal() (uint64, error) {
	q.submitMutex.Lock()
	defer q.submitMutex.Unlock()

	return q.signal()
}

// WaitForFence blocks until the queue fence reaches value or ctx is done
func (q *Queue) WaitForFence(ctx context.Context, value uint64) error {
	if q.IsFenceComplete(value) {
		return nil
	}

	err := q.fence.Wait(ctx, value)
	if err != nil {
		return errors.Wrapf(err, "waiting for %s queue fence %d", q.queueType, value)
	}
	return nil
}

// WaitForQueue makes work submitted to q after this call wait, on the GPU, until other
// reaches value. The CPU does not block.
func (q *Queue) WaitForQueue(other *Queue, value uint64) error {
	q.submitMutex.Lock()
	defer q.submitMutex.Unlock()

	err := q.native.Wait(other.fence, value)
	if err != nil {
		return errors.Wrapf(err, "%s queue failed to wait on %s queue fence %d", q.queueType, other.queueType, value)
	}
	return nil
}

// Flush blocks until every submission made so far has completed
func (q *Queue) Flush(ctx context.Context) error {
	value, err := q.Signal()
	if err != nil {
		return err
	}

	return q.WaitForFence(ctx, value)
}

// Destroy releases every pooled command list, the fence and the queue. The caller must
// Flush first; lists still in flight are released regardless.
func (q *Queue) Destroy() {
	q.poolMutex.Lock()
	defer q.poolMutex.Unlock()

	pending := q.inFlight.Drain(func(list *List) {
		q.available = append(q.available, list)
	})
	if pending > 0 && !q.IsFenceComplete(q.lastSignal) {
		q.logger.Error("Queue::Destroy called with command lists in flight",
			slog.String("Queue", q.queueType.String()),
			slog.Uint64("CompletedFence", q.fence.CompletedValue()),
			slog.Uint64("LastSignaledFence", q.lastSignal),
		)
	}

	for _, list := range q.available {
		list.destroy()
	}
	q.available = nil
	q.listCount = 0

	q.fence.Release()
	q.native.Release()
}
