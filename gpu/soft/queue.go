package soft

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
)

type pendingSignal struct {
	fence *Fence
	value uint64
}

// FenceWait is a GPU-side wait recorded by CommandQueue.Wait
type FenceWait struct {
	Fence gpu.Fence
	Value uint64
}

// CommandQueue implements gpu.CommandQueue. Work "executes" instantly: unless the device
// was created with ManualFences, a signal completes its fence immediately.
type CommandQueue struct {
	logger    *slog.Logger
	queueType gpu.QueueType
	manual    bool

	mutex       sync.Mutex
	submissions [][]gpu.CommandList
	pending     []pendingSignal
	waits       []FenceWait
}

var _ gpu.CommandQueue = &CommandQueue{}

func (q *CommandQueue) Type() gpu.QueueType { return q.queueType }

func (q *CommandQueue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, list := range lists {
		softList, ok := list.(*CommandList)
		if !ok {
			return errors.Newf("command list of type %T cannot be executed by the soft backend", list)
		}
		if !softList.closed {
			return errors.New("command lists must be closed before execution")
		}
		if softList.queueType != q.queueType {
			return errors.Errorf("%s command list cannot be executed on a %s queue", softList.queueType, q.queueType)
		}
	}

	q.submissions = append(q.submissions, append([]gpu.CommandList(nil), lists...))
	q.logger.Debug("CommandQueue::ExecuteCommandLists",
		slog.String("Queue", q.queueType.String()),
		slog.Int("ListCount", len(lists)),
	)
	return nil
}

func (q *CommandQueue) Signal(fence gpu.Fence, value uint64) error {
	softFence, ok := fence.(*Fence)
	if !ok {
		return errors.Newf("fence of type %T cannot be signaled by the soft backend", fence)
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.manual {
		q.pending = append(q.pending, pendingSignal{fence: softFence, value: value})
		return nil
	}

	softFence.Complete(value)
	return nil
}

func (q *CommandQueue) Wait(fence gpu.Fence, value uint64) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.waits = append(q.waits, FenceWait{Fence: fence, Value: value})
	return nil
}

// CompletePending completes every signal queued while fences are manual, in order
func (q *CommandQueue) CompletePending() {
	q.mutex.Lock()
	pending := q.pending
	q.pending = nil
	q.mutex.Unlock()

	for _, signal := range pending {
		signal.fence.Complete(signal.value)
	}
}

// Submissions returns the list batches passed to ExecuteCommandLists, in order
func (q *CommandQueue) Submissions() [][]gpu.CommandList {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return append([][]gpu.CommandList(nil), q.submissions...)
}

// Waits returns every GPU-side wait recorded on this queue
func (q *CommandQueue) Waits() []FenceWait {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return append([]FenceWait(nil), q.waits...)
}

func (q *CommandQueue) Release() {}
