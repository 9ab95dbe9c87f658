package command

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/descriptor"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/resource"
	"github.com/vkngwrapper/armature/state"
)

// ListOptions sizes the shader-visible descriptor stacks owned by each command list
type ListOptions struct {
	ViewDescriptors    int
	SamplerDescriptors int
	// NullDescriptors, when set, prefill every table slot bound by a new root signature
	NullDescriptors *descriptor.NullDescriptors
}

// List records commands for a single queue. Resource transitions are resolved against
// the list's own LocalTracker and batched until the next command that reads or writes
// resources; the first state of each resource is left pending for Queue.Execute to
// reconcile with the device timeline.
//
// A List is not safe for concurrent use. Once executed it belongs to the Queue again
// and must not be touched until handed out by GetCommandList.
type List struct {
	logger    *slog.Logger
	queueType gpu.QueueType
	native    gpu.CommandList
	tracker   *state.LocalTracker
	nulls     *descriptor.NullDescriptors

	viewHeap    *descriptor.GPUHeap
	samplerHeap *descriptor.GPUHeap
	heapsBound  bool

	pendingBarriers []resource.Barrier
	graphicsRS      *descriptor.RootSignature
	computeRS       *descriptor.RootSignature
	bindPoint       gpu.BindPoint
	bound           bool

	closed bool
	fence  uint64
}

func newList(logger *slog.Logger, device gpu.Device, native gpu.CommandList, counter state.SubresourceCounter, options ListOptions) (*List, error) {
	list := &List{
		logger:    logger,
		queueType: native.Type(),
		native:    native,
		tracker:   state.NewLocalTracker(counter),
		nulls:     options.NullDescriptors,
	}

	if list.queueType == gpu.QueueTypeCopy {
		return list, nil
	}

	var err error
	list.viewHeap, err = descriptor.NewGPUHeap(logger, device, gpu.HeapTypeCBVSRVUAV, options.ViewDescriptors)
	if err != nil {
		return nil, err
	}

	list.samplerHeap, err = descriptor.NewGPUHeap(logger, device, gpu.HeapTypeSampler, options.SamplerDescriptors)
	if err != nil {
		list.viewHeap.Destroy()
		return nil, err
	}

	return list, nil
}

func (l *List) Type() gpu.QueueType              { return l.queueType }
func (l *List) Native() gpu.CommandList          { return l.native }
func (l *List) Tracker() *state.LocalTracker     { return l.tracker }
func (l *List) Closed() bool                     { return l.closed }
func (l *List) PendingBarriers() int             { return len(l.pendingBarriers) }
func (l *List) ViewHeap() *descriptor.GPUHeap    { return l.viewHeap }
func (l *List) SamplerHeap() *descriptor.GPUHeap { return l.samplerHeap }

// Fence returns the queue fence value of the list's most recent submission
func (l *List) Fence() uint64 {
	return l.fence
}

// reset prepares the list for recording. The GPU must be done with its last submission.
func (l *List) reset() error {
	err := l.native.Reset()
	if err != nil {
		return errors.Wrapf(err, "failed to reset %s command list", l.queueType)
	}

	l.tracker.Reset()
	l.pendingBarriers = l.pendingBarriers[:0]
	l.graphicsRS = nil
	l.computeRS = nil
	l.bound = false
	l.heapsBound = false
	l.closed = false

	if l.viewHeap != nil {
		l.viewHeap.Reset()
		l.samplerHeap.Reset()
	}

	return nil
}

func (l *List) assertRecording(operation string) {
	if l.closed {
		panic(errors.AssertionFailedf("%s on a closed %s command list", operation, l.queueType))
	}
}

func (l *List) assertDescriptors(operation string) {
	if l.viewHeap == nil {
		panic(errors.AssertionFailedf("%s is not supported by %s command lists", operation, l.queueType))
	}
}

// TransitionResource moves subresource of handle to state. Barriers are batched until
// FlushBarriers or the next draw, dispatch or copy.
func (l *List) TransitionResource(handle resource.Handle, state resource.States, subresource resource.Subresource) {
	l.assertRecording("TransitionResource")
	l.pendingBarriers = append(l.pendingBarriers, l.tracker.TransitionResource(handle, state, subresource)...)
}

// UAVBarrier orders unordered access to handle. An invalid handle orders all unordered
// access.
func (l *List) UAVBarrier(handle resource.Handle) {
	l.assertRecording("UAVBarrier")
	l.pendingBarriers = append(l.pendingBarriers, resource.UAVBarrier{Resource: handle})
}

func (l *List) AliasingBarrier(before, after resource.Handle) {
	l.assertRecording("AliasingBarrier")
	l.pendingBarriers = append(l.pendingBarriers, resource.AliasingBarrier{Before: before, After: after})
}

// FlushBarriers records every batched barrier in a single ResourceBarrier call
func (l *List) FlushBarriers() {
	if len(l.pendingBarriers) == 0 {
		return
	}

	l.native.ResourceBarrier(l.pendingBarriers)
	l.pendingBarriers = l.pendingBarriers[:0]
}

func (l *List) bindHeaps() {
	if l.heapsBound {
		return
	}

	l.native.SetDescriptorHeaps(l.viewHeap.Heap(), l.samplerHeap.Heap())
	l.heapsBound = true
}

func (l *List) setRootSignature(bind gpu.BindPoint, rs *descriptor.RootSignature) error {
	l.assertRecording("SetRootSignature")
	l.assertDescriptors("SetRootSignature")

	err := rs.Validate()
	if err != nil {
		return err
	}

	l.bindHeaps()
	l.viewHeap.ParseRootSignature(rs)
	l.samplerHeap.ParseRootSignature(rs)
	if l.nulls != nil {
		l.viewHeap.SetNullDescriptors(l.nulls)
		l.samplerHeap.SetNullDescriptors(l.nulls)
	}

	l.bindPoint = bind
	l.bound = true
	return nil
}

func (l *List) SetGraphicsRootSignature(rs *descriptor.RootSignature) error {
	err := l.setRootSignature(gpu.BindPointGraphics, rs)
	if err != nil {
		return err
	}

	l.graphicsRS = rs
	return nil
}

func (l *List) SetComputeRootSignature(rs *descriptor.RootSignature) error {
	err := l.setRootSignature(gpu.BindPointCompute, rs)
	if err != nil {
		return err
	}

	l.computeRS = rs
	return nil
}

func (l *List) currentRootSignature(operation string) *descriptor.RootSignature {
	if !l.bound {
		panic(errors.AssertionFailedf("%s before a root signature was set", operation))
	}

	if l.bindPoint == gpu.BindPointGraphics {
		return l.graphicsRS
	}
	return l.computeRS
}

// SetDescriptorTable binds count descriptors of src, starting at offset, to the table
// at rootIndex of the current root signature
func (l *List) SetDescriptorTable(rootIndex int, src *descriptor.Allocation, offset, count int) {
	l.assertRecording("SetDescriptorTable")
	rs := l.currentRootSignature("SetDescriptorTable")

	if rs.TableHeapType(rootIndex) == gpu.HeapTypeSampler {
		l.samplerHeap.SetDescriptorTable(rootIndex, src, offset, count)
		return
	}
	l.viewHeap.SetDescriptorTable(rootIndex, src, offset, count)
}

func (l *List) SetInlineCBV(rootIndex int, address gpu.VirtualAddress) {
	l.assertRecording("SetInlineCBV")
	l.currentRootSignature("SetInlineCBV")
	l.viewHeap.SetInlineCBV(rootIndex, address)
}

func (l *List) SetInlineSRV(rootIndex int, address gpu.VirtualAddress) {
	l.assertRecording("SetInlineSRV")
	l.currentRootSignature("SetInlineSRV")
	l.viewHeap.SetInlineSRV(rootIndex, address)
}

func (l *List) SetInlineUAV(rootIndex int, address gpu.VirtualAddress) {
	l.assertRecording("SetInlineUAV")
	l.currentRootSignature("SetInlineUAV")
	l.viewHeap.SetInlineUAV(rootIndex, address)
}

func (l *List) commitDescriptors(operation string, bind gpu.BindPoint) {
	l.currentRootSignature(operation)
	if l.bindPoint != bind {
		panic(errors.AssertionFailedf("%s requires a %s root signature, but the last one set was %s", operation, bind, l.bindPoint))
	}

	l.viewHeap.Commit(l.native, bind)
	l.samplerHeap.Commit(l.native, bind)
}

func (l *List) Draw(vertexCount, instanceCount int) {
	l.assertRecording("Draw")
	if l.queueType != gpu.QueueTypeDirect {
		panic(errors.AssertionFailedf("Draw is not supported by %s command lists", l.queueType))
	}

	l.FlushBarriers()
	l.commitDescriptors("Draw", gpu.BindPointGraphics)
	l.native.Draw(vertexCount, instanceCount)
}

func (l *List) Dispatch(x, y, z int) {
	l.assertRecording("Dispatch")
	l.assertDescriptors("Dispatch")

	l.FlushBarriers()
	l.commitDescriptors("Dispatch", gpu.BindPointCompute)
	l.native.Dispatch(x, y, z)
}

// CopyBufferRegion copies size bytes of src into dst. The destination must already have
// been transitioned to a copy state.
func (l *List) CopyBufferRegion(dst gpu.Resource, dstOffset int, src gpu.UploadBuffer, srcOffset int, size int) {
	l.assertRecording("CopyBufferRegion")

	l.FlushBarriers()
	l.native.CopyBufferRegion(dst, dstOffset, src, srcOffset, size)
}

// Close flushes outstanding barriers and ends recording
func (l *List) Close() error {
	l.assertRecording("Close")

	l.FlushBarriers()
	err := l.native.Close()
	if err != nil {
		return errors.Wrapf(err, "failed to close %s command list", l.queueType)
	}

	l.closed = true
	return nil
}

func (l *List) destroy() {
	if l.viewHeap != nil {
		l.viewHeap.Destroy()
		l.samplerHeap.Destroy()
	}
	l.native.Release()
}
