package command

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armature/descriptor"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/gpu/mocks"
	"github.com/vkngwrapper/armature/gpu/soft"
	"github.com/vkngwrapper/armature/resource"
	"github.com/vkngwrapper/armature/state"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var testListOptions = ListOptions{ViewDescriptors: 64, SamplerDescriptors: 16}

type fixture struct {
	device   *soft.Device
	registry resource.Registry[string]
	global   *state.GlobalTracker
}

func newFixture(options soft.Options) *fixture {
	return &fixture{
		device: soft.NewDevice(testLogger(), options),
		global: state.NewGlobalTracker(testLogger()),
	}
}

func (f *fixture) register(name string, initial resource.States, subresources int) resource.Handle {
	handle := f.registry.Register(name)
	f.global.Register(handle, initial, subresources)
	return handle
}

func (f *fixture) queue(t *testing.T, queueType gpu.QueueType) (*Queue, *soft.CommandQueue) {
	queue, err := NewQueue(testLogger(), f.device, queueType, f.global, testListOptions)
	require.NoError(t, err)
	t.Cleanup(queue.Destroy)

	return queue, queue.Native().(*soft.CommandQueue)
}

func transition(handle resource.Handle, before, after resource.States) resource.Barrier {
	return resource.TransitionBarrier{Resource: handle, Subresource: resource.AllSubresources, Before: before, After: after}
}

func TestQueue_ExecuteInsertsBarrierList(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, native := f.queue(t, gpu.QueueTypeDirect)
	texture := f.register("texture", resource.StateCommon, 1)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	list.TransitionResource(texture, resource.StateRenderTarget, resource.AllSubresources)
	require.Zero(t, list.PendingBarriers())
	require.NoError(t, list.Close())

	fence, err := queue.Execute(list)
	require.NoError(t, err)
	require.Equal(t, uint64(1), fence)
	require.Equal(t, uint64(1), list.Fence())

	submissions := native.Submissions()
	require.Len(t, submissions, 1)
	require.Len(t, submissions[0], 2)
	require.Same(t, list.Native(), submissions[0][1])

	barrierList := submissions[0][0].(*soft.CommandList)
	require.True(t, barrierList.Closed())
	require.Equal(t, []resource.Barrier{
		transition(texture, resource.StateCommon, resource.StateRenderTarget),
	}, barrierList.Barriers())
	require.Equal(t, resource.StateRenderTarget, f.global.State(texture, 0))
}

func TestQueue_ExecuteWithoutPendingChangesSubmitsListOnly(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, native := f.queue(t, gpu.QueueTypeDirect)
	texture := f.register("texture", resource.StateCopyDest, 1)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	list.TransitionResource(texture, resource.StateCopyDest, resource.AllSubresources)
	require.NoError(t, list.Close())

	_, err = queue.Execute(list)
	require.NoError(t, err)

	submissions := native.Submissions()
	require.Len(t, submissions, 1)
	require.Equal(t, []gpu.CommandList{list.Native()}, submissions[0])
}

func TestQueue_ExecuteResolvesInSubmissionOrder(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, native := f.queue(t, gpu.QueueTypeDirect)
	buffer := f.register("buffer", resource.StateCommon, 1)

	first, err := queue.GetCommandList()
	require.NoError(t, err)
	first.TransitionResource(buffer, resource.StateUnorderedAccess, resource.AllSubresources)
	require.NoError(t, first.Close())

	second, err := queue.GetCommandList()
	require.NoError(t, err)
	second.TransitionResource(buffer, resource.StateUnorderedAccess, resource.AllSubresources)
	require.NoError(t, second.Close())

	_, err = queue.Execute(first, second)
	require.NoError(t, err)

	submissions := native.Submissions()
	require.Len(t, submissions, 1)
	require.Len(t, submissions[0], 3)
	require.Equal(t, []resource.Barrier{
		transition(buffer, resource.StateCommon, resource.StateUnorderedAccess),
	}, submissions[0][0].(*soft.CommandList).Barriers())
	require.Same(t, first.Native(), submissions[0][1])
	require.Same(t, second.Native(), submissions[0][2])
}

func TestQueue_ExecuteWithoutBarrierListsLeavesStatesUntouched(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, native := f.queue(t, gpu.QueueTypeDirect)
	texture := f.register("texture", resource.StateCommon, 1)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	list.TransitionResource(texture, resource.StateRenderTarget, resource.AllSubresources)
	require.NoError(t, list.Close())

	f.device.InjectCreateError(errors.New("out of memory"))
	_, err = queue.Execute(list)
	require.ErrorContains(t, err, "out of memory")

	require.Empty(t, native.Submissions())
	require.Zero(t, queue.LastSignaledFence())
	require.Equal(t, resource.StateCommon, f.global.State(texture, 0))

	// The list was never submitted, so it can still be executed
	_, err = queue.Execute(list)
	require.NoError(t, err)

	submissions := native.Submissions()
	require.Len(t, submissions, 1)
	require.Equal(t, []resource.Barrier{
		transition(texture, resource.StateCommon, resource.StateRenderTarget),
	}, submissions[0][0].(*soft.CommandList).Barriers())
	require.Equal(t, resource.StateRenderTarget, f.global.State(texture, 0))
}

func TestQueue_ExecuteRejectsInvalidLists(t *testing.T) {
	f := newFixture(soft.Options{})
	direct, native := f.queue(t, gpu.QueueTypeDirect)
	copyQueue, _ := f.queue(t, gpu.QueueTypeCopy)

	open, err := direct.GetCommandList()
	require.NoError(t, err)
	_, err = direct.Execute(open)
	require.Error(t, err)

	copyList, err := copyQueue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, copyList.Close())
	_, err = direct.Execute(copyList)
	require.Error(t, err)

	require.Empty(t, native.Submissions())
	require.Zero(t, direct.LastSignaledFence())
}

func TestQueue_ListsRecycledAfterFence(t *testing.T) {
	f := newFixture(soft.Options{ManualFences: true})
	queue, native := f.queue(t, gpu.QueueTypeDirect)

	first, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, first.Close())
	fence, err := queue.Execute(first)
	require.NoError(t, err)
	require.False(t, queue.IsFenceComplete(fence))

	second, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NotSame(t, first, second)

	native.CompletePending()
	require.True(t, queue.IsFenceComplete(fence))

	third, err := queue.GetCommandList()
	require.NoError(t, err)
	require.Same(t, first, third)
	require.False(t, third.Closed())
	require.Empty(t, third.Native().(*soft.CommandList).Commands())
}

func TestQueue_WaitForFence(t *testing.T) {
	f := newFixture(soft.Options{ManualFences: true})
	queue, native := f.queue(t, gpu.QueueTypeDirect)

	fence, err := queue.Signal()
	require.NoError(t, err)
	require.Equal(t, uint64(1), fence)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = queue.WaitForFence(ctx, fence)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	native.CompletePending()
	require.NoError(t, queue.WaitForFence(context.Background(), fence))
	require.Equal(t, uint64(1), queue.CompletedFence())
}

func TestQueue_WaitForQueueIsGPUSide(t *testing.T) {
	f := newFixture(soft.Options{ManualFences: true})
	direct, directNative := f.queue(t, gpu.QueueTypeDirect)
	copyQueue, _ := f.queue(t, gpu.QueueTypeCopy)

	value, err := copyQueue.Signal()
	require.NoError(t, err)
	require.NoError(t, direct.WaitForQueue(copyQueue, value))

	require.Equal(t, []soft.FenceWait{{Fence: copyQueue.Fence(), Value: value}}, directNative.Waits())
	require.False(t, copyQueue.IsFenceComplete(value))
}

func TestQueue_Flush(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, _ := f.queue(t, gpu.QueueTypeCompute)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, list.Close())
	_, err = queue.Execute(list)
	require.NoError(t, err)

	require.NoError(t, queue.Flush(context.Background()))
	require.Equal(t, uint64(2), queue.LastSignaledFence())
	require.Equal(t, uint64(2), queue.CompletedFence())
}

func TestQueue_ExecuteFailureDoesNotSignal(t *testing.T) {
	ctrl := gomock.NewController(t)
	native := mocks.NewMockCommandQueue(ctrl)
	fence := mocks.NewMockFence(ctrl)

	native.EXPECT().Type().Return(gpu.QueueTypeDirect).AnyTimes()
	fence.EXPECT().CompletedValue().Return(uint64(0)).AnyTimes()
	native.EXPECT().ExecuteCommandLists(gomock.Any()).Return(errors.New("device removed"))

	device := soft.NewDevice(testLogger(), soft.Options{})
	queue := newQueue(testLogger(), device, native, fence, state.NewGlobalTracker(testLogger()), testListOptions)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, list.Close())

	_, err = queue.Execute(list)
	require.ErrorContains(t, err, "device removed")
	require.Zero(t, queue.LastSignaledFence())
}

func TestQueue_WaitForFenceSkipsCompletedValues(t *testing.T) {
	ctrl := gomock.NewController(t)
	native := mocks.NewMockCommandQueue(ctrl)
	fence := mocks.NewMockFence(ctrl)

	native.EXPECT().Type().Return(gpu.QueueTypeDirect).AnyTimes()
	gomock.InOrder(
		fence.EXPECT().CompletedValue().Return(uint64(2)),
		fence.EXPECT().Wait(gomock.Any(), uint64(5)).Return(nil),
		fence.EXPECT().CompletedValue().Return(uint64(5)),
	)

	queue := newQueue(testLogger(), nil, native, fence, state.NewGlobalTracker(testLogger()), testListOptions)
	require.NoError(t, queue.WaitForFence(context.Background(), 5))
	require.NoError(t, queue.WaitForFence(context.Background(), 3))
}

func TestList_BarriersBatchedUntilDraw(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, _ := f.queue(t, gpu.QueueTypeDirect)
	target := f.register("target", resource.StateCommon, 1)
	staging := f.register("staging", resource.StateCommon, 1)

	list, err := queue.GetCommandList()
	require.NoError(t, err)

	rs := &descriptor.RootSignature{Parameters: []descriptor.RootParameter{{Kind: descriptor.RootParameterCBV}}}
	require.NoError(t, list.SetGraphicsRootSignature(rs))
	list.SetInlineCBV(0, 0x1000)

	list.TransitionResource(target, resource.StateRenderTarget, resource.AllSubresources)
	list.TransitionResource(target, resource.StatePixelShaderResource, resource.AllSubresources)
	list.TransitionResource(staging, resource.StateCopyDest, resource.AllSubresources)
	list.TransitionResource(staging, resource.StateCopySource, resource.AllSubresources)
	list.UAVBarrier(resource.Handle{})
	require.Equal(t, 3, list.PendingBarriers())

	list.Draw(3, 1)
	require.Zero(t, list.PendingBarriers())

	require.Equal(t, []soft.Command{
		soft.SetDescriptorHeapsCommand{Heaps: []gpu.DescriptorHeap{list.ViewHeap().Heap(), list.SamplerHeap().Heap()}},
		soft.BarrierCommand{Barriers: []resource.Barrier{
			transition(target, resource.StateRenderTarget, resource.StatePixelShaderResource),
			transition(staging, resource.StateCopyDest, resource.StateCopySource),
			resource.UAVBarrier{},
		}},
		soft.SetRootViewCommand{BindPoint: gpu.BindPointGraphics, Kind: gpu.RootViewCBV, RootIndex: 0, Address: 0x1000},
		soft.DrawCommand{VertexCount: 3, InstanceCount: 1},
	}, list.Native().(*soft.CommandList).Commands())
}

func TestList_FlushBarriersRecordsOneCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	native := mocks.NewMockCommandList(ctrl)
	native.EXPECT().Type().Return(gpu.QueueTypeCopy)

	f := newFixture(soft.Options{})
	first := f.register("first", resource.StateCommon, 1)
	second := f.register("second", resource.StateCommon, 1)

	list, err := newList(testLogger(), nil, native, f.global, ListOptions{})
	require.NoError(t, err)

	list.AliasingBarrier(first, second)
	list.TransitionResource(first, resource.StateCopyDest, resource.AllSubresources)
	list.TransitionResource(first, resource.StateCopySource, resource.AllSubresources)

	native.EXPECT().ResourceBarrier([]resource.Barrier{
		resource.AliasingBarrier{Before: first, After: second},
		transition(first, resource.StateCopyDest, resource.StateCopySource),
	}).Times(1)

	list.FlushBarriers()
	list.FlushBarriers()
}

func TestList_CopyQueue(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, _ := f.queue(t, gpu.QueueTypeCopy)
	handle := f.register("buffer", resource.StateCommon, 1)

	dst, err := f.device.CreateResource(resource.Desc{Name: "buffer", Dimension: resource.DimensionBuffer, Width: 256, Height: 1, DepthOrArraySize: 1, MipLevels: 1}, resource.StateCommon)
	require.NoError(t, err)
	src, err := f.device.CreateUploadBuffer(256)
	require.NoError(t, err)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	require.Nil(t, list.ViewHeap())

	list.TransitionResource(handle, resource.StateCopyDest, resource.AllSubresources)
	list.CopyBufferRegion(dst, 0, src, 0, 256)

	require.Equal(t, []soft.Command{
		soft.CopyBufferRegionCommand{Dst: dst, DstOffset: 0, Src: src, SrcOffset: 0, Size: 256},
	}, list.Native().(*soft.CommandList).Commands())

	rs := &descriptor.RootSignature{}
	require.Panics(t, func() { _ = list.SetComputeRootSignature(rs) })
	require.Panics(t, func() { list.Dispatch(1, 1, 1) })
	require.Panics(t, func() { list.Draw(3, 1) })
}

func TestList_FatalMisuse(t *testing.T) {
	f := newFixture(soft.Options{})
	queue, _ := f.queue(t, gpu.QueueTypeDirect)

	list, err := queue.GetCommandList()
	require.NoError(t, err)

	require.Panics(t, func() { list.Draw(3, 1) })
	require.Panics(t, func() { list.SetInlineCBV(0, 0x1000) })

	rs := &descriptor.RootSignature{Parameters: []descriptor.RootParameter{{Kind: descriptor.RootParameterConstants, NumConstants: 1}}}
	require.NoError(t, list.SetGraphicsRootSignature(rs))
	require.Panics(t, func() { list.Dispatch(1, 1, 1) })

	invalid := &descriptor.RootSignature{Parameters: []descriptor.RootParameter{{Kind: descriptor.RootParameterTable}}}
	require.Error(t, list.SetComputeRootSignature(invalid))

	require.NoError(t, list.Close())
	require.Panics(t, func() { list.TransitionResource(resource.Handle{}, resource.StateCommon, resource.AllSubresources) })
	require.Panics(t, func() { _ = list.Close() })
}

func TestList_NullDescriptorsFillTables(t *testing.T) {
	f := newFixture(soft.Options{})

	views, err := descriptor.NewCPUHeapManager(testLogger(), f.device, gpu.HeapTypeCBVSRVUAV, 16, false)
	require.NoError(t, err)
	samplers, err := descriptor.NewCPUHeapManager(testLogger(), f.device, gpu.HeapTypeSampler, 16, false)
	require.NoError(t, err)
	nulls, err := descriptor.NewNullDescriptors(f.device, views, samplers)
	require.NoError(t, err)

	options := testListOptions
	options.NullDescriptors = nulls
	queue, err := NewQueue(testLogger(), f.device, gpu.QueueTypeCompute, f.global, options)
	require.NoError(t, err)
	t.Cleanup(queue.Destroy)

	list, err := queue.GetCommandList()
	require.NoError(t, err)

	rs := &descriptor.RootSignature{Parameters: []descriptor.RootParameter{
		{Kind: descriptor.RootParameterTable, Ranges: []descriptor.DescriptorRange{{Type: gpu.RangeTypeUAV, Count: 2}}},
	}}
	require.NoError(t, list.SetComputeRootSignature(rs))
	list.Dispatch(8, 8, 1)

	require.Equal(t, 2, list.ViewHeap().Used())
	heapStart := list.ViewHeap().Heap().GPUStart()
	increment := f.device.DescriptorIncrementSize(gpu.HeapTypeCBVSRVUAV)
	for i := 0; i < 2; i++ {
		entry, ok := f.device.ShaderVisibleDescriptor(heapStart.Offset(i, increment))
		require.True(t, ok)
		require.True(t, entry.Null)
		require.Equal(t, gpu.RangeTypeUAV, entry.RangeType)
	}
}
