package gpu

import (
	"context"

	"github.com/vkngwrapper/armature/resource"
)

//go:generate mockgen -destination mocks/gpu_mocks.go -package mocks github.com/vkngwrapper/armature/gpu CommandList,CommandQueue,Fence,UploadBuffer

// DescriptorHeap is a contiguous array of descriptors
type DescriptorHeap interface {
	Desc() DescriptorHeapDesc
	CPUStart() CPUHandle
	// GPUStart returns the address of the first descriptor for shader access. It is zero
	// for heaps that are not shader visible.
	GPUStart() GPUHandle
	Release()
}

// UploadBuffer is CPU-writable, GPU-readable buffer memory that stays mapped for its
// whole lifetime
type UploadBuffer interface {
	Size() int
	GPUAddress() VirtualAddress
	// Write copies data into the mapped memory at offset. Only the bytes in
	// [offset, offset+len(data)) are touched.
	Write(offset int, data []byte) error
	Release()
}

// Resource is a GPU resource such as a texture or default-heap buffer
type Resource interface {
	Desc() resource.Desc
	GPUAddress() VirtualAddress
	Release()
}

// Fence is a monotonically increasing counter advanced by the GPU
type Fence interface {
	CompletedValue() uint64
	// Wait blocks until the fence reaches value or ctx is done
	Wait(ctx context.Context, value uint64) error
	Release()
}

// CommandList records GPU commands for later submission to a CommandQueue
type CommandList interface {
	Type() QueueType
	Reset() error
	Close() error

	ResourceBarrier(barriers []resource.Barrier)
	SetDescriptorHeaps(heaps ...DescriptorHeap)
	SetRootDescriptorTable(bind BindPoint, rootIndex int, base GPUHandle)
	SetRootView(bind BindPoint, kind RootViewKind, rootIndex int, address VirtualAddress)

	Draw(vertexCount, instanceCount int)
	Dispatch(x, y, z int)
	CopyBufferRegion(dst Resource, dstOffset int, src UploadBuffer, srcOffset int, size int)

	Release()
}

// CommandQueue executes closed command lists in submission order
type CommandQueue interface {
	Type() QueueType
	ExecuteCommandLists(lists ...CommandList) error
	// Signal sets fence to value once all previously submitted work completes
	Signal(fence Fence, value uint64) error
	// Wait makes later submissions wait on the GPU until fence reaches value
	Wait(fence Fence, value uint64) error
	Release()
}

// Device creates every other backend object. Implementations must be safe for
// concurrent use.
type Device interface {
	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)
	DescriptorIncrementSize(heapType HeapType) uint32
	CopyDescriptorsSimple(count int, dst CPUHandle, src CPUHandle, heapType HeapType)
	CreateView(dst CPUHandle, res Resource, kind ViewKind)
	CreateNullDescriptor(dst CPUHandle, rangeType DescriptorRangeType)

	CreateUploadBuffer(size int) (UploadBuffer, error)
	CreateResource(desc resource.Desc, initial resource.States) (Resource, error)

	CreateCommandList(queueType QueueType) (CommandList, error)
	CreateCommandQueue(queueType QueueType) (CommandQueue, error)
	CreateFence(initial uint64) (Fence, error)
}
