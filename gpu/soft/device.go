// Package soft is an in-memory gpu.Device. It records every call made against it so that
// tests can inspect descriptor contents, buffer writes, recorded commands and submissions
// without a graphics driver.
package soft

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/resource"
)

const (
	cpuAddressBase     = 0x10000
	gpuAddressBase     = 0x100000000
	bufferAddressBase  = 0x200000000
	heapAddressSpacing = 0x10000
)

var incrementSizes = [gpu.HeapTypeCount]uint32{
	gpu.HeapTypeCBVSRVUAV: 32,
	gpu.HeapTypeSampler:   16,
	gpu.HeapTypeRTV:       8,
	gpu.HeapTypeDSV:       8,
}

// Options controls the behavior of a soft Device
type Options struct {
	// ManualFences stops queues from completing fences as soon as they are signaled. Call
	// CommandQueue.CompletePending or Fence.Complete to advance them.
	ManualFences bool
}

// Descriptor is the content of a single descriptor slot
type Descriptor struct {
	Kind      gpu.ViewKind
	Resource  gpu.Resource
	Null      bool
	RangeType gpu.DescriptorRangeType
}

// Device implements gpu.Device in memory
type Device struct {
	logger  *slog.Logger
	options Options

	mutex         sync.Mutex
	nextCPU       gpu.CPUHandle
	nextGPU       gpu.GPUHandle
	nextBuffer    gpu.VirtualAddress
	descriptors   *swiss.Map[gpu.CPUHandle, Descriptor]
	heaps         []*DescriptorHeap
	uploads       []*UploadBuffer
	copyCalls     int
	injectedError error
}

var _ gpu.Device = &Device{}

func NewDevice(logger *slog.Logger, options Options) *Device {
	return &Device{
		logger:      logger,
		options:     options,
		nextCPU:     cpuAddressBase,
		nextGPU:     gpuAddressBase,
		nextBuffer:  bufferAddressBase,
		descriptors: swiss.NewMap[gpu.CPUHandle, Descriptor](256),
	}
}

// InjectCreateError causes the next Create call on this device to fail with err
func (d *Device) InjectCreateError(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.injectedError = err
}

func (d *Device) takeInjectedError() error {
	err := d.injectedError
	d.injectedError = nil
	return err
}

func (d *Device) CreateDescriptorHeap(desc gpu.DescriptorHeapDesc) (gpu.DescriptorHeap, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.takeInjectedError(); err != nil {
		return nil, err
	}
	if desc.NumDescriptors <= 0 {
		return nil, errors.Errorf("descriptor heap must hold at least one descriptor, requested %d", desc.NumDescriptors)
	}
	if desc.ShaderVisible && !desc.Type.ShaderVisible() {
		return nil, errors.Errorf("%s descriptor heaps cannot be shader visible", desc.Type)
	}

	span := gpu.CPUHandle(desc.NumDescriptors) * gpu.CPUHandle(incrementSizes[desc.Type])
	span = (span + heapAddressSpacing) &^ (heapAddressSpacing - 1)

	heap := &DescriptorHeap{
		device:   d,
		desc:     desc,
		cpuStart: d.nextCPU,
	}
	d.nextCPU += span

	if desc.ShaderVisible {
		heap.gpuStart = d.nextGPU
		d.nextGPU += gpu.GPUHandle(span)
	}

	d.heaps = append(d.heaps, heap)

	d.logger.Debug("Device::CreateDescriptorHeap",
		slog.String("Type", desc.Type.String()),
		slog.Int("NumDescriptors", desc.NumDescriptors),
		slog.Bool("ShaderVisible", desc.ShaderVisible),
	)

	return heap, nil
}

func (d *Device) releaseHeap(heap *DescriptorHeap) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for i, h := range d.heaps {
		if h == heap {
			d.heaps = append(d.heaps[:i], d.heaps[i+1:]...)
			break
		}
	}

	increment := incrementSizes[heap.desc.Type]
	for i := 0; i < heap.desc.NumDescriptors; i++ {
		d.descriptors.Delete(heap.cpuStart.Offset(i, increment))
	}
}

func (d *Device) DescriptorIncrementSize(heapType gpu.HeapType) uint32 {
	return incrementSizes[heapType]
}

func (d *Device) CopyDescriptorsSimple(count int, dst gpu.CPUHandle, src gpu.CPUHandle, heapType gpu.HeapType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.copyCalls++
	increment := incrementSizes[heapType]
	for i := 0; i < count; i++ {
		descriptor, ok := d.descriptors.Get(src.Offset(i, increment))
		if ok {
			d.descriptors.Put(dst.Offset(i, increment), descriptor)
		} else {
			d.descriptors.Delete(dst.Offset(i, increment))
		}
	}
}

func (d *Device) CreateView(dst gpu.CPUHandle, res gpu.Resource, kind gpu.ViewKind) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.descriptors.Put(dst, Descriptor{Kind: kind, Resource: res})
}

func (d *Device) CreateNullDescriptor(dst gpu.CPUHandle, rangeType gpu.DescriptorRangeType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.descriptors.Put(dst, Descriptor{Null: true, RangeType: rangeType})
}

// Descriptor returns the contents of the descriptor at handle
func (d *Device) Descriptor(handle gpu.CPUHandle) (Descriptor, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.descriptors.Get(handle)
}

// ShaderVisibleDescriptor returns the contents of the descriptor a shader would read at handle
func (d *Device) ShaderVisibleDescriptor(handle gpu.GPUHandle) (Descriptor, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for _, heap := range d.heaps {
		if !heap.desc.ShaderVisible || handle < heap.gpuStart {
			continue
		}

		offset := uint64(handle - heap.gpuStart)
		increment := uint64(incrementSizes[heap.desc.Type])
		if offset >= uint64(heap.desc.NumDescriptors)*increment {
			continue
		}

		return d.descriptors.Get(heap.cpuStart + gpu.CPUHandle(offset))
	}

	return Descriptor{}, false
}

// CopyCalls returns the number of CopyDescriptorsSimple calls made so far
func (d *Device) CopyCalls() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.copyCalls
}

// LiveHeaps returns the number of descriptor heaps that have not been released
func (d *Device) LiveHeaps() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.heaps)
}

func (d *Device) allocateAddress(size int) gpu.VirtualAddress {
	address := d.nextBuffer
	d.nextBuffer += gpu.VirtualAddress((size + heapAddressSpacing) &^ (heapAddressSpacing - 1))
	return address
}

func (d *Device) CreateUploadBuffer(size int) (gpu.UploadBuffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.takeInjectedError(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.Errorf("upload buffer size must be positive, requested %d", size)
	}

	d.logger.Debug("Device::CreateUploadBuffer", slog.Int("Size", size))

	buffer := &UploadBuffer{
		data:    make([]byte, size),
		address: d.allocateAddress(size),
	}
	d.uploads = append(d.uploads, buffer)
	return buffer, nil
}

// ReadMemory returns a copy of size bytes of upload memory at address, as a shader
// reading that address would see them
func (d *Device) ReadMemory(address gpu.VirtualAddress, size int) ([]byte, bool) {
	d.mutex.Lock()
	uploads := d.uploads
	d.mutex.Unlock()

	for _, buffer := range uploads {
		if address < buffer.address || buffer.Released() {
			continue
		}

		offset := int(address - buffer.address)
		if offset+size <= buffer.Size() {
			return buffer.Bytes(offset, size), true
		}
	}

	return nil, false
}

func (d *Device) CreateResource(desc resource.Desc, initial resource.States) (gpu.Resource, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.takeInjectedError(); err != nil {
		return nil, err
	}
	if desc.Width <= 0 {
		return nil, errors.Errorf("resource %q must have a positive width", desc.Name)
	}

	size := desc.Width * max(desc.Height, 1) * max(desc.DepthOrArraySize, 1)

	d.logger.Debug("Device::CreateResource",
		slog.String("Name", desc.Name),
		slog.String("Dimension", desc.Dimension.String()),
		slog.String("InitialState", initial.String()),
	)

	return &Resource{
		desc:         desc,
		initialState: initial,
		address:      d.allocateAddress(size),
	}, nil
}

func (d *Device) CreateCommandList(queueType gpu.QueueType) (gpu.CommandList, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.takeInjectedError(); err != nil {
		return nil, err
	}

	return &CommandList{queueType: queueType}, nil
}

func (d *Device) CreateCommandQueue(queueType gpu.QueueType) (gpu.CommandQueue, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.takeInjectedError(); err != nil {
		return nil, err
	}

	return &CommandQueue{
		logger:    d.logger,
		queueType: queueType,
		manual:    d.options.ManualFences,
	}, nil
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.takeInjectedError(); err != nil {
		return nil, err
	}

	return &Fence{completed: initial}, nil
}
