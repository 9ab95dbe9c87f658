package descriptor

import (
	"log/slog"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
)

// GPUHeap stages the descriptor tables and inline views bound through a command list.
// Tables are gathered into a CPU-side handle cache and copied onto a linear
// shader-visible heap when Commit is called. The stack is reset with the command list;
// GPUHeap is owned by a single command list and is not safe for concurrent use.
type GPUHeap struct {
	logger    *slog.Logger
	device    gpu.Device
	heapType  gpu.HeapType
	heap      gpu.DescriptorHeap
	increment uint32
	capacity  int
	top       int

	rootSignature *RootSignature
	allTables     uint64
	tableMask     uint64
	tableOffsets  [MaxRootParameters]int
	tableSizes    [MaxRootParameters]int
	handleCache   []gpu.CPUHandle
	dirtyTables   uint64

	inlineKinds     [MaxRootParameters]gpu.RootViewKind
	inlineAddresses [MaxRootParameters]gpu.VirtualAddress
	inlineMasks     [gpu.RootViewKindCount]uint64
	unsetInline     uint64
	dirtyInline     uint64
}

// NewGPUHeap creates a shader-visible heap of capacity descriptors
func NewGPUHeap(logger *slog.Logger, device gpu.Device, heapType gpu.HeapType, capacity int) (*GPUHeap, error) {
	if !heapType.ShaderVisible() {
		return nil, errors.Errorf("%s descriptor heaps cannot be shader visible", heapType)
	}

	heap, err := device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Type:           heapType,
		NumDescriptors: capacity,
		ShaderVisible:  true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create shader-visible %s heap of %d descriptors", heapType, capacity)
	}

	return &GPUHeap{
		logger:    logger,
		device:    device,
		heapType:  heapType,
		heap:      heap,
		increment: device.DescriptorIncrementSize(heapType),
		capacity:  capacity,
	}, nil
}

func (h *GPUHeap) Heap() gpu.DescriptorHeap { return h.heap }
func (h *GPUHeap) HeapType() gpu.HeapType   { return h.heapType }
func (h *GPUHeap) Capacity() int            { return h.capacity }

// Used returns the number of descriptors committed since the last Reset
func (h *GPUHeap) Used() int {
	return h.top
}

// Reset rewinds the descriptor stack and forgets the bound root signature. It must only be
// called once the GPU has finished with every table committed since the previous Reset.
func (h *GPUHeap) Reset() {
	h.top = 0
	h.rootSignature = nil
	h.allTables = 0
	h.tableMask = 0
	h.handleCache = h.handleCache[:0]
	h.dirtyTables = 0
	h.unsetInline = 0
	h.dirtyInline = 0
	for kind := range h.inlineMasks {
		h.inlineMasks[kind] = 0
	}
}

// ParseRootSignature lays out the handle cache for the tables of rs that live in this
// heap, and marks every declared inline view as unset
func (h *GPUHeap) ParseRootSignature(rs *RootSignature) {
	h.rootSignature = rs
	h.allTables = rs.TableMask()
	h.tableMask = rs.TableMaskForHeap(h.heapType)

	total := 0
	for index := range rs.Parameters {
		h.tableOffsets[index] = total
		h.tableSizes[index] = 0
		if h.tableMask&(1<<uint(index)) != 0 {
			h.tableSizes[index] = rs.TableSize(index)
			total += h.tableSizes[index]
		}
	}

	if cap(h.handleCache) < total {
		h.handleCache = make([]gpu.CPUHandle, total)
	} else {
		h.handleCache = h.handleCache[:total]
		for i := range h.handleCache {
			h.handleCache[i] = 0
		}
	}

	h.dirtyTables = 0
	h.dirtyInline = 0
	h.unsetInline = 0

	// Samplers are never bound inline
	if h.heapType != gpu.HeapTypeCBVSRVUAV {
		for kind := range h.inlineMasks {
			h.inlineMasks[kind] = 0
		}
		return
	}

	for kind := gpu.RootViewKind(0); kind < gpu.RootViewKindCount; kind++ {
		mask := rs.InlineMask(kind)
		h.inlineMasks[kind] = mask
		h.unsetInline |= mask

		for remaining := mask; remaining != 0; remaining &= remaining - 1 {
			h.inlineKinds[bits.TrailingZeros64(remaining)] = kind
		}
	}
}

// RootSignature returns the signature most recently parsed, or nil
func (h *GPUHeap) RootSignature() *RootSignature {
	return h.rootSignature
}

// SetDescriptorTable stages count descriptors from src, starting with its first
// descriptor, at offset within the table bound to rootIndex
func (h *GPUHeap) SetDescriptorTable(rootIndex int, src *Allocation, offset int, count int) {
	if rootIndex < 0 || rootIndex >= MaxRootParameters || h.tableMask&(1<<uint(rootIndex)) == 0 {
		panic(errors.AssertionFailedf("root parameter %d is not a %s descriptor table", rootIndex, h.heapType))
	}
	if offset < 0 || count < 0 || offset+count > h.tableSizes[rootIndex] {
		panic(errors.AssertionFailedf("descriptors [%d, %d) are outside root table %d of %d descriptors", offset, offset+count, rootIndex, h.tableSizes[rootIndex]))
	}
	if count > src.Count() {
		panic(errors.AssertionFailedf("cannot bind %d descriptors from an allocation of %d", count, src.Count()))
	}

	base := h.tableOffsets[rootIndex] + offset
	for i := 0; i < count; i++ {
		h.handleCache[base+i] = src.Handle(i)
	}
	h.dirtyTables |= 1 << uint(rootIndex)
}

func (h *GPUHeap) setInline(kind gpu.RootViewKind, rootIndex int, address gpu.VirtualAddress) {
	if h.rootSignature == nil {
		panic(errors.AssertionFailedf("inline root parameter %d was set before a root signature was parsed", rootIndex))
	}
	if rootIndex < 0 || rootIndex >= len(h.rootSignature.Parameters) {
		panic(errors.AssertionFailedf("root parameter %d is out of range for a root signature of %d parameters", rootIndex, len(h.rootSignature.Parameters)))
	}

	bit := uint64(1) << uint(rootIndex)
	h.inlineKinds[rootIndex] = kind
	h.inlineAddresses[rootIndex] = address
	h.inlineMasks[kind] |= bit
	h.unsetInline &^= bit
	h.dirtyInline |= bit
}

func (h *GPUHeap) SetInlineCBV(rootIndex int, address gpu.VirtualAddress) {
	h.setInline(gpu.RootViewCBV, rootIndex, address)
}

func (h *GPUHeap) SetInlineSRV(rootIndex int, address gpu.VirtualAddress) {
	h.setInline(gpu.RootViewSRV, rootIndex, address)
}

func (h *GPUHeap) SetInlineUAV(rootIndex int, address gpu.VirtualAddress) {
	h.setInline(gpu.RootViewUAV, rootIndex, address)
}

// SetNullDescriptors fills every slot of every table in this heap with the null
// descriptor matching the slot's range type
func (h *GPUHeap) SetNullDescriptors(nulls *NullDescriptors) {
	if h.rootSignature == nil {
		return
	}

	for remaining := h.tableMask; remaining != 0; remaining &= remaining - 1 {
		rootIndex := bits.TrailingZeros64(remaining)
		slot := h.tableOffsets[rootIndex]

		for _, r := range h.rootSignature.Parameters[rootIndex].Ranges {
			handle := nulls.Handle(r.Type)
			for i := 0; i < r.Count; i++ {
				h.handleCache[slot] = handle
				slot++
			}
		}

		h.dirtyTables |= 1 << uint(rootIndex)
	}
}

func (h *GPUHeap) validateMasks() {
	for kind := gpu.RootViewKind(0); kind < gpu.RootViewKindCount; kind++ {
		mask := h.inlineMasks[kind]
		if mask&h.allTables != 0 {
			panic(errors.AssertionFailedf("inline %s views are bound to descriptor table parameters (mask %#x)", kind, mask&h.allTables))
		}

		for other := kind + 1; other < gpu.RootViewKindCount; other++ {
			if overlap := mask & h.inlineMasks[other]; overlap != 0 {
				panic(errors.AssertionFailedf("root parameters %#x are bound both as inline %s and inline %s views", overlap, kind, other))
			}
		}
	}

	if h.unsetInline != 0 {
		panic(errors.AssertionFailedf("inline root parameters %#x were never set", h.unsetInline))
	}
}

// Commit copies every dirty table onto the shader-visible stack and binds it, then binds
// every dirty inline view. Running out of stack space is fatal.
func (h *GPUHeap) Commit(cl gpu.CommandList, bind gpu.BindPoint) {
	h.validateMasks()

	for remaining := h.dirtyTables; remaining != 0; remaining &= remaining - 1 {
		rootIndex := bits.TrailingZeros64(remaining)
		size := h.tableSizes[rootIndex]
		if h.top+size > h.capacity {
			panic(errors.AssertionFailedf("shader-visible %s heap of %d descriptors is exhausted committing table %d of %d descriptors", h.heapType, h.capacity, rootIndex, size))
		}

		start := h.tableOffsets[rootIndex]
		h.copyTable(h.handleCache[start:start+size], h.heap.CPUStart().Offset(h.top, h.increment))

		cl.SetRootDescriptorTable(bind, rootIndex, h.heap.GPUStart().Offset(h.top, h.increment))
		h.top += size
	}
	h.dirtyTables = 0

	for remaining := h.dirtyInline; remaining != 0; remaining &= remaining - 1 {
		rootIndex := bits.TrailingZeros64(remaining)
		cl.SetRootView(bind, h.inlineKinds[rootIndex], rootIndex, h.inlineAddresses[rootIndex])
	}
	h.dirtyInline = 0
}

// copyTable copies handles onto dst, merging runs of handles that are adjacent in their
// source heap into a single copy. Unset slots are skipped.
func (h *GPUHeap) copyTable(handles []gpu.CPUHandle, dst gpu.CPUHandle) {
	runStart := 0
	for runStart < len(handles) {
		if handles[runStart] == 0 {
			runStart++
			continue
		}

		runEnd := runStart + 1
		for runEnd < len(handles) && handles[runEnd] == handles[runEnd-1].Offset(1, h.increment) {
			runEnd++
		}

		h.device.CopyDescriptorsSimple(runEnd-runStart, dst.Offset(runStart, h.increment), handles[runStart], h.heapType)
		runStart = runEnd
	}
}

// Destroy releases the shader-visible heap
func (h *GPUHeap) Destroy() {
	h.logger.Debug("GPUHeap::Destroy", slog.String("HeapType", h.heapType.String()))

	h.heap.Release()
	h.heap = nil
}
