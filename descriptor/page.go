package descriptor

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/internal/utils"
	"github.com/vkngwrapper/armature/memutils"
	"github.com/vkngwrapper/armature/memutils/deferred"
	"github.com/vkngwrapper/armature/memutils/metadata"
)

const btreeDegree = 8

type freeBlock struct {
	offset int
	size   int
}

func lessByOffset(a, b freeBlock) bool {
	return a.offset < b.offset
}

func lessBySize(a, b freeBlock) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.offset < b.offset
}

// Page is a fixed-capacity CPU-visible descriptor heap. Free ranges are indexed both by
// offset, to find neighbors when coalescing and to pack allocations low, and by
// (size, offset), to find the smallest or largest range that fits a request. Frees are
// deferred until the fence they were tagged with has been passed to
// ReleaseFreedAllocations.
type Page struct {
	logger    *slog.Logger
	heap      gpu.DescriptorHeap
	heapType  gpu.HeapType
	baseCPU   gpu.CPUHandle
	increment uint32
	capacity  int
	strategy  metadata.AllocationStrategy

	mutex           utils.OptionalMutex
	numFree         int
	liveAllocations int
	byOffset        *btree.BTreeG[freeBlock]
	bySize          *btree.BTreeG[freeBlock]
	pending         deferred.Queue[freeBlock]
}

var _ memutils.Validatable = &Page{}

// NewPage creates a descriptor heap of capacity descriptors and wraps it in a Page
func NewPage(logger *slog.Logger, device gpu.Device, heapType gpu.HeapType, capacity int, useMutex bool) (*Page, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("descriptor page capacity must be positive, got %d", capacity)
	}

	heap, err := device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Type:           heapType,
		NumDescriptors: capacity,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s descriptor heap of %d descriptors", heapType, capacity)
	}

	page := &Page{
		logger:    logger,
		heap:      heap,
		heapType:  heapType,
		baseCPU:   heap.CPUStart(),
		increment: device.DescriptorIncrementSize(heapType),
		capacity:  capacity,
		strategy:  metadata.AllocationStrategyMinOffset,
		mutex:     utils.OptionalMutex{UseMutex: useMutex},
		byOffset:  btree.NewG[freeBlock](btreeDegree, lessByOffset),
		bySize:    btree.NewG[freeBlock](btreeDegree, lessBySize),
	}
	page.addBlock(freeBlock{offset: 0, size: capacity})
	page.numFree = capacity

	return page, nil
}

func (p *Page) addBlock(block freeBlock) {
	p.byOffset.ReplaceOrInsert(block)
	p.bySize.ReplaceOrInsert(block)
}

func (p *Page) removeBlock(block freeBlock) {
	_, removedOffset := p.byOffset.Delete(block)
	_, removedSize := p.bySize.Delete(block)
	if !removedOffset || !removedSize {
		panic(errors.AssertionFailedf("free block at offset %d of size %d was missing from a free index", block.offset, block.size))
	}
}

// HeapType returns the type of descriptors held by this page
func (p *Page) HeapType() gpu.HeapType {
	return p.heapType
}

// TotalElements returns the capacity of the page in descriptors
func (p *Page) TotalElements() int {
	return p.capacity
}

// NumFreeElements returns the number of descriptors available for allocation. Descriptors
// whose free is still pending are not included.
func (p *Page) NumFreeElements() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.numFree
}

// HasSpace reports whether a contiguous run of count descriptors is free
func (p *Page) HasSpace(count int) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, ok := p.findFit(count)
	return ok
}

// SetAllocationStrategy controls which free range later allocations are carved from.
// MinOffset, the default, takes the lowest range that fits. MinMemory takes the smallest
// range that fits, preferring the lowest offset among equal sizes. MinTime takes the
// largest range.
func (p *Page) SetAllocationStrategy(strategy metadata.AllocationStrategy) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.strategy = strategy
}

func (p *Page) findFit(count int) (freeBlock, bool) {
	largest, ok := p.bySize.Max()
	if !ok || largest.size < count {
		return freeBlock{}, false
	}

	switch p.strategy {
	case metadata.AllocationStrategyMinTime:
		return largest, true
	case metadata.AllocationStrategyMinMemory:
		var found freeBlock
		p.bySize.AscendGreaterOrEqual(freeBlock{offset: -1, size: count}, func(item freeBlock) bool {
			found = item
			return false
		})
		return found, true
	}

	var found freeBlock
	p.byOffset.Ascend(func(item freeBlock) bool {
		if item.size < count {
			return true
		}
		found = item
		return false
	})
	return found, true
}

// Allocate carves count descriptors out of a free range chosen by the page's allocation
// strategy. It returns an invalid Allocation if count is out of range or no free range is
// large enough.
func (p *Page) Allocate(count int) Allocation {
	offset, ok := p.reserve(count)
	if !ok {
		return Allocation{}
	}
	return p.allocationAt(offset, count)
}

func (p *Page) reserve(count int) (int, bool) {
	if count <= 0 || count > p.capacity {
		return 0, false
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	block, ok := p.findFit(count)
	if !ok {
		return 0, false
	}

	p.removeBlock(block)
	if block.size > count {
		p.addBlock(freeBlock{offset: block.offset + count, size: block.size - count})
	}

	p.numFree -= count
	p.liveAllocations++

	memutils.DebugValidate(p)

	return block.offset, true
}

func (p *Page) allocationAt(offset, count int) Allocation {
	return Allocation{
		page:      p,
		cpuHandle: p.baseCPU.Offset(offset, p.increment),
		offset:    offset,
		count:     count,
		increment: p.increment,
	}
}

// Free queues allocation to be returned to the free list once fence has completed, and
// invalidates it
func (p *Page) Free(allocation *Allocation, fence uint64) {
	if !allocation.IsValid() {
		return
	}
	if allocation.page != p {
		panic(errors.AssertionFailedf("allocation at offset %d was freed to a page that does not own it", allocation.offset))
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.pending.Push(fence, freeBlock{offset: allocation.offset, size: allocation.count})
	p.liveAllocations--
	allocation.clear()
}

// ReleaseFreedAllocations returns every pending free tagged with a fence at or below
// fence to the free list, and returns the number of ranges released
func (p *Page) ReleaseFreedAllocations(fence uint64) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	released := p.pending.Release(fence, p.freeRange)
	memutils.DebugValidate(p)
	return released
}

// PendingFrees returns the number of ranges waiting on a fence
func (p *Page) PendingFrees() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pending.Len()
}

func (p *Page) freeRange(block freeBlock) {
	p.numFree += block.size

	// Merge with the predecessor first
	var prev freeBlock
	var hasPrev bool
	p.byOffset.DescendLessOrEqual(freeBlock{offset: block.offset}, func(item freeBlock) bool {
		prev = item
		hasPrev = true
		return false
	})

	if hasPrev {
		prevEnd := prev.offset + prev.size
		if prevEnd > block.offset {
			panic(errors.AssertionFailedf("freed range [%d, %d) overlaps free range [%d, %d)", block.offset, block.offset+block.size, prev.offset, prevEnd))
		}

		if prevEnd == block.offset {
			p.removeBlock(prev)
			block.offset = prev.offset
			block.size += prev.size
		}
	}

	// Then check the successor against the merged block
	var next freeBlock
	var hasNext bool
	p.byOffset.AscendGreaterOrEqual(freeBlock{offset: block.offset}, func(item freeBlock) bool {
		next = item
		hasNext = true
		return false
	})

	if hasNext {
		end := block.offset + block.size
		if next.offset < end {
			panic(errors.AssertionFailedf("freed range [%d, %d) overlaps free range [%d, %d)", block.offset, end, next.offset, next.offset+next.size))
		}

		if next.offset == end {
			p.removeBlock(next)
			block.size += next.size
		}
	}

	p.addBlock(block)
}

// Validate checks that the two free indexes agree and that the free ranges are disjoint,
// coalesced and account for every free descriptor
func (p *Page) Validate() error {
	if p.byOffset.Len() != p.bySize.Len() {
		return errors.Errorf("offset index holds %d ranges but size index holds %d", p.byOffset.Len(), p.bySize.Len())
	}

	var err error
	sum := 0
	prevEnd := -1
	p.byOffset.Ascend(func(item freeBlock) bool {
		if _, ok := p.bySize.Get(item); !ok {
			err = errors.Errorf("free range at offset %d of size %d is missing from the size index", item.offset, item.size)
			return false
		}
		if item.size <= 0 {
			err = errors.Errorf("free range at offset %d has non-positive size %d", item.offset, item.size)
			return false
		}
		if item.offset < prevEnd {
			err = errors.Errorf("free range at offset %d overlaps the previous range", item.offset)
			return false
		}
		if item.offset == prevEnd {
			err = errors.Errorf("free range at offset %d was not coalesced with the previous range", item.offset)
			return false
		}
		if item.offset+item.size > p.capacity {
			err = errors.Errorf("free range at offset %d of size %d exceeds the page capacity of %d", item.offset, item.size, p.capacity)
			return false
		}

		prevEnd = item.offset + item.size
		sum += item.size
		return true
	})
	if err != nil {
		return err
	}

	if sum != p.numFree {
		return errors.Errorf("free ranges add up to %d descriptors but the page counts %d free", sum, p.numFree)
	}

	return nil
}

// Destroy releases the descriptor heap. Every descriptor must have been freed and released.
func (p *Page) Destroy() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.numFree != p.capacity {
		panic(errors.AssertionFailedf("destroying a descriptor page with %d of %d descriptors outstanding", p.capacity-p.numFree, p.capacity))
	}

	p.heap.Release()
	p.heap = nil
}

func (p *Page) drain() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.pending.Drain(p.freeRange)
}

// AddStatistics sums this page's usage into stats. Descriptors awaiting release count as
// allocated.
func (p *Page) AddStatistics(stats *memutils.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats.BlockCount++
	stats.BlockUnits += p.capacity
	stats.AllocationCount += p.liveAllocations
	stats.AllocatedUnits += p.capacity - p.numFree
}

// BlockJsonData populates a json object with information about this page
func (p *Page) BlockJsonData(json jwriter.ObjectState) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	json.Name("TotalDescriptors").Int(p.capacity)
	json.Name("FreeDescriptors").Int(p.numFree)
	json.Name("Allocations").Int(p.liveAllocations)
	json.Name("PendingFrees").Int(p.pending.Len())

	ranges := json.Name("FreeRanges").Array()
	p.byOffset.Ascend(func(item freeBlock) bool {
		obj := ranges.Object()
		obj.Name("Offset").Int(item.offset)
		obj.Name("Size").Int(item.size)
		obj.End()
		return true
	})
	ranges.End()
}
