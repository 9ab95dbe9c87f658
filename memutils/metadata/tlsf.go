package metadata

import (
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/memutils"
)

// Free regions are bucketed in two levels: a size class (the position of the most
// significant bit) and a linear subdivision of that class. Regions of up to smallSize
// bytes share class 0 and are split into smallLists buckets of smallStep bytes.
const (
	smallSize   = 256
	smallStep   = 64
	smallLists  = smallSize / smallStep
	subdivBits  = 5
	subdivCount = 1 << subdivBits
	classShift  = 7
	maxClasses  = 64 - classShift
)

func bucket(size int) (class, sub int) {
	if size <= smallSize {
		return 0, (size - 1) / smallStep
	}

	msb := bits.Len(uint(size)) - 1
	return msb - classShift, (size >> (msb - subdivBits)) & (subdivCount - 1)
}

func listIndex(class, sub int) int {
	if class == 0 {
		return sub
	}
	return smallLists + (class-1)*subdivCount + sub
}

type region struct {
	offset int
	size   int
	free   bool

	prev *region
	next *region

	prevFree *region
	nextFree *region

	handle   BlockAllocationHandle
	userData any
}

// TLSFBlockMetadata is a two-level segregated fit suballocator. Free regions are kept in
// size-bucketed lists with bitmaps over the buckets, so a fitting bucket is found with
// a couple of bit scans, and a region is merged with its free neighbours as soon as it
// is released. The unallocated end of the block is held apart from the lists as the
// tail region, which is always the last region of the block.
type TLSFBlockMetadata struct {
	BlockMetadataBase

	allocCount int
	freeCount  int
	freeSize   int

	classMap uint64
	subMaps  [maxClasses]uint32
	lists    []*region

	regions    *swiss.Map[BlockAllocationHandle, *region]
	nextHandle BlockAllocationHandle
	head       *region
	tail       *region
}

var _ BlockMetadata = &TLSFBlockMetadata{}

func NewTLSFBlockMetadata() *TLSFBlockMetadata {
	return &TLSFBlockMetadata{}
}

func (m *TLSFBlockMetadata) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.regions = swiss.NewMap[BlockAllocationHandle, *region](32)

	m.tail = m.newRegion(0, size)
	m.tail.free = true
	m.head = m.tail

	m.lists = make([]*region, listIndex(bucket(max(size, 1)))+1)
}

func (m *TLSFBlockMetadata) newRegion(offset, size int) *region {
	m.nextHandle++
	r := &region{offset: offset, size: size, handle: m.nextHandle}
	m.regions.Put(r.handle, r)
	return r
}

func (m *TLSFBlockMetadata) lookup(handle BlockAllocationHandle) (*region, error) {
	r, ok := m.regions.Get(handle)
	if !ok {
		return nil, errors.Newf("handle %d does not belong to this block", handle)
	}
	return r, nil
}

func (m *TLSFBlockMetadata) link(r *region) {
	class, sub := bucket(r.size)
	index := listIndex(class, sub)

	r.free = true
	r.prevFree = nil
	r.nextFree = m.lists[index]
	if r.nextFree != nil {
		r.nextFree.prevFree = r
	}
	m.lists[index] = r

	m.subMaps[class] |= 1 << uint(sub)
	m.classMap |= 1 << uint(class)
	m.freeCount++
	m.freeSize += r.size
}

func (m *TLSFBlockMetadata) unlink(r *region) {
	if r == m.tail || !r.free {
		panic(errors.AssertionFailedf("region at offset %d is not in a free list", r.offset))
	}

	class, sub := bucket(r.size)
	index := listIndex(class, sub)

	if r.prevFree != nil {
		r.prevFree.nextFree = r.nextFree
	} else {
		if m.lists[index] != r {
			panic(errors.AssertionFailedf("region at offset %d is missing from free list %d", r.offset, index))
		}
		m.lists[index] = r.nextFree
	}
	if r.nextFree != nil {
		r.nextFree.prevFree = r.prevFree
	}

	if m.lists[index] == nil {
		m.subMaps[class] &^= 1 << uint(sub)
		if m.subMaps[class] == 0 {
			m.classMap &^= 1 << uint(class)
		}
	}

	r.free = false
	r.prevFree = nil
	r.nextFree = nil
	m.freeCount--
	m.freeSize -= r.size
}

// absorb merges src into dst, which must directly follow it
func (m *TLSFBlockMetadata) absorb(dst, src *region) {
	if dst.prev != src {
		panic(errors.AssertionFailedf("region at offset %d does not precede region at offset %d", src.offset, dst.offset))
	}

	dst.offset = src.offset
	dst.size += src.size
	dst.prev = src.prev
	if dst.prev != nil {
		dst.prev.next = dst
	} else {
		m.head = dst
	}

	m.regions.Delete(src.handle)
}

func (m *TLSFBlockMetadata) insertBefore(r, at *region) {
	r.prev = at.prev
	r.next = at
	if at.prev != nil {
		at.prev.next = r
	} else {
		m.head = r
	}
	at.prev = r
}

func (m *TLSFBlockMetadata) insertAfter(r, at *region) {
	r.prev = at
	r.next = at.next
	if at.next != nil {
		at.next.prev = r
	}
	at.next = r
}

// nextBucket returns the first non-empty bucket at or above class and sub
func (m *TLSFBlockMetadata) nextBucket(class, sub int) (int, int, bool) {
	if class < maxClasses && sub < subdivCount {
		subMap := m.subMaps[class] & (^uint32(0) << uint(sub))
		if subMap != 0 {
			return class, bits.TrailingZeros32(subMap), true
		}
	}

	if class+1 >= maxClasses {
		return 0, 0, false
	}
	classMap := m.classMap & (^uint64(0) << uint(class+1))
	if classMap == 0 {
		return 0, 0, false
	}

	class = bits.TrailingZeros64(classMap)
	return class, bits.TrailingZeros32(m.subMaps[class]), true
}

func fits(r *region, size, alignment int, request *AllocationRequest) bool {
	offset := memutils.AlignUp(r.offset, alignment)
	if offset+size > r.offset+r.size {
		return false
	}

	request.BlockAllocationHandle = r.handle
	request.Size = size
	request.Offset = offset
	return true
}

func (m *TLSFBlockMetadata) AllocationCount() int { return m.allocCount }
func (m *TLSFBlockMetadata) SumFreeSize() int     { return m.freeSize + m.tail.size }
func (m *TLSFBlockMetadata) IsEmpty() bool        { return m.allocCount == 0 }

func (m *TLSFBlockMetadata) FreeRegionsCount() int {
	if m.tail.size > 0 {
		return m.freeCount + 1
	}
	return m.freeCount
}

func (m *TLSFBlockMetadata) MayHaveFreeBlock(size int) bool {
	if m.tail.size >= size {
		return true
	}
	if m.freeSize < size {
		return false
	}

	_, _, ok := m.nextBucket(bucket(size))
	return ok
}

// CreateAllocationRequest finds room for size bytes aligned to alignment.
// AllocationStrategyMinOffset takes the lowest fitting offset and
// AllocationStrategyMinTime tries the tail region before searching the free lists.
// Anything else takes the fitting free region from the smallest bucket, falling back
// to the tail.
func (m *TLSFBlockMetadata) CreateAllocationRequest(size int, alignment int, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	var request AllocationRequest

	if size < 1 {
		return false, request, errors.Errorf("invalid allocation size %d", size)
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return false, request, err
	}

	memutils.DebugValidate(m)

	if size > m.SumFreeSize() {
		return false, request, nil
	}

	if strategy == AllocationStrategyMinOffset {
		for r := m.head; r != nil; r = r.next {
			if r.free && fits(r, size, alignment, &request) {
				return true, request, nil
			}
		}
		return false, request, nil
	}

	if strategy == AllocationStrategyMinTime && fits(m.tail, size, alignment, &request) {
		return true, request, nil
	}

	class, sub, ok := m.nextBucket(bucket(size))
	for ok {
		for r := m.lists[listIndex(class, sub)]; r != nil; r = r.nextFree {
			if fits(r, size, alignment, &request) {
				return true, request, nil
			}
		}
		class, sub, ok = m.nextBucket(class, sub+1)
	}

	return fits(m.tail, size, alignment, &request), request, nil
}

// Alloc carves request out of the free region it names. Alignment padding in front of
// the allocation stays free.
func (m *TLSFBlockMetadata) Alloc(request AllocationRequest, userData any) error {
	r, err := m.lookup(request.BlockAllocationHandle)
	if err != nil {
		return err
	}
	if !r.free {
		return errors.New("allocation request refers to a region that is no longer free")
	}
	if request.Offset < r.offset || request.Offset+request.Size > r.offset+r.size {
		return errors.Newf("allocation request for %d bytes at offset %d does not fit its region", request.Size, request.Offset)
	}

	isTail := r == m.tail
	if isTail {
		r.free = false
	} else {
		m.unlink(r)
	}

	if padding := request.Offset - r.offset; padding > 0 {
		if r.prev != nil && r.prev.free {
			prev := r.prev
			m.unlink(prev)
			prev.size += padding
			m.link(prev)
		} else {
			gap := m.newRegion(r.offset, padding)
			m.insertBefore(gap, r)
			m.link(gap)
		}

		r.offset += padding
		r.size -= padding
	}

	if remainder := r.size - request.Size; remainder > 0 || isTail {
		rest := m.newRegion(r.offset+request.Size, remainder)
		m.insertAfter(rest, r)
		r.size = request.Size

		if isTail {
			rest.free = true
			m.tail = rest
		} else {
			m.link(rest)
		}
	}

	r.userData = userData
	m.allocCount++
	return nil
}

func (m *TLSFBlockMetadata) Free(handle BlockAllocationHandle) error {
	r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if r.free {
		return errors.Newf("region at offset %d is already free", r.offset)
	}

	m.allocCount--
	r.userData = nil

	if prev := r.prev; prev != nil && prev.free {
		m.unlink(prev)
		m.absorb(r, prev)
	}

	next := r.next
	switch {
	case next == m.tail:
		m.absorb(m.tail, r)
	case next.free:
		m.unlink(next)
		m.absorb(next, r)
		m.link(next)
	default:
		m.link(r)
	}

	return nil
}

func (m *TLSFBlockMetadata) AllocationOffset(handle BlockAllocationHandle) (int, error) {
	r, err := m.lookup(handle)
	if err != nil {
		return 0, err
	}
	return r.offset, nil
}

func (m *TLSFBlockMetadata) VisitAllRegions(visit func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for r := m.head; r != nil; r = r.next {
		if r == m.tail && r.size == 0 {
			continue
		}

		err := visit(r.handle, r.offset, r.size, r.userData, r.free)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *TLSFBlockMetadata) Validate() error {
	offset := 0
	var allocCount, freeCount, freeSize int
	for r := m.head; r != nil; r = r.next {
		if r.offset != offset {
			return errors.Errorf("region at offset %d should start at %d", r.offset, offset)
		}
		if r.next != nil && r.next.prev != r {
			return errors.Errorf("region at offset %d has a broken back link", r.next.offset)
		}
		if r.next == nil && r != m.tail {
			return errors.New("the tail region is not the last region")
		}
		offset += r.size

		switch {
		case r == m.tail:
			if !r.free {
				return errors.New("the tail region is not free")
			}
		case r.free:
			if r.next.free && r.next != m.tail {
				return errors.Errorf("free regions at offsets %d and %d were not merged", r.offset, r.next.offset)
			}
			freeCount++
			freeSize += r.size
		default:
			allocCount++
		}
	}

	if offset != m.size {
		return errors.Errorf("regions cover %d bytes of a %d byte block", offset, m.size)
	}
	if allocCount != m.allocCount || freeCount != m.freeCount || freeSize != m.freeSize {
		return errors.Errorf("counted %d allocations and %d free regions of %d bytes, but metadata has %d, %d and %d", allocCount, freeCount, freeSize, m.allocCount, m.freeCount, m.freeSize)
	}

	listed := 0
	for index, head := range m.lists {
		for r := head; r != nil; r = r.nextFree {
			if !r.free || r == m.tail {
				return errors.Errorf("region at offset %d is in a free list but not free", r.offset)
			}
			if listIndex(bucket(r.size)) != index {
				return errors.Errorf("region of %d bytes is in free list %d", r.size, index)
			}
			if r.nextFree != nil && r.nextFree.prevFree != r {
				return errors.Errorf("free list %d has a broken back link at offset %d", index, r.nextFree.offset)
			}
			listed++
		}
	}
	if listed != m.freeCount {
		return errors.Errorf("free lists hold %d regions, but %d are free", listed, m.freeCount)
	}

	return nil
}

func (m *TLSFBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockUnits += m.size

	for r := m.head; r != nil; r = r.next {
		switch {
		case r == m.tail:
			if r.size > 0 {
				stats.AddUnusedRange(r.size)
			}
		case r.free:
			stats.AddUnusedRange(r.size)
		default:
			stats.AddAllocation(r.size)
		}
	}
}

func (m *TLSFBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockUnits += m.size
	stats.AllocatedUnits += m.size - m.SumFreeSize()
}

func (m *TLSFBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.writeBlockJson(json, m.SumFreeSize(), m.allocCount, m.FreeRegionsCount())
}
