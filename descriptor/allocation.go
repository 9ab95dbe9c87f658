package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
)

// Allocation is a contiguous run of CPU-visible descriptors owned by a Page. The zero
// value is invalid. An Allocation must have exactly one owner: hand it to another owner
// with MoveTo rather than copying it, and return it to its page with Free. go vet's
// copylocks check reports copies.
type Allocation struct {
	noCopy    noCopy
	page      *Page
	cpuHandle gpu.CPUHandle
	offset    int
	count     int
	increment uint32
}

// IsValid returns false for the zero Allocation and for allocations that have been freed
// or moved
func (a *Allocation) IsValid() bool {
	return a.cpuHandle != 0
}

// BaseHandle returns the handle of the first descriptor in the allocation
func (a *Allocation) BaseHandle() gpu.CPUHandle {
	return a.cpuHandle
}

// Handle returns the handle of the descriptor at index within the allocation
func (a *Allocation) Handle(index int) gpu.CPUHandle {
	if index < 0 || index >= a.count {
		panic(errors.AssertionFailedf("descriptor index %d is outside an allocation of %d descriptors", index, a.count))
	}
	return a.cpuHandle.Offset(index, a.increment)
}

// Count returns the number of descriptors in the allocation
func (a *Allocation) Count() int {
	return a.count
}

// Offset returns the index of the first descriptor within its page
func (a *Allocation) Offset() int {
	return a.offset
}

// HeapType returns the type of descriptors in the allocation
func (a *Allocation) HeapType() gpu.HeapType {
	if a.page == nil {
		return gpu.HeapTypeCBVSRVUAV
	}
	return a.page.heapType
}

// Free returns the allocation to its page once fence has completed. The allocation is
// invalid afterward, and freeing an invalid allocation does nothing.
func (a *Allocation) Free(fence uint64) {
	if !a.IsValid() {
		return
	}

	a.page.Free(a, fence)
}

// MoveTo transfers ownership of the descriptors to dst and invalidates a. dst must not
// hold a live allocation.
func (a *Allocation) MoveTo(dst *Allocation) {
	if dst == a {
		return
	}
	if dst.IsValid() {
		panic(errors.AssertionFailedf("moving an allocation onto a live allocation of %d descriptors would leak them", dst.count))
	}

	dst.page, dst.cpuHandle = a.page, a.cpuHandle
	dst.offset, dst.count, dst.increment = a.offset, a.count, a.increment
	a.clear()
}

func (a *Allocation) clear() {
	a.page = nil
	a.cpuHandle = 0
	a.offset = 0
	a.count = 0
	a.increment = 0
}

// noCopy marks a struct that must not be copied after first use
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
