package metadata

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/memutils"
)

// BlockAllocationHandle names one region of a block, free or allocated
type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

// AllocationRequest is a placement found by BlockMetadata.CreateAllocationRequest. It is
// only good until the block is next modified.
type AllocationRequest struct {
	BlockAllocationHandle BlockAllocationHandle
	Size                  int
	Offset                int
}

// BlockMetadata tracks which byte ranges of a fixed-size block are in use.
type BlockMetadata interface {
	Init(size int)
	Size() int
	Validate() error

	AllocationCount() int
	FreeRegionsCount() int
	SumFreeSize() int
	IsEmpty() bool
	// MayHaveFreeBlock may report a false positive, never a false negative
	MayHaveFreeBlock(size int) bool

	// CreateAllocationRequest returns false with no error when the block has no room
	CreateAllocationRequest(size int, alignment int, strategy AllocationStrategy) (bool, AllocationRequest, error)
	Alloc(request AllocationRequest, userData any) error
	Free(handle BlockAllocationHandle) error
	AllocationOffset(handle BlockAllocationHandle) (int, error)

	// VisitAllRegions calls visit for every region of the block in offset order
	VisitAllRegions(visit func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	AddStatistics(stats *memutils.Statistics)
	BlockJsonData(json jwriter.ObjectState)
}

type BlockMetadataBase struct {
	size int
}

func (m *BlockMetadataBase) Init(size int) { m.size = size }
func (m *BlockMetadataBase) Size() int     { return m.size }

func (m *BlockMetadataBase) writeBlockJson(json jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
