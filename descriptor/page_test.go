package descriptor

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/gpu/soft"
	"github.com/vkngwrapper/armature/memutils"
	"github.com/vkngwrapper/armature/memutils/metadata"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestPage(t *testing.T, capacity int) (*soft.Device, *Page) {
	device := soft.NewDevice(testLogger(), soft.Options{})
	page, err := NewPage(testLogger(), device, gpu.HeapTypeCBVSRVUAV, capacity, true)
	require.NoError(t, err)
	return device, page
}

func allocate(t *testing.T, page *Page, count int) *Allocation {
	allocation := new(Allocation)
	*allocation = page.Allocate(count)
	require.True(t, allocation.IsValid())
	require.Equal(t, count, allocation.Count())
	require.NoError(t, page.Validate())
	return allocation
}

func TestPage_ReuseReleasedBlock(t *testing.T) {
	_, page := newTestPage(t, 256)

	first := allocate(t, page, 100)
	second := allocate(t, page, 100)
	require.Equal(t, 0, first.Offset())
	require.Equal(t, 100, second.Offset())

	first.Free(5)
	require.False(t, first.IsValid())
	require.Equal(t, 1, page.ReleaseFreedAllocations(5))
	require.NoError(t, page.Validate())

	third := allocate(t, page, 50)
	require.Equal(t, 0, third.Offset())
	require.Equal(t, 256-150, page.NumFreeElements())
}

func TestPage_DeferredReclamation(t *testing.T) {
	_, page := newTestPage(t, 10)

	all := allocate(t, page, 10)
	all.Free(7)

	require.Equal(t, 0, page.NumFreeElements())
	require.Equal(t, 1, page.PendingFrees())
	invalid1 := page.Allocate(1)
	require.False(t, invalid1.IsValid())

	require.Equal(t, 0, page.ReleaseFreedAllocations(6))
	invalid2 := page.Allocate(1)
	require.False(t, invalid2.IsValid())

	require.Equal(t, 1, page.ReleaseFreedAllocations(7))
	require.Equal(t, 0, page.PendingFrees())

	again := allocate(t, page, 10)
	require.Equal(t, 0, again.Offset())
}

func TestPage_OutOfOrderTagsWaitForPredecessor(t *testing.T) {
	_, page := newTestPage(t, 20)

	first := allocate(t, page, 10)
	second := allocate(t, page, 10)

	first.Free(9)
	second.Free(3)

	require.Equal(t, 0, page.ReleaseFreedAllocations(5))
	require.Equal(t, 2, page.ReleaseFreedAllocations(9))
	require.Equal(t, 20, page.NumFreeElements())
}

func TestPage_CoalesceAdjacentEitherOrder(t *testing.T) {
	for _, lowFirst := range []bool{true, false} {
		_, page := newTestPage(t, 30)

		low := allocate(t, page, 10)
		high := allocate(t, page, 10)
		rest := allocate(t, page, 10)

		if lowFirst {
			low.Free(1)
			high.Free(2)
		} else {
			high.Free(1)
			low.Free(2)
		}

		require.Equal(t, 2, page.ReleaseFreedAllocations(2))
		require.NoError(t, page.Validate())
		require.Equal(t, 1, page.byOffset.Len())

		merged := allocate(t, page, 20)
		require.Equal(t, 0, merged.Offset())
		require.Equal(t, 20, rest.Offset())
	}
}

func TestPage_CoalesceBothNeighbors(t *testing.T) {
	_, page := newTestPage(t, 30)

	low := allocate(t, page, 10)
	middle := allocate(t, page, 10)
	high := allocate(t, page, 10)

	low.Free(1)
	high.Free(1)
	page.ReleaseFreedAllocations(1)
	require.Equal(t, 2, page.byOffset.Len())

	middle.Free(2)
	page.ReleaseFreedAllocations(2)
	require.NoError(t, page.Validate())
	require.Equal(t, 1, page.byOffset.Len())
	require.Equal(t, 1, page.bySize.Len())

	all := allocate(t, page, 30)
	require.Equal(t, 0, all.Offset())
}

func TestPage_LiveRangesNeverOverlap(t *testing.T) {
	_, page := newTestPage(t, 128)
	rng := rand.New(rand.NewSource(42))

	var live []*Allocation
	fence := uint64(0)

	for step := 0; step < 2000; step++ {
		switch rng.Intn(3) {
		case 0, 1:
			allocation := new(Allocation)
			*allocation = page.Allocate(rng.Intn(16) + 1)
			if allocation.IsValid() {
				live = append(live, allocation)
			}
		case 2:
			if len(live) == 0 {
				continue
			}
			index := rng.Intn(len(live))
			fence++
			live[index].Free(fence)
			live = append(live[:index], live[index+1:]...)
		}

		if rng.Intn(4) == 0 && fence > 0 {
			page.ReleaseFreedAllocations(fence - uint64(rng.Intn(2)))
		}

		require.NoError(t, page.Validate())

		used := 0
		owner := make([]bool, page.TotalElements())
		for _, allocation := range live {
			used += allocation.Count()
			for i := allocation.Offset(); i < allocation.Offset()+allocation.Count(); i++ {
				require.False(t, owner[i], "descriptor %d allocated twice", i)
				owner[i] = true
			}
		}
		require.LessOrEqual(t, used, page.TotalElements())
		require.LessOrEqual(t, page.NumFreeElements(), page.TotalElements()-used)
	}
}

func TestPage_InvalidRequests(t *testing.T) {
	_, page := newTestPage(t, 8)

	invalid3 := page.Allocate(0)
	require.False(t, invalid3.IsValid())
	invalid4 := page.Allocate(-1)
	require.False(t, invalid4.IsValid())
	invalid5 := page.Allocate(9)
	require.False(t, invalid5.IsValid())

	var empty Allocation
	empty.Free(3)
	page.Free(&empty, 3)
	require.Equal(t, 0, page.PendingFrees())
	require.Equal(t, 8, page.NumFreeElements())
}

func TestPage_Strategies(t *testing.T) {
	setup := func(strategy metadata.AllocationStrategy) *Page {
		_, page := newTestPage(t, 256)
		page.SetAllocationStrategy(strategy)

		first := allocate(t, page, 100)
		allocate(t, page, 100)
		first.Free(1)
		page.ReleaseFreedAllocations(1)
		return page
	}

	page := setup(metadata.AllocationStrategyMinOffset)
	require.Equal(t, 0, allocate(t, page, 50).Offset())

	page = setup(metadata.AllocationStrategyMinMemory)
	require.Equal(t, 200, allocate(t, page, 50).Offset())

	page = setup(metadata.AllocationStrategyMinTime)
	require.Equal(t, 0, allocate(t, page, 10).Offset())
	require.Equal(t, 10, allocate(t, page, 50).Offset())
	require.Equal(t, 200, allocate(t, page, 50).Offset())
}

func TestAllocation_Handles(t *testing.T) {
	device, page := newTestPage(t, 16)
	increment := device.DescriptorIncrementSize(gpu.HeapTypeCBVSRVUAV)

	allocate(t, page, 3)
	allocation := allocate(t, page, 4)

	require.Equal(t, page.heap.CPUStart().Offset(3, increment), allocation.BaseHandle())
	require.Equal(t, allocation.BaseHandle().Offset(2, increment), allocation.Handle(2))
	require.Equal(t, gpu.HeapTypeCBVSRVUAV, allocation.HeapType())
	require.Panics(t, func() {
		allocation.Handle(4)
	})
}

func TestAllocation_MoveTo(t *testing.T) {
	_, page := newTestPage(t, 16)

	source := allocate(t, page, 4)
	base := source.BaseHandle()

	var dst Allocation
	source.MoveTo(&dst)
	require.Equal(t, 4, dst.Count())
	require.Equal(t, 0, dst.Offset())
	require.Equal(t, gpu.HeapTypeCBVSRVUAV, dst.HeapType())
	require.Zero(t, source.Count())
	require.False(t, source.IsValid())
	require.True(t, dst.IsValid())
	require.Equal(t, base, dst.BaseHandle())

	other := allocate(t, page, 2)
	require.Panics(t, func() {
		other.MoveTo(&dst)
	})

	source.Free(1)
	require.Equal(t, 0, page.PendingFrees())

	dst.Free(1)
	require.Equal(t, 1, page.PendingFrees())
}

func TestPage_Destroy(t *testing.T) {
	device, page := newTestPage(t, 16)
	require.Equal(t, 1, device.LiveHeaps())

	allocation := allocate(t, page, 4)
	require.Panics(t, func() {
		page.Destroy()
	})

	allocation.Free(1)
	page.ReleaseFreedAllocations(1)
	page.Destroy()
	require.Equal(t, 0, device.LiveHeaps())
}

func TestPage_StatisticsAndJson(t *testing.T) {
	_, page := newTestPage(t, 16)

	first := allocate(t, page, 4)
	allocate(t, page, 2)
	first.Free(1)

	var stats memutils.Statistics
	page.AddStatistics(&stats)
	require.Equal(t, memutils.Statistics{
		BlockCount:      1,
		AllocationCount: 1,
		BlockUnits:      16,
		AllocatedUnits:  6,
	}, stats)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	page.BlockJsonData(obj)
	obj.End()
	require.Equal(t, `{"TotalDescriptors":16,"FreeDescriptors":10,"Allocations":1,"PendingFrees":1,"FreeRanges":[{"Offset":6,"Size":10}]}`, string(writer.Bytes()))
}
