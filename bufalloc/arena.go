package bufalloc

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/memutils"
)

// frameArena is the bump allocator backing SingleFrame data for one frame slot. Its
// offset only moves forward until the slot is reused.
type frameArena struct {
	slot        int
	capacity    int
	buffer      gpu.UploadBuffer
	offset      int
	allocations int
}

func (a *frameArena) create(logger *slog.Logger, strategy Strategy) error {
	logger.Debug("frameArena::create",
		slog.String("Strategy", strategy.Name()),
		slog.Int("Slot", a.slot),
		slog.Int("Capacity", a.capacity),
	)

	buffer, err := strategy.CreateBlock(a.capacity)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s frame arena of %d bytes", strategy.Name(), a.capacity)
	}

	a.buffer = buffer
	return nil
}

func (a *frameArena) allocate(size int, alignment int) int {
	offset := memutils.AlignUp(a.offset, alignment)
	if offset+size > a.capacity {
		panic(errors.AssertionFailedf("single-frame allocation of %d bytes at offset %d overflows the %d byte arena for frame slot %d", size, offset, a.capacity, a.slot))
	}

	a.offset = offset + size
	a.allocations++
	return offset
}

func (a *frameArena) reset() {
	a.offset = 0
	a.allocations = 0
}

func (a *frameArena) destroy() {
	if a.buffer != nil {
		a.buffer.Release()
		a.buffer = nil
	}
	a.reset()
}

func (a *frameArena) addStatistics(stats *memutils.Statistics) {
	if a.buffer == nil {
		return
	}

	stats.BlockCount++
	stats.BlockUnits += a.capacity
	stats.AllocationCount += a.allocations
	stats.AllocatedUnits += a.offset
}

func (a *frameArena) writeJson(json jwriter.ObjectState) {
	json.Name("Slot").Int(a.slot)
	json.Name("Capacity").Int(a.capacity)
	json.Name("Used").Int(a.offset)
	json.Name("Allocations").Int(a.allocations)
}
