package bufalloc

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/internal/utils"
	"github.com/vkngwrapper/armature/memutils"
	"github.com/vkngwrapper/armature/memutils/deferred"
	"github.com/vkngwrapper/armature/memutils/metadata"
)

const (
	DefaultFixedAllocationByteSize = 16 * 1024 * 1024
	DefaultBlockSize               = 32 * 1024 * 1024
	MinFramesInFlight              = 2
	MaxFramesInFlight              = 3
)

// Options configures an Allocator
type Options struct {
	// FramesInFlight is the number of frames the CPU may run ahead of the GPU. It is the
	// number of copies kept of Mutable data and the number of SingleFrame arenas.
	FramesInFlight int
	// FixedAllocationByteSize is the capacity of each SingleFrame arena
	FixedAllocationByteSize int
	// BlockSize is the preferred size of the upload buffers Immutable and Mutable ranges
	// are suballocated from
	BlockSize int
	// UseMutex makes the Allocator safe for concurrent use
	UseMutex bool
}

type record struct {
	id          uint64
	lifetime    Lifetime
	size        int
	alignedSize int

	block  *uploadBlock
	handle metadata.BlockAllocationHandle
	offset int

	arena *frameArena

	committed    bool
	shadow       []byte
	version      uint64
	slotVersions []uint64
}

type freedRange struct {
	block  *uploadBlock
	handle metadata.BlockAllocationHandle
}

// Allocator hands out ranges of GPU-visible upload memory keyed by a caller-chosen id.
// Each id lives in exactly one of three tables according to its Lifetime.
type Allocator struct {
	logger   *slog.Logger
	strategy Strategy
	options  Options

	mutex       utils.OptionalMutex
	blocks      blockList
	arenas      []*frameArena
	immutable   *swiss.Map[uint64, *record]
	mutable     *swiss.Map[uint64, *record]
	singleFrame *swiss.Map[uint64, *record]
	freed       deferred.Queue[freedRange]

	writeIndex int
	readIndex  int
}

// New creates an Allocator. Zero sizes in options are replaced with the defaults. Upload
// buffers are created lazily as allocations need them.
func New(logger *slog.Logger, strategy Strategy, options Options) (*Allocator, error) {
	if options.FixedAllocationByteSize == 0 {
		options.FixedAllocationByteSize = DefaultFixedAllocationByteSize
	}
	if options.BlockSize == 0 {
		options.BlockSize = DefaultBlockSize
	}

	if options.FramesInFlight < MinFramesInFlight || options.FramesInFlight > MaxFramesInFlight {
		return nil, errors.Errorf("frames in flight must be between %d and %d, got %d", MinFramesInFlight, MaxFramesInFlight, options.FramesInFlight)
	}
	if options.FixedAllocationByteSize < 0 || options.BlockSize < 0 {
		return nil, errors.New("buffer allocator sizes must not be negative")
	}

	alignment := strategy.Alignment()
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}
	if options.BlockSize < alignment {
		return nil, errors.Errorf("block size of %d bytes is smaller than the %d byte alignment of %s", options.BlockSize, alignment, strategy.Name())
	}

	allocator := &Allocator{
		logger:      logger,
		strategy:    strategy,
		options:     options,
		mutex:       utils.OptionalMutex{UseMutex: options.UseMutex},
		arenas:      make([]*frameArena, options.FramesInFlight),
		immutable:   swiss.NewMap[uint64, *record](64),
		mutable:     swiss.NewMap[uint64, *record](64),
		singleFrame: swiss.NewMap[uint64, *record](64),
		readIndex:   options.FramesInFlight - 1,
	}
	allocator.blocks = blockList{
		logger:    logger,
		strategy:  strategy,
		blockSize: options.BlockSize,
	}

	for slot := range allocator.arenas {
		allocator.arenas[slot] = &frameArena{slot: slot, capacity: options.FixedAllocationByteSize}
	}

	return allocator, nil
}

func (a *Allocator) Strategy() Strategy { return a.strategy }
func (a *Allocator) Options() Options   { return a.options }

// WriteIndex returns the frame slot the CPU is currently writing
func (a *Allocator) WriteIndex() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.writeIndex
}

// ReadIndex returns the slot bound by the previous frame. The GPU may still be reading it.
func (a *Allocator) ReadIndex() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.readIndex
}

func (a *Allocator) lookup(id uint64) (*record, bool) {
	if rec, ok := a.immutable.Get(id); ok {
		return rec, true
	}
	if rec, ok := a.mutable.Get(id); ok {
		return rec, true
	}
	return a.singleFrame.Get(id)
}

// Contains reports whether id is currently allocated
func (a *Allocator) Contains(id uint64) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	_, ok := a.lookup(id)
	return ok
}

// Len returns the number of live allocations across all lifetimes
func (a *Allocator) Len() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.immutable.Count() + a.mutable.Count() + a.singleFrame.Count()
}

// Allocate reserves numBytes for id. Allocating an id that is already live is fatal, as
// is overflowing the current frame's SingleFrame arena.
func (a *Allocator) Allocate(id uint64, numBytes int, lifetime Lifetime) error {
	a.logger.Debug("Allocator::Allocate",
		slog.String("Strategy", a.strategy.Name()),
		slog.Uint64("Id", id),
		slog.Int("Size", numBytes),
		slog.String("Lifetime", lifetime.String()),
	)

	if numBytes <= 0 {
		return errors.Errorf("allocation size must be positive, got %d", numBytes)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, exists := a.lookup(id); exists {
		panic(errors.AssertionFailedf("buffer id %d is already allocated", id))
	}

	rec := &record{
		id:          id,
		lifetime:    lifetime,
		size:        numBytes,
		alignedSize: memutils.AlignUp(numBytes, a.strategy.Alignment()),
		handle:      metadata.NoAllocation,
	}

	switch lifetime {
	case Immutable:
		err := a.allocatePersistent(rec, rec.alignedSize)
		if err != nil {
			return err
		}
		a.immutable.Put(id, rec)
	case Mutable:
		err := a.allocatePersistent(rec, rec.alignedSize*a.options.FramesInFlight)
		if err != nil {
			return err
		}
		rec.shadow = make([]byte, numBytes)
		rec.slotVersions = make([]uint64, a.options.FramesInFlight)
		a.mutable.Put(id, rec)
	case SingleFrame:
		err := a.allocateSingleFrame(rec)
		if err != nil {
			return err
		}
		a.singleFrame.Put(id, rec)
	default:
		return errors.Errorf("unknown buffer lifetime %d", lifetime)
	}

	return nil
}

func (a *Allocator) allocatePersistent(rec *record, size int) error {
	block, handle, offset, err := a.blocks.Allocate(size, rec)
	if err != nil {
		return err
	}

	rec.block = block
	rec.handle = handle
	rec.offset = offset
	return nil
}

func (a *Allocator) allocateSingleFrame(rec *record) error {
	arena := a.arenas[a.writeIndex]
	if arena.buffer == nil {
		err := arena.create(a.logger, a.strategy)
		if err != nil {
			return err
		}
	}

	rec.arena = arena
	rec.offset = arena.allocate(rec.size, a.strategy.Alignment())
	return nil
}

// Commit writes data into the range reserved for id. Immutable ranges accept exactly one
// commit. Mutable data is written into the current write slot and remembered so the other
// slots can catch up as they come around. Only len(data) bytes are written.
func (a *Allocator) Commit(id uint64, data []byte) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	rec, ok := a.lookup(id)
	if !ok {
		return errors.Errorf("buffer id %d is not allocated", id)
	}
	if len(data) > rec.size {
		return errors.Errorf("cannot commit %d bytes to buffer id %d of %d bytes", len(data), id, rec.size)
	}

	switch rec.lifetime {
	case Immutable:
		if rec.committed {
			panic(errors.AssertionFailedf("immutable buffer id %d was committed twice", id))
		}
		rec.committed = true
		return rec.block.buffer.Write(rec.offset, data)
	case Mutable:
		copy(rec.shadow, data)
		rec.version++
		rec.slotVersions[a.writeIndex] = rec.version
		return rec.block.buffer.Write(a.mutableSlotOffset(rec, a.writeIndex), data)
	default:
		return rec.arena.buffer.Write(rec.offset, data)
	}
}

func (a *Allocator) mutableSlotOffset(rec *record, slot int) int {
	return rec.offset + slot*rec.alignedSize
}

func (a *Allocator) address(rec *record, slot int) gpu.VirtualAddress {
	switch rec.lifetime {
	case Immutable:
		return rec.block.buffer.GPUAddress() + gpu.VirtualAddress(rec.offset)
	case Mutable:
		return rec.block.buffer.GPUAddress() + gpu.VirtualAddress(a.mutableSlotOffset(rec, slot))
	default:
		return rec.arena.buffer.GPUAddress() + gpu.VirtualAddress(rec.offset)
	}
}

// GPUAddress returns the address command lists recorded this frame should bind for id.
// Mutable data is bound from the write slot, so the GPU reads exactly what this frame
// committed.
func (a *Allocator) GPUAddress(id uint64) (gpu.VirtualAddress, error) {
	return a.slotAddress(id, false)
}

// WriteAddress returns the address of the copy of id that Commit currently writes. It is
// the same address GPUAddress binds.
func (a *Allocator) WriteAddress(id uint64) (gpu.VirtualAddress, error) {
	return a.slotAddress(id, false)
}

// ReadAddress returns the address of the copy of id bound by the previous frame, which
// the GPU may still be reading
func (a *Allocator) ReadAddress(id uint64) (gpu.VirtualAddress, error) {
	return a.slotAddress(id, true)
}

func (a *Allocator) slotAddress(id uint64, previous bool) (gpu.VirtualAddress, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	rec, ok := a.lookup(id)
	if !ok {
		return 0, errors.Errorf("buffer id %d is not allocated", id)
	}
	if previous {
		return a.address(rec, a.readIndex), nil
	}
	return a.address(rec, a.writeIndex), nil
}

// SwapBuffers advances the write slot to renderFrameNum's slot, with the read slot one
// frame behind it. The caller must have waited for the frame that last bound the new
// write slot. Its SingleFrame arena is emptied, and Mutable data committed since the slot
// was last written is copied into it.
func (a *Allocator) SwapBuffers(renderFrameNum uint64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	frames := uint64(a.options.FramesInFlight)
	a.writeIndex = int(renderFrameNum % frames)
	a.readIndex = int((renderFrameNum + frames - 1) % frames)

	a.arenas[a.writeIndex].reset()

	var err error
	a.mutable.Iter(func(id uint64, rec *record) bool {
		if rec.version == 0 || rec.slotVersions[a.writeIndex] == rec.version {
			return false
		}

		err = rec.block.buffer.Write(a.mutableSlotOffset(rec, a.writeIndex), rec.shadow)
		if err != nil {
			err = errors.Wrapf(err, "failed to rebuffer mutable buffer id %d", id)
			return true
		}
		rec.slotVersions[a.writeIndex] = rec.version
		return false
	})

	a.logger.Debug("Allocator::SwapBuffers",
		slog.String("Strategy", a.strategy.Name()),
		slog.Uint64("Frame", renderFrameNum),
		slog.Int("WriteIndex", a.writeIndex),
		slog.Int("ReadIndex", a.readIndex),
	)

	return err
}

// EndOfFrame forgets every SingleFrame allocation. Their bytes stay reserved until the
// arena's slot comes around again.
func (a *Allocator) EndOfFrame() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.singleFrame.Clear()
	for _, arena := range a.arenas {
		arena.allocations = 0
	}
}

// Free releases id. Immutable and Mutable ranges return to their block once fence has
// been passed to ReleaseFreed. SingleFrame space is reclaimed with its arena.
func (a *Allocator) Free(id uint64, fence uint64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, ok := a.singleFrame.Get(id); ok {
		a.singleFrame.Delete(id)
		return nil
	}

	rec, ok := a.immutable.Get(id)
	if ok {
		a.immutable.Delete(id)
	} else if rec, ok = a.mutable.Get(id); ok {
		a.mutable.Delete(id)
	} else {
		return errors.Errorf("buffer id %d is not allocated", id)
	}

	a.freed.Push(fence, freedRange{block: rec.block, handle: rec.handle})
	return nil
}

// ReleaseFreed returns every range freed at or before completedFence to its block and
// reports how many ranges were released
func (a *Allocator) ReleaseFreed(completedFence uint64) (int, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var err error
	released := a.freed.Release(completedFence, func(item freedRange) {
		freeErr := a.blocks.Free(item.block, item.handle)
		if freeErr != nil && err == nil {
			err = freeErr
		}
	})

	return released, err
}

// PendingFrees returns the number of freed ranges waiting on a fence
func (a *Allocator) PendingFrees() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.freed.Len()
}

// AddStatistics sums the usage of every upload block and arena into stats
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.blocks.AddStatistics(stats)
	for _, arena := range a.arenas {
		arena.addStatistics(stats)
	}
}

// AddDetailedStatistics sums the detailed usage of every upload block into stats
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.blocks.AddDetailedStatistics(stats)
}

// PrintDetailedMap writes a json object describing every block and arena to writer
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Strategy").String(a.strategy.Name())
	objState.Name("Alignment").Int(a.strategy.Alignment())
	objState.Name("WriteIndex").Int(a.writeIndex)
	objState.Name("ReadIndex").Int(a.readIndex)

	blocksObj := objState.Name("Blocks").Object()
	a.blocks.PrintDetailedMap(blocksObj)
	blocksObj.End()

	arenas := objState.Name("Arenas").Array()
	for _, arena := range a.arenas {
		arenaObj := arenas.Object()
		arena.writeJson(arenaObj)
		arenaObj.End()
	}
	arenas.End()
}

// Destroy releases every upload buffer. Outstanding ids are dropped.
func (a *Allocator) Destroy() {
	a.logger.Debug("Allocator::Destroy", slog.String("Strategy", a.strategy.Name()))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.freed.Drain(func(freedRange) {})
	a.blocks.Destroy()
	for _, arena := range a.arenas {
		arena.destroy()
	}

	a.immutable.Clear()
	a.mutable.Clear()
	a.singleFrame.Clear()
}
