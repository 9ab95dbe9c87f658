package bufalloc

import (
	"log/slog"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/memutils"
	"github.com/vkngwrapper/armature/memutils/metadata"
)

type uploadBlock struct {
	id        int
	buffer    gpu.UploadBuffer
	metadata  *metadata.TLSFBlockMetadata
	dedicated bool
}

func (b *uploadBlock) destroy() {
	b.buffer.Release()
	b.buffer = nil
}

// blockList suballocates persistent ranges out of upload buffers of a preferred size.
// Requests larger than the preferred size get a dedicated buffer of their own. The
// first regular block is kept when it empties; every other empty block is released.
type blockList struct {
	logger    *slog.Logger
	strategy  Strategy
	blockSize int

	blocks      []*uploadBlock
	nextBlockId int
}

func (l *blockList) createBlock(size int, dedicated bool) (*uploadBlock, error) {
	l.logger.Debug("blockList::createBlock",
		slog.String("Strategy", l.strategy.Name()),
		slog.Int("Size", size),
		slog.Bool("Dedicated", dedicated),
	)

	buffer, err := l.strategy.CreateBlock(size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s upload block of %d bytes", l.strategy.Name(), size)
	}

	block := &uploadBlock{
		id:        l.nextBlockId,
		buffer:    buffer,
		metadata:  metadata.NewTLSFBlockMetadata(),
		dedicated: dedicated,
	}
	block.metadata.Init(size)
	l.nextBlockId++

	l.blocks = append(l.blocks, block)
	return block, nil
}

func (l *blockList) allocFromBlock(block *uploadBlock, size int, userData any) (metadata.BlockAllocationHandle, int, bool, error) {
	if !block.metadata.MayHaveFreeBlock(size) {
		return metadata.NoAllocation, 0, false, nil
	}

	success, request, err := block.metadata.CreateAllocationRequest(size, l.strategy.Alignment(), metadata.AllocationStrategyMinMemory)
	if err != nil || !success {
		return metadata.NoAllocation, 0, false, err
	}

	err = block.metadata.Alloc(request, userData)
	if err != nil {
		return metadata.NoAllocation, 0, false, err
	}

	offset, err := block.metadata.AllocationOffset(request.BlockAllocationHandle)
	if err != nil {
		return metadata.NoAllocation, 0, false, err
	}

	memutils.DebugValidate(block.metadata)
	return request.BlockAllocationHandle, offset, true, nil
}

// Allocate finds room for size bytes at the strategy's alignment, creating a block if
// no existing block has room
func (l *blockList) Allocate(size int, userData any) (*uploadBlock, metadata.BlockAllocationHandle, int, error) {
	if size > l.blockSize {
		block, err := l.createBlock(memutils.AlignUp(size, l.strategy.Alignment()), true)
		if err != nil {
			return nil, metadata.NoAllocation, 0, err
		}

		handle, offset, ok, err := l.allocFromBlock(block, size, userData)
		if err != nil || !ok {
			l.remove(block)
			block.destroy()
			if err == nil {
				err = errors.AssertionFailedf("dedicated block of %d bytes could not hold %d bytes", block.metadata.Size(), size)
			}
			return nil, metadata.NoAllocation, 0, err
		}
		return block, handle, offset, nil
	}

	for _, block := range l.blocks {
		if block.dedicated {
			continue
		}

		handle, offset, ok, err := l.allocFromBlock(block, size, userData)
		if err != nil {
			return nil, metadata.NoAllocation, 0, err
		}
		if ok {
			return block, handle, offset, nil
		}
	}

	block, err := l.createBlock(l.blockSize, false)
	if err != nil {
		return nil, metadata.NoAllocation, 0, err
	}

	handle, offset, ok, err := l.allocFromBlock(block, size, userData)
	if err != nil {
		return nil, metadata.NoAllocation, 0, err
	}
	if !ok {
		panic(errors.AssertionFailedf("a new block of %d bytes could not hold %d bytes", l.blockSize, size))
	}
	return block, handle, offset, nil
}

// Free returns a range to its block, releasing the block if it is now empty and is not
// the first regular block
func (l *blockList) Free(block *uploadBlock, handle metadata.BlockAllocationHandle) error {
	err := block.metadata.Free(handle)
	if err != nil {
		return err
	}
	memutils.DebugValidate(block.metadata)

	if !block.metadata.IsEmpty() || block == l.firstRegularBlock() {
		return nil
	}

	l.logger.Debug("blockList::Free", slog.String("Strategy", l.strategy.Name()), slog.Int("DeletedBlock", block.id))
	l.remove(block)
	block.destroy()
	return nil
}

func (l *blockList) firstRegularBlock() *uploadBlock {
	for _, block := range l.blocks {
		if !block.dedicated {
			return block
		}
	}
	return nil
}

func (l *blockList) remove(block *uploadBlock) {
	for blockIndex := 0; blockIndex < len(l.blocks); blockIndex++ {
		if l.blocks[blockIndex] == block {
			l.blocks = append(l.blocks[0:blockIndex], l.blocks[blockIndex+1:]...)
			return
		}
	}

	panic(errors.AssertionFailedf("attempted to remove block %d from a block list that did not own it", block.id))
}

func (l *blockList) BlockCount() int {
	return len(l.blocks)
}

func (l *blockList) AddStatistics(stats *memutils.Statistics) {
	for _, block := range l.blocks {
		block.metadata.AddStatistics(stats)
	}
}

func (l *blockList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for _, block := range l.blocks {
		block.metadata.AddDetailedStatistics(stats)
	}
}

func (l *blockList) Destroy() {
	for _, block := range l.blocks {
		block.destroy()
	}
	l.blocks = nil
}

func (l *blockList) PrintDetailedMap(json jwriter.ObjectState) {
	for _, block := range l.blocks {
		blockObj := json.Name(strconv.Itoa(block.id)).Object()

		blockObj.Name("Dedicated").Bool(block.dedicated)
		block.metadata.BlockJsonData(blockObj)
		printSuballocations(block.metadata, blockObj)

		blockObj.End()
	}
}

func printSuballocations(md metadata.BlockMetadata, json jwriter.ObjectState) {
	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	_ = md.VisitAllRegions(
		func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			obj := arrayState.Object()
			defer obj.End()

			obj.Name("Offset").Int(offset)
			obj.Name("Size").Int(size)

			if free {
				obj.Name("Type").String("Free")
				return nil
			}

			if rec, ok := userData.(*record); ok && rec != nil {
				obj.Name("Type").String(rec.lifetime.String())
				obj.Name("Id").String(strconv.FormatUint(rec.id, 10))
			}
			return nil
		})
}
