// Package renderctx ties the descriptor heaps, buffer allocators, state trackers and
// queues of one device together and paces them by frame. Everything a Context owns is
// reached through it; there is no package-level state.
package renderctx

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/bufalloc"
	"github.com/vkngwrapper/armature/command"
	"github.com/vkngwrapper/armature/config"
	"github.com/vkngwrapper/armature/descriptor"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/memutils"
	"github.com/vkngwrapper/armature/memutils/deferred"
	"github.com/vkngwrapper/armature/resource"
	"github.com/vkngwrapper/armature/state"
)

// Context owns the per-device memory and submission machinery.
//
// Deferred releases (resources, descriptors and buffer ranges) are tagged with the next
// value of the direct queue's fence. Work recorded on the compute or copy queues that
// uses such objects must be joined into the direct queue with Queue.WaitForQueue before
// the frame ends.
type Context struct {
	logger *slog.Logger
	device gpu.Device
	config config.Config

	global      *state.GlobalTracker
	resources   resource.Registry[gpu.Resource]
	descriptors [gpu.HeapTypeCount]*descriptor.CPUHeapManager
	nulls       *descriptor.NullDescriptors
	queues      [gpu.QueueTypeCount]*command.Queue

	constantBuffers   *bufalloc.Allocator
	structuredBuffers *bufalloc.Allocator

	mutex       sync.Mutex
	frame       uint64
	inFrame     bool
	frameFences []uint64
	destroyed   deferred.Queue[resource.Handle]
}

// New builds a Context for device. cfg is validated before anything is created.
func New(logger *slog.Logger, device gpu.Device, cfg config.Config) (*Context, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	useMutex := !cfg.ExternallySynchronized
	c := &Context{
		logger:      logger,
		device:      device,
		config:      cfg,
		global:      state.NewGlobalTracker(logger),
		frameFences: make([]uint64, cfg.FramesInFlight),
	}

	err = c.init(useMutex)
	if err != nil {
		c.release()
		return nil, err
	}

	logger.Debug("Context::New",
		slog.Int("FramesInFlight", cfg.FramesInFlight),
		slog.Int("DescriptorsPerPage", cfg.Descriptors.PerPage),
		slog.Bool("ExternallySynchronized", cfg.ExternallySynchronized),
	)
	return c, nil
}

func (c *Context) init(useMutex bool) error {
	var err error
	for heapType := gpu.HeapType(0); heapType < gpu.HeapTypeCount; heapType++ {
		c.descriptors[heapType], err = descriptor.NewCPUHeapManager(c.logger, c.device, heapType, c.config.Descriptors.PerPage, useMutex)
		if err != nil {
			return err
		}
	}

	c.nulls, err = descriptor.NewNullDescriptors(c.device, c.descriptors[gpu.HeapTypeCBVSRVUAV], c.descriptors[gpu.HeapTypeSampler])
	if err != nil {
		return err
	}

	listOptions := command.ListOptions{
		ViewDescriptors:    c.config.Descriptors.ShaderVisibleViews,
		SamplerDescriptors: c.config.Descriptors.ShaderVisibleSamplers,
		NullDescriptors:    c.nulls,
	}
	for queueType := gpu.QueueType(0); queueType < gpu.QueueTypeCount; queueType++ {
		c.queues[queueType], err = command.NewQueue(c.logger, c.device, queueType, c.global, listOptions)
		if err != nil {
			return err
		}
	}

	bufferOptions := bufalloc.Options{
		FramesInFlight:          c.config.FramesInFlight,
		FixedAllocationByteSize: int(c.config.Buffers.FrameArenaSize.Bytes()),
		BlockSize:               int(c.config.Buffers.BlockSize.Bytes()),
		UseMutex:                useMutex,
	}

	c.constantBuffers, err = bufalloc.New(c.logger, bufalloc.ConstantBuffers(c.device), bufferOptions)
	if err != nil {
		return err
	}

	c.structuredBuffers, err = bufalloc.New(c.logger, bufalloc.StructuredBuffers(c.device), bufferOptions)
	return err
}

func (c *Context) Device() gpu.Device                           { return c.device }
func (c *Context) Config() config.Config                        { return c.config }
func (c *Context) Tracker() *state.GlobalTracker                { return c.global }
func (c *Context) NullDescriptors() *descriptor.NullDescriptors { return c.nulls }
func (c *Context) ConstantBuffers() *bufalloc.Allocator         { return c.constantBuffers }
func (c *Context) StructuredBuffers() *bufalloc.Allocator       { return c.structuredBuffers }
func (c *Context) Queue(queueType gpu.QueueType) *command.Queue { return c.queues[queueType] }

// DescriptorHeap returns the CPU-only descriptor manager for heapType
func (c *Context) DescriptorHeap(heapType gpu.HeapType) *descriptor.CPUHeapManager {
	return c.descriptors[heapType]
}

// Frame returns the number of the frame being recorded, or about to be
func (c *Context) Frame() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.frame
}

// ReleaseFence returns the fence value that deferred releases requested now are tagged with
func (c *Context) ReleaseFence() uint64 {
	return c.queues[gpu.QueueTypeDirect].LastSignaledFence() + 1
}

// CreateResource creates a resource in state initial and registers it with the global
// state tracker
func (c *Context) CreateResource(desc resource.Desc, initial resource.States) (resource.Handle, error) {
	res, err := c.device.CreateResource(desc, initial)
	if err != nil {
		return resource.Handle{}, errors.Wrapf(err, "failed to create resource %q", desc.Name)
	}

	handle := c.resources.Register(res)
	c.global.Register(handle, initial, desc.SubresourceCount())
	return handle, nil
}

func (c *Context) Resource(handle resource.Handle) (gpu.Resource, bool) {
	return c.resources.Lookup(handle)
}

// DestroyResource releases handle once the GPU has finished the work submitted so far.
// Until then the handle stays valid.
func (c *Context) DestroyResource(handle resource.Handle) error {
	_, ok := c.resources.Lookup(handle)
	if !ok {
		return errors.Errorf("%s is not a live resource", handle)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.destroyed.Push(c.ReleaseFence(), handle)
	return nil
}

func (c *Context) releaseResource(handle resource.Handle) {
	res, ok := c.resources.Unregister(handle)
	if !ok {
		return
	}

	c.global.Unregister(handle)
	res.Release()
}

func (c *Context) AllocateDescriptors(heapType gpu.HeapType, count int) (descriptor.Allocation, error) {
	if heapType < 0 || heapType >= gpu.HeapTypeCount {
		return descriptor.Allocation{}, errors.Errorf("unknown descriptor heap type %d", heapType)
	}

	return c.descriptors[heapType].Allocate(count)
}

// FreeDescriptors returns allocation to its page once the GPU has finished the work
// submitted so far. allocation is invalid afterward.
func (c *Context) FreeDescriptors(allocation *descriptor.Allocation) {
	allocation.Free(c.ReleaseFence())
}

// BeginFrame waits until the GPU has finished the frame that last used this frame's
// slot, releases everything the GPU is done with, and points the buffer allocators at
// the slot
func (c *Context) BeginFrame(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.inFrame {
		return errors.Errorf("BeginFrame called twice for frame %d", c.frame)
	}

	direct := c.queues[gpu.QueueTypeDirect]
	slot := int(c.frame % uint64(len(c.frameFences)))
	err := direct.WaitForFence(ctx, c.frameFences[slot])
	if err != nil {
		return errors.Wrapf(err, "frame %d", c.frame)
	}

	err = c.releaseCompleted(direct.CompletedFence())
	if err != nil {
		return err
	}

	err = c.constantBuffers.SwapBuffers(c.frame)
	if err != nil {
		return err
	}
	err = c.structuredBuffers.SwapBuffers(c.frame)
	if err != nil {
		return err
	}

	c.inFrame = true
	c.logger.Debug("Context::BeginFrame", slog.Uint64("Frame", c.frame), slog.Int("Slot", slot))
	return nil
}

func (c *Context) releaseCompleted(completed uint64) error {
	c.destroyed.Release(completed, c.releaseResource)

	for _, manager := range c.descriptors {
		manager.ReleaseFreedAllocations(completed)
	}

	_, err := c.constantBuffers.ReleaseFreed(completed)
	if err != nil {
		return err
	}
	_, err = c.structuredBuffers.ReleaseFreed(completed)
	return err
}

// EndFrame signals the direct queue and returns the fence value that completes once the
// frame's work has run
func (c *Context) EndFrame() (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.inFrame {
		return 0, errors.Errorf("EndFrame called without BeginFrame for frame %d", c.frame)
	}

	fence, err := c.queues[gpu.QueueTypeDirect].Signal()
	if err != nil {
		return 0, err
	}

	c.frameFences[c.frame%uint64(len(c.frameFences))] = fence
	c.constantBuffers.EndOfFrame()
	c.structuredBuffers.EndOfFrame()

	c.frame++
	c.inFrame = false
	return fence, nil
}

// Flush waits for every queue to drain
func (c *Context) Flush(ctx context.Context) error {
	for _, queue := range c.queues {
		err := queue.Flush(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// Destroy flushes every queue and releases everything the Context owns. Resources that
// were never destroyed are released and reported. Descriptors still allocated by the
// caller are a fatal error.
func (c *Context) Destroy(ctx context.Context) error {
	err := c.Flush(ctx)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.destroyed.Drain(c.releaseResource)

	var leaked []resource.Handle
	c.resources.Visit(func(handle resource.Handle, res gpu.Resource) {
		leaked = append(leaked, handle)
	})
	if len(leaked) > 0 {
		c.logger.Error("Context::Destroy called with live resources", slog.Int("Count", len(leaked)))
		for _, handle := range leaked {
			c.releaseResource(handle)
		}
	}

	c.release()
	return nil
}

func (c *Context) release() {
	if c.constantBuffers != nil {
		c.constantBuffers.Destroy()
	}
	if c.structuredBuffers != nil {
		c.structuredBuffers.Destroy()
	}

	for _, queue := range c.queues {
		if queue != nil {
			queue.Destroy()
		}
	}

	if c.nulls != nil {
		c.nulls.Free(0)
	}
	for _, manager := range c.descriptors {
		if manager != nil {
			manager.Destroy()
		}
	}
}

// WriteStatistics writes a json object describing the Context's memory and resource
// states to writer
func (c *Context) WriteStatistics(writer *jwriter.Writer) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Frame").Int(int(c.frame))
	objState.Name("LiveResources").Int(c.resources.Len())
	objState.Name("PendingResourceReleases").Int(c.destroyed.Len())

	var descriptorStats memutils.Statistics
	for _, manager := range c.descriptors {
		manager.AddStatistics(&descriptorStats)
	}
	totals := objState.Name("DescriptorTotals").Object()
	descriptorStats.WriteJson(totals)
	totals.End()

	var uploadStats memutils.DetailedStatistics
	uploadStats.Clear()
	c.constantBuffers.AddDetailedStatistics(&uploadStats)
	c.structuredBuffers.AddDetailedStatistics(&uploadStats)
	uploads := objState.Name("UploadTotals").Object()
	uploadStats.WriteJson(uploads)
	uploads.End()

	heaps := objState.Name("DescriptorHeaps").Array()
	for _, manager := range c.descriptors {
		manager.PrintDetailedMap(writer)
	}
	heaps.End()

	objState.Name("ConstantBuffers")
	c.constantBuffers.PrintDetailedMap(writer)

	objState.Name("StructuredBuffers")
	c.structuredBuffers.PrintDetailedMap(writer)

	objState.Name("ResourceStates")
	c.global.PrintStates(writer)
}
