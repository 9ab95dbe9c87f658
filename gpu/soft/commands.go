package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/resource"
)

// Command is a single recorded command list entry
type Command interface {
	isCommand()
}

type BarrierCommand struct {
	Barriers []resource.Barrier
}

type SetDescriptorHeapsCommand struct {
	Heaps []gpu.DescriptorHeap
}

type SetRootDescriptorTableCommand struct {
	BindPoint gpu.BindPoint
	RootIndex int
	Base      gpu.GPUHandle
}

type SetRootViewCommand struct {
	BindPoint gpu.BindPoint
	Kind      gpu.RootViewKind
	RootIndex int
	Address   gpu.VirtualAddress
}

type DrawCommand struct {
	VertexCount   int
	InstanceCount int
}

type DispatchCommand struct {
	X, Y, Z int
}

type CopyBufferRegionCommand struct {
	Dst       gpu.Resource
	DstOffset int
	Src       gpu.UploadBuffer
	SrcOffset int
	Size      int
}

func (BarrierCommand) isCommand()                {}
func (SetDescriptorHeapsCommand) isCommand()     {}
func (SetRootDescriptorTableCommand) isCommand() {}
func (SetRootViewCommand) isCommand()            {}
func (DrawCommand) isCommand()                   {}
func (DispatchCommand) isCommand()               {}
func (CopyBufferRegionCommand) isCommand()       {}

// CommandList implements gpu.CommandList by recording commands in order
type CommandList struct {
	queueType gpu.QueueType
	closed    bool
	released  bool
	commands  []Command
}

var _ gpu.CommandList = &CommandList{}

func (l *CommandList) Type() gpu.QueueType { return l.queueType }

func (l *CommandList) Reset() error {
	if l.released {
		return errors.New("reset of a released command list")
	}
	l.closed = false
	l.commands = nil
	return nil
}

func (l *CommandList) Close() error {
	if l.closed {
		return errors.New("command list is already closed")
	}
	l.closed = true
	return nil
}

func (l *CommandList) record(command Command) {
	if l.closed {
		panic(errors.AssertionFailedf("recording %T into a closed command list", command))
	}
	l.commands = append(l.commands, command)
}

func (l *CommandList) ResourceBarrier(barriers []resource.Barrier) {
	l.record(BarrierCommand{Barriers: append([]resource.Barrier(nil), barriers...)})
}

func (l *CommandList) SetDescriptorHeaps(heaps ...gpu.DescriptorHeap) {
	l.record(SetDescriptorHeapsCommand{Heaps: heaps})
}

func (l *CommandList) SetRootDescriptorTable(bind gpu.BindPoint, rootIndex int, base gpu.GPUHandle) {
	l.record(SetRootDescriptorTableCommand{BindPoint: bind, RootIndex: rootIndex, Base: base})
}

func (l *CommandList) SetRootView(bind gpu.BindPoint, kind gpu.RootViewKind, rootIndex int, address gpu.VirtualAddress) {
	l.record(SetRootViewCommand{BindPoint: bind, Kind: kind, RootIndex: rootIndex, Address: address})
}

func (l *CommandList) Draw(vertexCount, instanceCount int) {
	l.record(DrawCommand{VertexCount: vertexCount, InstanceCount: instanceCount})
}

func (l *CommandList) Dispatch(x, y, z int) {
	l.record(DispatchCommand{X: x, Y: y, Z: z})
}

func (l *CommandList) CopyBufferRegion(dst gpu.Resource, dstOffset int, src gpu.UploadBuffer, srcOffset int, size int) {
	l.record(CopyBufferRegionCommand{Dst: dst, DstOffset: dstOffset, Src: src, SrcOffset: srcOffset, Size: size})
}

func (l *CommandList) Release() {
	l.released = true
}

// Commands returns the commands recorded since the last Reset
func (l *CommandList) Commands() []Command {
	return l.commands
}

// Barriers returns every barrier recorded since the last Reset, in order
func (l *CommandList) Barriers() []resource.Barrier {
	var barriers []resource.Barrier
	for _, command := range l.commands {
		if barrierCommand, ok := command.(BarrierCommand); ok {
			barriers = append(barriers, barrierCommand.Barriers...)
		}
	}
	return barriers
}

func (l *CommandList) Closed() bool { return l.closed }
