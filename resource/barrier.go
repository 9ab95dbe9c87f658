package resource

import "fmt"

// BarrierKind discriminates the Barrier variants
type BarrierKind int32

const (
	BarrierTransition BarrierKind = iota
	BarrierUAV
	BarrierAliasing
)

var barrierKindMapping = map[BarrierKind]string{
	BarrierTransition: "Transition",
	BarrierUAV:        "UAV",
	BarrierAliasing:   "Aliasing",
}

func (k BarrierKind) String() string {
	return barrierKindMapping[k]
}

// Barrier is a single synchronization point recorded into a command list. It is one of
// TransitionBarrier, UAVBarrier or AliasingBarrier.
type Barrier interface {
	Kind() BarrierKind
	String() string

	isBarrier()
}

// TransitionBarrier moves a subresource from one usage state to another
type TransitionBarrier struct {
	Resource    Handle
	Subresource Subresource
	Before      States
	After       States
}

func (b TransitionBarrier) Kind() BarrierKind { return BarrierTransition }
func (b TransitionBarrier) isBarrier()        {}

func (b TransitionBarrier) String() string {
	return fmt.Sprintf("Transition(%s[%s]: %s -> %s)", b.Resource, b.Subresource, b.Before, b.After)
}

// UAVBarrier orders unordered-access reads and writes to a resource. A zero Resource
// orders every unordered access.
type UAVBarrier struct {
	Resource Handle
}

func (b UAVBarrier) Kind() BarrierKind { return BarrierUAV }
func (b UAVBarrier) isBarrier()        {}

func (b UAVBarrier) String() string {
	return fmt.Sprintf("UAV(%s)", b.Resource)
}

// AliasingBarrier marks a switch between two resources that share backing memory
type AliasingBarrier struct {
	Before Handle
	After  Handle
}

func (b AliasingBarrier) Kind() BarrierKind { return BarrierAliasing }
func (b AliasingBarrier) isBarrier()        {}

func (b AliasingBarrier) String() string {
	return fmt.Sprintf("Aliasing(%s -> %s)", b.Before, b.After)
}
