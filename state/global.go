package state

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/resource"
	"golang.org/x/exp/slices"
)

type globalEntry struct {
	states           SubresourceStates
	subresourceCount int
}

// GlobalTracker holds the state every registered resource is left in by the command
// lists submitted so far. It is only advanced by ResolvePending, which the command queue
// calls while submitting, so it always reflects submission order.
type GlobalTracker struct {
	logger *slog.Logger

	mutex   sync.Mutex
	entries *swiss.Map[resource.Handle, *globalEntry]
}

var _ SubresourceCounter = &GlobalTracker{}

func NewGlobalTracker(logger *slog.Logger) *GlobalTracker {
	return &GlobalTracker{
		logger:  logger,
		entries: swiss.NewMap[resource.Handle, *globalEntry](64),
	}
}

// Register begins tracking handle, with every subresource in the initial state
func (g *GlobalTracker) Register(handle resource.Handle, initial resource.States, subresourceCount int) {
	if !handle.IsValid() {
		panic(errors.AssertionFailedf("registering an invalid resource handle"))
	}
	if subresourceCount <= 0 {
		panic(errors.AssertionFailedf("%s registered with %d subresources", handle, subresourceCount))
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.entries.Has(handle) {
		panic(errors.AssertionFailedf("%s is already registered", handle))
	}

	entry := &globalEntry{subresourceCount: subresourceCount}
	entry.states.Set(resource.AllSubresources, initial)
	g.entries.Put(handle, entry)
}

// Unregister stops tracking handle. Unregistering an unknown handle does nothing.
func (g *GlobalTracker) Unregister(handle resource.Handle) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.entries.Delete(handle)
}

// IsRegistered reports whether handle is being tracked
func (g *GlobalTracker) IsRegistered(handle resource.Handle) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.entries.Has(handle)
}

// Len returns the number of tracked resources
func (g *GlobalTracker) Len() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.entries.Count()
}

// SubresourceCount returns the number of subresources handle was registered with, or 0
// if it is not registered
func (g *GlobalTracker) SubresourceCount(handle resource.Handle) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	entry, ok := g.entries.Get(handle)
	if !ok {
		return 0
	}
	return entry.subresourceCount
}

// State returns the current state of subresource of handle. Asking about an unregistered
// resource is fatal.
func (g *GlobalTracker) State(handle resource.Handle, subresource resource.Subresource) resource.States {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.mustEntry(handle).states.mustGet(handle, subresource)
}

func (g *GlobalTracker) mustEntry(handle resource.Handle) *globalEntry {
	entry, ok := g.entries.Get(handle)
	if !ok {
		panic(errors.AssertionFailedf("%s is not registered with the global state tracker", handle))
	}
	return entry
}

// ResolvePending computes the barriers that must run ahead of each list, in submission
// order. Each list's pending states are diffed against the current global state, which
// is advanced as each barrier is produced, and then the list's known states are copied
// in so the next list in the batch sees where this one left every resource. The
// returned slice has one entry per list, nil where a list needs no barriers.
func (g *GlobalTracker) ResolvePending(lists ...*LocalTracker) [][]resource.Barrier {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	results := make([][]resource.Barrier, len(lists))
	total := 0
	for index, list := range lists {
		results[index] = g.resolveList(list)
		total += len(results[index])
	}

	g.logger.Debug("GlobalTracker::ResolvePending", slog.Int("Lists", len(lists)), slog.Int("Barriers", total))

	return results
}

func (g *GlobalTracker) resolveList(list *LocalTracker) []resource.Barrier {
	var barriers []resource.Barrier

	list.PendingStates(func(handle resource.Handle, pending *SubresourceStates) {
		entry := g.mustEntry(handle)

		pending.VisitExplicit(func(subresource resource.Subresource, state resource.States) {
			before := entry.states.mustGet(handle, subresource)
			if before != state {
				barriers = append(barriers, resource.TransitionBarrier{Resource: handle, Subresource: subresource, Before: before, After: state})
			}
			entry.states.Set(subresource, state)
		})

		state, ok := pending.Wildcard()
		if !ok {
			entry.states.Compact(entry.subresourceCount)
			return
		}

		if pending.ExplicitCount() == 0 {
			if before, uniform := entry.states.Uniform(); uniform {
				if before != state {
					barriers = append(barriers, resource.TransitionBarrier{Resource: handle, Subresource: resource.AllSubresources, Before: before, After: state})
				}
				entry.states.Set(resource.AllSubresources, state)
				return
			}
		}

		for sub := 0; sub < entry.subresourceCount; sub++ {
			subresource := resource.Subresource(sub)
			if pending.HasExplicit(subresource) {
				continue
			}

			before := entry.states.mustGet(handle, subresource)
			if before != state {
				barriers = append(barriers, resource.TransitionBarrier{Resource: handle, Subresource: subresource, Before: before, After: state})
			}
			entry.states.Set(subresource, state)
		}
		entry.states.Compact(entry.subresourceCount)
	})

	list.KnownStates(func(handle resource.Handle, known *SubresourceStates) {
		entry := g.mustEntry(handle)

		if state, ok := known.Wildcard(); ok {
			entry.states.Set(resource.AllSubresources, state)
		}
		known.VisitExplicit(func(subresource resource.Subresource, state resource.States) {
			entry.states.Set(subresource, state)
		})
		entry.states.Compact(entry.subresourceCount)
	})

	return barriers
}

// PrintStates writes a json object describing the state of every tracked resource
func (g *GlobalTracker) PrintStates(writer *jwriter.Writer) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	handles := make([]resource.Handle, 0, g.entries.Count())
	g.entries.Iter(func(handle resource.Handle, entry *globalEntry) bool {
		handles = append(handles, handle)
		return false
	})
	slices.SortFunc(handles, func(a, b resource.Handle) bool {
		return a.Less(b)
	})

	objState := writer.Object()
	defer objState.End()

	for _, handle := range handles {
		entry, _ := g.entries.Get(handle)

		resourceObj := objState.Name(handle.String()).Object()
		resourceObj.Name("SubresourceCount").Int(entry.subresourceCount)
		entry.states.writeJson(resourceObj)
		resourceObj.End()
	}
}
