package state

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armature/resource"
)

// SubresourceCounter reports how many subresources a resource has. The GlobalTracker
// implements it for every registered resource.
type SubresourceCounter interface {
	SubresourceCount(handle resource.Handle) int
}

type localEntry struct {
	handle  resource.Handle
	pending SubresourceStates
	known   SubresourceStates
}

// LocalTracker records the resource states used by a single command list. The first
// state a subresource is moved to is kept as its pending state, to be reconciled with
// the device timeline when the list is submitted; every later move is resolved locally
// against the known state. A LocalTracker belongs to one command list and is not safe
// for concurrent use.
type LocalTracker struct {
	counter SubresourceCounter
	entries []*localEntry
	index   *swiss.Map[resource.Handle, int]
}

func NewLocalTracker(counter SubresourceCounter) *LocalTracker {
	return &LocalTracker{
		counter: counter,
		index:   swiss.NewMap[resource.Handle, int](16),
	}
}

func (t *LocalTracker) entry(handle resource.Handle) (*localEntry, bool) {
	index, ok := t.index.Get(handle)
	if !ok {
		return nil, false
	}
	return t.entries[index], true
}

func (t *LocalTracker) createEntry(handle resource.Handle) *localEntry {
	entry := &localEntry{handle: handle}
	t.index.Put(handle, len(t.entries))
	t.entries = append(t.entries, entry)
	return entry
}

// TransitionResource moves subresource of handle to state and returns the barriers the
// command list must record now. The first touch of a subresource records no barrier,
// since its prior state is only known once the list is submitted.
func (t *LocalTracker) TransitionResource(handle resource.Handle, state resource.States, subresource resource.Subresource) []resource.Barrier {
	if !handle.IsValid() {
		panic(errors.AssertionFailedf("transition of an invalid resource handle"))
	}

	entry, ok := t.entry(handle)
	if !ok {
		entry = t.createEntry(handle)
		entry.pending.Set(subresource, state)
		entry.known.Set(subresource, state)
		return nil
	}

	if subresource != resource.AllSubresources {
		before, known := entry.known.Get(subresource)
		if !known {
			entry.pending.Set(subresource, state)
			entry.known.Set(subresource, state)
			return nil
		}

		entry.known.Set(subresource, state)
		if before == state {
			return nil
		}
		return []resource.Barrier{resource.TransitionBarrier{Resource: handle, Subresource: subresource, Before: before, After: state}}
	}

	if before, uniform := entry.known.Uniform(); uniform {
		entry.known.Set(resource.AllSubresources, state)
		if before == state {
			return nil
		}
		return []resource.Barrier{resource.TransitionBarrier{Resource: handle, Subresource: resource.AllSubresources, Before: before, After: state}}
	}

	barriers := t.transitionMixed(entry, state)
	entry.known.Set(resource.AllSubresources, state)
	return barriers
}

// transitionMixed moves every subresource of a resource whose known state varies by
// subresource. If every subresource is known and shares one state, a single wildcard
// barrier is enough. Subresources that were never touched take state as their pending
// state through the wildcard.
func (t *LocalTracker) transitionMixed(entry *localEntry, state resource.States) []resource.Barrier {
	count := t.counter.SubresourceCount(entry.handle)
	if count <= 0 {
		panic(errors.AssertionFailedf("subresource count of %s is unknown", entry.handle))
	}

	allKnown := true
	shared, _ := entry.known.Get(0)
	sameState := true
	for sub := 0; sub < count; sub++ {
		before, known := entry.known.Get(resource.Subresource(sub))
		if !known {
			allKnown = false
			continue
		}
		if before != shared {
			sameState = false
		}
	}

	if allKnown && sameState {
		if shared == state {
			return nil
		}
		return []resource.Barrier{resource.TransitionBarrier{Resource: entry.handle, Subresource: resource.AllSubresources, Before: shared, After: state}}
	}

	var barriers []resource.Barrier
	for sub := 0; sub < count; sub++ {
		subresource := resource.Subresource(sub)
		before, known := entry.known.Get(subresource)
		if known && before != state {
			barriers = append(barriers, resource.TransitionBarrier{Resource: entry.handle, Subresource: subresource, Before: before, After: state})
		}
	}

	if !allKnown {
		entry.pending.SetWildcard(state)
	}

	return barriers
}

// KnownState returns the state subresource of handle is left in by this command list so
// far. Asking about a resource the list never touched is fatal.
func (t *LocalTracker) KnownState(handle resource.Handle, subresource resource.Subresource) resource.States {
	entry, ok := t.entry(handle)
	if !ok {
		panic(errors.AssertionFailedf("%s has not been used by this command list", handle))
	}
	return entry.known.mustGet(handle, subresource)
}

// Touched reports whether handle has been used by this command list
func (t *LocalTracker) Touched(handle resource.Handle) bool {
	return t.index.Has(handle)
}

// Len returns the number of resources used by this command list
func (t *LocalTracker) Len() int {
	return len(t.entries)
}

// PendingStates calls visitor with the pending states of each resource, in the order the
// resources were first used
func (t *LocalTracker) PendingStates(visitor func(handle resource.Handle, states *SubresourceStates)) {
	for _, entry := range t.entries {
		visitor(entry.handle, &entry.pending)
	}
}

// KnownStates calls visitor with the known states of each resource, in the order the
// resources were first used
func (t *LocalTracker) KnownStates(visitor func(handle resource.Handle, states *SubresourceStates)) {
	for _, entry := range t.entries {
		visitor(entry.handle, &entry.known)
	}
}

// Reset forgets every resource, ready for the command list to be recorded again
func (t *LocalTracker) Reset() {
	for i := range t.entries {
		t.entries[i] = nil
	}
	t.entries = t.entries[:0]
	t.index.Clear()
}
