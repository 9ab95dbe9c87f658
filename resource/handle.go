package resource

import (
	"fmt"
	"sync"
)

// Handle is an opaque identifier for a GPU resource. Handles are issued by a Registry and
// carry a generation so that a handle kept past Unregister can be told apart from the
// handle of whatever resource later reuses the same slot. The zero value is never issued.
type Handle struct {
	index      uint32
	generation uint32
}

// IsValid returns false for the zero Handle
func (h Handle) IsValid() bool {
	return h.generation != 0
}

// Less orders handles by slot index, then generation
func (h Handle) Less(other Handle) bool {
	if h.index != other.index {
		return h.index < other.index
	}
	return h.generation < other.generation
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "Handle(invalid)"
	}
	return fmt.Sprintf("Handle(%d:%d)", h.index, h.generation)
}

type registrySlot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Registry maps Handles to values of type T. It is safe for concurrent use.
type Registry[T any] struct {
	mutex    sync.RWMutex
	slots    []registrySlot[T]
	freeList []uint32
	count    int
}

// Register stores value and returns a new Handle for it
func (r *Registry[T]) Register(value T) Handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.count++

	if len(r.freeList) > 0 {
		index := r.freeList[len(r.freeList)-1]
		r.freeList = r.freeList[:len(r.freeList)-1]

		slot := &r.slots[index]
		slot.generation++
		if slot.generation == 0 {
			slot.generation = 1
		}
		slot.value = value
		slot.live = true

		return Handle{index: index, generation: slot.generation}
	}

	index := uint32(len(r.slots))
	r.slots = append(r.slots, registrySlot[T]{value: value, generation: 1, live: true})
	return Handle{index: index, generation: 1}
}

// Unregister removes the value for handle, returning it. It returns false if the handle
// is stale or was never issued by this registry.
func (r *Registry[T]) Unregister(handle Handle) (T, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var zero T
	slot := r.slot(handle)
	if slot == nil {
		return zero, false
	}

	value := slot.value
	slot.value = zero
	slot.live = false
	r.freeList = append(r.freeList, handle.index)
	r.count--

	return value, true
}

// Lookup retrieves the value for handle
func (r *Registry[T]) Lookup(handle Handle) (T, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	slot := r.slot(handle)
	if slot == nil {
		var zero T
		return zero, false
	}

	return slot.value, true
}

// Len returns the number of live handles
func (r *Registry[T]) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.count
}

// Visit calls visitor once for each live handle in slot order
func (r *Registry[T]) Visit(visitor func(handle Handle, value T)) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for index := range r.slots {
		slot := &r.slots[index]
		if slot.live {
			visitor(Handle{index: uint32(index), generation: slot.generation}, slot.value)
		}
	}
}

func (r *Registry[T]) slot(handle Handle) *registrySlot[T] {
	if !handle.IsValid() || int(handle.index) >= len(r.slots) {
		return nil
	}

	slot := &r.slots[handle.index]
	if !slot.live || slot.generation != handle.generation {
		return nil
	}

	return slot
}
