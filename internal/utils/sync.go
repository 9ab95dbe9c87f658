package utils

import (
	"sync"
)

// OptionalMutex locks only when UseMutex is set. Owners created for externally
// synchronized use leave it off and pay nothing for locking.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

var _ sync.Locker = &OptionalMutex{}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
