package soft

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/memutils"
	"github.com/vkngwrapper/armature/resource"
)

// WriteRange is a single Write call made against an UploadBuffer
type WriteRange struct {
	Offset int
	Size   int
}

// UploadBuffer implements gpu.UploadBuffer over a byte slice
type UploadBuffer struct {
	mutex    sync.Mutex
	data     []byte
	address  gpu.VirtualAddress
	writes   []WriteRange
	released bool
}

var _ gpu.UploadBuffer = &UploadBuffer{}

func (b *UploadBuffer) Size() int                      { return len(b.data) }
func (b *UploadBuffer) GPUAddress() gpu.VirtualAddress { return b.address }

func (b *UploadBuffer) Write(offset int, data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.released {
		return errors.New("write to a released upload buffer")
	}
	if err := memutils.CheckRange(offset, len(data), len(b.data)); err != nil {
		return err
	}

	copy(b.data[offset:], data)
	b.writes = append(b.writes, WriteRange{Offset: offset, Size: len(data)})
	return nil
}

func (b *UploadBuffer) Release() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.released = true
}

// Bytes returns a copy of size bytes of buffer contents at offset
func (b *UploadBuffer) Bytes(offset, size int) []byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out
}

// Writes returns every Write call made since the last ResetWrites
func (b *UploadBuffer) Writes() []WriteRange {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return append([]WriteRange(nil), b.writes...)
}

func (b *UploadBuffer) ResetWrites() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.writes = nil
}

func (b *UploadBuffer) Released() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.released
}

// Resource implements gpu.Resource
type Resource struct {
	desc         resource.Desc
	initialState resource.States
	address      gpu.VirtualAddress
	released     bool
}

var _ gpu.Resource = &Resource{}

func (r *Resource) Desc() resource.Desc            { return r.desc }
func (r *Resource) GPUAddress() gpu.VirtualAddress { return r.address }
func (r *Resource) Release()                       { r.released = true }
func (r *Resource) Released() bool                 { return r.released }
func (r *Resource) InitialState() resource.States  { return r.initialState }
