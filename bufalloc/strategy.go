package bufalloc

import (
	"github.com/vkngwrapper/armature/gpu"
)

const (
	// ConstantBufferAlignment is the placement alignment of constant buffer views
	ConstantBufferAlignment = 256
	// StructuredBufferAlignment is the placement alignment of structured and array data
	StructuredBufferAlignment = 64 * 1024
)

// Strategy describes the kind of GPU buffer an Allocator hands out ranges of: how its
// ranges must be aligned and how its backing upload buffers are created
type Strategy interface {
	Name() string
	Alignment() int
	CreateBlock(size int) (gpu.UploadBuffer, error)
}

type uploadStrategy struct {
	name      string
	alignment int
	device    gpu.Device
}

func (s *uploadStrategy) Name() string   { return s.name }
func (s *uploadStrategy) Alignment() int { return s.alignment }

func (s *uploadStrategy) CreateBlock(size int) (gpu.UploadBuffer, error) {
	return s.device.CreateUploadBuffer(size)
}

// ConstantBuffers places ranges in upload buffers at constant buffer alignment
func ConstantBuffers(device gpu.Device) Strategy {
	return &uploadStrategy{name: "ConstantBuffers", alignment: ConstantBufferAlignment, device: device}
}

// StructuredBuffers places ranges in upload buffers at structured buffer alignment
func StructuredBuffers(device gpu.Device) Strategy {
	return &uploadStrategy{name: "StructuredBuffers", alignment: StructuredBufferAlignment, device: device}
}
