package soft

import "github.com/vkngwrapper/armature/gpu"

// DescriptorHeap implements gpu.DescriptorHeap
type DescriptorHeap struct {
	device   *Device
	desc     gpu.DescriptorHeapDesc
	cpuStart gpu.CPUHandle
	gpuStart gpu.GPUHandle
	released bool
}

var _ gpu.DescriptorHeap = &DescriptorHeap{}

func (h *DescriptorHeap) Desc() gpu.DescriptorHeapDesc { return h.desc }
func (h *DescriptorHeap) CPUStart() gpu.CPUHandle      { return h.cpuStart }
func (h *DescriptorHeap) GPUStart() gpu.GPUHandle      { return h.gpuStart }

func (h *DescriptorHeap) Release() {
	if h.released {
		return
	}
	h.released = true
	h.device.releaseHeap(h)
}

// Released reports whether Release has been called
func (h *DescriptorHeap) Released() bool { return h.released }
