package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
)

var nullRangeOrder = []gpu.DescriptorRangeType{gpu.RangeTypeSRV, gpu.RangeTypeUAV, gpu.RangeTypeCBV}

// NullDescriptors holds one null descriptor per descriptor range type, used to fill table
// slots that a draw does not bind
type NullDescriptors struct {
	views    Allocation
	samplers Allocation
}

// NewNullDescriptors allocates and writes null descriptors from the provided managers
func NewNullDescriptors(device gpu.Device, views *CPUHeapManager, samplers *CPUHeapManager) (*NullDescriptors, error) {
	n := &NullDescriptors{}

	var err error
	n.views, err = views.Allocate(len(nullRangeOrder))
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate null view descriptors")
	}

	n.samplers, err = samplers.Allocate(1)
	if err != nil {
		n.views.Free(0)
		return nil, errors.Wrap(err, "failed to allocate null sampler descriptor")
	}

	for index, rangeType := range nullRangeOrder {
		device.CreateNullDescriptor(n.views.Handle(index), rangeType)
	}
	device.CreateNullDescriptor(n.samplers.Handle(0), gpu.RangeTypeSampler)

	return n, nil
}

// Handle returns the null descriptor for rangeType
func (n *NullDescriptors) Handle(rangeType gpu.DescriptorRangeType) gpu.CPUHandle {
	if rangeType == gpu.RangeTypeSampler {
		return n.samplers.Handle(0)
	}

	for index, t := range nullRangeOrder {
		if t == rangeType {
			return n.views.Handle(index)
		}
	}

	panic(errors.AssertionFailedf("no null descriptor for range type %s", rangeType))
}

// Free returns the null descriptors to their pages once fence has completed
func (n *NullDescriptors) Free(fence uint64) {
	n.views.Free(fence)
	n.samplers.Free(fence)
}
