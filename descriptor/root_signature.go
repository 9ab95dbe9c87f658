package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armature/gpu"
)

// MaxRootParameters is the number of parameters a root signature may declare. Root
// parameter sets are tracked as bitmasks, one bit per parameter.
const MaxRootParameters = 64

// RootParameterKind is the type of a single root signature parameter
type RootParameterKind int32

const (
	RootParameterTable RootParameterKind = iota
	RootParameterCBV
	RootParameterSRV
	RootParameterUAV
	RootParameterConstants
)

var rootParameterKindMapping = map[RootParameterKind]string{
	RootParameterTable:     "Table",
	RootParameterCBV:       "CBV",
	RootParameterSRV:       "SRV",
	RootParameterUAV:       "UAV",
	RootParameterConstants: "Constants",
}

func (k RootParameterKind) String() string {
	return rootParameterKindMapping[k]
}

// DescriptorRange is a run of descriptors of a single type inside a descriptor table
type DescriptorRange struct {
	Type  gpu.DescriptorRangeType
	Count int
}

// RootParameter describes one slot of a root signature. Ranges is only used by tables and
// NumConstants only by root constants.
type RootParameter struct {
	Kind         RootParameterKind
	Ranges       []DescriptorRange
	NumConstants int
}

// RootSignature is the layout of the parameters a shader binds through a command list
type RootSignature struct {
	Parameters []RootParameter
}

// Validate verifies that the signature fits in a parameter bitmask, that every table
// declares at least one non-empty range, and that no table mixes samplers with other
// descriptors
func (rs *RootSignature) Validate() error {
	if len(rs.Parameters) > MaxRootParameters {
		return errors.Errorf("root signature declares %d parameters but at most %d are supported", len(rs.Parameters), MaxRootParameters)
	}

	for index, param := range rs.Parameters {
		switch param.Kind {
		case RootParameterTable:
			if len(param.Ranges) == 0 {
				return errors.Errorf("root parameter %d is a descriptor table with no ranges", index)
			}

			samplers := param.Ranges[0].Type == gpu.RangeTypeSampler
			for _, r := range param.Ranges {
				if r.Count <= 0 {
					return errors.Errorf("root parameter %d has a %s range of %d descriptors", index, r.Type, r.Count)
				}
				if (r.Type == gpu.RangeTypeSampler) != samplers {
					return errors.Errorf("root parameter %d mixes sampler and non-sampler ranges", index)
				}
			}
		case RootParameterConstants:
			if param.NumConstants <= 0 {
				return errors.Errorf("root parameter %d declares %d root constants", index, param.NumConstants)
			}
		case RootParameterCBV, RootParameterSRV, RootParameterUAV:
		default:
			return errors.Errorf("root parameter %d has unknown kind %d", index, param.Kind)
		}
	}

	return nil
}

// TableHeapType returns the heap that the descriptors of a table parameter live in
func (rs *RootSignature) TableHeapType(index int) gpu.HeapType {
	param := rs.Parameters[index]
	if param.Kind == RootParameterTable && len(param.Ranges) > 0 && param.Ranges[0].Type == gpu.RangeTypeSampler {
		return gpu.HeapTypeSampler
	}
	return gpu.HeapTypeCBVSRVUAV
}

// TableMask returns a bitmask of every descriptor table parameter
func (rs *RootSignature) TableMask() uint64 {
	var mask uint64
	for index, param := range rs.Parameters {
		if param.Kind == RootParameterTable {
			mask |= 1 << uint(index)
		}
	}
	return mask
}

// TableMaskForHeap returns a bitmask of the descriptor table parameters whose descriptors
// live in heapType
func (rs *RootSignature) TableMaskForHeap(heapType gpu.HeapType) uint64 {
	var mask uint64
	for index, param := range rs.Parameters {
		if param.Kind == RootParameterTable && rs.TableHeapType(index) == heapType {
			mask |= 1 << uint(index)
		}
	}
	return mask
}

// TableSize returns the total number of descriptors in a table parameter, or 0 for any
// other kind of parameter
func (rs *RootSignature) TableSize(index int) int {
	param := rs.Parameters[index]
	if param.Kind != RootParameterTable {
		return 0
	}

	size := 0
	for _, r := range param.Ranges {
		size += r.Count
	}
	return size
}

// InlineMask returns a bitmask of the inline view parameters of the requested kind
func (rs *RootSignature) InlineMask(kind gpu.RootViewKind) uint64 {
	var want RootParameterKind
	switch kind {
	case gpu.RootViewCBV:
		want = RootParameterCBV
	case gpu.RootViewSRV:
		want = RootParameterSRV
	case gpu.RootViewUAV:
		want = RootParameterUAV
	default:
		return 0
	}

	var mask uint64
	for index, param := range rs.Parameters {
		if param.Kind == want {
			mask |= 1 << uint(index)
		}
	}
	return mask
}
