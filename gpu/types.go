package gpu

// HeapType identifies the kind of descriptor a descriptor heap holds
type HeapType int32

const (
	HeapTypeCBVSRVUAV HeapType = iota
	HeapTypeSampler
	HeapTypeRTV
	HeapTypeDSV

	HeapTypeCount = 4
)

var heapTypeMapping = map[HeapType]string{
	HeapTypeCBVSRVUAV: "CBVSRVUAV",
	HeapTypeSampler:   "Sampler",
	HeapTypeRTV:       "RTV",
	HeapTypeDSV:       "DSV",
}

func (t HeapType) String() string {
	return heapTypeMapping[t]
}

// ShaderVisible reports whether heaps of this type can be bound for shader access
func (t HeapType) ShaderVisible() bool {
	return t == HeapTypeCBVSRVUAV || t == HeapTypeSampler
}

// QueueType identifies a hardware queue family
type QueueType int32

const (
	QueueTypeDirect QueueType = iota
	QueueTypeCompute
	QueueTypeCopy

	QueueTypeCount = 3
)

var queueTypeMapping = map[QueueType]string{
	QueueTypeDirect:  "Direct",
	QueueTypeCompute: "Compute",
	QueueTypeCopy:    "Copy",
}

func (t QueueType) String() string {
	return queueTypeMapping[t]
}

// BindPoint selects the graphics or compute root signature of a command list
type BindPoint int32

const (
	BindPointGraphics BindPoint = iota
	BindPointCompute
)

var bindPointMapping = map[BindPoint]string{
	BindPointGraphics: "Graphics",
	BindPointCompute:  "Compute",
}

func (p BindPoint) String() string {
	return bindPointMapping[p]
}

// RootViewKind is the category of an inline (root) descriptor
type RootViewKind int32

const (
	RootViewCBV RootViewKind = iota
	RootViewSRV
	RootViewUAV

	RootViewKindCount = 3
)

var rootViewKindMapping = map[RootViewKind]string{
	RootViewCBV: "CBV",
	RootViewSRV: "SRV",
	RootViewUAV: "UAV",
}

func (k RootViewKind) String() string {
	return rootViewKindMapping[k]
}

// DescriptorRangeType is the type of descriptor held by a range of a descriptor table
type DescriptorRangeType int32

const (
	RangeTypeSRV DescriptorRangeType = iota
	RangeTypeUAV
	RangeTypeCBV
	RangeTypeSampler
)

var rangeTypeMapping = map[DescriptorRangeType]string{
	RangeTypeSRV:     "SRV",
	RangeTypeUAV:     "UAV",
	RangeTypeCBV:     "CBV",
	RangeTypeSampler: "Sampler",
}

func (t DescriptorRangeType) String() string {
	return rangeTypeMapping[t]
}

// ViewKind is the kind of view a descriptor describes
type ViewKind int32

const (
	ViewSRV ViewKind = iota
	ViewUAV
	ViewCBV
	ViewSampler
	ViewRTV
	ViewDSV
)

var viewKindMapping = map[ViewKind]string{
	ViewSRV:     "SRV",
	ViewUAV:     "UAV",
	ViewCBV:     "CBV",
	ViewSampler: "Sampler",
	ViewRTV:     "RTV",
	ViewDSV:     "DSV",
}

func (k ViewKind) String() string {
	return viewKindMapping[k]
}

// CPUHandle addresses a descriptor in a CPU-visible descriptor heap. Zero is never a valid
// handle.
type CPUHandle uint64

// Offset returns the handle count descriptors past h
func (h CPUHandle) Offset(count int, increment uint32) CPUHandle {
	return h + CPUHandle(count)*CPUHandle(increment)
}

// GPUHandle addresses a descriptor in a shader-visible descriptor heap
type GPUHandle uint64

// Offset returns the handle count descriptors past h
func (h GPUHandle) Offset(count int, increment uint32) GPUHandle {
	return h + GPUHandle(count)*GPUHandle(increment)
}

// VirtualAddress is a GPU virtual address of buffer memory
type VirtualAddress uint64

// DescriptorHeapDesc describes a descriptor heap to be created
type DescriptorHeapDesc struct {
	Type           HeapType
	NumDescriptors int
	ShaderVisible  bool
}
