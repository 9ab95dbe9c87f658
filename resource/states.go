package resource

import (
	"strconv"

	"github.com/vkngwrapper/core/v2/common"
)

// States is the usage state of a subresource on the device timeline. Bit values match the
// D3D12 resource state bitmask so a native backend can pass them through unchanged.
type States int32

var statesMapping = common.NewFlagStringMapping[States]()

func (s States) Register(str string) {
	statesMapping.Register(s, str)
}

func (s States) String() string {
	if s == StateCommon {
		return "Common"
	}
	return statesMapping.FlagsToString(s)
}

const (
	StateCommon                  States = 0
	StateVertexAndConstantBuffer States = 0x1
	StateIndexBuffer             States = 0x2
	StateRenderTarget            States = 0x4
	StateUnorderedAccess         States = 0x8
	StateDepthWrite              States = 0x10
	StateDepthRead               States = 0x20
	StateNonPixelShaderResource  States = 0x40
	StatePixelShaderResource     States = 0x80
	StateStreamOut               States = 0x100
	StateIndirectArgument        States = 0x200
	StateCopyDest                States = 0x400
	StateCopySource              States = 0x800
	StateResolveDest             States = 0x1000
	StateResolveSource           States = 0x2000

	StatePresent        = StateCommon
	StateShaderResource = StateNonPixelShaderResource | StatePixelShaderResource
	StateGenericRead    = StateVertexAndConstantBuffer | StateIndexBuffer | StateNonPixelShaderResource |
		StatePixelShaderResource | StateIndirectArgument | StateCopySource

	writeStates = StateRenderTarget | StateUnorderedAccess | StateDepthWrite | StateStreamOut |
		StateCopyDest | StateResolveDest
)

func init() {
	StateVertexAndConstantBuffer.Register("VertexAndConstantBuffer")
	StateIndexBuffer.Register("IndexBuffer")
	StateRenderTarget.Register("RenderTarget")
	StateUnorderedAccess.Register("UnorderedAccess")
	StateDepthWrite.Register("DepthWrite")
	StateDepthRead.Register("DepthRead")
	StateNonPixelShaderResource.Register("NonPixelShaderResource")
	StatePixelShaderResource.Register("PixelShaderResource")
	StateStreamOut.Register("StreamOut")
	StateIndirectArgument.Register("IndirectArgument")
	StateCopyDest.Register("CopyDest")
	StateCopySource.Register("CopySource")
	StateResolveDest.Register("ResolveDest")
	StateResolveSource.Register("ResolveSource")
}

// IsWrite reports whether s includes a state in which the GPU may write the subresource
func (s States) IsWrite() bool {
	return s&writeStates != 0
}

// Subresource indexes a mip level / array slice of a resource. AllSubresources is a
// wildcard covering every subresource uniformly.
type Subresource uint32

const AllSubresources Subresource = 0xffffffff

func (s Subresource) String() string {
	if s == AllSubresources {
		return "All"
	}
	return strconv.FormatUint(uint64(s), 10)
}
