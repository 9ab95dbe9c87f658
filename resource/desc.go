package resource

import (
	"github.com/vkngwrapper/core/v2/common"
)

// Dimension identifies the shape of a resource
type Dimension int32

const (
	DimensionBuffer Dimension = iota
	DimensionTexture1D
	DimensionTexture2D
	DimensionTexture3D
)

var dimensionMapping = map[Dimension]string{
	DimensionBuffer:    "Buffer",
	DimensionTexture1D: "Texture1D",
	DimensionTexture2D: "Texture2D",
	DimensionTexture3D: "Texture3D",
}

func (d Dimension) String() string {
	return dimensionMapping[d]
}

// Flags indicate which views may be created for a resource
type Flags int32

var flagsMapping = common.NewFlagStringMapping[Flags]()

func (f Flags) Register(str string) {
	flagsMapping.Register(f, str)
}

func (f Flags) String() string {
	return flagsMapping.FlagsToString(f)
}

const (
	FlagAllowRenderTarget Flags = 1 << iota
	FlagAllowDepthStencil
	FlagAllowUnorderedAccess
	FlagDenyShaderResource
)

func init() {
	FlagAllowRenderTarget.Register("AllowRenderTarget")
	FlagAllowDepthStencil.Register("AllowDepthStencil")
	FlagAllowUnorderedAccess.Register("AllowUnorderedAccess")
	FlagDenyShaderResource.Register("DenyShaderResource")
}

// Desc describes a resource to be created by a gpu.Device
type Desc struct {
	Name      string
	Dimension Dimension
	Width     int
	Height    int
	// DepthOrArraySize is the depth of a 3D texture, or the array size of anything else
	DepthOrArraySize int
	MipLevels        int
	Flags            Flags
}

// SubresourceCount returns the number of independently tracked subresources
func (d Desc) SubresourceCount() int {
	if d.Dimension == DimensionBuffer {
		return 1
	}

	mips := max(d.MipLevels, 1)
	if d.Dimension == DimensionTexture3D {
		return mips
	}

	return mips * max(d.DepthOrArraySize, 1)
}

// CalcSubresource returns the subresource index of a mip level within an array slice
func CalcSubresource(mipSlice, arraySlice, mipLevels int) Subresource {
	return Subresource(mipSlice + arraySlice*mipLevels)
}
