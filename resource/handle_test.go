package resource_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armature/resource"
)

func TestRegistryStaleHandle(t *testing.T) {
	var registry resource.Registry[string]

	var zero resource.Handle
	require.False(t, zero.IsValid())
	_, ok := registry.Lookup(zero)
	require.False(t, ok)

	first := registry.Register("first")
	require.True(t, first.IsValid())

	value, ok := registry.Lookup(first)
	require.True(t, ok)
	require.Equal(t, "first", value)

	value, ok = registry.Unregister(first)
	require.True(t, ok)
	require.Equal(t, "first", value)

	second := registry.Register("second")
	require.NotEqual(t, first, second)

	_, ok = registry.Lookup(first)
	require.False(t, ok)
	_, ok = registry.Unregister(first)
	require.False(t, ok)

	value, ok = registry.Lookup(second)
	require.True(t, ok)
	require.Equal(t, "second", value)
	require.Equal(t, 1, registry.Len())
}

func TestRegistryVisit(t *testing.T) {
	var registry resource.Registry[int]
	a := registry.Register(1)
	b := registry.Register(2)
	c := registry.Register(3)
	registry.Unregister(b)

	var handles []resource.Handle
	sum := 0
	registry.Visit(func(handle resource.Handle, value int) {
		handles = append(handles, handle)
		sum += value
	})

	require.Equal(t, []resource.Handle{a, c}, handles)
	require.Equal(t, 4, sum)
}

func TestStatesString(t *testing.T) {
	require.Equal(t, "Common", resource.StateCommon.String())
	require.Equal(t, "RenderTarget", resource.StateRenderTarget.String())
	require.Equal(t, "All", resource.AllSubresources.String())
	require.Equal(t, "3", resource.Subresource(3).String())

	require.True(t, resource.StateCopyDest.IsWrite())
	require.False(t, resource.StateGenericRead.IsWrite())
}

func TestSubresourceCount(t *testing.T) {
	require.Equal(t, 1, resource.Desc{Dimension: resource.DimensionBuffer, Width: 1024}.SubresourceCount())
	require.Equal(t, 1, resource.Desc{Dimension: resource.DimensionTexture2D}.SubresourceCount())
	require.Equal(t, 24, resource.Desc{Dimension: resource.DimensionTexture2D, MipLevels: 4, DepthOrArraySize: 6}.SubresourceCount())
	require.Equal(t, 4, resource.Desc{Dimension: resource.DimensionTexture3D, MipLevels: 4, DepthOrArraySize: 6}.SubresourceCount())

	require.Equal(t, resource.Subresource(9), resource.CalcSubresource(1, 2, 4))
}

func TestBarrierKinds(t *testing.T) {
	var barriers []resource.Barrier
	var registry resource.Registry[struct{}]
	h := registry.Register(struct{}{})

	barriers = append(barriers,
		resource.TransitionBarrier{Resource: h, Subresource: 0, Before: resource.StateCommon, After: resource.StateCopyDest},
		resource.UAVBarrier{Resource: h},
		resource.AliasingBarrier{After: h},
	)

	require.Equal(t, resource.BarrierTransition, barriers[0].Kind())
	require.Equal(t, resource.BarrierUAV, barriers[1].Kind())
	require.Equal(t, resource.BarrierAliasing, barriers[2].Kind())
	require.Equal(t, "Transition(Handle(0:1)[0]: Common -> CopyDest)", barriers[0].String())
}
