package state

import (
	"io"
	"log/slog"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armature/resource"
)

type fixture struct {
	registry resource.Registry[string]
	global   *GlobalTracker
}

func newFixture() *fixture {
	return &fixture{
		global: NewGlobalTracker(slog.New(slog.NewJSONHandler(io.Discard, nil))),
	}
}

func (f *fixture) register(name string, initial resource.States, subresources int) resource.Handle {
	handle := f.registry.Register(name)
	f.global.Register(handle, initial, subresources)
	return handle
}

func transition(handle resource.Handle, sub resource.Subresource, before, after resource.States) resource.Barrier {
	return resource.TransitionBarrier{Resource: handle, Subresource: sub, Before: before, After: after}
}

func pendingOf(t *testing.T, tracker *LocalTracker, handle resource.Handle) *SubresourceStates {
	var found *SubresourceStates
	tracker.PendingStates(func(h resource.Handle, states *SubresourceStates) {
		if h == handle {
			found = states
		}
	})
	require.NotNil(t, found)
	return found
}

func TestLocalTracker_RepeatedTransitionIsNoop(t *testing.T) {
	f := newFixture()
	target := f.register("target", resource.StateCommon, 1)
	local := NewLocalTracker(f.global)

	require.Nil(t, local.TransitionResource(target, resource.StateRenderTarget, resource.AllSubresources))
	require.Nil(t, local.TransitionResource(target, resource.StateRenderTarget, resource.AllSubresources))

	require.Equal(t, 1, local.Len())
	pending := pendingOf(t, local, target)
	require.Equal(t, 0, pending.ExplicitCount())
	state, uniform := pending.Uniform()
	require.True(t, uniform)
	require.Equal(t, resource.StateRenderTarget, state)
}

func TestLocalTracker_LaterTouchEmitsBarrier(t *testing.T) {
	f := newFixture()
	target := f.register("target", resource.StateCommon, 1)
	local := NewLocalTracker(f.global)

	require.Nil(t, local.TransitionResource(target, resource.StateRenderTarget, resource.AllSubresources))
	barriers := local.TransitionResource(target, resource.StatePixelShaderResource, resource.AllSubresources)
	require.Equal(t, []resource.Barrier{
		transition(target, resource.AllSubresources, resource.StateRenderTarget, resource.StatePixelShaderResource),
	}, barriers)

	require.Equal(t, resource.StatePixelShaderResource, local.KnownState(target, resource.AllSubresources))
	require.Equal(t, resource.StatePixelShaderResource, local.KnownState(target, 0))

	pendingState, _ := pendingOf(t, local, target).Uniform()
	require.Equal(t, resource.StateRenderTarget, pendingState)
}

func TestLocalTracker_WildcardOverPartiallyKnownResource(t *testing.T) {
	f := newFixture()
	texture := f.register("texture", resource.StateCommon, 6)
	local := NewLocalTracker(f.global)

	require.Nil(t, local.TransitionResource(texture, resource.StateCopyDest, 2))
	require.Nil(t, local.TransitionResource(texture, resource.StateCopyDest, 2))
	require.Nil(t, local.TransitionResource(texture, resource.StateRenderTarget, 3))

	barriers := local.TransitionResource(texture, resource.StateShaderResource, resource.AllSubresources)
	require.Equal(t, []resource.Barrier{
		transition(texture, 2, resource.StateCopyDest, resource.StateShaderResource),
		transition(texture, 3, resource.StateRenderTarget, resource.StateShaderResource),
	}, barriers)

	pending := pendingOf(t, local, texture)
	state, ok := pending.Get(2)
	require.True(t, ok)
	require.Equal(t, resource.StateCopyDest, state)
	state, ok = pending.Get(3)
	require.True(t, ok)
	require.Equal(t, resource.StateRenderTarget, state)
	state, ok = pending.Get(0)
	require.True(t, ok)
	require.Equal(t, resource.StateShaderResource, state)

	for sub := resource.Subresource(0); sub < 6; sub++ {
		require.Equal(t, resource.StateShaderResource, local.KnownState(texture, sub))
	}
}

func TestLocalTracker_WildcardOverUniformExplicitStates(t *testing.T) {
	f := newFixture()
	texture := f.register("texture", resource.StateCommon, 3)
	local := NewLocalTracker(f.global)

	require.Nil(t, local.TransitionResource(texture, resource.StateRenderTarget, resource.AllSubresources))
	require.Equal(t, []resource.Barrier{
		transition(texture, 1, resource.StateRenderTarget, resource.StatePixelShaderResource),
	}, local.TransitionResource(texture, resource.StatePixelShaderResource, 1))
	require.Equal(t, []resource.Barrier{
		transition(texture, 1, resource.StatePixelShaderResource, resource.StateRenderTarget),
	}, local.TransitionResource(texture, resource.StateRenderTarget, 1))

	// Every subresource is back in RenderTarget so one wildcard barrier covers them all
	require.Equal(t, []resource.Barrier{
		transition(texture, resource.AllSubresources, resource.StateRenderTarget, resource.StateCopyDest),
	}, local.TransitionResource(texture, resource.StateCopyDest, resource.AllSubresources))
}

func TestLocalTracker_KnownStateOfUntouchedResourceIsFatal(t *testing.T) {
	f := newFixture()
	target := f.register("target", resource.StateCommon, 1)
	local := NewLocalTracker(f.global)

	require.Panics(t, func() {
		local.KnownState(target, resource.AllSubresources)
	})

	local.TransitionResource(target, resource.StateCopyDest, resource.AllSubresources)
	local.Reset()
	require.False(t, local.Touched(target))
	require.Equal(t, 0, local.Len())
}

func TestGlobalTracker_MatchingPendingStateNeedsNoBarrier(t *testing.T) {
	f := newFixture()
	target := f.register("target", resource.StateRenderTarget, 1)
	local := NewLocalTracker(f.global)

	local.TransitionResource(target, resource.StateRenderTarget, resource.AllSubresources)

	results := f.global.ResolvePending(local)
	require.Len(t, results, 1)
	require.Empty(t, results[0])
	require.Equal(t, resource.StateRenderTarget, f.global.State(target, resource.AllSubresources))
}

func TestGlobalTracker_SubmissionOrder(t *testing.T) {
	f := newFixture()
	buffer := f.register("buffer", resource.StateCommon, 1)

	first := NewLocalTracker(f.global)
	second := NewLocalTracker(f.global)
	third := NewLocalTracker(f.global)

	first.TransitionResource(buffer, resource.StateUnorderedAccess, resource.AllSubresources)
	first.TransitionResource(buffer, resource.StateCopySource, resource.AllSubresources)
	second.TransitionResource(buffer, resource.StateCopySource, resource.AllSubresources)
	third.TransitionResource(buffer, resource.StateUnorderedAccess, resource.AllSubresources)

	results := f.global.ResolvePending(first, second, third)
	require.Equal(t, [][]resource.Barrier{
		{transition(buffer, resource.AllSubresources, resource.StateCommon, resource.StateUnorderedAccess)},
		nil,
		{transition(buffer, resource.AllSubresources, resource.StateCopySource, resource.StateUnorderedAccess)},
	}, results)

	require.Equal(t, resource.StateUnorderedAccess, f.global.State(buffer, resource.AllSubresources))
}

func TestGlobalTracker_WildcardAgainstVaryingSubresources(t *testing.T) {
	f := newFixture()
	texture := f.register("texture", resource.StateCommon, 4)

	first := NewLocalTracker(f.global)
	first.TransitionResource(texture, resource.StateRenderTarget, 1)
	require.Equal(t, [][]resource.Barrier{
		{transition(texture, 1, resource.StateCommon, resource.StateRenderTarget)},
	}, f.global.ResolvePending(first))

	require.Equal(t, resource.StateCommon, f.global.State(texture, 0))
	require.Equal(t, resource.StateRenderTarget, f.global.State(texture, 1))

	second := NewLocalTracker(f.global)
	second.TransitionResource(texture, resource.StateCopyDest, resource.AllSubresources)
	require.Equal(t, [][]resource.Barrier{{
		transition(texture, 0, resource.StateCommon, resource.StateCopyDest),
		transition(texture, 1, resource.StateRenderTarget, resource.StateCopyDest),
		transition(texture, 2, resource.StateCommon, resource.StateCopyDest),
		transition(texture, 3, resource.StateCommon, resource.StateCopyDest),
	}}, f.global.ResolvePending(second))

	// Once every subresource agrees a wildcard barrier is enough again
	third := NewLocalTracker(f.global)
	third.TransitionResource(texture, resource.StateShaderResource, resource.AllSubresources)
	require.Equal(t, [][]resource.Barrier{
		{transition(texture, resource.AllSubresources, resource.StateCopyDest, resource.StateShaderResource)},
	}, f.global.ResolvePending(third))
}

func TestGlobalTracker_ExplicitPendingBeforeWildcard(t *testing.T) {
	f := newFixture()
	texture := f.register("texture", resource.StateCommon, 3)

	local := NewLocalTracker(f.global)
	local.TransitionResource(texture, resource.StateCopyDest, 0)
	local.TransitionResource(texture, resource.StateRenderTarget, 1)
	local.TransitionResource(texture, resource.StateShaderResource, resource.AllSubresources)

	require.Equal(t, [][]resource.Barrier{{
		transition(texture, 0, resource.StateCommon, resource.StateCopyDest),
		transition(texture, 1, resource.StateCommon, resource.StateRenderTarget),
		transition(texture, 2, resource.StateCommon, resource.StateShaderResource),
	}}, f.global.ResolvePending(local))

	for sub := resource.Subresource(0); sub < 3; sub++ {
		require.Equal(t, resource.StateShaderResource, f.global.State(texture, sub))
	}
}

func TestGlobalTracker_Registration(t *testing.T) {
	f := newFixture()
	target := f.register("target", resource.StateCommon, 2)

	require.True(t, f.global.IsRegistered(target))
	require.Equal(t, 2, f.global.SubresourceCount(target))
	require.Panics(t, func() {
		f.global.Register(target, resource.StateCommon, 2)
	})
	require.Panics(t, func() {
		f.global.Register(resource.Handle{}, resource.StateCommon, 1)
	})

	local := NewLocalTracker(f.global)
	local.TransitionResource(target, resource.StateCopyDest, resource.AllSubresources)

	f.global.Unregister(target)
	require.Equal(t, 0, f.global.SubresourceCount(target))
	require.Equal(t, 0, f.global.Len())
	require.Panics(t, func() {
		f.global.State(target, resource.AllSubresources)
	})
	require.Panics(t, func() {
		f.global.ResolvePending(local)
	})
}

func TestGlobalTracker_PrintStates(t *testing.T) {
	f := newFixture()
	f.register("buffer", resource.StateCommon, 1)
	texture := f.register("texture", resource.StateCopyDest, 3)

	local := NewLocalTracker(f.global)
	local.TransitionResource(texture, resource.StateRenderTarget, 1)
	f.global.ResolvePending(local)

	writer := jwriter.NewWriter()
	f.global.PrintStates(&writer)
	require.Equal(t, `{"Handle(0:1)":{"SubresourceCount":1,"All":"Common"},"Handle(1:1)":{"SubresourceCount":3,"All":"CopyDest","Subresources":{"1":"RenderTarget"}}}`, string(writer.Bytes()))
}

func TestSubresourceStates_Compact(t *testing.T) {
	var states SubresourceStates
	states.Set(resource.AllSubresources, resource.StateCommon)
	states.Set(2, resource.StateCopyDest)
	states.Set(0, resource.StateCommon)
	require.Equal(t, 2, states.ExplicitCount())

	states.Compact(3)
	require.Equal(t, 1, states.ExplicitCount())

	states.Set(0, resource.StateCopyDest)
	states.Set(1, resource.StateCopyDest)
	states.Compact(3)
	state, uniform := states.Uniform()
	require.True(t, uniform)
	require.Equal(t, resource.StateCopyDest, state)
}
