package soft_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/gpu/soft"
	"github.com/vkngwrapper/armature/memutils"
)

func testDevice(options soft.Options) *soft.Device {
	return soft.NewDevice(slog.New(slog.NewJSONHandler(io.Discard, nil)), options)
}

func TestFence_WaitWakesOnComplete(t *testing.T) {
	fence := &soft.Fence{}

	done := make(chan error, 1)
	go func() {
		done <- fence.Wait(context.Background(), 3)
	}()

	fence.Complete(2)
	select {
	case <-done:
		t.Fatal("wait returned before its value completed")
	case <-time.After(10 * time.Millisecond):
	}

	fence.Complete(3)
	require.NoError(t, <-done)

	// The fence never moves backward
	fence.Complete(1)
	require.Equal(t, uint64(3), fence.CompletedValue())
}

func TestFence_WaitHonorsContext(t *testing.T) {
	fence := &soft.Fence{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, fence.Wait(ctx, 1), context.DeadlineExceeded)
}

func TestCommandQueue_ManualFences(t *testing.T) {
	device := testDevice(soft.Options{ManualFences: true})

	native, err := device.CreateCommandQueue(gpu.QueueTypeDirect)
	require.NoError(t, err)
	queue := native.(*soft.CommandQueue)

	fence, err := device.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, queue.Signal(fence, 1))
	require.NoError(t, queue.Signal(fence, 2))
	require.Zero(t, fence.CompletedValue())

	queue.CompletePending()
	require.Equal(t, uint64(2), fence.CompletedValue())
}

func TestCommandQueue_ExecuteValidatesLists(t *testing.T) {
	device := testDevice(soft.Options{})

	queue, err := device.CreateCommandQueue(gpu.QueueTypeDirect)
	require.NoError(t, err)

	open, err := device.CreateCommandList(gpu.QueueTypeDirect)
	require.NoError(t, err)
	require.Error(t, queue.ExecuteCommandLists(open))

	copyList, err := device.CreateCommandList(gpu.QueueTypeCopy)
	require.NoError(t, err)
	require.NoError(t, copyList.Close())
	require.Error(t, queue.ExecuteCommandLists(copyList))

	require.NoError(t, open.Close())
	require.NoError(t, queue.ExecuteCommandLists(open))
	require.Len(t, queue.(*soft.CommandQueue).Submissions(), 1)
}

func TestUploadBuffer_Write(t *testing.T) {
	device := testDevice(soft.Options{})

	native, err := device.CreateUploadBuffer(64)
	require.NoError(t, err)
	buffer := native.(*soft.UploadBuffer)

	require.NoError(t, buffer.Write(8, []byte{1, 2, 3}))
	require.Equal(t, []byte{0, 1, 2, 3}, buffer.Bytes(7, 4))
	require.Equal(t, []soft.WriteRange{{Offset: 8, Size: 3}}, buffer.Writes())

	require.ErrorIs(t, buffer.Write(62, []byte{1, 2, 3}), memutils.OutOfRangeError)

	buffer.Release()
	require.Error(t, buffer.Write(0, []byte{1}))
}

func TestDevice_InjectedErrorFailsOnce(t *testing.T) {
	device := testDevice(soft.Options{})
	injected := errors.New("device removed")

	device.InjectCreateError(injected)
	_, err := device.CreateUploadBuffer(16)
	require.ErrorIs(t, err, injected)

	_, err = device.CreateUploadBuffer(16)
	require.NoError(t, err)
}
