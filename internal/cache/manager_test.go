package cache

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bstore/internal/interfaces"
)

// memDevice serves a block image from memory.
type memDevice struct {
	data []byte
}

func (d memDevice) Size() int64 {
	return int64(len(d.data))
}

func (d memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func testImage(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestManagerPin(t *testing.T) {
	manager := NewManager(memDevice{data: testImage(2048)}, 512)

	handle, err := manager.Pin(1, 512)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), handle.Addr())
	assert.Equal(t, uint32(512), handle.Size())
	assert.Equal(t, byte(0), handle.Data()[0])
	assert.Equal(t, byte(1), handle.Data()[1])
	assert.Len(t, handle.Data(), 512)
	assert.Equal(t, 1, manager.Outstanding())

	manager.Unpin(handle)
	assert.Equal(t, 0, manager.Outstanding())
}

func TestManagerPinPastEnd(t *testing.T) {
	manager := NewManager(memDevice{data: testImage(1024)}, 512)

	_, err := manager.Pin(1, 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past the end of the device")
	assert.Equal(t, 0, manager.Outstanding())
}

func TestManagerPinZeroSize(t *testing.T) {
	manager := NewManager(memDevice{data: testImage(1024)}, 512)

	_, err := manager.Pin(0, 0)
	assert.Error(t, err)
}

func TestManagerRetryHook(t *testing.T) {
	manager := NewManager(memDevice{data: testImage(1024)}, 512)
	calls := 0
	manager.SetRetryHook(func(addr uint64, size uint32) bool {
		calls++
		return calls == 1
	})

	_, err := manager.Pin(0, 512)
	require.ErrorIs(t, err, interfaces.ErrPinRetry)
	assert.Equal(t, 0, manager.Outstanding())

	handle, err := manager.Pin(0, 512)
	require.NoError(t, err)
	assert.Equal(t, 1, manager.Outstanding())
	manager.Unpin(handle)
}

func TestManagerHandleIsPrivateCopy(t *testing.T) {
	image := testImage(1024)
	manager := NewManager(memDevice{data: image}, 512)

	handle, err := manager.Pin(0, 512)
	require.NoError(t, err)
	image[0] = 0xff
	assert.Equal(t, byte(0), handle.Data()[0])
	manager.Unpin(handle)
}
