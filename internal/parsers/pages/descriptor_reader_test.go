package pages

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bstore/internal/types"
)

// createTestDescriptorData builds a descriptor record image.
func createTestDescriptorData(magic uint32, rootAddr, rootSize uint32) []byte {
	body := make([]byte, types.DescRecordSize)
	le := binary.LittleEndian
	le.PutUint32(body[0:4], magic)
	le.PutUint16(body[4:6], types.MajorVersion)
	le.PutUint16(body[6:8], types.MinorVersion)
	le.PutUint32(body[8:12], 512)
	le.PutUint32(body[12:16], 16384)
	le.PutUint32(body[16:20], 512)
	le.PutUint32(body[20:24], 16384)
	le.PutUint32(body[40:44], rootAddr)
	le.PutUint32(body[44:48], rootSize)
	return body
}

func TestNewDescriptorReader(t *testing.T) {
	body := createTestDescriptorData(types.BstoreMagic, 3, 1024)

	dr, err := NewDescriptorReader(body)
	require.NoError(t, err)

	assert.Equal(t, types.BstoreMagic, dr.Magic())
	major, minor := dr.Version()
	assert.Equal(t, types.MajorVersion, major)
	assert.Equal(t, types.MinorVersion, minor)

	rootAddr, rootSize := dr.RootRef()
	assert.Equal(t, uint64(3), rootAddr)
	assert.Equal(t, uint32(1024), rootSize)

	assert.True(t, dr.ReservedZero())
}

func TestNewDescriptorReaderTooSmall(t *testing.T) {
	_, err := NewDescriptorReader(make([]byte, types.DescRecordSize-1))
	assert.Error(t, err)
}

func TestDescriptorReaderReservedZero(t *testing.T) {
	t.Run("non-zero recno offset", func(t *testing.T) {
		body := createTestDescriptorData(types.BstoreMagic, 0, 0)
		body[24] = 1
		dr, err := NewDescriptorReader(body)
		require.NoError(t, err)
		assert.False(t, dr.ReservedZero())
	})

	t.Run("non-zero reserved tail", func(t *testing.T) {
		body := createTestDescriptorData(types.BstoreMagic, 0, 0)
		body[types.DescRecordSize-1] = 1
		dr, err := NewDescriptorReader(body)
		require.NoError(t, err)
		assert.False(t, dr.ReservedZero())
	})
}
