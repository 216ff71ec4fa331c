package pages

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-bstore/internal/types"
)

// DescriptorReader decodes the descriptor record at the start of page
// zero's body.
type DescriptorReader struct {
	desc *types.DescRecordT
	data []byte
}

// NewDescriptorReader parses a descriptor record from a page body.
func NewDescriptorReader(body []byte) (*DescriptorReader, error) {
	if len(body) < types.DescRecordSize {
		return nil, fmt.Errorf("data too small for descriptor record: %d bytes", len(body))
	}

	endian := binary.LittleEndian
	desc := &types.DescRecordT{}

	desc.DescMagic = endian.Uint32(body[0:4])
	desc.DescMajorVersion = endian.Uint16(body[4:6])
	desc.DescMinorVersion = endian.Uint16(body[6:8])
	desc.DescIntlMin = endian.Uint32(body[8:12])
	desc.DescIntlMax = endian.Uint32(body[12:16])
	desc.DescLeafMin = endian.Uint32(body[16:20])
	desc.DescLeafMax = endian.Uint32(body[20:24])
	desc.DescRecnoOffset = endian.Uint64(body[24:32])
	desc.DescFixedLen = endian.Uint32(body[32:36])
	desc.DescFlags = endian.Uint32(body[36:40])
	desc.DescRootAddr = endian.Uint32(body[40:44])
	desc.DescRootSize = endian.Uint32(body[44:48])

	return &DescriptorReader{
		desc: desc,
		data: body[:types.DescRecordSize],
	}, nil
}

// Record returns the decoded descriptor record.
func (dr *DescriptorReader) Record() *types.DescRecordT {
	return dr.desc
}

// Magic returns the descriptor magic number.
func (dr *DescriptorReader) Magic() uint32 {
	return dr.desc.DescMagic
}

// Version returns the major and minor format versions.
func (dr *DescriptorReader) Version() (uint16, uint16) {
	return dr.desc.DescMajorVersion, dr.desc.DescMinorVersion
}

// RootRef returns the root page reference; a zero size means the tree
// is empty.
func (dr *DescriptorReader) RootRef() (addr uint64, size uint32) {
	return uint64(dr.desc.DescRootAddr), dr.desc.DescRootSize
}

// ReservedZero reports whether the record's reserved spans are zero:
// the record-number offset and the trailing reserved bytes.
func (dr *DescriptorReader) ReservedZero() bool {
	if dr.desc.DescRecnoOffset != 0 {
		return false
	}
	for _, b := range dr.data[types.DescRecordSize-types.DescReservedSize:] {
		if b != 0 {
			return false
		}
	}
	return true
}
