package pages

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-bstore/internal/types"
)

// PageReader decodes a page's fixed header and exposes its body.
type PageReader struct {
	hdr  *types.PageHeaderT
	data []byte
}

// NewPageReader parses the header of a raw page image.
func NewPageReader(data []byte) (*PageReader, error) {
	if len(data) < types.PageHeaderSize {
		return nil, fmt.Errorf("data too small for page header: %d bytes", len(data))
	}

	hdr, err := parsePageHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page header: %w", err)
	}

	return &PageReader{
		hdr:  hdr,
		data: data,
	}, nil
}

// parsePageHeader parses raw bytes into a PageHeaderT structure.
func parsePageHeader(data []byte) (*types.PageHeaderT, error) {
	if len(data) < types.PageHeaderSize {
		return nil, fmt.Errorf("insufficient data for page header")
	}

	endian := binary.LittleEndian
	hdr := &types.PageHeaderT{}

	hdr.PgType = data[0]
	hdr.PgLevel = data[1]
	hdr.PgFlags = data[2]
	hdr.PgUnused[0] = data[3]
	hdr.PgUnused[1] = data[4]

	hdr.PgLSN[0] = endian.Uint64(data[8:16])
	hdr.PgLSN[1] = endian.Uint64(data[16:24])
	hdr.PgStartRecno = endian.Uint64(data[24:32])
	hdr.PgRecords = endian.Uint64(data[32:40])
	hdr.PgU = endian.Uint32(data[40:44])

	return hdr, nil
}

// Type returns the page type.
func (pr *PageReader) Type() uint8 {
	return pr.hdr.PgType
}

// Level returns the page's tree level.
func (pr *PageReader) Level() uint8 {
	return pr.hdr.PgLevel
}

// Flags returns the reserved flags byte.
func (pr *PageReader) Flags() uint8 {
	return pr.hdr.PgFlags
}

// LSN returns the reserved log sequence number pair.
func (pr *PageReader) LSN() [2]uint64 {
	return pr.hdr.PgLSN
}

// StartRecno returns the first record number on a column-store page.
func (pr *PageReader) StartRecno() uint64 {
	return pr.hdr.PgStartRecno
}

// Records returns the count of logical records under this page.
func (pr *PageReader) Records() uint64 {
	return pr.hdr.PgRecords
}

// Entries returns the number of entries on the page.
func (pr *PageReader) Entries() uint32 {
	return pr.hdr.PgU
}

// Datalen returns the payload length of an overflow page. It is the
// same header word as Entries; overflow pages interpret it as a byte
// count.
func (pr *PageReader) Datalen() uint32 {
	return pr.hdr.PgU
}

// Body returns the page's bytes after the fixed header.
func (pr *PageReader) Body() []byte {
	return pr.data[types.PageHeaderSize:]
}

// IsLeaf reports whether the page is at the leaf level.
func (pr *PageReader) IsLeaf() bool {
	return pr.hdr.PgLevel == types.LeafLevel
}

// ReservedZero reports whether every reserved header span is zero:
// the flags byte, the unused bytes, the header padding, the log
// sequence numbers, and the trailing reserved span.
func (pr *PageReader) ReservedZero() bool {
	if pr.hdr.PgFlags != 0 || pr.hdr.PgUnused[0] != 0 || pr.hdr.PgUnused[1] != 0 {
		return false
	}
	if pr.hdr.PgLSN[0] != 0 || pr.hdr.PgLSN[1] != 0 {
		return false
	}
	for _, b := range pr.data[5:8] {
		if b != 0 {
			return false
		}
	}
	for _, b := range pr.data[44:types.PageHeaderSize] {
		if b != 0 {
			return false
		}
	}
	return true
}
