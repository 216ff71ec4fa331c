package pages

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-bstore/internal/types"
)

// Item is one decoded item from a variable-format page body.
type Item struct {
	// Index is the item's position on the page, numbered from 1.
	Index int

	// Type is the item type.
	Type uint8

	// Len is the declared payload length.
	Len uint32

	// Payload is the item's payload bytes.
	Payload []byte
}

// ItemReader iterates the tagged items packed into a page body. The
// caller drives iteration by the page's entry count; the reader only
// guards against items running off the end of the body.
type ItemReader struct {
	body []byte
	off  int
	next int
}

// NewItemReader returns an iterator over a page body.
func NewItemReader(body []byte) *ItemReader {
	return &ItemReader{body: body, next: 1}
}

// Next decodes the next item. It fails if the item header or payload
// extends past the end of the body.
func (ir *ItemReader) Next() (*Item, error) {
	if ir.off+types.ItemHeaderSize > len(ir.body) {
		return nil, fmt.Errorf("item %d header at offset %d extends past end of page body (%d bytes)",
			ir.next, ir.off, len(ir.body))
	}

	word := binary.LittleEndian.Uint32(ir.body[ir.off : ir.off+types.ItemHeaderSize])
	itemType := uint8(word >> 24)
	itemLen := word & types.ItemMaxLen

	start := ir.off + types.ItemHeaderSize
	if uint32(len(ir.body)-start) < itemLen {
		return nil, fmt.Errorf("item %d payload (%d bytes at offset %d) extends past end of page body (%d bytes)",
			ir.next, itemLen, start, len(ir.body))
	}

	item := &Item{
		Index:   ir.next,
		Type:    itemType,
		Len:     itemLen,
		Payload: ir.body[start : start+int(itemLen)],
	}

	ir.off = start + alignItem(int(itemLen))
	ir.next++
	return item, nil
}

// alignItem rounds a payload length up to the item alignment boundary.
func alignItem(n int) int {
	return (n + types.ItemAlign - 1) &^ (types.ItemAlign - 1)
}

// ParseOverflowRef decodes an overflow reference from an item payload.
func ParseOverflowRef(payload []byte) (*types.OverflowRefT, error) {
	if len(payload) != types.OverflowRefSize {
		return nil, fmt.Errorf("overflow reference is %d bytes, want %d", len(payload), types.OverflowRefSize)
	}
	endian := binary.LittleEndian
	return &types.OverflowRefT{
		OvflAddr: endian.Uint32(payload[0:4]),
		OvflSize: endian.Uint32(payload[4:8]),
	}, nil
}

// ParseOffRef decodes an off-page reference from an item payload or a
// column-internal entry.
func ParseOffRef(payload []byte) (*types.OffRefT, error) {
	if len(payload) != types.OffRefSize {
		return nil, fmt.Errorf("off-page reference is %d bytes, want %d", len(payload), types.OffRefSize)
	}
	endian := binary.LittleEndian
	return &types.OffRefT{
		OffRecords: endian.Uint64(payload[0:8]),
		OffAddr:    endian.Uint32(payload[8:12]),
		OffSize:    endian.Uint32(payload[12:16]),
	}, nil
}
