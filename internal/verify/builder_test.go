package verify

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bstore/internal/cache"
	"github.com/deploymenttheory/go-bstore/internal/types"
)

// memDevice serves a database image from memory.
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

// fileBuilder constructs synthetic database images for verification
// tests.
type fileBuilder struct {
	cfg  *Config
	data []byte
}

func newFileBuilder(cfg *Config) *fileBuilder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &fileBuilder{cfg: cfg}
}

// ensure grows the image to cover a page extent and returns it.
func (b *fileBuilder) ensure(addr uint64, size uint32) []byte {
	end := int(addr)*int(b.cfg.AllocSize) + int(size)
	for len(b.data) < end {
		b.data = append(b.data, 0)
	}
	start := int(addr) * int(b.cfg.AllocSize)
	return b.data[start:end]
}

// header writes a page header into a page image.
func (b *fileBuilder) header(p []byte, pageType, level uint8, startRecno, records uint64, u uint32) {
	le := binary.LittleEndian
	p[0] = pageType
	p[1] = level
	le.PutUint64(p[24:32], startRecno)
	le.PutUint64(p[32:40], records)
	le.PutUint32(p[40:44], u)
}

// page writes a complete page: header plus body bytes.
func (b *fileBuilder) page(addr uint64, size uint32, pageType, level uint8,
	startRecno, records uint64, entries uint32, body []byte) {
	p := b.ensure(addr, size)
	b.header(p, pageType, level, startRecno, records, entries)
	copy(p[types.PageHeaderSize:], body)
}

// descriptor writes page zero from the builder's configuration.
func (b *fileBuilder) descriptor(rootAddr uint64, rootSize uint32) {
	p := b.ensure(0, b.cfg.AllocSize)
	b.header(p, types.PageDescriptor, types.NoLevel, 0, 0, 0)

	le := binary.LittleEndian
	body := p[types.PageHeaderSize:]
	le.PutUint32(body[0:4], types.BstoreMagic)
	le.PutUint16(body[4:6], types.MajorVersion)
	le.PutUint16(body[6:8], types.MinorVersion)
	le.PutUint32(body[8:12], b.cfg.IntlMin)
	le.PutUint32(body[12:16], b.cfg.IntlMax)
	le.PutUint32(body[16:20], b.cfg.LeafMin)
	le.PutUint32(body[20:24], b.cfg.LeafMax)
	le.PutUint32(body[32:36], b.cfg.FixedLen)
	le.PutUint32(body[36:40], b.cfg.Flags)
	le.PutUint32(body[40:44], uint32(rootAddr))
	le.PutUint32(body[44:48], rootSize)
}

// overflow writes an overflow page holding payload, padded with zeros.
func (b *fileBuilder) overflow(addr uint64, payload []byte) {
	size := overflowPageBytes(b.cfg, uint32(len(payload)))
	p := b.ensure(addr, uint32(size))
	b.header(p, types.PageOverflow, types.LeafLevel, 0, 0, uint32(len(payload)))
	copy(p[types.PageHeaderSize:], payload)
}

// item encodes one tagged item, padded to the item alignment.
func item(itemType uint8, payload []byte) []byte {
	padded := (len(payload) + types.ItemAlign - 1) &^ (types.ItemAlign - 1)
	buf := make([]byte, types.ItemHeaderSize+padded)
	binary.LittleEndian.PutUint32(buf, uint32(len(payload))|uint32(itemType)<<24)
	copy(buf[types.ItemHeaderSize:], payload)
	return buf
}

// join concatenates encoded items into a page body.
func join(parts ...[]byte) []byte {
	var body []byte
	for _, part := range parts {
		body = append(body, part...)
	}
	return body
}

// ovflRef encodes an overflow reference payload.
func ovflRef(addr, size uint32) []byte {
	buf := make([]byte, types.OverflowRefSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], addr)
	le.PutUint32(buf[4:8], size)
	return buf
}

// offRef encodes an off-page reference payload.
func offRef(records uint64, addr, size uint32) []byte {
	buf := make([]byte, types.OffRefSize)
	le := binary.LittleEndian
	le.PutUint64(buf[0:8], records)
	le.PutUint32(buf[8:12], addr)
	le.PutUint32(buf[12:16], size)
	return buf
}

// rowLeafKeys writes a row-store leaf holding only inline keys.
func (b *fileBuilder) rowLeafKeys(addr uint64, size uint32, keys ...string) {
	var parts [][]byte
	for _, key := range keys {
		parts = append(parts, item(types.ItemKey, []byte(key)))
	}
	b.page(addr, size, types.PageRowLeaf, types.LeafLevel, 0, uint64(len(keys)),
		uint32(len(keys)), join(parts...))
}

// rccEntry encodes one run-length entry.
func rccEntry(repeat uint16, record []byte) []byte {
	buf := make([]byte, types.RCCRepeatSize+len(record))
	binary.LittleEndian.PutUint16(buf[0:2], repeat)
	copy(buf[types.RCCRepeatSize:], record)
	return buf
}

// verifyResult runs a verification over the built image and returns
// the reported problems and the first error. Every run also checks
// that no pages were left pinned.
func (b *fileBuilder) verifyResult(t *testing.T, handleCfg *Config) ([]string, error) {
	t.Helper()
	if handleCfg == nil {
		handleCfg = b.cfg
	}

	manager := cache.NewManager(memDevice{data: b.data}, handleCfg.AllocSize)
	var problems []string
	sess := &Session{
		Config:   handleCfg,
		Pages:    manager,
		FileSize: uint64(len(b.data)),
		Report: func(format string, args ...interface{}) {
			problems = append(problems, fmt.Sprintf(format, args...))
		},
	}

	err := Verify(context.Background(), sess, nil)
	require.Zero(t, manager.Outstanding(), "pages left pinned after verification")
	return problems, err
}
