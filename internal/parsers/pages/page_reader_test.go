package pages

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/go-bstore/internal/types"
)

// createTestPageData builds a raw page image with the given header
// fields and a zeroed body.
func createTestPageData(pageType, level uint8, startRecno, records uint64, u uint32, size int) []byte {
	data := make([]byte, size)
	le := binary.LittleEndian
	data[0] = pageType
	data[1] = level
	le.PutUint64(data[24:32], startRecno)
	le.PutUint64(data[32:40], records)
	le.PutUint32(data[40:44], u)
	return data
}

func TestNewPageReader(t *testing.T) {
	data := createTestPageData(types.PageRowLeaf, types.LeafLevel, 0, 42, 7, 512)

	pr, err := NewPageReader(data)
	if err != nil {
		t.Fatalf("NewPageReader() error = %v", err)
	}

	if pr.Type() != types.PageRowLeaf {
		t.Errorf("Type() = %d, want %d", pr.Type(), types.PageRowLeaf)
	}
	if pr.Level() != types.LeafLevel {
		t.Errorf("Level() = %d, want %d", pr.Level(), types.LeafLevel)
	}
	if pr.Records() != 42 {
		t.Errorf("Records() = %d, want 42", pr.Records())
	}
	if pr.Entries() != 7 {
		t.Errorf("Entries() = %d, want 7", pr.Entries())
	}
	if !pr.IsLeaf() {
		t.Error("IsLeaf() = false, want true")
	}
	if len(pr.Body()) != 512-types.PageHeaderSize {
		t.Errorf("Body() length = %d, want %d", len(pr.Body()), 512-types.PageHeaderSize)
	}
	if !pr.ReservedZero() {
		t.Error("ReservedZero() = false, want true")
	}
}

func TestNewPageReaderTooSmall(t *testing.T) {
	if _, err := NewPageReader(make([]byte, types.PageHeaderSize-1)); err == nil {
		t.Error("NewPageReader() with short data: expected error")
	}
}

func TestPageReaderReservedZero(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"flags byte", 2},
		{"unused bytes", 3},
		{"header padding", 5},
		{"lsn", 8},
		{"trailing reserved span", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := createTestPageData(types.PageRowLeaf, types.LeafLevel, 0, 0, 0, 512)
			data[tt.offset] = 1
			pr, err := NewPageReader(data)
			if err != nil {
				t.Fatalf("NewPageReader() error = %v", err)
			}
			if pr.ReservedZero() {
				t.Error("ReservedZero() = true, want false")
			}
		})
	}
}

func TestPageReaderStartRecno(t *testing.T) {
	data := createTestPageData(types.PageColFixed, types.LeafLevel, 100, 10, 10, 512)
	pr, err := NewPageReader(data)
	if err != nil {
		t.Fatalf("NewPageReader() error = %v", err)
	}
	if pr.StartRecno() != 100 {
		t.Errorf("StartRecno() = %d, want 100", pr.StartRecno())
	}
}
