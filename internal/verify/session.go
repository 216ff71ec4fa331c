package verify

import (
	"bytes"
	"sync"

	"github.com/deploymenttheory/go-bstore/internal/interfaces"
	"github.com/deploymenttheory/go-bstore/internal/types"
)

// Config is the database handle's format configuration. The
// descriptor page must match it field for field.
type Config struct {
	// AllocSize is the allocation unit in bytes.
	AllocSize uint32

	// IntlMin and IntlMax bound internal page sizes.
	IntlMin uint32
	IntlMax uint32

	// LeafMin and LeafMax bound leaf page sizes.
	LeafMin uint32
	LeafMax uint32

	// FixedLen is the fixed record length for column-fixed databases,
	// zero otherwise.
	FixedLen uint32

	// Flags holds the types.Desc* flag bits.
	Flags uint32
}

// DefaultConfig returns the configuration a database is created with
// when the caller specifies nothing.
func DefaultConfig() *Config {
	return &Config{
		AllocSize: types.DefaultAllocSize,
		IntlMin:   types.DefaultAllocSize,
		IntlMax:   16 * 1024,
		LeafMin:   types.DefaultAllocSize,
		LeafMax:   16 * 1024,
	}
}

// Session carries everything one verification run needs: the handle
// configuration, the page manager, the comparators and decoders the
// database was opened with, and the caller's reporting callbacks.
type Session struct {
	// Config is the handle's format configuration.
	Config *Config

	// Pages pins and releases file pages.
	Pages interfaces.PageManager

	// FileSize is the file length in bytes.
	FileSize uint64

	// Compare orders row-store keys; nil means bytewise comparison.
	Compare interfaces.Compare

	// DupCompare orders values within a duplicate group; nil means
	// bytewise comparison.
	DupCompare interfaces.Compare

	// DecodeKey and DecodeData are the configured decompressors, or
	// nil.
	DecodeKey  interfaces.Decode
	DecodeData interfaces.Decode

	// Report receives every structural problem found.
	Report interfaces.ErrorFunc

	// Progress receives periodic page counts.
	Progress interfaces.ProgressFunc

	scratch sync.Pool
}

// rowCompare returns the configured row comparator, defaulting to
// bytewise ordering.
func (s *Session) rowCompare() interfaces.Compare {
	if s.Compare != nil {
		return s.Compare
	}
	return bytes.Compare
}

// dupCompare returns the configured duplicate comparator, defaulting
// to bytewise ordering.
func (s *Session) dupCompare() interfaces.Compare {
	if s.DupCompare != nil {
		return s.DupCompare
	}
	return bytes.Compare
}

// reportError forwards a formatted message to the error sink, if one
// is configured.
func (s *Session) reportError(format string, args ...interface{}) {
	if s.Report != nil {
		s.Report(format, args...)
	}
}

// reportProgress forwards a progress count, if a callback is
// configured.
func (s *Session) reportProgress(name string, count uint64) {
	if s.Progress != nil {
		s.Progress(name, count)
	}
}

// acquireBuf takes a scratch buffer from the session pool.
func (s *Session) acquireBuf() *bytes.Buffer {
	if v := s.scratch.Get(); v != nil {
		return v.(*bytes.Buffer)
	}
	return &bytes.Buffer{}
}

// releaseBuf returns a scratch buffer to the session pool.
func (s *Session) releaseBuf(buf *bytes.Buffer) {
	buf.Reset()
	s.scratch.Put(buf)
}
