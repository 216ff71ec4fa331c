package verify

import (
	"bytes"

	"github.com/deploymenttheory/go-bstore/internal/interfaces"
	"github.com/deploymenttheory/go-bstore/internal/parsers/pages"
	"github.com/deploymenttheory/go-bstore/internal/types"
)

// verifyPage runs every page-local check: header fields, coverage
// accounting, and the body validator for the page's type. Field-level
// problems are all reported to the error sink before the first of them
// is returned.
func (wc *walkContext) verifyPage(handle interfaces.PageHandle, pr *pages.PageReader) error {
	addr := handle.Addr()

	var firstErr error
	fail := func(kindErr error, format string, args ...interface{}) {
		err := wc.report(kindErr, addr, format, args...)
		if firstErr == nil {
			firstErr = err
		}
	}

	pageType := pr.Type()
	if pageType == types.PageInvalid || pageType >= types.PageTypeMax {
		fail(ErrBadHeader, "unrecognized page type %d", pageType)
		return firstErr
	}

	if !pr.ReservedZero() {
		fail(ErrBadHeader, "reserved header fields are not zero")
	}

	switch pageType {
	case types.PageDescriptor:
		if pr.Level() != types.NoLevel {
			fail(ErrBadHeader, "descriptor page at level %d", pr.Level())
		}
	case types.PageColFixed, types.PageColRCC, types.PageColVariable,
		types.PageRowLeaf, types.PageDupLeaf, types.PageOverflow:
		if pr.Level() != types.LeafLevel {
			fail(ErrBadHeader, "%s page at level %d", types.PageTypeString(pageType), pr.Level())
		}
	default:
		if pr.Level() <= types.LeafLevel {
			fail(ErrBadHeader, "%s page at level %d", types.PageTypeString(pageType), pr.Level())
		}
	}

	switch pageType {
	case types.PageDescriptor, types.PageOverflow:
		if pr.StartRecno() != 0 || pr.Records() != 0 {
			fail(ErrBadHeader, "%s page carries record counts", types.PageTypeString(pageType))
		}
	}

	if err := wc.checkPageSize(handle, pageType, fail); err != nil {
		return firstErr
	}

	if err := wc.claimExtent(addr, handle.Size()); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	var bodyErr error
	switch pageType {
	case types.PageDescriptor:
		bodyErr = wc.verifyDescriptorBody(handle, pr)
	case types.PageColInternal:
		bodyErr = wc.verifyColInternalBody(handle, pr)
	case types.PageColFixed:
		bodyErr = wc.verifyColFixedBody(handle, pr)
	case types.PageColRCC:
		bodyErr = wc.verifyColRCCBody(handle, pr)
	case types.PageOverflow:
		bodyErr = wc.verifyOverflowBody(handle, pr)
	default:
		bodyErr = wc.verifyItems(handle, pr)
	}
	if firstErr == nil {
		firstErr = bodyErr
	}

	wc.dumpPage(handle, pr)
	wc.visited++
	wc.sess.reportProgress("verify", wc.visited)
	return firstErr
}

// checkPageSize validates a page's size against the allocation unit
// and, for tree pages, the configured page-size bounds.
func (wc *walkContext) checkPageSize(handle interfaces.PageHandle, pageType uint8,
	fail func(error, string, ...interface{})) error {
	cfg := wc.sess.Config
	size := handle.Size()
	if size == 0 || size%cfg.AllocSize != 0 {
		fail(ErrBadHeader, "page size %d is not a multiple of the allocation unit", size)
		return ErrBadHeader
	}
	switch pageType {
	case types.PageColInternal, types.PageRowInternal, types.PageDupInternal:
		if size < cfg.IntlMin || size > cfg.IntlMax {
			fail(ErrBadHeader, "internal page size %d outside the configured range %d-%d",
				size, cfg.IntlMin, cfg.IntlMax)
		}
	case types.PageColFixed, types.PageColRCC, types.PageColVariable,
		types.PageRowLeaf, types.PageDupLeaf:
		if size < cfg.LeafMin || size > cfg.LeafMax {
			fail(ErrBadHeader, "leaf page size %d outside the configured range %d-%d",
				size, cfg.LeafMin, cfg.LeafMax)
		}
	}
	return nil
}

// verifyDescriptorBody checks the descriptor record against the
// handle's configuration, reporting every mismatched field.
func (wc *walkContext) verifyDescriptorBody(handle interfaces.PageHandle, pr *pages.PageReader) error {
	addr := handle.Addr()
	dr, err := pages.NewDescriptorReader(pr.Body())
	if err != nil {
		return wc.report(ErrDescriptorMismatch, addr, "%v", err)
	}

	var firstErr error
	fail := func(format string, args ...interface{}) {
		err := wc.report(ErrDescriptorMismatch, addr, format, args...)
		if firstErr == nil {
			firstErr = err
		}
	}

	cfg := wc.sess.Config
	desc := dr.Record()
	if desc.DescMagic != types.BstoreMagic {
		fail("magic number 0x%x, want 0x%x", desc.DescMagic, types.BstoreMagic)
	}
	if desc.DescMajorVersion != types.MajorVersion || desc.DescMinorVersion != types.MinorVersion {
		fail("file version %d.%d, want %d.%d",
			desc.DescMajorVersion, desc.DescMinorVersion, types.MajorVersion, types.MinorVersion)
	}
	if desc.DescIntlMin != cfg.IntlMin || desc.DescIntlMax != cfg.IntlMax {
		fail("internal page sizes %d-%d, configured %d-%d",
			desc.DescIntlMin, desc.DescIntlMax, cfg.IntlMin, cfg.IntlMax)
	}
	if desc.DescLeafMin != cfg.LeafMin || desc.DescLeafMax != cfg.LeafMax {
		fail("leaf page sizes %d-%d, configured %d-%d",
			desc.DescLeafMin, desc.DescLeafMax, cfg.LeafMin, cfg.LeafMax)
	}
	if desc.DescFixedLen != cfg.FixedLen {
		fail("fixed record length %d, configured %d", desc.DescFixedLen, cfg.FixedLen)
	}
	if desc.DescFlags != cfg.Flags {
		fail("flags 0x%x, configured 0x%x", desc.DescFlags, cfg.Flags)
	}
	if desc.DescFlags&types.DescRepeatComp != 0 && desc.DescFixedLen == 0 {
		fail("repeat compression configured without a fixed record length")
	}
	if !dr.ReservedZero() {
		fail("reserved descriptor fields are not zero")
	}

	rootAddr, rootSize := dr.RootRef()
	if rootSize != 0 && !wc.extentInFile(rootAddr, uint64(rootSize)) {
		err := wc.report(ErrEndOfFile, addr, "root page reference %d/%d extends past the end of the file",
			rootAddr, rootSize)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// verifyColInternalBody checks a column-store internal page: an
// end-to-end array of off-page references, each within the file, whose
// record counts sum to the page's own.
func (wc *walkContext) verifyColInternalBody(handle interfaces.PageHandle, pr *pages.PageReader) error {
	addr := handle.Addr()
	body := pr.Body()
	entries := uint64(pr.Entries())
	if entries*types.OffRefSize > uint64(len(body)) {
		return wc.report(ErrEndOfPage, addr,
			"%d off-page entries extend past the end of the page", entries)
	}

	var sum uint64
	for i := 0; i < int(entries); i++ {
		off, err := pages.ParseOffRef(body[i*types.OffRefSize : (i+1)*types.OffRefSize])
		if err != nil {
			return wc.report(ErrEndOfPage, addr, "entry %d: %v", i+1, err)
		}
		if !wc.extentInFile(uint64(off.OffAddr), uint64(off.OffSize)) {
			return wc.report(ErrEndOfFile, addr,
				"entry %d references page %d/%d past the end of the file",
				i+1, off.OffAddr, off.OffSize)
		}
		sum += off.OffRecords
	}
	if sum != pr.Records() {
		return wc.report(ErrRecordCountMismatch, addr,
			"entries carry %d records, the page header %d", sum, pr.Records())
	}
	return nil
}

// verifyColFixedBody checks a column-store fixed-length page. Deleted
// records are marked in their first byte and must otherwise be zero.
func (wc *walkContext) verifyColFixedBody(handle interfaces.PageHandle, pr *pages.PageReader) error {
	addr := handle.Addr()
	fixedLen := uint64(wc.sess.Config.FixedLen)
	if fixedLen == 0 {
		return wc.report(ErrBadHeader, addr,
			"fixed-length page in a database with no fixed record length")
	}

	body := pr.Body()
	entries := uint64(pr.Entries())
	if entries*fixedLen > uint64(len(body)) {
		return wc.report(ErrEndOfPage, addr,
			"%d fixed-length records extend past the end of the page", entries)
	}

	var firstErr error
	for i := uint64(0); i < entries; i++ {
		record := body[i*fixedLen : (i+1)*fixedLen]
		if record[0] == types.FixDeleteByte && !allZero(record[1:]) {
			err := wc.report(ErrBadDeleteFormat, addr,
				"deleted record %d has non-zero data", i+1)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr == nil && entries != pr.Records() {
		firstErr = wc.report(ErrRecordCountMismatch, addr,
			"page has %d entries, the header records %d", entries, pr.Records())
	}
	return firstErr
}

// verifyColRCCBody checks a run-length compressed page: each entry is
// a repeat count and a fixed-length record. Zero counts are illegal,
// and adjacent identical records mean the writer missed a compression
// opportunity unless the earlier count is saturated.
func (wc *walkContext) verifyColRCCBody(handle interfaces.PageHandle, pr *pages.PageReader) error {
	addr := handle.Addr()
	cfg := wc.sess.Config
	fixedLen := uint64(cfg.FixedLen)
	if fixedLen == 0 || cfg.Flags&types.DescRepeatComp == 0 {
		return wc.report(ErrBadHeader, addr,
			"run-length page in a database without repeat compression")
	}

	body := pr.Body()
	entries := uint64(pr.Entries())
	entrySize := types.RCCRepeatSize + fixedLen
	if entries*entrySize > uint64(len(body)) {
		return wc.report(ErrEndOfPage, addr,
			"%d run-length entries extend past the end of the page", entries)
	}

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	var sum uint64
	var prevRecord []byte
	var prevRepeat uint16
	for i := uint64(0); i < entries; i++ {
		entry := body[i*entrySize : (i+1)*entrySize]
		repeat := uint16(entry[0]) | uint16(entry[1])<<8
		record := entry[types.RCCRepeatSize:]

		if repeat == 0 {
			keep(wc.report(ErrBadRCCCount, addr, "entry %d has a zero repeat count", i+1))
		}
		if record[0] == types.FixDeleteByte && !allZero(record[1:]) {
			keep(wc.report(ErrBadDeleteFormat, addr, "deleted record %d has non-zero data", i+1))
		}
		if prevRecord != nil && prevRepeat != types.RCCMaxRepeat && bytes.Equal(record, prevRecord) {
			keep(wc.report(ErrBadRCCCount, addr,
				"entries %d and %d have identical records and should have been combined", i, i+1))
		}

		sum += uint64(repeat)
		prevRecord = record
		prevRepeat = repeat
	}
	if firstErr == nil && sum != pr.Records() {
		firstErr = wc.report(ErrRecordCountMismatch, addr,
			"entries carry %d records, the page header %d", sum, pr.Records())
	}
	return firstErr
}

// verifyOverflowBody checks an overflow page: a non-empty payload
// followed by zero padding to the end of the page.
func (wc *walkContext) verifyOverflowBody(handle interfaces.PageHandle, pr *pages.PageReader) error {
	addr := handle.Addr()
	body := pr.Body()
	datalen := uint64(pr.Datalen())
	if datalen == 0 {
		return wc.report(ErrOverflowEmpty, addr, "overflow page has a zero data length")
	}
	if datalen > uint64(len(body)) {
		return wc.report(ErrEndOfPage, addr,
			"overflow payload of %d bytes extends past the end of the page", datalen)
	}
	if !allZero(body[datalen:]) {
		return wc.report(ErrOverflowTrailingGarbage, addr,
			"overflow page bytes after the payload are not zero")
	}
	return nil
}

// allZero reports whether every byte of b is zero.
func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
