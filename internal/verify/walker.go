package verify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bstore/internal/interfaces"
	"github.com/deploymenttheory/go-bstore/internal/parsers/pages"
	"github.com/deploymenttheory/go-bstore/internal/types"
)

// maxPinRetries bounds the transparent re-pin loop. A page can move at
// most once per pin under a pinned parent; repeated retries mean the
// page manager is misbehaving.
const maxPinRetries = 5

// pageRef identifies a child page from its parent's point of view.
type pageRef struct {
	addr    uint64
	size    uint32
	records uint64
}

// walkContext is the state of one verification run: the session, the
// coverage bitmap, the optional dump sink, and the single rolling
// last-leaf reference used for boundary checks.
type walkContext struct {
	ctx    context.Context
	sess   *Session
	bitmap *fragmentBitmap
	dump   io.Writer

	lastLeaf   interfaces.PageHandle
	lastLeafPR *pages.PageReader

	visited uint64
}

// report forwards a structural problem to the error sink and returns
// it as an error of the given kind, located by page address.
func (wc *walkContext) report(kindErr error, addr uint64, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	wc.sess.reportError("page %d: %s", addr, msg)
	return fmt.Errorf("page %d: %s: %w", addr, msg, kindErr)
}

// pin acquires a page, transparently re-pinning when the page manager
// signals that the page moved. Cancellation is checked before each
// attempt.
func (wc *walkContext) pin(addr uint64, size uint32) (interfaces.PageHandle, error) {
	for attempt := 0; attempt < maxPinRetries; attempt++ {
		if err := wc.ctx.Err(); err != nil {
			return nil, err
		}
		handle, err := wc.sess.Pages.Pin(addr, size)
		if errors.Is(err, interfaces.ErrPinRetry) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pinning page %d: %w", addr, err)
		}
		return handle, nil
	}
	return nil, fmt.Errorf("pinning page %d: retry budget exhausted", addr)
}

const maxUint64 = ^uint64(0)

// extentInFile reports whether an object of nbytes at the given
// allocation-unit address lies entirely within the file.
func (wc *walkContext) extentInFile(addr uint64, nbytes uint64) bool {
	alloc := uint64(wc.sess.Config.AllocSize)
	span := (nbytes + alloc - 1) / alloc
	return addr <= maxUint64-span && addr+span <= wc.bitmap.size()
}

// claimExtent marks a page's fragments in the coverage bitmap. It
// fails if the extent runs past the file or overlaps a page already
// seen.
func (wc *walkContext) claimExtent(addr uint64, size uint32) error {
	alloc := uint64(wc.sess.Config.AllocSize)
	span := (uint64(size) + alloc - 1) / alloc
	if addr > maxUint64-span || addr+span > wc.bitmap.size() {
		return wc.report(ErrEndOfFile, addr, "page of %d bytes extends past the end of the file", size)
	}
	for i := addr; i < addr+span; i++ {
		if wc.bitmap.testAndSet(i) {
			return wc.report(ErrDuplicateCoverage, addr, "fragment %d was already claimed by another page", i)
		}
	}
	return nil
}

// setLastLeaf transfers ownership of a pinned leaf into the rolling
// last-leaf slot.
func (wc *walkContext) setLastLeaf(handle interfaces.PageHandle, pr *pages.PageReader) {
	wc.releaseLastLeaf()
	wc.lastLeaf = handle
	wc.lastLeafPR = pr
}

// releaseLastLeaf unpins the held last leaf, if any.
func (wc *walkContext) releaseLastLeaf() {
	if wc.lastLeaf != nil {
		wc.sess.Pages.Unpin(wc.lastLeaf)
		wc.lastLeaf = nil
		wc.lastLeafPR = nil
	}
}

// walk verifies the subtree rooted at ref. For the root call, level is
// types.NoLevel and the tree's height is adopted from the page itself;
// below the root the page must match the level, record count and key
// boundary its parent recorded for it.
func (wc *walkContext) walk(parentKey *keyRef, startRecno uint64, level uint8, ref pageRef) (err error) {
	handle, err := wc.pin(ref.addr, ref.size)
	if err != nil {
		return err
	}
	transferred := false
	defer func() {
		if !transferred {
			wc.sess.Pages.Unpin(handle)
		}
	}()

	pr, err := pages.NewPageReader(handle.Data())
	if err != nil {
		return wc.report(ErrBadHeader, ref.addr, "%v", err)
	}

	if err := wc.verifyPage(handle, pr); err != nil {
		return err
	}

	isRoot := level == types.NoLevel
	if isRoot {
		level = pr.Level()
	} else {
		if pr.Level() != level {
			return wc.report(ErrLevelMismatch, ref.addr,
				"page is at level %d, its parent expects level %d", pr.Level(), level)
		}
		if pr.Records() != ref.records {
			return wc.report(ErrRecordCountMismatch, ref.addr,
				"page has %d records, its parent expects %d", pr.Records(), ref.records)
		}
	}

	switch pr.Type() {
	case types.PageColInternal, types.PageColFixed, types.PageColRCC, types.PageColVariable:
		want := startRecno
		if isRoot {
			want = 1
		}
		if pr.StartRecno() != want {
			return wc.report(ErrStartRecnoMismatch, ref.addr,
				"page starts at record %d, its position in the tree requires record %d",
				pr.StartRecno(), want)
		}
	case types.PageRowInternal, types.PageRowLeaf, types.PageDupInternal, types.PageDupLeaf:
		if pr.StartRecno() != 0 {
			return wc.report(ErrStartRecnoMismatch, ref.addr,
				"row-store page has a starting record number of %d", pr.StartRecno())
		}
		if parentKey != nil {
			if err := wc.compareWithParent(parentKey, handle, pr); err != nil {
				return err
			}
		}
	default:
		return wc.report(ErrBadHeader, ref.addr,
			"%s page cannot appear in the tree", types.PageTypeString(pr.Type()))
	}

	switch pr.Type() {
	case types.PageColFixed, types.PageColRCC, types.PageColVariable:
		return nil
	case types.PageRowLeaf, types.PageDupLeaf:
		wc.setLastLeaf(handle, pr)
		transferred = true
		return nil
	case types.PageColInternal:
		return wc.walkColInternal(handle, pr)
	default:
		return wc.walkRowInternal(handle, pr)
	}
}

// walkColInternal recurses through a column-store internal page. The
// children's record-number ranges must be contiguous, starting at this
// page's own starting record number.
func (wc *walkContext) walkColInternal(handle interfaces.PageHandle, pr *pages.PageReader) error {
	body := pr.Body()
	running := pr.StartRecno()
	for i := 0; i < int(pr.Entries()); i++ {
		off, err := pages.ParseOffRef(body[i*types.OffRefSize : (i+1)*types.OffRefSize])
		if err != nil {
			return wc.report(ErrEndOfPage, handle.Addr(), "entry %d: %v", i+1, err)
		}
		child := pageRef{
			addr:    uint64(off.OffAddr),
			size:    off.OffSize,
			records: off.OffRecords,
		}
		if err := wc.walk(nil, running, pr.Level()-1, child); err != nil {
			return err
		}
		running += off.OffRecords
	}
	return nil
}

// walkRowInternal recurses through a row-store or duplicate internal
// page. Each off-page entry is preceded by its routing key; before
// descending, the held last leaf's final key must sort strictly before
// that routing key.
func (wc *walkContext) walkRowInternal(handle interfaces.PageHandle, pr *pages.PageReader) error {
	reader := pages.NewItemReader(pr.Body())
	var routing *keyRef
	for i := 0; i < int(pr.Entries()); i++ {
		item, err := reader.Next()
		if err != nil {
			return wc.report(ErrEndOfPage, handle.Addr(), "%v", err)
		}
		switch item.Type {
		case types.ItemKey, types.ItemKeyDup:
			routing = &keyRef{index: item.Index, itemType: item.Type, data: item.Payload}
		case types.ItemKeyOvfl, types.ItemKeyDupOvfl:
			ovfl, err := pages.ParseOverflowRef(item.Payload)
			if err != nil {
				return wc.report(ErrBadLength, handle.Addr(), "item %d: %v", item.Index, err)
			}
			routing = &keyRef{index: item.Index, itemType: item.Type, ovfl: ovfl}
		case types.ItemOff:
			if routing == nil {
				return wc.report(ErrTypePageMismatch, handle.Addr(),
					"item %d: off-page reference is not preceded by a key", item.Index)
			}
			off, err := pages.ParseOffRef(item.Payload)
			if err != nil {
				return wc.report(ErrBadLength, handle.Addr(), "item %d: %v", item.Index, err)
			}
			if wc.lastLeaf != nil {
				err := wc.checkLastLeaf(routing, handle.Addr())
				wc.releaseLastLeaf()
				if err != nil {
					return err
				}
			}
			child := pageRef{
				addr:    uint64(off.OffAddr),
				size:    off.OffSize,
				records: off.OffRecords,
			}
			if err := wc.walk(routing, 0, pr.Level()-1, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// walkDupTree verifies an off-page duplicate subtree referenced from a
// row-store leaf. The subtree gets its own last-leaf slot; the row
// tree's is saved across the recursion.
func (wc *walkContext) walkDupTree(ref pageRef) error {
	savedLeaf, savedPR := wc.lastLeaf, wc.lastLeafPR
	wc.lastLeaf, wc.lastLeafPR = nil, nil

	err := wc.walk(nil, 0, types.NoLevel, ref)
	wc.releaseLastLeaf()

	wc.lastLeaf, wc.lastLeafPR = savedLeaf, savedPR
	return err
}

// dumpPage writes a one-line rendering of a verified page to the dump
// sink.
func (wc *walkContext) dumpPage(handle interfaces.PageHandle, pr *pages.PageReader) {
	if wc.dump == nil {
		return
	}
	fmt.Fprintf(wc.dump, "%s page: addr %d, size %d, level %d, entries %d, records %d\n",
		types.PageTypeString(pr.Type()), handle.Addr(), handle.Size(),
		pr.Level(), pr.Entries(), pr.Records())
}
