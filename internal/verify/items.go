package verify

import (
	"bytes"

	"github.com/deploymenttheory/go-bstore/internal/interfaces"
	"github.com/deploymenttheory/go-bstore/internal/parsers/pages"
	"github.com/deploymenttheory/go-bstore/internal/types"
)

// itemSlot holds one materialized key or value: the comparable bytes,
// the scratch buffer backing them when decompression is configured,
// and the overflow page pinned on their behalf. Slots rotate by
// pointer swap so their storage is reused across items.
type itemSlot struct {
	index int
	data  []byte
	buf   *bytes.Buffer
	ovfl  interfaces.PageHandle
}

// itemContext is the item walker's state for one page: the current
// item and the rolling last-key and last-data references it is
// compared against.
type itemContext struct {
	wc   *walkContext
	page interfaces.PageHandle
	pr   *pages.PageReader

	current  *itemSlot
	lastKey  *itemSlot
	lastData *itemSlot
}

// verifyItems walks the tagged items of a variable-format page body:
// row-store pages, duplicate pages and column-store variable pages.
func (wc *walkContext) verifyItems(handle interfaces.PageHandle, pr *pages.PageReader) error {
	ic := &itemContext{
		wc:       wc,
		page:     handle,
		pr:       pr,
		current:  &itemSlot{},
		lastKey:  &itemSlot{},
		lastData: &itemSlot{},
	}
	defer ic.release()

	reader := pages.NewItemReader(pr.Body())
	for i := 0; i < int(pr.Entries()); i++ {
		item, err := reader.Next()
		if err != nil {
			return wc.report(ErrEndOfPage, handle.Addr(), "%v", err)
		}
		if err := ic.verifyItem(item); err != nil {
			return err
		}
	}
	return nil
}

// verifyItem runs every per-item check: type legality, length rules,
// reference bounds, overflow resolution, ordering, and off-page
// duplicate recursion.
func (ic *itemContext) verifyItem(item *pages.Item) error {
	wc := ic.wc
	addr := ic.page.Addr()
	pageType := ic.pr.Type()

	if item.Type == types.ItemInvalid || item.Type >= types.ItemTypeMax {
		return wc.report(ErrIllegalType, addr,
			"item %d: unrecognized item type %d", item.Index, item.Type)
	}
	if !itemLegalOnPage(item.Type, pageType) {
		return wc.report(ErrTypePageMismatch, addr,
			"item %d: %s item on a %s page",
			item.Index, types.ItemTypeString(item.Type), types.PageTypeString(pageType))
	}

	switch item.Type {
	case types.ItemKeyOvfl, types.ItemDataOvfl, types.ItemKeyDupOvfl, types.ItemDataDupOvfl:
		if item.Len != types.OverflowRefSize {
			return wc.report(ErrBadLength, addr,
				"item %d: overflow item of %d bytes, want %d",
				item.Index, item.Len, types.OverflowRefSize)
		}
	case types.ItemDel:
		if item.Len != 0 {
			return wc.report(ErrBadLength, addr,
				"item %d: deleted item of %d bytes, want 0", item.Index, item.Len)
		}
	case types.ItemOff:
		if item.Len != types.OffRefSize {
			return wc.report(ErrBadLength, addr,
				"item %d: off-page item of %d bytes, want %d",
				item.Index, item.Len, types.OffRefSize)
		}
	}

	switch item.Type {
	case types.ItemKey, types.ItemKeyDup, types.ItemDataDup:
		ic.fill(item, item.Payload)
		if err := ic.decode(item); err != nil {
			return err
		}
		return ic.checkOrder(item)

	case types.ItemKeyOvfl, types.ItemKeyDupOvfl, types.ItemDataDupOvfl:
		if err := ic.resolveOverflow(item); err != nil {
			return err
		}
		return ic.checkOrder(item)

	case types.ItemData:
		ic.fill(item, item.Payload)
		return ic.decode(item)

	case types.ItemDataOvfl:
		return ic.resolveOverflow(item)

	case types.ItemOff:
		return ic.verifyOffItem(item)

	default: // types.ItemDel
		return nil
	}
}

// fill points the current slot at an item's comparable bytes.
func (ic *itemContext) fill(item *pages.Item, raw []byte) {
	ic.current.index = item.Index
	ic.current.data = raw
}

// decode replaces the current slot's bytes with their decompressed
// form when the database is configured with a decoder.
func (ic *itemContext) decode(item *pages.Item) error {
	decoder := ic.wc.decoderForItem(item.Type)
	if decoder == nil {
		return nil
	}
	slot := ic.current
	if slot.buf == nil {
		slot.buf = ic.wc.sess.acquireBuf()
	}
	slot.buf.Reset()
	if err := decoder(slot.buf, slot.data); err != nil {
		return ic.wc.report(ErrBadLength, ic.page.Addr(),
			"item %d: cannot be decompressed: %v", item.Index, err)
	}
	slot.data = slot.buf.Bytes()
	return nil
}

// resolveOverflow pins the overflow page an item references, verifies
// it, and points the current slot at its payload. The slot's previous
// overflow pin, if any, is released first.
func (ic *itemContext) resolveOverflow(item *pages.Item) error {
	wc := ic.wc
	addr := ic.page.Addr()

	ref, err := pages.ParseOverflowRef(item.Payload)
	if err != nil {
		return wc.report(ErrBadLength, addr, "item %d: %v", item.Index, err)
	}

	pageBytes := overflowPageBytes(wc.sess.Config, ref.OvflSize)
	if !wc.extentInFile(uint64(ref.OvflAddr), pageBytes) {
		return wc.report(ErrEndOfFile, addr,
			"item %d: overflow reference %d/%d extends past the end of the file",
			item.Index, ref.OvflAddr, ref.OvflSize)
	}

	if ic.current.ovfl != nil {
		wc.sess.Pages.Unpin(ic.current.ovfl)
		ic.current.ovfl = nil
	}

	handle, err := wc.pin(uint64(ref.OvflAddr), uint32(pageBytes))
	if err != nil {
		return err
	}
	ic.current.ovfl = handle

	opr, err := pages.NewPageReader(handle.Data())
	if err != nil {
		return wc.report(ErrBadHeader, uint64(ref.OvflAddr), "%v", err)
	}
	if opr.Type() != types.PageOverflow {
		return wc.report(ErrTypePageMismatch, addr,
			"item %d: references a %s page as an overflow page",
			item.Index, types.PageTypeString(opr.Type()))
	}
	if err := wc.verifyPage(handle, opr); err != nil {
		return err
	}
	if opr.Datalen() != ref.OvflSize {
		return wc.report(ErrOverflowSizeMismatch, addr,
			"item %d: overflow page %d has a data length of %d, the reference expects %d",
			item.Index, ref.OvflAddr, opr.Datalen(), ref.OvflSize)
	}

	ic.fill(item, opr.Body()[:opr.Datalen()])
	return ic.decode(item)
}

// verifyOffItem bounds-checks an off-page reference and, on row-store
// leaves, recurses into the duplicate subtree it roots.
func (ic *itemContext) verifyOffItem(item *pages.Item) error {
	wc := ic.wc
	addr := ic.page.Addr()

	off, err := pages.ParseOffRef(item.Payload)
	if err != nil {
		return wc.report(ErrBadLength, addr, "item %d: %v", item.Index, err)
	}
	if !wc.extentInFile(uint64(off.OffAddr), uint64(off.OffSize)) {
		return wc.report(ErrEndOfFile, addr,
			"item %d: off-page reference %d/%d extends past the end of the file",
			item.Index, off.OffAddr, off.OffSize)
	}

	if ic.pr.Type() == types.PageRowLeaf {
		return wc.walkDupTree(pageRef{
			addr:    uint64(off.OffAddr),
			size:    off.OffSize,
			records: off.OffRecords,
		})
	}
	return nil
}

// checkOrder compares the current item against the last of its kind
// and rotates the slots. Keys compare against the last key, duplicate
// data against the last duplicate datum; both must be strictly
// increasing.
func (ic *itemContext) checkOrder(item *pages.Item) error {
	wc := ic.wc

	isKey := item.Type == types.ItemKey || item.Type == types.ItemKeyOvfl ||
		item.Type == types.ItemKeyDup || item.Type == types.ItemKeyDupOvfl
	last := ic.lastData
	if isKey {
		last = ic.lastKey
	}

	if last.index != 0 {
		compare := wc.comparatorForItem(item.Type)
		if compare(last.data, ic.current.data) >= 0 {
			return wc.report(ErrMisorderedItems, ic.page.Addr(),
				"items %d and %d are incorrectly ordered", last.index, ic.current.index)
		}
	}

	if isKey {
		ic.current, ic.lastKey = ic.lastKey, ic.current
		if item.Type == types.ItemKey || item.Type == types.ItemKeyOvfl {
			ic.resetSlot(ic.lastData)
		}
	} else {
		ic.current, ic.lastData = ic.lastData, ic.current
	}
	return nil
}

// resetSlot clears a slot at a duplicate-group boundary, releasing its
// overflow pin but keeping its scratch buffer for reuse.
func (ic *itemContext) resetSlot(slot *itemSlot) {
	if slot.ovfl != nil {
		ic.wc.sess.Pages.Unpin(slot.ovfl)
		slot.ovfl = nil
	}
	slot.index = 0
	slot.data = nil
}

// release frees every slot's overflow pin and scratch buffer. It runs
// on every exit from the page walk.
func (ic *itemContext) release() {
	for _, slot := range []*itemSlot{ic.current, ic.lastKey, ic.lastData} {
		if slot.ovfl != nil {
			ic.wc.sess.Pages.Unpin(slot.ovfl)
			slot.ovfl = nil
		}
		if slot.buf != nil {
			ic.wc.sess.releaseBuf(slot.buf)
			slot.buf = nil
		}
		slot.data = nil
	}
}

// itemLegalOnPage reports whether an item type may appear on a page
// type.
func itemLegalOnPage(itemType, pageType uint8) bool {
	switch itemType {
	case types.ItemKey, types.ItemKeyOvfl:
		return pageType == types.PageRowInternal || pageType == types.PageRowLeaf
	case types.ItemKeyDup, types.ItemKeyDupOvfl:
		return pageType == types.PageDupInternal
	case types.ItemData, types.ItemDataOvfl:
		return pageType == types.PageColVariable || pageType == types.PageRowLeaf
	case types.ItemDataDup, types.ItemDataDupOvfl:
		return pageType == types.PageDupLeaf || pageType == types.PageRowLeaf
	case types.ItemDel:
		return pageType == types.PageColVariable
	case types.ItemOff:
		return pageType == types.PageRowInternal || pageType == types.PageRowLeaf ||
			pageType == types.PageDupInternal
	}
	return false
}

// overflowPageBytes returns the on-disk size of the overflow page
// holding a payload of datalen bytes.
func overflowPageBytes(cfg *Config, datalen uint32) uint64 {
	alloc := uint64(cfg.AllocSize)
	n := uint64(types.PageHeaderSize) + uint64(datalen)
	return (n + alloc - 1) / alloc * alloc
}
