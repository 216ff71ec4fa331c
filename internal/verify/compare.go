package verify

import (
	"github.com/deploymenttheory/go-bstore/internal/interfaces"
	"github.com/deploymenttheory/go-bstore/internal/parsers/pages"
	"github.com/deploymenttheory/go-bstore/internal/types"
)

// keyRef is a key as its page stores it: either inline bytes or a
// reference to an overflow page. Materialization resolves the
// indirection and any configured compression.
type keyRef struct {
	index    int
	itemType uint8
	data     []byte
	ovfl     *types.OverflowRefT
}

// comparatorForItem picks the comparator an item type sorts under:
// the row comparator for row-store keys, the duplicate comparator for
// everything in a duplicate tree.
func (wc *walkContext) comparatorForItem(itemType uint8) interfaces.Compare {
	switch itemType {
	case types.ItemKey, types.ItemKeyOvfl:
		return wc.sess.rowCompare()
	default:
		return wc.sess.dupCompare()
	}
}

// decoderForItem picks the configured decompressor for an item type,
// or nil.
func (wc *walkContext) decoderForItem(itemType uint8) interfaces.Decode {
	switch itemType {
	case types.ItemKey, types.ItemKeyOvfl:
		return wc.sess.DecodeKey
	case types.ItemKeyDup, types.ItemKeyDupOvfl,
		types.ItemData, types.ItemDataOvfl,
		types.ItemDataDup, types.ItemDataDupOvfl:
		return wc.sess.DecodeData
	default:
		return nil
	}
}

// boundaryKey returns the first or last key-bearing item of a page:
// row keys on row-store pages, duplicate keys on duplicate internal
// pages, duplicate data on duplicate leaves. It returns nil for an
// empty page.
func (wc *walkContext) boundaryKey(addr uint64, pr *pages.PageReader, last bool) (*keyRef, error) {
	var inline, overflow uint8
	switch pr.Type() {
	case types.PageRowInternal, types.PageRowLeaf:
		inline, overflow = types.ItemKey, types.ItemKeyOvfl
	case types.PageDupInternal:
		inline, overflow = types.ItemKeyDup, types.ItemKeyDupOvfl
	case types.PageDupLeaf:
		inline, overflow = types.ItemDataDup, types.ItemDataDupOvfl
	default:
		return nil, nil
	}

	reader := pages.NewItemReader(pr.Body())
	var found *keyRef
	for i := 0; i < int(pr.Entries()); i++ {
		item, err := reader.Next()
		if err != nil {
			return nil, wc.report(ErrEndOfPage, addr, "%v", err)
		}
		if item.Type != inline && item.Type != overflow {
			continue
		}
		ref := &keyRef{index: item.Index, itemType: item.Type}
		if item.Type == overflow {
			ovfl, err := pages.ParseOverflowRef(item.Payload)
			if err != nil {
				return nil, wc.report(ErrBadLength, addr, "item %d: %v", item.Index, err)
			}
			ref.ovfl = ovfl
		} else {
			ref.data = item.Payload
		}
		if !last {
			return ref, nil
		}
		found = ref
	}
	return found, nil
}

// materializeKey turns a key reference into comparable bytes, pinning
// its overflow page and decompressing as needed. The returned release
// function frees both; it is safe to call on every path.
func (wc *walkContext) materializeKey(k *keyRef, addr uint64) ([]byte, func(), error) {
	var handle interfaces.PageHandle
	release := func() {
		if handle != nil {
			wc.sess.Pages.Unpin(handle)
		}
	}

	raw := k.data
	if k.ovfl != nil {
		pageBytes := overflowPageBytes(wc.sess.Config, k.ovfl.OvflSize)
		if !wc.extentInFile(uint64(k.ovfl.OvflAddr), pageBytes) {
			return nil, release, wc.report(ErrEndOfFile, addr,
				"item %d: overflow reference %d/%d extends past the end of the file",
				k.index, k.ovfl.OvflAddr, k.ovfl.OvflSize)
		}
		h, err := wc.pin(uint64(k.ovfl.OvflAddr), uint32(pageBytes))
		if err != nil {
			return nil, release, err
		}
		handle = h
		opr, err := pages.NewPageReader(h.Data())
		if err != nil {
			return nil, release, wc.report(ErrBadHeader, uint64(k.ovfl.OvflAddr), "%v", err)
		}
		if opr.Type() != types.PageOverflow {
			return nil, release, wc.report(ErrTypePageMismatch, addr,
				"item %d: references a %s page as an overflow page",
				k.index, types.PageTypeString(opr.Type()))
		}
		if uint64(opr.Datalen()) > uint64(len(opr.Body())) {
			return nil, release, wc.report(ErrEndOfPage, uint64(k.ovfl.OvflAddr),
				"overflow payload of %d bytes extends past the end of the page", opr.Datalen())
		}
		raw = opr.Body()[:opr.Datalen()]
	}

	decoder := wc.decoderForItem(k.itemType)
	if decoder == nil {
		return raw, release, nil
	}

	scratch := wc.sess.acquireBuf()
	releaseAll := func() {
		wc.sess.releaseBuf(scratch)
		release()
	}
	if err := decoder(scratch, raw); err != nil {
		return nil, releaseAll, wc.report(ErrBadLength, addr,
			"item %d: cannot be decompressed: %v", k.index, err)
	}
	return scratch.Bytes(), releaseAll, nil
}

// compareWithParent checks that a child page's first key does not sort
// before the routing key its parent stored for it. Duplicate-leaf data
// must sort strictly after the routing key.
func (wc *walkContext) compareWithParent(parent *keyRef, handle interfaces.PageHandle, pr *pages.PageReader) error {
	addr := handle.Addr()
	first, err := wc.boundaryKey(addr, pr, false)
	if err != nil || first == nil {
		return err
	}

	parentData, parentRelease, err := wc.materializeKey(parent, addr)
	defer parentRelease()
	if err != nil {
		return err
	}
	firstData, firstRelease, err := wc.materializeKey(first, addr)
	defer firstRelease()
	if err != nil {
		return err
	}

	compare := wc.comparatorForItem(first.itemType)
	c := compare(firstData, parentData)
	if c < 0 || (c == 0 && pr.Type() == types.PageDupLeaf) {
		return wc.report(ErrBoundaryViolation, addr,
			"the first key on the page sorts before its reference key in the parent")
	}
	return nil
}

// checkLastLeaf checks that the held last leaf's final key sorts
// strictly before the routing key of the next subtree over.
func (wc *walkContext) checkLastLeaf(routing *keyRef, parentAddr uint64) error {
	leafAddr := wc.lastLeaf.Addr()
	lastKey, err := wc.boundaryKey(leafAddr, wc.lastLeafPR, true)
	if err != nil || lastKey == nil {
		return err
	}

	lastData, lastRelease, err := wc.materializeKey(lastKey, leafAddr)
	defer lastRelease()
	if err != nil {
		return err
	}
	routingData, routingRelease, err := wc.materializeKey(routing, parentAddr)
	defer routingRelease()
	if err != nil {
		return err
	}

	compare := wc.comparatorForItem(lastKey.itemType)
	if compare(lastData, routingData) >= 0 {
		return wc.report(ErrBoundaryViolation, leafAddr,
			"the last key on the page sorts at or after the parent's key for the following page")
	}
	return nil
}
