package verify

import (
	"context"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bstore/internal/parsers/pages"
	"github.com/deploymenttheory/go-bstore/internal/types"
)

// Verify checks the structural integrity of the database the session
// references: it walks every page reachable from the root, validates
// each page's encoding and ordering, and confirms that every
// allocation unit of the file is claimed by exactly one page.
//
// Every problem found is reported to the session's error sink; the
// first one is returned. A nil return means the file is structurally
// sound. The optional dump writer receives a one-line rendering of
// each page as it is verified.
func Verify(ctx context.Context, sess *Session, dump io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := sess.Config
	if cfg == nil || cfg.AllocSize == 0 {
		return fmt.Errorf("verify: session has no allocation size configured")
	}

	frags := sess.FileSize / uint64(cfg.AllocSize)
	bitmap, err := newFragmentBitmap(frags)
	if err != nil {
		sess.reportError("%v", err)
		return fmt.Errorf("%v: %w", err, ErrFileTooLarge)
	}

	wc := &walkContext{
		ctx:    ctx,
		sess:   sess,
		bitmap: bitmap,
		dump:   dump,
	}
	defer wc.releaseLastLeaf()

	// The descriptor pin is held for the whole run: it keeps the root
	// reference stable while the tree underneath it is read.
	descriptor, err := wc.pin(0, cfg.AllocSize)
	if err != nil {
		return err
	}
	defer sess.Pages.Unpin(descriptor)

	dpr, err := pages.NewPageReader(descriptor.Data())
	if err != nil {
		return wc.report(ErrBadHeader, 0, "%v", err)
	}
	if dpr.Type() != types.PageDescriptor {
		return wc.report(ErrBadHeader, 0, "page 0 is a %s page, not a descriptor page",
			types.PageTypeString(dpr.Type()))
	}
	if err := wc.verifyPage(descriptor, dpr); err != nil {
		return err
	}

	dr, err := pages.NewDescriptorReader(dpr.Body())
	if err != nil {
		return wc.report(ErrDescriptorMismatch, 0, "%v", err)
	}

	var firstErr error
	rootAddr, rootSize := dr.RootRef()
	if rootSize != 0 {
		firstErr = wc.walk(nil, 0, types.NoLevel, pageRef{addr: rootAddr, size: rootSize})
		wc.releaseLastLeaf()
	}

	// A failed traversal leaves the bitmap incomplete; scanning it
	// would bury the real problem under missing-coverage noise.
	if firstErr == nil {
		firstErr = wc.checkCoverage()
	}

	sess.reportProgress("verify", wc.visited)
	return firstErr
}
