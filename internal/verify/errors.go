package verify

import "errors"

// ErrVerify is the class of all structural verification failures.
// Every structural failure returned by Verify unwraps to it, with a
// more specific sentinel in between identifying the kind of damage
// found. Cancellation, page-read failures and a missing configuration
// are returned as plain errors that do not unwrap to it.
var ErrVerify = errors.New("structural verification failed")

// kindError is a named verification failure kind. It unwraps to
// ErrVerify so callers can match either the class or the kind with
// errors.Is.
type kindError struct {
	name string
}

func (e *kindError) Error() string {
	return e.name
}

func (e *kindError) Unwrap() error {
	return ErrVerify
}

func kind(name string) error {
	return &kindError{name: name}
}

var (
	// ErrFileTooLarge means the fragment bitmap cannot address the
	// file.
	ErrFileTooLarge = kind("file too large to verify")

	// ErrEndOfPage means an item or entry extends past the page body.
	ErrEndOfPage = kind("item extends past the end of the page")

	// ErrEndOfFile means a page or reference extends past the end of
	// the file.
	ErrEndOfFile = kind("reference past the end of the file")

	// ErrDuplicateCoverage means an allocation unit was claimed by two
	// pages.
	ErrDuplicateCoverage = kind("allocation unit claimed by two pages")

	// ErrMissingCoverage means an allocation unit was claimed by no
	// page.
	ErrMissingCoverage = kind("allocation unit claimed by no page")

	// ErrIllegalType means an item carries an unrecognized type.
	ErrIllegalType = kind("unrecognized item type")

	// ErrTypePageMismatch means an item type is not legal on its page
	// type.
	ErrTypePageMismatch = kind("item type illegal on page type")

	// ErrBadLength means an item's length is invalid for its type.
	ErrBadLength = kind("item length invalid for its type")

	// ErrBadHeader means a page header carries an unknown type, a bad
	// level, or non-zero reserved fields.
	ErrBadHeader = kind("invalid page header")

	// ErrDescriptorMismatch means the descriptor record disagrees with
	// the handle's configuration.
	ErrDescriptorMismatch = kind("descriptor does not match configuration")

	// ErrBadDeleteFormat means a deleted record's bytes are not zero.
	ErrBadDeleteFormat = kind("deleted record improperly formatted")

	// ErrBadRCCCount means a run-length entry has a zero repeat count
	// or a missed compression opportunity.
	ErrBadRCCCount = kind("invalid repeat count")

	// ErrMisorderedItems means successive items on a page are not
	// strictly increasing.
	ErrMisorderedItems = kind("items incorrectly ordered")

	// ErrBoundaryViolation means a parent's routing key and a child's
	// keys are inconsistent.
	ErrBoundaryViolation = kind("parent and child keys incorrectly ordered")

	// ErrLevelMismatch means a child's level is not one less than its
	// parent's.
	ErrLevelMismatch = kind("tree levels inconsistent")

	// ErrRecordCountMismatch means a page's record count disagrees
	// with its parent's reference or its own entries.
	ErrRecordCountMismatch = kind("record counts inconsistent")

	// ErrStartRecnoMismatch means a column-store page's starting
	// record number disagrees with its position in the tree.
	ErrStartRecnoMismatch = kind("starting record numbers inconsistent")

	// ErrOverflowSizeMismatch means an overflow reference's size does
	// not match the overflow page's data length.
	ErrOverflowSizeMismatch = kind("overflow sizes inconsistent")

	// ErrOverflowEmpty means an overflow page carries no data.
	ErrOverflowEmpty = kind("overflow page has no data")

	// ErrOverflowTrailingGarbage means an overflow page's padding is
	// not zero.
	ErrOverflowTrailingGarbage = kind("overflow page padding not zero")
)
