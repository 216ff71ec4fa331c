package types

// Descriptor record
// Page zero's body begins with the descriptor record: the database-wide
// format parameters written when the file is created. Every field with
// a configured counterpart must match the opening handle's
// configuration exactly.

// BstoreMagic is the magic number at the start of the descriptor
// record.
const BstoreMagic uint32 = 0x00120897

// Descriptor record version numbers.
const (
	MajorVersion uint16 = 1
	MinorVersion uint16 = 0
)

// Descriptor record flags.
const (
	// DescRepeatComp indicates run-length compression of fixed-length
	// records; it requires a non-zero fixed record length.
	DescRepeatComp uint32 = 1 << 0
)

// DescRecordSize is the on-disk size of the descriptor record in
// bytes, including its reserved tail.
const DescRecordSize = 128

// DescReservedSize is the length of the zeroed span that ends the
// descriptor record.
const DescReservedSize = 80

// DescRecordT is the descriptor record.
//
// On-disk layout (little-endian):
//
//	offset  0: magic         uint32
//	offset  4: major_version uint16
//	offset  6: minor_version uint16
//	offset  8: intlmin       uint32
//	offset 12: intlmax       uint32
//	offset 16: leafmin       uint32
//	offset 20: leafmax       uint32
//	offset 24: recno_offset  uint64 (reserved, must be zero)
//	offset 32: fixed_len     uint32
//	offset 36: flags         uint32
//	offset 40: root_addr     uint32
//	offset 44: root_size     uint32
//	offset 48: reserved      [80]uint8 (must be zero)
type DescRecordT struct {
	// DescMagic identifies the file as a database.
	DescMagic uint32

	// DescMajorVersion and DescMinorVersion are the file format
	// version.
	DescMajorVersion uint16
	DescMinorVersion uint16

	// DescIntlMin and DescIntlMax bound internal page sizes.
	DescIntlMin uint32
	DescIntlMax uint32

	// DescLeafMin and DescLeafMax bound leaf page sizes.
	DescLeafMin uint32
	DescLeafMax uint32

	// DescRecnoOffset is reserved and must be zero.
	DescRecnoOffset uint64

	// DescFixedLen is the fixed record length in bytes for
	// column-fixed and column-RCC pages, or zero for variable-length
	// databases.
	DescFixedLen uint32

	// DescFlags holds the Desc* flag bits.
	DescFlags uint32

	// DescRootAddr and DescRootSize reference the root page. A zero
	// size means the tree is empty.
	DescRootAddr uint32
	DescRootSize uint32
}

// FixDeleteByte marks a deleted record on column-fixed and column-RCC
// pages: a record whose first byte equals FixDeleteByte is a tombstone
// and its remaining bytes must be zero.
const FixDeleteByte uint8 = 0xff

// RCCRepeatSize is the on-disk size of a run-length repeat count.
const RCCRepeatSize = 2

// RCCMaxRepeat is the largest representable repeat count. Adjacent
// entries with identical payloads are a missed compression opportunity
// unless the earlier entry has already reached this count.
const RCCMaxRepeat uint16 = 0xffff
