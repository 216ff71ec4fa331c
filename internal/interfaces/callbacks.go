// File: internal/interfaces/callbacks.go
package interfaces

import "bytes"

// Compare is a key comparator. It returns a negative value if a sorts
// before b, zero if they are equal, and a positive value otherwise.
type Compare func(a, b []byte) int

// Decode decompresses src into dst. Databases configured with
// compressed keys or values supply one decoder for keys and one for
// values; the verifier compares the decoded forms.
type Decode func(dst *bytes.Buffer, src []byte) error

// ErrorFunc is an error sink. The verifier reports every structural
// problem it finds through this callback before unwinding.
type ErrorFunc func(format string, args ...interface{})

// ProgressFunc receives periodic progress reports: an operation name
// and a monotonically increasing count.
type ProgressFunc func(name string, count uint64)
