package savecore

import "fmt"

// BlockIO is the uniform byte-addressed I/O capability every layer in this
// package is built on: sub-regions, the IVFC hash level, and FAT files all
// implement it, and all of them (except the leaves) also consume one or more
// of it.
//
// Reads and writes of zero length always succeed, including at pos == Len().
// Any access where pos+len(buf) > Len() fails with ErrOutOfBound.
type BlockIO interface {
	// Len returns the fixed length, in bytes, of this region.
	Len() int64

	// ReadAt reads len(buf) bytes starting at pos.
	ReadAt(buf []byte, pos int64) error

	// WriteAt writes len(buf) bytes starting at pos.
	WriteAt(buf []byte, pos int64) error

	// Commit flushes any buffered state to the backing store. Implementations
	// that have nothing to flush treat this as a no-op.
	Commit() error
}

// checkBounds validates a region access against a region of the given length,
// returning ErrOutOfBound (wrapped with the offending range for diagnostics)
// when the access would run past the end of the region.
func checkBounds(regionLen int64, pos int64, n int) error {
	if pos < 0 || n < 0 {
		return fmt.Errorf("%w: negative pos=%d n=%d", ErrOutOfBound, pos, n)
	}
	if pos+int64(n) > regionLen {
		return fmt.Errorf("%w: pos=%d n=%d len=%d", ErrOutOfBound, pos, n, regionLen)
	}
	return nil
}
