package savecore

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrMagicMismatch is returned when the save header signature or version does not match.
	ErrMagicMismatch = errors.New("savecore: header magic or version mismatch")

	// ErrSizeMismatch is returned when declared sizes are inconsistent, or a file's
	// recorded size disagrees with the length of its FAT chain.
	ErrSizeMismatch = errors.New("savecore: size mismatch")

	// ErrOutOfBound is returned when an I/O offset/length exceeds a region's length.
	ErrOutOfBound = errors.New("savecore: out of bound access")

	// ErrHashMismatch is returned when an IVFC block fails SHA-256 verification.
	// It is non-latching: the caller may retry the same read once the backing
	// store has been fixed, since the in-memory status stays Unverified.
	ErrHashMismatch = errors.New("savecore: block hash mismatch")

	// ErrNoSpace is returned when the FAT free list is exhausted.
	ErrNoSpace = errors.New("savecore: no free space in FAT")

	// ErrBrokenFat is returned when a FAT structural invariant is violated
	// (missing run-head flag, out-of-range index, or a cycle in the chain).
	ErrBrokenFat = errors.New("savecore: broken FAT chain")

	// ErrNotFound is returned when a metadata lookup by name or ino misses.
	ErrNotFound = errors.New("savecore: not found")

	// ErrAlreadyExist is returned when a create or rename would collide with
	// an existing directory or file entry under the same parent.
	ErrAlreadyExist = errors.New("savecore: entry already exists")

	// ErrDeletingNonEmpty is returned when deleting a directory that still has children.
	ErrDeletingNonEmpty = errors.New("savecore: directory not empty")
)
