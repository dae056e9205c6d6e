package savecore

import (
	"fmt"
	"os"
)

// DiskBlock is a BlockIO backed by an OS file handle over a fixed-length
// region starting at offset 0 of the file. Commit forces a host-level flush
// (see disk_unix.go / disk_windows.go for the platform-specific barrier).
type DiskBlock struct {
	f    *os.File
	size int64
}

// DiskOption configures OpenDiskBlock.
type DiskOption func(*diskConfig)

type diskConfig struct {
	readOnly bool
}

// WithReadOnly opens the backing file read-only; WriteAt will fail with the
// host's permission error rather than silently succeeding.
func WithReadOnly() DiskOption {
	return func(c *diskConfig) {
		c.readOnly = true
	}
}

// OpenDiskBlock opens path as a fixed-length BlockIO of size bytes. The file
// must already exist and be at least size bytes long.
func OpenDiskBlock(path string, size int64, opts ...DiskOption) (*DiskBlock, error) {
	cfg := &diskConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	flag := os.O_RDWR
	if cfg.readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("savecore: opening disk backing store: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("savecore: stat disk backing store: %w", err)
	}
	if st.Size() < size {
		f.Close()
		return nil, fmt.Errorf("%w: backing file %s is %d bytes, need %d", ErrSizeMismatch, path, st.Size(), size)
	}

	return &DiskBlock{f: f, size: size}, nil
}

func (d *DiskBlock) Len() int64 {
	return d.size
}

func (d *DiskBlock) ReadAt(buf []byte, pos int64) error {
	if err := checkBounds(d.size, pos, len(buf)); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	_, err := d.f.ReadAt(buf, pos)
	if err != nil {
		return fmt.Errorf("savecore: disk read at %d: %w", pos, err)
	}
	return nil
}

func (d *DiskBlock) WriteAt(buf []byte, pos int64) error {
	if err := checkBounds(d.size, pos, len(buf)); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	_, err := d.f.WriteAt(buf, pos)
	if err != nil {
		return fmt.Errorf("savecore: disk write at %d: %w", pos, err)
	}
	return nil
}

func (d *DiskBlock) Commit() error {
	if err := diskSync(d.f); err != nil {
		return fmt.Errorf("savecore: disk commit: %w", err)
	}
	return nil
}

// Close releases the underlying file handle. It does not implicitly commit;
// callers that want durability must call Commit first (see spec.md §9 on
// destruction never auto-committing).
func (d *DiskBlock) Close() error {
	return d.f.Close()
}
