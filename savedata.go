package savecore

import "fmt"

// SaveData is the top-level assembly of a save image: header/FsInfo parsed
// from the outer container, the FAT allocator, and the hash-bucket metadata
// tables wired together per spec.md §4.5.
type SaveData struct {
	container Container
	header    *Header
	info      *FsInfo
	fat       *Fat
	meta      *FsMeta
	blockLen  int64
}

// Option configures Open.
type Option func(*openConfig) error

type openConfig struct {
	eagerVerify bool
}

// WithEagerVerify forces every block of every IVFC-wrapped partition to
// verify immediately during Open instead of lazily on first touch. Partitions
// that are not IVFC-wrapped (the common case - see the Open doc comment) are
// unaffected.
func WithEagerVerify() Option {
	return func(c *openConfig) error {
		c.eagerVerify = true
		return nil
	}
}

// eagerVerifier is implemented by BlockIO wrappers (namely *IVFC) that can
// verify their entire contents up front on request.
type eagerVerifier interface {
	verifyAll() error
}

// Open parses the header and FsInfo from partition 0 of container and wires
// dir_hash/file_hash/fat_table/data/dir_table/file_table according to
// whether container has one or two partitions.
//
// If a caller wants block-level SHA-256 verification over a partition, they
// apply it themselves before handing the container to Open: wrap the raw
// backing store in an IVFC (see NewIVFC) and have Container.Partition return
// that instead of the raw store. Open only ever sees a BlockIO and has no
// opinion on what, if anything, verifies it underneath - verification is a
// property of the partition the host supplies, not of the filesystem layout
// on top of it.
func Open(container Container, opts ...Option) (*SaveData, error) {
	cfg := &openConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	partCount := container.PartitionCount()
	if partCount != 1 && partCount != 2 {
		return nil, fmt.Errorf("savecore: container has %d partitions, want 1 or 2", partCount)
	}
	part0 := container.Partition(0)

	header, err := ParseHeader(part0)
	if err != nil {
		return nil, err
	}
	info, err := ParseFsInfo(part0, header)
	if err != nil {
		return nil, err
	}

	dirHash, err := NewSubRegion(part0, int64(info.DirHashOffset), int64(info.DirBuckets)*4)
	if err != nil {
		return nil, err
	}
	fileHash, err := NewSubRegion(part0, int64(info.FileHashOffset), int64(info.FileBuckets)*4)
	if err != nil {
		return nil, err
	}
	fatTable, err := NewSubRegion(part0, int64(info.FatOffset), int64(info.FatSize+1)*fatEntrySize)
	if err != nil {
		return nil, err
	}

	var data BlockIO
	if partCount == 2 {
		data = container.Partition(1)
	} else {
		data, err = NewSubRegion(part0, int64(info.DataOffset), int64(info.DataBlockCount)*int64(info.BlockLen))
		if err != nil {
			return nil, err
		}
	}

	fat, err := NewFat(fatTable, data, int64(info.BlockLen), info.DataBlockCount)
	if err != nil {
		return nil, err
	}

	dirSlotSize := int64(keySize) + dirPayloadSize + 4
	fileSlotSize := int64(keySize) + filePayloadSize + 4

	var dirTable, fileTable BlockIO
	if partCount == 2 {
		dirTable, err = NewSubRegion(part0, int64(info.DirTable), int64(info.MaxDir+2)*dirSlotSize)
		if err != nil {
			return nil, err
		}
		fileTable, err = NewSubRegion(part0, int64(info.FileTable), int64(info.MaxFile+1)*fileSlotSize)
		if err != nil {
			return nil, err
		}
	} else {
		dirBlock := uint32(info.DirTable & 0xFFFFFFFF)
		dirFile, err := fat.Open(dirBlock)
		if err != nil {
			return nil, err
		}
		dirTable = dirFile

		fileBlock := uint32(info.FileTable & 0xFFFFFFFF)
		fileFile, err := fat.Open(fileBlock)
		if err != nil {
			return nil, err
		}
		fileTable = fileFile
	}

	meta, err := NewFsMeta(dirHash, dirTable, fileHash, fileTable)
	if err != nil {
		return nil, err
	}

	if cfg.eagerVerify {
		for i := 0; i < partCount; i++ {
			if ev, ok := container.Partition(i).(eagerVerifier); ok {
				if err := ev.verifyAll(); err != nil {
					return nil, err
				}
			}
		}
	}

	return &SaveData{
		container: container,
		header:    header,
		info:      info,
		fat:       fat,
		meta:      meta,
		blockLen:  int64(info.BlockLen),
	}, nil
}

// blocksFor returns how many blockLen-sized blocks are needed to hold n
// bytes (spec.md/original_source: `1 + (len-1)/block_len` for len > 0).
func (sd *SaveData) blocksFor(n int64) uint32 {
	if n == 0 {
		return 0
	}
	return uint32(1 + (n-1)/sd.blockLen)
}

// Commit flushes the FAT, metadata tables, and outer container, in that
// order, so that every in-memory buffered mutation reaches its backing
// store before the container (and, if configured, its Signer) is asked to
// persist and sign the image (spec.md §4.5/§5).
func (sd *SaveData) Commit() error {
	if err := sd.fat.Commit(); err != nil {
		return err
	}
	if err := sd.meta.Commit(); err != nil {
		return err
	}
	return sd.container.Commit()
}

// Dir is a handle to an open directory.
type Dir struct {
	sd  *SaveData
	ino uint32
}

// OpenRoot returns a handle to the root directory (ino 1).
func (sd *SaveData) OpenRoot() (*Dir, error) {
	return sd.DirOpenIno(RootIno)
}

// DirOpenIno opens a directory by ino, bounds-checked against the table.
func (sd *SaveData) DirOpenIno(ino uint32) (*Dir, error) {
	if _, err := sd.meta.ReadDir(ino); err != nil {
		return nil, err
	}
	return &Dir{sd: sd, ino: ino}, nil
}

func (d *Dir) Ino() uint32 { return d.ino }

func (d *Dir) ParentIno() (uint32, error) {
	key, err := d.sd.meta.DirKey(d.ino)
	if err != nil {
		return 0, err
	}
	return key.Parent, nil
}

// OpenSubDir opens a child directory by name.
func (d *Dir) OpenSubDir(name string) (*Dir, error) {
	ino, err := d.sd.meta.LookupDir(d.ino, name)
	if err != nil {
		return nil, err
	}
	return &Dir{sd: d.sd, ino: ino}, nil
}

// OpenSubFile opens a child file by name.
func (d *Dir) OpenSubFile(name string) (*File, error) {
	ino, err := d.sd.meta.LookupFile(d.ino, name)
	if err != nil {
		return nil, err
	}
	return d.sd.FileOpenIno(ino)
}

// ListSubDir returns the (name, ino) pairs of every child directory.
func (d *Dir) ListSubDir() ([]NamedIno, error) {
	return listNamed(d.sd.meta.dirs, d.sd.meta.ListSubDir, d.ino)
}

// ListSubFile returns the (name, ino) pairs of every child file.
func (d *Dir) ListSubFile() ([]NamedIno, error) {
	return listNamed(d.sd.meta.files, d.sd.meta.ListSubFile, d.ino)
}

// NamedIno pairs a directory-entry name with its ino, as returned by
// ListSubDir/ListSubFile (spec.md §6 `list_sub_dir`/`list_sub_file`).
type NamedIno struct {
	Name string
	Ino  uint32
}

func listNamed(store *slotStore, list func(uint32) ([]uint32, error), parent uint32) ([]NamedIno, error) {
	inos, err := list(parent)
	if err != nil {
		return nil, err
	}
	out := make([]NamedIno, 0, len(inos))
	for _, ino := range inos {
		key, err := store.readKey(ino)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedIno{Name: trimName(key.Name), Ino: ino})
	}
	return out, nil
}

func trimName(name [NameLen]byte) string {
	n := NameLen
	for n > 0 && name[n-1] == 0 {
		n--
	}
	return string(name[:n])
}

// NewSubDir creates a child directory named name and returns a handle to it.
func (d *Dir) NewSubDir(name string) (*Dir, error) {
	ino, err := d.sd.meta.NewSubDir(d.ino, name)
	if err != nil {
		return nil, err
	}
	return &Dir{sd: d.sd, ino: ino}, nil
}

// NewSubFile creates a child file named name with the given initial length
// and returns a handle to it. A zero-length file gets the
// zeroLengthSentinel block marker and no FAT chain, exactly as
// original_source's new_sub_file.
func (d *Dir) NewSubFile(name string, length int64) (*File, error) {
	var block uint32
	var fatFile *FatFile
	if length > 0 {
		ff, start, err := d.sd.fat.Create(d.sd.blocksFor(length))
		if err != nil {
			return nil, err
		}
		fatFile = ff
		block = start
	} else {
		block = zeroLengthSentinel
	}

	ino, err := d.sd.meta.NewSubFile(d.ino, name, FileRecord{Block: block, Size: uint64(length)})
	if err != nil {
		if fatFile != nil {
			_ = d.sd.fat.Delete(fatFile)
		}
		return nil, err
	}

	return &File{sd: d.sd, ino: ino, data: fatFile, length: length}, nil
}

// Rename moves this directory to be named newName under newParent.
func (d *Dir) Rename(newParent *Dir, newName string) error {
	if err := d.sd.meta.RenameDir(d.ino, newParent.ino, newName); err != nil {
		return err
	}
	return nil
}

// Delete removes this (empty) directory.
func (d *Dir) Delete() error {
	return d.sd.meta.DeleteDir(d.ino)
}

// File is a handle to an open file: its metadata record plus, unless it is
// currently zero-length, an open FAT chain backing its bytes.
type File struct {
	sd     *SaveData
	ino    uint32
	data   *FatFile
	length int64
}

// FileOpenIno opens a file by ino, opening its FAT chain unless it is
// zero-length (spec.md §3 `0x80000000` sentinel).
func (sd *SaveData) FileOpenIno(ino uint32) (*File, error) {
	rec, err := sd.meta.ReadFile(ino)
	if err != nil {
		return nil, err
	}

	if rec.Block == zeroLengthSentinel {
		if rec.Size != 0 {
			return nil, fmt.Errorf("%w: file %d has zero-length sentinel but size %d", ErrSizeMismatch, ino, rec.Size)
		}
		return &File{sd: sd, ino: ino, data: nil, length: 0}, nil
	}

	ff, err := sd.fat.Open(rec.Block)
	if err != nil {
		return nil, err
	}
	length := int64(rec.Size)
	if length == 0 || length > ff.Len() {
		return nil, fmt.Errorf("%w: file %d records size %d, chain holds %d bytes", ErrSizeMismatch, ino, length, ff.Len())
	}
	return &File{sd: sd, ino: ino, data: ff, length: length}, nil
}

func (f *File) Ino() uint32 { return f.ino }
func (f *File) Len() int64  { return f.length }

func (f *File) ParentIno() (uint32, error) {
	key, err := f.sd.meta.files.readKey(f.ino)
	if err != nil {
		return 0, err
	}
	return key.Parent, nil
}

func (f *File) Read(buf []byte, pos int64) error {
	if pos+int64(len(buf)) > f.length {
		return fmt.Errorf("%w: pos=%d n=%d len=%d", ErrOutOfBound, pos, len(buf), f.length)
	}
	if len(buf) == 0 {
		return nil
	}
	return f.data.ReadAt(buf, pos)
}

func (f *File) Write(buf []byte, pos int64) error {
	if pos+int64(len(buf)) > f.length {
		return fmt.Errorf("%w: pos=%d n=%d len=%d", ErrOutOfBound, pos, len(buf), f.length)
	}
	if len(buf) == 0 {
		return nil
	}
	return f.data.WriteAt(buf, pos)
}

// Resize grows or shrinks the file to newLen bytes, handling the
// zero<->nonzero FAT-chain allocation/free transitions (spec.md §3/§8).
func (f *File) Resize(newLen int64) error {
	if newLen == f.length {
		return nil
	}

	rec, err := f.sd.meta.ReadFile(f.ino)
	if err != nil {
		return err
	}

	switch {
	case f.length == 0:
		ff, block, err := f.sd.fat.Create(f.sd.blocksFor(newLen))
		if err != nil {
			return err
		}
		f.data = ff
		rec.Block = block
	case newLen == 0:
		if err := f.sd.fat.Delete(f.data); err != nil {
			return err
		}
		f.data = nil
		rec.Block = zeroLengthSentinel
	default:
		if err := f.sd.fat.Resize(f.data, f.sd.blocksFor(newLen)); err != nil {
			return err
		}
	}

	rec.Size = uint64(newLen)
	if err := f.sd.meta.WriteFile(f.ino, rec); err != nil {
		return err
	}
	f.length = newLen
	return nil
}

// Rename moves this file to be named newName under newParent.
func (f *File) Rename(newParent *Dir, newName string) error {
	return f.sd.meta.RenameFile(f.ino, newParent.ino, newName)
}

// Delete frees this file's FAT chain (if any) and removes its metadata
// record.
func (f *File) Delete() error {
	if f.data != nil {
		if err := f.sd.fat.Delete(f.data); err != nil {
			return err
		}
	}
	return f.sd.meta.DeleteFile(f.ino)
}
