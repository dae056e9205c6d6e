package savecore

import (
	"encoding/binary"
	"fmt"
)

// RootIno is the ino of the root directory, created at image format time and
// never deleted (spec.md §3).
const RootIno uint32 = 1

// dirPayloadSize is the 12-byte SaveExtDir payload (spec.md §3/§6): the
// hash-chain sibling, the first child directory ino, and the first child
// file ino.
const dirPayloadSize = 12

// filePayloadSize is the 24-byte SaveFile payload (spec.md §3/§6), matching
// original_source's SaveFile field layout (next, padding1, block, size,
// padding2).
const filePayloadSize = 24

// zeroLengthSentinel marks a file record whose data has zero length and
// therefore has no FAT chain allocated (spec.md §3).
const zeroLengthSentinel uint32 = 0x80000000

// DirRecord is the decoded form of a directory's 12-byte payload.
type DirRecord struct {
	Next    uint32 // hash-chain sibling
	SubDir  uint32 // first child directory ino, 0 if none
	SubFile uint32 // first child file ino, 0 if none
}

func decodeDirRecord(buf []byte) DirRecord {
	return DirRecord{
		Next:    binary.LittleEndian.Uint32(buf[0:4]),
		SubDir:  binary.LittleEndian.Uint32(buf[4:8]),
		SubFile: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

func (r DirRecord) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], r.Next)
	binary.LittleEndian.PutUint32(buf[4:8], r.SubDir)
	binary.LittleEndian.PutUint32(buf[8:12], r.SubFile)
}

// FileRecord is the decoded form of a file's 24-byte payload.
type FileRecord struct {
	Next  uint32 // hash-chain sibling
	Block uint32 // FAT run-head index, or zeroLengthSentinel
	Size  uint64 // length in bytes
}

func decodeFileRecord(buf []byte) FileRecord {
	return FileRecord{
		Next:  binary.LittleEndian.Uint32(buf[0:4]),
		Block: binary.LittleEndian.Uint32(buf[8:12]),
		Size:  binary.LittleEndian.Uint64(buf[12:20]),
	}
}

func (r FileRecord) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], r.Next)
	binary.LittleEndian.PutUint32(buf[4:8], 0) // padding1
	binary.LittleEndian.PutUint32(buf[8:12], r.Block)
	binary.LittleEndian.PutUint64(buf[12:20], r.Size)
	binary.LittleEndian.PutUint32(buf[20:24], 0) // padding2
}

// FsMeta composes the four metadata regions (dir_hash, dir_table, file_hash,
// file_table) into name-addressed directory/file lookup, per spec.md §4.4.
type FsMeta struct {
	dirHash     BlockIO
	dirBuckets  uint32
	dirs        *slotStore
	fileHash    BlockIO
	fileBuckets uint32
	files       *slotStore
}

// NewFsMeta wires the four metadata regions together. dirHash/fileHash must
// be a whole number of 4-byte bucket heads; dirTable/fileTable must be a
// whole number of their respective slot sizes.
func NewFsMeta(dirHash, dirTable, fileHash, fileTable BlockIO) (*FsMeta, error) {
	if dirHash.Len()%4 != 0 {
		return nil, fmt.Errorf("%w: dir_hash region is %d bytes, not a multiple of 4", ErrSizeMismatch, dirHash.Len())
	}
	if fileHash.Len()%4 != 0 {
		return nil, fmt.Errorf("%w: file_hash region is %d bytes, not a multiple of 4", ErrSizeMismatch, fileHash.Len())
	}

	dirs, err := newSlotStore(dirTable, dirPayloadSize)
	if err != nil {
		return nil, err
	}
	files, err := newSlotStore(fileTable, filePayloadSize)
	if err != nil {
		return nil, err
	}

	return &FsMeta{
		dirHash:     dirHash,
		dirBuckets:  uint32(dirHash.Len() / 4),
		dirs:        dirs,
		fileHash:    fileHash,
		fileBuckets: uint32(fileHash.Len() / 4),
		files:       files,
	}, nil
}

func readBucketHead(hash BlockIO, bucket uint32) (uint32, error) {
	buf := make([]byte, 4)
	if err := hash.ReadAt(buf, int64(bucket)*4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func writeBucketHead(hash BlockIO, bucket uint32, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return hash.WriteAt(buf, int64(bucket)*4)
}

// lookup walks a hash-bucket collision chain for key, returning its ino or
// ErrNotFound.
func lookup(store *slotStore, hash BlockIO, bucketCount uint32, key Key) (uint32, error) {
	bucket := key.bucket(bucketCount)
	cur, err := readBucketHead(hash, bucket)
	if err != nil {
		return 0, err
	}
	for cur != 0 {
		k, err := store.readKey(cur)
		if err != nil {
			return 0, err
		}
		if k.equal(key) {
			return cur, nil
		}
		cur, err = store.readPayloadHashNext(cur)
		if err != nil {
			return 0, err
		}
	}
	return 0, ErrNotFound
}

// insertIntoBucket prepends ino to its hash bucket's collision chain.
func insertIntoBucket(store *slotStore, hash BlockIO, bucketCount uint32, key Key, ino uint32) error {
	bucket := key.bucket(bucketCount)
	head, err := readBucketHead(hash, bucket)
	if err != nil {
		return err
	}
	if err := store.writePayloadHashNext(ino, head); err != nil {
		return err
	}
	return writeBucketHead(hash, bucket, ino)
}

// removeFromBucket unlinks ino from its hash bucket's collision chain.
func removeFromBucket(store *slotStore, hash BlockIO, bucketCount uint32, key Key, ino uint32) error {
	bucket := key.bucket(bucketCount)
	head, err := readBucketHead(hash, bucket)
	if err != nil {
		return err
	}

	next, err := store.readPayloadHashNext(ino)
	if err != nil {
		return err
	}

	if head == ino {
		return writeBucketHead(hash, bucket, next)
	}

	cur := head
	for cur != 0 {
		curNext, err := store.readPayloadHashNext(cur)
		if err != nil {
			return err
		}
		if curNext == ino {
			return store.writePayloadHashNext(cur, next)
		}
		cur = curNext
	}
	return fmt.Errorf("%w: ino %d not found in its own hash bucket chain", ErrNotFound, ino)
}

// removeFromChildList unlinks ino from the singly-linked child list headed
// by *head (either a directory's SubDir or SubFile field), following
// listNext pointers in store.
func removeFromChildList(store *slotStore, head *uint32, ino uint32) error {
	if *head == ino {
		next, err := store.readListNext(ino)
		if err != nil {
			return err
		}
		*head = next
		return nil
	}
	cur := *head
	for cur != 0 {
		next, err := store.readListNext(cur)
		if err != nil {
			return err
		}
		if next == ino {
			grandNext, err := store.readListNext(ino)
			if err != nil {
				return err
			}
			return store.writeListNext(cur, grandNext)
		}
		cur = next
	}
	return fmt.Errorf("%w: ino %d not found in parent's child list", ErrNotFound, ino)
}

// --- directory operations ---

func (m *FsMeta) ReadDir(ino uint32) (DirRecord, error) {
	buf, err := m.dirs.readPayload(ino)
	if err != nil {
		return DirRecord{}, err
	}
	return decodeDirRecord(buf), nil
}

func (m *FsMeta) writeDir(ino uint32, r DirRecord) error {
	buf := make([]byte, dirPayloadSize)
	r.encode(buf)
	return m.dirs.writePayload(ino, buf)
}

func (m *FsMeta) DirKey(ino uint32) (Key, error) {
	return m.dirs.readKey(ino)
}

// LookupDir resolves a directory child of parent by name.
func (m *FsMeta) LookupDir(parent uint32, name string) (uint32, error) {
	return lookup(m.dirs, m.dirHash, m.dirBuckets, NewKey(parent, name))
}

// LookupFile resolves a file child of parent by name.
func (m *FsMeta) LookupFile(parent uint32, name string) (uint32, error) {
	return lookup(m.files, m.fileHash, m.fileBuckets, NewKey(parent, name))
}

// hasChild reports whether parent already has a dir or file child named name
// (spec.md §4.4: create/rename reject duplicates against both tables).
func (m *FsMeta) hasChild(parent uint32, name string) (bool, error) {
	if _, err := m.LookupDir(parent, name); err == nil {
		return true, nil
	} else if err != ErrNotFound {
		return false, err
	}
	if _, err := m.LookupFile(parent, name); err == nil {
		return true, nil
	} else if err != ErrNotFound {
		return false, err
	}
	return false, nil
}

// NewSubDir creates a directory named name under parent.
func (m *FsMeta) NewSubDir(parent uint32, name string) (uint32, error) {
	if exists, err := m.hasChild(parent, name); err != nil {
		return 0, err
	} else if exists {
		return 0, ErrAlreadyExist
	}

	ino, ok, err := m.dirs.popFree()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoSpace
	}

	key := NewKey(parent, name)
	if err := m.dirs.writeKey(ino, key); err != nil {
		return 0, err
	}
	if err := m.writeDir(ino, DirRecord{}); err != nil {
		return 0, err
	}

	parentRec, err := m.ReadDir(parent)
	if err != nil {
		return 0, err
	}
	if err := m.dirs.writeListNext(ino, parentRec.SubDir); err != nil {
		return 0, err
	}
	parentRec.SubDir = ino
	if err := m.writeDir(parent, parentRec); err != nil {
		return 0, err
	}

	if err := insertIntoBucket(m.dirs, m.dirHash, m.dirBuckets, key, ino); err != nil {
		return 0, err
	}
	return ino, nil
}

// NewSubFile creates a file named name under parent with the given record
// (caller has already wired up the FAT chain, if any, and set rec.Block/Size).
func (m *FsMeta) NewSubFile(parent uint32, name string, rec FileRecord) (uint32, error) {
	if exists, err := m.hasChild(parent, name); err != nil {
		return 0, err
	} else if exists {
		return 0, ErrAlreadyExist
	}

	ino, ok, err := m.files.popFree()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoSpace
	}

	key := NewKey(parent, name)
	if err := m.files.writeKey(ino, key); err != nil {
		return 0, err
	}
	rec.Next = 0
	buf := make([]byte, filePayloadSize)
	rec.encode(buf)
	if err := m.files.writePayload(ino, buf); err != nil {
		return 0, err
	}

	parentRec, err := m.ReadDir(parent)
	if err != nil {
		return 0, err
	}
	if err := m.files.writeListNext(ino, parentRec.SubFile); err != nil {
		return 0, err
	}
	parentRec.SubFile = ino
	if err := m.writeDir(parent, parentRec); err != nil {
		return 0, err
	}

	if err := insertIntoBucket(m.files, m.fileHash, m.fileBuckets, key, ino); err != nil {
		return 0, err
	}
	return ino, nil
}

// ListSubDir returns the ino of every child directory of parent, in
// insertion (most-recent-first) order.
func (m *FsMeta) ListSubDir(parent uint32) ([]uint32, error) {
	rec, err := m.ReadDir(parent)
	if err != nil {
		return nil, err
	}
	var out []uint32
	cur := rec.SubDir
	for cur != 0 {
		out = append(out, cur)
		cur, err = m.dirs.readListNext(cur)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListSubFile returns the ino of every child file of parent, in insertion
// (most-recent-first) order.
func (m *FsMeta) ListSubFile(parent uint32) ([]uint32, error) {
	rec, err := m.ReadDir(parent)
	if err != nil {
		return nil, err
	}
	var out []uint32
	cur := rec.SubFile
	for cur != 0 {
		out = append(out, cur)
		cur, err = m.files.readListNext(cur)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RenameDir moves directory ino to be named newName under newParent.
func (m *FsMeta) RenameDir(ino, newParent uint32, newName string) error {
	if exists, err := m.hasChild(newParent, newName); err != nil {
		return err
	} else if exists {
		return ErrAlreadyExist
	}

	oldKey, err := m.dirs.readKey(ino)
	if err != nil {
		return err
	}

	oldParentRec, err := m.ReadDir(oldKey.Parent)
	if err != nil {
		return err
	}
	if err := removeFromChildList(m.dirs, &oldParentRec.SubDir, ino); err != nil {
		return err
	}
	if err := m.writeDir(oldKey.Parent, oldParentRec); err != nil {
		return err
	}
	if err := removeFromBucket(m.dirs, m.dirHash, m.dirBuckets, oldKey, ino); err != nil {
		return err
	}

	newKey := NewKey(newParent, newName)
	if err := m.dirs.writeKey(ino, newKey); err != nil {
		return err
	}

	newParentRec, err := m.ReadDir(newParent)
	if err != nil {
		return err
	}
	if err := m.dirs.writeListNext(ino, newParentRec.SubDir); err != nil {
		return err
	}
	newParentRec.SubDir = ino
	if err := m.writeDir(newParent, newParentRec); err != nil {
		return err
	}

	return insertIntoBucket(m.dirs, m.dirHash, m.dirBuckets, newKey, ino)
}

// RenameFile moves file ino to be named newName under newParent.
func (m *FsMeta) RenameFile(ino, newParent uint32, newName string) error {
	if exists, err := m.hasChild(newParent, newName); err != nil {
		return err
	} else if exists {
		return ErrAlreadyExist
	}

	oldKey, err := m.files.readKey(ino)
	if err != nil {
		return err
	}

	oldParentRec, err := m.ReadDir(oldKey.Parent)
	if err != nil {
		return err
	}
	if err := removeFromChildList(m.files, &oldParentRec.SubFile, ino); err != nil {
		return err
	}
	if err := m.writeDir(oldKey.Parent, oldParentRec); err != nil {
		return err
	}
	if err := removeFromBucket(m.files, m.fileHash, m.fileBuckets, oldKey, ino); err != nil {
		return err
	}

	newKey := NewKey(newParent, newName)
	if err := m.files.writeKey(ino, newKey); err != nil {
		return err
	}

	newParentRec, err := m.ReadDir(newParent)
	if err != nil {
		return err
	}
	if err := m.files.writeListNext(ino, newParentRec.SubFile); err != nil {
		return err
	}
	newParentRec.SubFile = ino
	if err := m.writeDir(newParent, newParentRec); err != nil {
		return err
	}

	return insertIntoBucket(m.files, m.fileHash, m.fileBuckets, newKey, ino)
}

// DeleteDir removes an empty directory.
func (m *FsMeta) DeleteDir(ino uint32) error {
	rec, err := m.ReadDir(ino)
	if err != nil {
		return err
	}
	if rec.SubDir != 0 || rec.SubFile != 0 {
		return ErrDeletingNonEmpty
	}

	key, err := m.dirs.readKey(ino)
	if err != nil {
		return err
	}

	parentRec, err := m.ReadDir(key.Parent)
	if err != nil {
		return err
	}
	if err := removeFromChildList(m.dirs, &parentRec.SubDir, ino); err != nil {
		return err
	}
	if err := m.writeDir(key.Parent, parentRec); err != nil {
		return err
	}
	if err := removeFromBucket(m.dirs, m.dirHash, m.dirBuckets, key, ino); err != nil {
		return err
	}

	return m.dirs.pushFree(ino)
}

// DeleteFile removes a file record (the caller is responsible for freeing
// its FAT chain first, if any).
func (m *FsMeta) DeleteFile(ino uint32) error {
	key, err := m.files.readKey(ino)
	if err != nil {
		return err
	}

	parentRec, err := m.ReadDir(key.Parent)
	if err != nil {
		return err
	}
	if err := removeFromChildList(m.files, &parentRec.SubFile, ino); err != nil {
		return err
	}
	if err := m.writeDir(key.Parent, parentRec); err != nil {
		return err
	}
	if err := removeFromBucket(m.files, m.fileHash, m.fileBuckets, key, ino); err != nil {
		return err
	}

	return m.files.pushFree(ino)
}

// ReadFile returns the decoded payload of a file record.
func (m *FsMeta) ReadFile(ino uint32) (FileRecord, error) {
	buf, err := m.files.readPayload(ino)
	if err != nil {
		return FileRecord{}, err
	}
	return decodeFileRecord(buf), nil
}

// WriteFile overwrites the payload of an existing file record (used by
// resize to update Block/Size), preserving its hash-chain next pointer.
func (m *FsMeta) WriteFile(ino uint32, rec FileRecord) error {
	existing, err := m.ReadFile(ino)
	if err != nil {
		return err
	}
	rec.Next = existing.Next
	buf := make([]byte, filePayloadSize)
	rec.encode(buf)
	return m.files.writePayload(ino, buf)
}

// Commit flushes the four metadata regions.
func (m *FsMeta) Commit() error {
	if err := m.dirHash.Commit(); err != nil {
		return err
	}
	if err := m.dirs.io.Commit(); err != nil {
		return err
	}
	if err := m.fileHash.Commit(); err != nil {
		return err
	}
	return m.files.io.Commit()
}
