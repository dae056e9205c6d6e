package savecore_test

import (
	"testing"

	"github.com/galsio/savecore"
	"github.com/stretchr/testify/require"
)

// buildBlankFsMeta builds dir/file tables of the given capacities (plus
// slot 0 and, for dirs, the root) with every non-root slot chained onto the
// free list, and a root directory at ino 1.
func buildBlankFsMeta(t *testing.T, dirCap, fileCap, dirBuckets, fileBuckets uint32) *savecore.FsMeta {
	t.Helper()

	dirSlotSize := int64(20 + 12 + 4)  // keySize + dirPayloadSize + listNext
	fileSlotSize := int64(20 + 24 + 4) // keySize + filePayloadSize + listNext

	dirHash := savecore.NewMemBlock(int64(dirBuckets) * 4)
	fileHash := savecore.NewMemBlock(int64(fileBuckets) * 4)
	dirTable := savecore.NewMemBlock(int64(dirCap+2) * dirSlotSize) // slot0 + root + dirCap
	fileTable := savecore.NewMemBlock(int64(fileCap+1) * fileSlotSize)

	writeU32 := func(io *savecore.MemBlock, pos int64, v uint32) {
		buf := make([]byte, 4)
		buf[0] = byte(v)
		buf[1] = byte(v >> 8)
		buf[2] = byte(v >> 16)
		buf[3] = byte(v >> 24)
		require.NoError(t, io.WriteAt(buf, pos))
	}

	// dir_table: slot 0 is the free list head; chain slots 2..dirCap+1
	// (everything after the root at slot 1) onto it, in descending order so
	// popFree yields ascending inos.
	dirFreeListNextOff := func(i uint32) int64 { return int64(i)*dirSlotSize + 20 + 12 }
	prev := uint32(0)
	for i := dirCap + 1; i >= 2; i-- {
		writeU32(dirTable, dirFreeListNextOff(i), prev)
		prev = i
		if i == 2 {
			break
		}
	}
	writeU32(dirTable, dirFreeListNextOff(0), prev)

	fileFreeListNextOff := func(i uint32) int64 { return int64(i)*fileSlotSize + 20 + 24 }
	prev = 0
	for i := fileCap; i >= 1; i-- {
		writeU32(fileTable, fileFreeListNextOff(i), prev)
		prev = i
		if i == 1 {
			break
		}
	}
	writeU32(fileTable, fileFreeListNextOff(0), prev)

	// Root directory at ino 1: key = {parent: 1, name: ""} matching
	// original_source's convention of the root pointing at itself.
	writeU32(dirTable, int64(savecore.RootIno)*dirSlotSize+16, savecore.RootIno) // key.Parent for ino 1

	meta, err := savecore.NewFsMeta(dirHash, dirTable, fileHash, fileTable)
	require.NoError(t, err)
	return meta
}

func TestFsMetaCreateLookupList(t *testing.T) {
	meta := buildBlankFsMeta(t, 8, 8, 4, 4)

	dirIno, err := meta.NewSubDir(savecore.RootIno, "docs")
	require.NoError(t, err)

	fileIno, err := meta.NewSubFile(savecore.RootIno, "readme", savecore.FileRecord{Block: 5, Size: 100})
	require.NoError(t, err)

	gotDir, err := meta.LookupDir(savecore.RootIno, "docs")
	require.NoError(t, err)
	require.Equal(t, dirIno, gotDir)

	gotFile, err := meta.LookupFile(savecore.RootIno, "readme")
	require.NoError(t, err)
	require.Equal(t, fileIno, gotFile)

	_, err = meta.LookupDir(savecore.RootIno, "missing")
	require.ErrorIs(t, err, savecore.ErrNotFound)

	dirs, err := meta.ListSubDir(savecore.RootIno)
	require.NoError(t, err)
	require.Equal(t, []uint32{dirIno}, dirs)

	files, err := meta.ListSubFile(savecore.RootIno)
	require.NoError(t, err)
	require.Equal(t, []uint32{fileIno}, files)
}

func TestFsMetaRejectsDuplicateAcrossDirAndFileTables(t *testing.T) {
	meta := buildBlankFsMeta(t, 8, 8, 4, 4)

	_, err := meta.NewSubDir(savecore.RootIno, "shared")
	require.NoError(t, err)

	_, err = meta.NewSubFile(savecore.RootIno, "shared", savecore.FileRecord{Block: 0x80000000})
	require.ErrorIs(t, err, savecore.ErrAlreadyExist)

	_, err = meta.NewSubFile(savecore.RootIno, "other", savecore.FileRecord{Block: 0x80000000})
	require.NoError(t, err)

	_, err = meta.NewSubDir(savecore.RootIno, "other")
	require.ErrorIs(t, err, savecore.ErrAlreadyExist)
}

func TestFsMetaRenameAcrossParents(t *testing.T) {
	meta := buildBlankFsMeta(t, 8, 8, 4, 4)

	sub, err := meta.NewSubDir(savecore.RootIno, "sub")
	require.NoError(t, err)

	fileIno, err := meta.NewSubFile(savecore.RootIno, "doc", savecore.FileRecord{Block: 0x80000000})
	require.NoError(t, err)

	require.NoError(t, meta.RenameFile(fileIno, sub, "doc"))

	_, err = meta.LookupFile(savecore.RootIno, "doc")
	require.ErrorIs(t, err, savecore.ErrNotFound)

	got, err := meta.LookupFile(sub, "doc")
	require.NoError(t, err)
	require.Equal(t, fileIno, got)

	rootFiles, err := meta.ListSubFile(savecore.RootIno)
	require.NoError(t, err)
	require.Empty(t, rootFiles)
}

func TestFsMetaRenameRejectsCollisionAtDestination(t *testing.T) {
	meta := buildBlankFsMeta(t, 8, 8, 4, 4)

	x, err := meta.NewSubFile(savecore.RootIno, "X", savecore.FileRecord{Block: 0x80000000})
	require.NoError(t, err)
	_, err = meta.NewSubFile(savecore.RootIno, "Y", savecore.FileRecord{Block: 0x80000000})
	require.NoError(t, err)

	err = meta.RenameFile(x, savecore.RootIno, "Y")
	require.ErrorIs(t, err, savecore.ErrAlreadyExist)
}

func TestFsMetaDeleteRequiresEmptyDir(t *testing.T) {
	meta := buildBlankFsMeta(t, 8, 8, 4, 4)

	sub, err := meta.NewSubDir(savecore.RootIno, "sub")
	require.NoError(t, err)
	_, err = meta.NewSubFile(sub, "f", savecore.FileRecord{Block: 0x80000000})
	require.NoError(t, err)

	err = meta.DeleteDir(sub)
	require.ErrorIs(t, err, savecore.ErrDeletingNonEmpty)
}

func TestFsMetaDeleteIsIdempotentNotFound(t *testing.T) {
	meta := buildBlankFsMeta(t, 8, 8, 4, 4)

	fileIno, err := meta.NewSubFile(savecore.RootIno, "f", savecore.FileRecord{Block: 0x80000000})
	require.NoError(t, err)

	require.NoError(t, meta.DeleteFile(fileIno))

	_, err = meta.LookupFile(savecore.RootIno, "f")
	require.ErrorIs(t, err, savecore.ErrNotFound)

	err = meta.DeleteFile(fileIno)
	require.ErrorIs(t, err, savecore.ErrNotFound)
}

func TestFsMetaNameUniquenessWithinParent(t *testing.T) {
	meta := buildBlankFsMeta(t, 8, 8, 4, 4)

	a, err := meta.NewSubDir(savecore.RootIno, "child")
	require.NoError(t, err)
	b, err := meta.NewSubDir(savecore.RootIno, "other")
	require.NoError(t, err)

	require.NotEqual(t, a, b)

	_, err = meta.NewSubDir(savecore.RootIno, "child")
	require.ErrorIs(t, err, savecore.ErrAlreadyExist)
}
