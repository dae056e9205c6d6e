package savecore_test

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/galsio/savecore"
)

const ivfcBlockSize = 16

func newVerifiedBlocks(t *testing.T, blockCount int64, fill byte) (*savecore.IVFC, *savecore.MemBlock, *savecore.MemBlock) {
	t.Helper()
	data := savecore.NewMemBlock(blockCount * ivfcBlockSize)
	hash := savecore.NewMemBlock(blockCount * 32)

	buf := make([]byte, ivfcBlockSize)
	for i := range buf {
		buf[i] = fill
	}
	for b := int64(0); b < blockCount; b++ {
		if err := data.WriteAt(buf, b*ivfcBlockSize); err != nil {
			t.Fatalf("seed data: %v", err)
		}
		sum := sha256.Sum256(buf)
		if err := hash.WriteAt(sum[:], b*32); err != nil {
			t.Fatalf("seed hash: %v", err)
		}
	}

	v, err := savecore.NewIVFC(data, hash, ivfcBlockSize)
	if err != nil {
		t.Fatalf("NewIVFC: %v", err)
	}
	return v, data, hash
}

func TestIVFCRoundTrip(t *testing.T) {
	v, _, _ := newVerifiedBlocks(t, 4, 0xAB)

	got := make([]byte, ivfcBlockSize)
	if err := v.ReadAt(got, ivfcBlockSize); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for _, b := range got {
		if b != 0xAB {
			t.Fatalf("ReadAt returned %x, want all 0xAB", got)
		}
	}

	patch := []byte{1, 2, 3, 4}
	if err := v.WriteAt(patch, ivfcBlockSize); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := v.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got2 := make([]byte, len(patch))
	if err := v.ReadAt(got2, ivfcBlockSize); err != nil {
		t.Fatalf("ReadAt after commit: %v", err)
	}
	if string(got2) != string(patch) {
		t.Fatalf("ReadAt after commit = %x, want %x", got2, patch)
	}
}

func TestIVFCCrossBlockReadWrite(t *testing.T) {
	v, _, _ := newVerifiedBlocks(t, 3, 0)

	payload := make([]byte, ivfcBlockSize+4)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	if err := v.WriteAt(payload, ivfcBlockSize/2); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	got := make([]byte, len(payload))
	if err := v.ReadAt(got, ivfcBlockSize/2); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("cross-block round trip mismatch: got %v want %v", got, payload)
	}
}

func TestIVFCHashMismatchIsNonLatching(t *testing.T) {
	v, data, _ := newVerifiedBlocks(t, 2, 0x11)

	// Corrupt the backing data directly, bypassing the IVFC layer, so the
	// stored digest no longer matches.
	if err := data.WriteAt([]byte{0xFF}, 0); err != nil {
		t.Fatalf("corrupt data: %v", err)
	}

	buf := make([]byte, ivfcBlockSize)
	if err := v.ReadAt(buf, 0); !errors.Is(err, savecore.ErrHashMismatch) {
		t.Fatalf("ReadAt over corrupted block: got %v, want ErrHashMismatch", err)
	}

	// Fix the backing store back up; since the failed verify never latched
	// a Verified/Modified status, a retry must succeed.
	if err := data.WriteAt([]byte{0x11}, 0); err != nil {
		t.Fatalf("repair data: %v", err)
	}
	if err := v.ReadAt(buf, 0); err != nil {
		t.Fatalf("retry ReadAt after repair: %v", err)
	}
}

func TestIVFCHashRegionSizeMismatch(t *testing.T) {
	data := savecore.NewMemBlock(4 * ivfcBlockSize)
	hash := savecore.NewMemBlock(31) // far short of 4*32 = 128
	if _, err := savecore.NewIVFC(data, hash, ivfcBlockSize); !errors.Is(err, savecore.ErrSizeMismatch) {
		t.Fatalf("NewIVFC with wrong hash length: got %v, want ErrSizeMismatch", err)
	}
}

func TestIVFCTailBlockZeroPadding(t *testing.T) {
	// 3 blocks of 16, but data region is only 40 bytes (tail block half-full).
	data := savecore.NewMemBlock(2*ivfcBlockSize + 8)
	hash := savecore.NewMemBlock(3 * 32)

	full := make([]byte, ivfcBlockSize)
	if err := data.WriteAt(full, 0); err != nil {
		t.Fatal(err)
	}
	if err := data.WriteAt(full, ivfcBlockSize); err != nil {
		t.Fatal(err)
	}
	tail := make([]byte, 8)
	for i := range tail {
		tail[i] = byte(i + 1)
	}
	if err := data.WriteAt(tail, 2*ivfcBlockSize); err != nil {
		t.Fatal(err)
	}

	padded := make([]byte, ivfcBlockSize)
	copy(padded, tail)
	sum := sha256.Sum256(padded)
	if err := hash.WriteAt(sum[:], 2*32); err != nil {
		t.Fatal(err)
	}
	zero := sha256.Sum256(full)
	if err := hash.WriteAt(zero[:], 0); err != nil {
		t.Fatal(err)
	}
	if err := hash.WriteAt(zero[:], 32); err != nil {
		t.Fatal(err)
	}

	v, err := savecore.NewIVFC(data, hash, ivfcBlockSize)
	if err != nil {
		t.Fatalf("NewIVFC: %v", err)
	}
	got := make([]byte, 8)
	if err := v.ReadAt(got, 2*ivfcBlockSize); err != nil {
		t.Fatalf("ReadAt tail block: %v", err)
	}
	if string(got) != string(tail) {
		t.Fatalf("tail block mismatch: got %v want %v", got, tail)
	}
}
