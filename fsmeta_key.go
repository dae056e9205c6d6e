package savecore

import "encoding/binary"

// NameLen is the fixed width, in bytes, of a directory or file entry name
// (spec.md §3: "16-byte name"). Names shorter than this are NUL-padded;
// comparison is byte-exact, not NUL-trimmed.
const NameLen = 16

// Key is a metadata entry key: a 16-byte name plus the 4-byte ino of the
// parent directory. It is unique per parent (spec.md §3).
type Key struct {
	Name   [NameLen]byte
	Parent uint32
}

// NewKey builds a Key from a Go string, NUL-padding or truncating to
// NameLen bytes.
func NewKey(parent uint32, name string) Key {
	var k Key
	k.Parent = parent
	copy(k.Name[:], name)
	return k
}

func decodeKey(buf []byte) Key {
	var k Key
	copy(k.Name[:], buf[0:NameLen])
	k.Parent = binary.LittleEndian.Uint32(buf[NameLen : NameLen+4])
	return k
}

func (k Key) encode(buf []byte) {
	copy(buf[0:NameLen], k.Name[:])
	binary.LittleEndian.PutUint32(buf[NameLen:NameLen+4], k.Parent)
}

const keySize = NameLen + 4

// equal reports whether two keys address the same parent/name pair,
// comparing names byte-exact per spec.md §3.
func (k Key) equal(o Key) bool {
	return k.Parent == o.Parent && k.Name == o.Name
}

// bucket computes the hash-bucket index for this key: parent_ino XOR the
// four little-endian 32-bit words of the name, mod bucketCount (spec.md §3).
func (k Key) bucket(bucketCount uint32) uint32 {
	h := k.Parent
	for i := 0; i < NameLen; i += 4 {
		h ^= binary.LittleEndian.Uint32(k.Name[i : i+4])
	}
	return h % bucketCount
}
