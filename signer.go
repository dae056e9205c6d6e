package savecore

import "crypto/sha256"

// CTRSav0Signer signs a header by SHA-256 hashing it under the "CTR-SAV0"
// domain prefix, matching original_source's CtrSav0Signer::block (prefix
// only, no key material) followed by a plain digest.
type CTRSav0Signer struct{}

func (s CTRSav0Signer) Sign(header []byte) ([]byte, error) {
	h := sha256.New()
	h.Write([]byte("CTR-SAV0"))
	h.Write(header)
	return h.Sum(nil), nil
}

// NandSaveSigner signs under the "CTR-SYS0" domain prefix plus a 4-byte
// little-endian save ID and 4 bytes of padding, mirroring
// original_source's NandSaveSigner::block. The per-console key used
// elsewhere in the real format is AES material fed into the (out-of-scope)
// outer container, never into this hash.
type NandSaveSigner struct {
	ID uint32
}

func (s NandSaveSigner) Sign(header []byte) ([]byte, error) {
	h := sha256.New()
	h.Write([]byte("CTR-SYS0"))
	h.Write(le32(s.ID))
	h.Write([]byte{0, 0, 0, 0})
	h.Write(header)
	return h.Sum(nil), nil
}

// SDSigner signs under the "CTR-SIGN" domain prefix plus an 8-byte
// little-endian save ID, folding in a CTRSav0Signer digest of the same
// header, mirroring original_source's SdSaveSigner::block wrapping
// CtrSav0Signer.
type SDSigner struct {
	ID uint64
}

func (s SDSigner) Sign(header []byte) ([]byte, error) {
	inner, err := (CTRSav0Signer{}).Sign(header)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte("CTR-SIGN"))
	h.Write(le64(s.ID))
	h.Write(inner)
	return h.Sum(nil), nil
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}
