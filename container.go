package savecore

// Signer is supplied by the host application and used only inside
// Container.Commit to produce (or refresh) whatever block-level signature or
// MAC the outer image format requires over its header (spec.md §6). Distinct
// save formats (CTR sav0, SD card, NAND) sign differently; savecore never
// interprets the signature itself, it only calls Sign at commit time.
type Signer interface {
	// Sign computes the signature/MAC bytes for header, the raw header
	// region content (as read from partition 0 at offset 0..headerLen).
	Sign(header []byte) ([]byte, error)
}

// Container is the external collaborator that supplies the raw partitions
// backing a save image, plus the Signer used to re-sign it on commit
// (spec.md §6). Implementations decide how many partitions exist, how they
// are physically stored, and how Commit persists and signs them.
type Container interface {
	// PartitionCount returns 1 or 2 (spec.md §4.5).
	PartitionCount() int

	// Partition returns the BlockIO for partition index i (0-based). i must
	// be < PartitionCount().
	Partition(i int) BlockIO

	// Signer returns the collaborator used to sign the image header on
	// commit, or nil if this container does not sign.
	Signer() Signer

	// Commit persists every partition and, if a Signer is present, updates
	// the header's signature before the final flush.
	Commit() error
}
