package savecore

// FatFile is a random-access handle to one FAT-allocated chain of runs,
// implementing BlockIO by translating a linear offset into
// (run_index, intra_run_offset) against the cached run table built at
// Open/Create time, then issuing block-aligned I/O to the data region.
type FatFile struct {
	fat    *Fat
	runs   []runSpan
	length int64 // total bytes across all runs (runs * blockSize)
}

func (ff *FatFile) Len() int64 {
	return ff.length
}

// locate returns the data-region byte offset corresponding to linear offset
// pos, and how many contiguous bytes from pos fall within the same run (so
// callers can decompose a read/write that straddles runs).
func (ff *FatFile) locate(pos int64) (dataOffset int64, runRemaining int64) {
	blockSize := ff.fat.blockSize
	block := pos / blockSize
	intraBlock := pos % blockSize

	var seen int64
	for _, r := range ff.runs {
		runBlocks := int64(r.length)
		if block < seen+runBlocks {
			blockInRun := block - seen
			dataOffset = (int64(r.head-1)+blockInRun)*blockSize + intraBlock
			runRemaining = (runBlocks-blockInRun)*blockSize - intraBlock
			return
		}
		seen += runBlocks
	}
	// pos == Len(): nothing left to locate; callers must not dereference.
	return 0, 0
}

func (ff *FatFile) ReadAt(buf []byte, pos int64) error {
	if err := checkBounds(ff.length, pos, len(buf)); err != nil {
		return err
	}
	n := len(buf)
	for n > 0 {
		dataOff, runRemaining := ff.locate(pos)
		chunk := int64(n)
		if chunk > runRemaining {
			chunk = runRemaining
		}
		if err := ff.fat.data.ReadAt(buf[:chunk], dataOff); err != nil {
			return err
		}
		buf = buf[chunk:]
		pos += chunk
		n -= int(chunk)
	}
	return nil
}

func (ff *FatFile) WriteAt(buf []byte, pos int64) error {
	if err := checkBounds(ff.length, pos, len(buf)); err != nil {
		return err
	}
	n := len(buf)
	for n > 0 {
		dataOff, runRemaining := ff.locate(pos)
		chunk := int64(n)
		if chunk > runRemaining {
			chunk = runRemaining
		}
		if err := ff.fat.data.WriteAt(buf[:chunk], dataOff); err != nil {
			return err
		}
		buf = buf[chunk:]
		pos += chunk
		n -= int(chunk)
	}
	return nil
}

func (ff *FatFile) Commit() error {
	return ff.fat.data.Commit()
}

// StartIndex returns the run-head index of the first run in the chain, the
// value callers persist as a file's "block" field (spec.md §3).
func (ff *FatFile) StartIndex() uint32 {
	if len(ff.runs) == 0 {
		return 0
	}
	return ff.runs[0].head
}
