package savecore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"reflect"
)

// headerMagic is the 4-byte signature at offset 0 of partition 0 (spec.md §6).
var headerMagic = [4]byte{'S', 'A', 'V', 'E'}

// headerVersion is the only version this package understands (spec.md §6).
const headerVersion uint32 = 0x00040000

// Header is the 32-byte outer image header, decoded the way the teacher's
// Superblock decodes itself: reflect walks the exported fields in
// declaration order and binary.Reads each one off the wire.
type Header struct {
	Magic      [4]byte
	Version    uint32
	FsInfoOff  uint64
	ImageSize  uint64
	ImageBlk   uint32
	paddingU32 uint32 // unexported: skipped by UnmarshalBinary, still occupies 4 bytes on the wire
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < headerBinarySize() {
		return fmt.Errorf("%w: header is %d bytes, want %d", ErrSizeMismatch, len(data), headerBinarySize())
	}
	if !bytes.Equal(data[:4], headerMagic[:]) {
		return fmt.Errorf("%w: got magic %q", ErrMagicMismatch, data[:4])
	}

	r := bytes.NewReader(data)
	v := reflect.ValueOf(h).Elem()
	for i := 0; i < v.NumField(); i++ {
		name := v.Type().Field(i).Name
		if name[0] < 'A' || name[0] > 'Z' {
			if err := binary.Read(r, binary.LittleEndian, reflect.New(v.Field(i).Type()).Interface()); err != nil {
				return err
			}
			continue
		}
		if err := binary.Read(r, binary.LittleEndian, v.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}

	if h.Version != headerVersion {
		return fmt.Errorf("%w: got version %#x, want %#x", ErrMagicMismatch, h.Version, headerVersion)
	}
	return nil
}

func headerBinarySize() int {
	var h Header
	v := reflect.ValueOf(&h).Elem()
	var sz int
	for i := 0; i < v.NumField(); i++ {
		sz += int(v.Field(i).Type().Size())
	}
	return sz
}

// ParseHeader reads and validates the 32-byte header at offset 0 of io.
func ParseHeader(io BlockIO) (*Header, error) {
	buf := make([]byte, headerBinarySize())
	if err := io.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	h := &Header{}
	if err := h.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	log.Printf("savecore: header parsed, fs_info at %#x, image size %d", h.FsInfoOff, h.ImageSize)
	return h, nil
}

// FsInfo is the filesystem superblock describing the offsets, sizes, and
// capacities of every region of the image (spec.md §6).
type FsInfo struct {
	Unknown0       uint32
	BlockLen       uint32
	DirHashOffset  uint64
	DirBuckets     uint32
	FileHashOffset uint64
	FileBuckets    uint32
	FatOffset      uint64
	FatSize        uint32
	DataOffset     uint64
	DataBlockCount uint32
	DirTable       uint64
	MaxDir         uint32
	FileTable      uint64
	MaxFile        uint32
}

func (f *FsInfo) UnmarshalBinary(data []byte) error {
	if len(data) < fsInfoBinarySize() {
		return fmt.Errorf("%w: fs_info is %d bytes, want %d", ErrSizeMismatch, len(data), fsInfoBinarySize())
	}
	r := bytes.NewReader(data)
	v := reflect.ValueOf(f).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Read(r, binary.LittleEndian, v.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

func fsInfoBinarySize() int {
	var f FsInfo
	v := reflect.ValueOf(&f).Elem()
	var sz int
	for i := 0; i < v.NumField(); i++ {
		sz += int(v.Field(i).Type().Size())
	}
	return sz
}

// ParseFsInfo reads and decodes the FsInfo at header.FsInfoOff of io.
func ParseFsInfo(io BlockIO, header *Header) (*FsInfo, error) {
	size := fsInfoBinarySize()
	buf := make([]byte, size)
	if err := io.ReadAt(buf, int64(header.FsInfoOff)); err != nil {
		return nil, err
	}
	info := &FsInfo{}
	if err := info.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	if info.DataBlockCount != info.FatSize {
		return nil, fmt.Errorf("%w: fs_info data_block_count %d != fat_size %d", ErrSizeMismatch, info.DataBlockCount, info.FatSize)
	}
	return info, nil
}
