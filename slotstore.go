package savecore

import (
	"encoding/binary"
	"fmt"
)

// slotStore is the common on-disk layout shared by the directory and file
// metadata tables (spec.md §4.4): a contiguous array of fixed-size slots,
// each holding a Key (20 B), a type-specific payload, and a trailing 4-byte
// "list next" field used either as the sibling-in-parent chain link (live
// slots) or the free-slot chain link (slot 0 and any freed slot).
//
// Slot 0 of every table is the free-slot list head; it has no meaningful Key
// or payload of its own.
type slotStore struct {
	io          BlockIO
	payloadSize int64
	slotSize    int64
	count       uint32 // total slots, including slot 0
}

func newSlotStore(io BlockIO, payloadSize int64) (*slotStore, error) {
	slotSize := int64(keySize) + payloadSize + 4
	if io.Len()%slotSize != 0 {
		return nil, fmt.Errorf("%w: metadata table is %d bytes, not a multiple of slot size %d", ErrSizeMismatch, io.Len(), slotSize)
	}
	return &slotStore{
		io:          io,
		payloadSize: payloadSize,
		slotSize:    slotSize,
		count:       uint32(io.Len() / slotSize),
	}, nil
}

func (s *slotStore) checkIno(i uint32) error {
	if i >= s.count {
		return fmt.Errorf("%w: ino %d out of range [0,%d)", ErrNotFound, i, s.count)
	}
	return nil
}

func (s *slotStore) readKey(i uint32) (Key, error) {
	if err := s.checkIno(i); err != nil {
		return Key{}, err
	}
	buf := make([]byte, keySize)
	if err := s.io.ReadAt(buf, int64(i)*s.slotSize); err != nil {
		return Key{}, err
	}
	return decodeKey(buf), nil
}

func (s *slotStore) writeKey(i uint32, k Key) error {
	if err := s.checkIno(i); err != nil {
		return err
	}
	buf := make([]byte, keySize)
	k.encode(buf)
	return s.io.WriteAt(buf, int64(i)*s.slotSize)
}

func (s *slotStore) readPayload(i uint32) ([]byte, error) {
	if err := s.checkIno(i); err != nil {
		return nil, err
	}
	buf := make([]byte, s.payloadSize)
	if err := s.io.ReadAt(buf, int64(i)*s.slotSize+keySize); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *slotStore) writePayload(i uint32, buf []byte) error {
	if err := s.checkIno(i); err != nil {
		return err
	}
	return s.io.WriteAt(buf, int64(i)*s.slotSize+keySize)
}

// readPayloadHashNext reads the first four bytes of the payload, which is
// the hash-chain sibling pointer in both DirRecord and FileRecord.
func (s *slotStore) readPayloadHashNext(i uint32) (uint32, error) {
	if err := s.checkIno(i); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	if err := s.io.ReadAt(buf, int64(i)*s.slotSize+keySize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (s *slotStore) writePayloadHashNext(i uint32, v uint32) error {
	if err := s.checkIno(i); err != nil {
		return err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return s.io.WriteAt(buf, int64(i)*s.slotSize+keySize)
}

func (s *slotStore) readListNext(i uint32) (uint32, error) {
	if err := s.checkIno(i); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	if err := s.io.ReadAt(buf, int64(i)*s.slotSize+keySize+s.payloadSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (s *slotStore) writeListNext(i uint32, v uint32) error {
	if err := s.checkIno(i); err != nil {
		return err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return s.io.WriteAt(buf, int64(i)*s.slotSize+keySize+s.payloadSize)
}

// popFree pops the head of the free-slot list (linked through slot 0's list
// next field), returning ok=false if the table is full.
func (s *slotStore) popFree() (ino uint32, ok bool, err error) {
	head, err := s.readListNext(0)
	if err != nil {
		return 0, false, err
	}
	if head == 0 {
		return 0, false, nil
	}
	next, err := s.readListNext(head)
	if err != nil {
		return 0, false, err
	}
	if err := s.writeListNext(0, next); err != nil {
		return 0, false, err
	}
	return head, true, nil
}

// pushFree prepends ino to the free-slot list.
func (s *slotStore) pushFree(ino uint32) error {
	head, err := s.readListNext(0)
	if err != nil {
		return err
	}
	if err := s.writeListNext(ino, head); err != nil {
		return err
	}
	return s.writeListNext(0, ino)
}
