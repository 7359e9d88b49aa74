package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Record layout, little-endian:
//
//	MAGIC u32 | VERSION u16 | LENGTH u32 | EVENT_ID u64 | TICK u64 | PAYLOAD | CRC32 u32
//
// CRC32 (IEEE) covers every byte before it.
const (
	Magic         uint32 = 0x57414C31 // "WAL1"
	FormatVersion uint16 = 1

	HeaderSize  = 4 + 2 + 4 + 8 + 8
	TrailerSize = 4

	// MaxPayload bounds LENGTH so a corrupt header cannot request a huge read.
	MaxPayload = 16 << 20
)

// Record is one event as stored in the log.
type Record struct {
	EventID uint64
	Tick    uint64
	Payload []byte
}

// Size is the number of bytes the record occupies on disk.
func (r Record) Size() int64 { return int64(HeaderSize + len(r.Payload) + TrailerSize) }

// CorruptRecordError reports a record that failed its integrity check.
type CorruptRecordError struct {
	Path   string
	Offset int64
	Reason string
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("wal %s: corrupt record at offset %d: %s", e.Path, e.Offset, e.Reason)
}

// errIncomplete marks a record cut short by the end of the file.
var errIncomplete = errors.New("incomplete record")

func encodeRecord(dst []byte, r Record) []byte {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint16(hdr[4:6], FormatVersion)
	binary.LittleEndian.PutUint32(hdr[6:10], uint32(len(r.Payload)))
	binary.LittleEndian.PutUint64(hdr[10:18], r.EventID)
	binary.LittleEndian.PutUint64(hdr[18:26], r.Tick)

	crc := crc32.NewIEEE()
	crc.Write(hdr[:])
	crc.Write(r.Payload)

	dst = append(dst, hdr[:]...)
	dst = append(dst, r.Payload...)
	return binary.LittleEndian.AppendUint32(dst, crc.Sum32())
}

// readRecord decodes the next record. It returns io.EOF at a clean end,
// errIncomplete for a truncated tail, and a plain error describing any other
// integrity failure.
func readRecord(rd io.Reader) (Record, error) {
	var hdr [HeaderSize]byte
	n, err := io.ReadFull(rd, hdr[:])
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		// A torn header is only recognisable as such if what we have looks like
		// the start of a record.
		if n >= 4 && binary.LittleEndian.Uint32(hdr[0:4]) != Magic {
			return Record{}, fmt.Errorf("bad magic %#08x", binary.LittleEndian.Uint32(hdr[0:4]))
		}
		return Record{}, errIncomplete
	}
	if err != nil {
		return Record{}, err
	}
	if m := binary.LittleEndian.Uint32(hdr[0:4]); m != Magic {
		return Record{}, fmt.Errorf("bad magic %#08x", m)
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != FormatVersion {
		return Record{}, fmt.Errorf("unsupported version %d", v)
	}
	length := binary.LittleEndian.Uint32(hdr[6:10])
	if length > MaxPayload {
		return Record{}, fmt.Errorf("payload length %d exceeds limit", length)
	}
	body := make([]byte, int(length)+TrailerSize)
	if _, err := io.ReadFull(rd, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, errIncomplete
		}
		return Record{}, err
	}
	payload := body[:length]
	want := binary.LittleEndian.Uint32(body[length:])

	crc := crc32.NewIEEE()
	crc.Write(hdr[:])
	crc.Write(payload)
	if got := crc.Sum32(); got != want {
		return Record{}, fmt.Errorf("crc mismatch: stored %#08x computed %#08x", want, got)
	}
	return Record{
		EventID: binary.LittleEndian.Uint64(hdr[10:18]),
		Tick:    binary.LittleEndian.Uint64(hdr[18:26]),
		Payload: payload,
	}, nil
}
