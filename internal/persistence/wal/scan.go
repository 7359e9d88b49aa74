package wal

import (
	"bufio"
	"errors"
	"io"
	"os"
)

// ScanResult describes the readable prefix of a log file.
type ScanResult struct {
	Records []Record
	// ValidSize is the byte length of the readable prefix.
	ValidSize int64
	// FileSize is the physical size at scan time.
	FileSize int64
	// Stop explains why the scan ended before FileSize. Nil at a clean end.
	Stop error
	// Incomplete is true when the scan ended on a truncated tail record.
	Incomplete bool
}

// Discarded is the number of trailing bytes past the readable prefix.
func (s ScanResult) Discarded() int64 { return s.FileSize - s.ValidSize }

// ScanFile reads a log file without modifying it. A missing file scans as
// empty. Records are returned in file order and stop at the first invalid or
// incomplete record, or at the first event id that does not increase.
func ScanFile(path string) (ScanResult, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ScanResult{}, nil
	}
	if err != nil {
		return ScanResult{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return ScanResult{}, err
	}
	res, err := scan(path, f, nil)
	res.FileSize = st.Size()
	return res, err
}

// scan walks records from rd. visit, when set, receives each record instead
// of it being collected.
func scan(path string, rd io.Reader, visit func(Record) error) (ScanResult, error) {
	var res ScanResult
	br := bufio.NewReaderSize(rd, 256*1024)
	var last uint64
	for {
		rec, err := readRecord(br)
		if err == io.EOF {
			return res, nil
		}
		if errors.Is(err, errIncomplete) {
			res.Incomplete = true
			res.Stop = &CorruptRecordError{Path: path, Offset: res.ValidSize, Reason: err.Error()}
			return res, nil
		}
		if err == nil && rec.EventID <= last {
			err = errors.New("event id does not increase")
		}
		if err != nil {
			if _, ok := err.(*os.PathError); ok {
				return res, err
			}
			res.Stop = &CorruptRecordError{Path: path, Offset: res.ValidSize, Reason: err.Error()}
			return res, nil
		}
		last = rec.EventID
		res.ValidSize += rec.Size()
		if visit != nil {
			if err := visit(rec); err != nil {
				return res, err
			}
			continue
		}
		res.Records = append(res.Records, rec)
	}
}

// ReadFile returns the readable records with EventID > afterID.
func ReadFile(path string, afterID uint64) ([]Record, error) {
	res, err := ScanFile(path)
	if err != nil {
		return nil, err
	}
	return after(res.Records, afterID), nil
}

func after(recs []Record, afterID uint64) []Record {
	for i, r := range recs {
		if r.EventID > afterID {
			return recs[i:]
		}
	}
	return nil
}
