package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"seeyuj.sim/internal/persistence/fsutil"
)

type SyncPolicy string

const (
	// SyncAlways fsyncs after every Append and AppendBatch.
	SyncAlways SyncPolicy = "always"
	// SyncBatch leaves fsync to the caller, normally once per tick via Sync.
	SyncBatch SyncPolicy = "batch"
)

func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch SyncPolicy(s) {
	case SyncAlways, "":
		return SyncAlways, nil
	case SyncBatch:
		return SyncBatch, nil
	default:
		return "", fmt.Errorf("unknown wal sync policy %q", s)
	}
}

var ErrClosed = errors.New("wal: closed")

type Options struct {
	Sync SyncPolicy
}

// OpenInfo describes what Open found on disk.
type OpenInfo struct {
	Records     int
	LastEventID uint64
	LastTick    uint64
	// Discarded is the number of tail bytes removed because they did not form
	// a valid record.
	Discarded int64
	// Stop is the integrity failure that ended the scan, if any.
	Stop error
}

// Entry is an event waiting for an id.
type Entry struct {
	Tick    uint64
	Payload []byte
}

// Log is a single-writer append-only event log backed by one file.
type Log struct {
	mu sync.Mutex

	path   string
	f      *os.File
	size   int64
	lastID uint64
	last   uint64
	count  int
	policy SyncPolicy
	dirty  bool
	closed bool
	buf    []byte
}

// Open opens or creates the log at path. It scans the file, truncates any
// trailing bytes that do not form a valid record, and positions for append.
//
// A file whose very first record fails its integrity check is not truncated;
// Open returns a *CorruptRecordError instead, since nothing proves it is a
// torn write.
func Open(path string, opts Options) (*Log, OpenInfo, error) {
	policy, err := ParseSyncPolicy(string(opts.Sync))
	if err != nil {
		return nil, OpenInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, OpenInfo{}, &fsutil.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, OpenInfo{}, &fsutil.IOError{Op: "open", Path: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, OpenInfo{}, &fsutil.IOError{Op: "stat", Path: path, Err: err}
	}

	var info OpenInfo
	res, err := scan(path, f, func(r Record) error {
		info.Records++
		info.LastEventID = r.EventID
		info.LastTick = r.Tick
		return nil
	})
	if err != nil {
		f.Close()
		return nil, OpenInfo{}, &fsutil.IOError{Op: "scan", Path: path, Err: err}
	}
	res.FileSize = st.Size()
	info.Stop = res.Stop

	if res.Stop != nil && res.ValidSize == 0 && !res.Incomplete {
		f.Close()
		return nil, info, res.Stop
	}
	if d := res.Discarded(); d > 0 {
		if err := f.Truncate(res.ValidSize); err != nil {
			f.Close()
			return nil, OpenInfo{}, &fsutil.IOError{Op: "truncate", Path: path, Err: err}
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, OpenInfo{}, &fsutil.IOError{Op: "fsync", Path: path, Err: err}
		}
		info.Discarded = d
	}
	if _, err := f.Seek(res.ValidSize, io.SeekStart); err != nil {
		f.Close()
		return nil, OpenInfo{}, &fsutil.IOError{Op: "seek", Path: path, Err: err}
	}

	return &Log{
		path:   path,
		f:      f,
		size:   res.ValidSize,
		lastID: info.LastEventID,
		last:   info.LastTick,
		count:  info.Records,
		policy: policy,
	}, info, nil
}

func (l *Log) Path() string { return l.path }

func (l *Log) LastEventID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

func (l *Log) LastTick() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// EnsureAfter makes the next assigned id greater than id. Used when a
// snapshot cursor is ahead of an empty or rewritten log.
func (l *Log) EnsureAfter(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id > l.lastID {
		l.lastID = id
	}
}

// Append writes one record and returns its id.
func (l *Log) Append(tick uint64, payload []byte) (uint64, error) {
	ids, err := l.AppendBatch([]Entry{{Tick: tick, Payload: payload}})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AppendBatch writes entries in one write call and returns their ids. Under
// SyncAlways the batch is fsynced once before returning. On a write failure
// the file is cut back to its previous size and no ids are consumed.
func (l *Log) AppendBatch(entries []Entry) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if len(entries) == 0 {
		return nil, nil
	}

	l.buf = l.buf[:0]
	ids := make([]uint64, len(entries))
	next := l.lastID
	for i, e := range entries {
		if len(e.Payload) > MaxPayload {
			return nil, fmt.Errorf("wal append: payload %d bytes exceeds limit", len(e.Payload))
		}
		next++
		ids[i] = next
		l.buf = encodeRecord(l.buf, Record{EventID: next, Tick: e.Tick, Payload: e.Payload})
	}

	if _, err := l.f.Write(l.buf); err != nil {
		// Best effort: drop the torn batch so the next append starts clean.
		_ = l.f.Truncate(l.size)
		_, _ = l.f.Seek(l.size, io.SeekStart)
		return nil, &fsutil.IOError{Op: "append", Path: l.path, Err: err}
	}
	l.size += int64(len(l.buf))
	l.lastID = next
	l.last = entries[len(entries)-1].Tick
	l.count += len(entries)
	l.dirty = true

	if l.policy == SyncAlways {
		if err := l.syncLocked(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Sync flushes appended records to stable storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if !l.dirty {
		return nil
	}
	if err := l.f.Sync(); err != nil {
		return &fsutil.IOError{Op: "fsync", Path: l.path, Err: err}
	}
	l.dirty = false
	return nil
}

// ReadFrom returns records with EventID > afterID in append order, stopping
// at the first invalid or incomplete record.
func (l *Log) ReadFrom(afterID uint64) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	res, err := scan(l.path, io.NewSectionReader(l.f, 0, l.size), nil)
	if err != nil {
		return nil, &fsutil.IOError{Op: "read", Path: l.path, Err: err}
	}
	return after(res.Records, afterID), nil
}

// TruncateAfter keeps only records with EventID <= id. Kept records retain
// their original ids. The file is rewritten through a temp file and renamed
// into place, so a crash leaves either the old or the new log.
func (l *Log) TruncateAfter(id uint64) (kept int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	res, err := scan(l.path, io.NewSectionReader(l.f, 0, l.size), nil)
	if err != nil {
		return 0, &fsutil.IOError{Op: "read", Path: l.path, Err: err}
	}

	var buf []byte
	var lastID, lastTick uint64
	for _, r := range res.Records {
		if r.EventID > id {
			break
		}
		buf = encodeRecord(buf, r)
		lastID, lastTick = r.EventID, r.Tick
		kept++
	}
	if err := fsutil.WriteFileAtomic(l.path, buf, 0o644); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(l.path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, &fsutil.IOError{Op: "reopen", Path: l.path, Err: err}
	}
	if _, err := f.Seek(int64(len(buf)), io.SeekStart); err != nil {
		f.Close()
		return 0, &fsutil.IOError{Op: "seek", Path: l.path, Err: err}
	}
	l.f.Close()
	l.f = f
	l.size = int64(len(buf))
	l.lastID = lastID
	l.last = lastTick
	l.count = kept
	l.dirty = false
	return kept, nil
}

// Close syncs and closes the file. It is safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	serr := l.syncLocked()
	cerr := l.f.Close()
	if serr != nil {
		return serr
	}
	if cerr != nil {
		return &fsutil.IOError{Op: "close", Path: l.path, Err: cerr}
	}
	return nil
}
