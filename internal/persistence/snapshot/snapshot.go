package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"seeyuj.sim/internal/persistence/fsutil"
)

// Version is the snapshot body format written by this package.
const Version = 2

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// MetaV2 is the recovery cursor plus world identity. It is embedded in
// snapshot.json and copied to meta.json.
type MetaV2 struct {
	WorldID       string `json:"world_id"`
	Name          string `json:"name"`
	Seed          uint64 `json:"seed"`
	CurrentTick   uint64 `json:"current_tick"`
	SimTime       uint64 `json:"sim_time"`
	CreatedTick   uint64 `json:"created_tick"`
	SnapshotTick  uint64 `json:"snapshot_tick"`
	LastEventID   uint64 `json:"last_event_id"`
	FormatVersion int    `json:"format_version"`
}

type SnapshotV2 struct {
	Header Header `json:"header"`
	Meta   MetaV2 `json:"meta"`

	Tick         uint64 `json:"tick"`
	SimTime      uint64 `json:"sim_time"`
	RNGState     uint64 `json:"rng_state"`
	NextEntityID uint64 `json:"next_entity_id"`

	// Both slices are sorted by id.
	Entities []EntityV2 `json:"entities"`
	Zones    []ZoneV2   `json:"zones"`
}

type EntityV2 struct {
	ID        uint64   `json:"id"`
	Kind      string   `json:"kind"`
	State     string   `json:"state"`
	Zone      uint32   `json:"zone"`
	Pos       [3]int32 `json:"pos"`
	CreatedAt uint64   `json:"created_at"`

	Name   *string `json:"name,omitempty"`
	Amount *uint32 `json:"amount,omitempty"`
	Health *uint32 `json:"health,omitempty"`
}

type ZoneV2 struct {
	ID       uint32   `json:"id"`
	Name     *string  `json:"name,omitempty"`
	Loaded   bool     `json:"loaded"`
	Entities []uint64 `json:"entities"`
}

// WriteArchive writes a compressed snapshot: one JSON header line followed by
// the JSON body, all inside a zstd stream. The write is atomic.
func WriteArchive(path string, snap SnapshotV2) error {
	return fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		bw := bufio.NewWriterSize(enc, 256*1024)

		hb, err := json.Marshal(snap.Header)
		if err != nil {
			enc.Close()
			return err
		}
		if _, err := bw.Write(hb); err != nil {
			enc.Close()
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			enc.Close()
			return err
		}
		if err := json.NewEncoder(bw).Encode(&snap); err != nil {
			enc.Close()
			return fmt.Errorf("encode body: %w", err)
		}
		if err := bw.Flush(); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	})
}

// ReadArchiveHeader reads only the header line of an archive.
func ReadArchiveHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadArchive(path string) (SnapshotV2, error) {
	var snap SnapshotV2
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode body: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}
	return snap, nil
}
