package r2s3

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	EnqueuedTotal uint64 `json:"enqueued_total"`
	DroppedTotal  uint64 `json:"dropped_total"`
	UploadedTotal uint64 `json:"uploaded_total"`
	FailedTotal   uint64 `json:"failed_total"`
	LastErrorUnix int64  `json:"last_error_unix"`
}

// Mirror copies snapshot archives off-site in the background. Keys are the
// archive's path relative to the data dir under an optional prefix. A full
// queue drops the upload; the local archive is still the copy of record.
type Mirror struct {
	client  *Client
	dataDir string
	prefix  string
	logger  *log.Logger

	jobs chan string
	wg   sync.WaitGroup
	once sync.Once

	// backoff is the pause before retry n (1-based).
	backoff func(n int) time.Duration

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
	lastErr  atomic.Int64
}

const mirrorAttempts = 4

func NewMirror(client *Client, dataDir, prefix string, queue int, logger *log.Logger) *Mirror {
	if queue <= 0 {
		queue = 64
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Mirror{
		client:  client,
		dataDir: dataDir,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:  logger,
		jobs:    make(chan string, queue),
		backoff: func(n int) time.Duration { return time.Duration(n*n) * 200 * time.Millisecond },
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Enqueue schedules localPath for upload. It never blocks.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || localPath == "" {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
	default:
		n := m.dropped.Add(1)
		m.logger.Printf("mirror: drop %s (queue full, dropped_total=%d)", localPath, n)
	}
}

// Close drains the queue and stops the worker.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() { close(m.jobs) })
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(m.jobs),
		EnqueuedTotal: m.enqueued.Load(),
		DroppedTotal:  m.dropped.Load(),
		UploadedTotal: m.uploaded.Load(),
		FailedTotal:   m.failed.Load(),
		LastErrorUnix: m.lastErr.Load(),
	}
}

func (m *Mirror) loop() {
	defer m.wg.Done()
	for p := range m.jobs {
		key, err := m.objectKey(p)
		if err != nil {
			m.failed.Add(1)
			m.logger.Printf("mirror: skip %s: %v", p, err)
			continue
		}
		if err := m.upload(key, p); err != nil {
			m.failed.Add(1)
			m.lastErr.Store(time.Now().Unix())
			m.logger.Printf("mirror: upload %s failed: %v", key, err)
			continue
		}
		m.uploaded.Add(1)
		m.logger.Printf("mirror: uploaded %s", key)
	}
}

func (m *Mirror) upload(key, localPath string) error {
	var err error
	for n := 1; n <= mirrorAttempts; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.client.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		if n < mirrorAttempts {
			time.Sleep(m.backoff(n))
		}
	}
	return err
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside data dir %s", abs, base)
	}
	if m.prefix != "" {
		rel = path.Join(m.prefix, rel)
	}
	return rel, nil
}
