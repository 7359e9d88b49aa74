package r2s3

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type put struct {
	path, auth, sha, date string
	body                  []byte
}

func fakeBucket(t *testing.T, status int) (*httptest.Server, func() []put) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []put
	)
	hs := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, put{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			sha:  r.Header.Get("x-amz-content-sha256"),
			date: r.Header.Get("x-amz-date"),
			body: b,
		})
		mu.Unlock()
		rw.WriteHeader(status)
	}))
	t.Cleanup(hs.Close)
	return hs, func() []put {
		mu.Lock()
		defer mu.Unlock()
		return append([]put(nil), puts...)
	}
}

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(ClientConfig{Endpoint: endpoint, Bucket: "sims", AccessKeyID: "AKID", SecretAccessKey: "secret"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return c
}

func writeArchive(t *testing.T, dataDir string) string {
	t.Helper()
	p := filepath.Join(dataDir, "worlds", "world_1", "archives", "100.snap.zst")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("archive-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestMirrorUploadsSignedObject(t *testing.T) {
	hs, puts := fakeBucket(t, 200)
	data := t.TempDir()
	p := writeArchive(t, data)

	m := NewMirror(newClient(t, hs.URL), data, "/prod/", 4, nil)
	m.Enqueue(p)
	m.Close()

	got := puts()
	if len(got) != 1 {
		t.Fatalf("puts=%d want 1", len(got))
	}
	if got[0].path != "/sims/prod/worlds/world_1/archives/100.snap.zst" {
		t.Fatalf("path=%s", got[0].path)
	}
	if string(got[0].body) != "archive-bytes" {
		t.Fatalf("body=%q", got[0].body)
	}
	sum := sha256.Sum256([]byte("archive-bytes"))
	if got[0].sha != hex.EncodeToString(sum[:]) {
		t.Fatalf("payload hash=%s", got[0].sha)
	}
	if got[0].date != "20260304T050607Z" {
		t.Fatalf("date=%s", got[0].date)
	}
	if !strings.HasPrefix(got[0].auth, "AWS4-HMAC-SHA256 Credential=AKID/20260304/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("auth=%s", got[0].auth)
	}
	st := m.Stats()
	if st.UploadedTotal != 1 || st.FailedTotal != 0 || st.EnqueuedTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirrorRetriesThenFails(t *testing.T) {
	hs, puts := fakeBucket(t, 500)
	data := t.TempDir()
	p := writeArchive(t, data)

	m := NewMirror(newClient(t, hs.URL), data, "", 4, nil)
	m.backoff = func(int) time.Duration { return 0 }
	m.Enqueue(p)
	m.Close()

	if n := len(puts()); n != mirrorAttempts {
		t.Fatalf("attempts=%d want %d", n, mirrorAttempts)
	}
	if st := m.Stats(); st.FailedTotal != 1 || st.UploadedTotal != 0 || st.LastErrorUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirrorSkipsOutsideDataDir(t *testing.T) {
	hs, puts := fakeBucket(t, 200)
	other := writeArchive(t, t.TempDir())

	m := NewMirror(newClient(t, hs.URL), t.TempDir(), "", 4, nil)
	m.Enqueue(other)
	m.Close()
	if len(puts()) != 0 {
		t.Fatalf("uploaded a file outside the data dir")
	}
	if st := m.Stats(); st.FailedTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(ClientConfig{Endpoint: "r2.example", Bucket: "b"}); err == nil {
		t.Fatalf("expected error without credentials")
	}
	c, err := New(ClientConfig{Endpoint: "r2.example", Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.endpoint != "https://r2.example" || c.region != "auto" {
		t.Fatalf("endpoint=%s region=%s", c.endpoint, c.region)
	}
}

func TestNilMirrorIsNoop(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	if m.Stats() != (Stats{}) {
		t.Fatalf("nil mirror has stats")
	}
}
