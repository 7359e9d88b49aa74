package lock

import (
	"errors"
	"os"
	"testing"
)

func TestAcquire_Exclusive(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := Acquire(dir); !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire: expected ErrLocked, got %v", err)
	}
	pid, ok := Holder(dir)
	if !ok || pid != os.Getpid() {
		t.Fatalf("holder=%d ok=%v want %d", pid, ok, os.Getpid())
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	l2, err := Acquire(dir)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = l2.Release()
}
