// Package lock guards a world directory against a second writer.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const FileName = "LOCK"

// ErrLocked means another process holds the world.
var ErrLocked = errors.New("world is locked by another process")

type Lock struct {
	path string
	f    *os.File
}

// Acquire takes the exclusive lock on dir/LOCK without blocking. The holder's
// pid is written into the file for diagnostics.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := tryLock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			if pid, ok := Holder(dir); ok {
				return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
		}
		return nil, err
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, f: f}, nil
}

// Holder reads the pid recorded by the current or last holder.
func Holder(dir string) (int, bool) {
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (l *Lock) Path() string { return l.path }

// Release drops the lock. The file stays behind.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return cerr
}
