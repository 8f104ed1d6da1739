package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yashd.pid")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %s", err)
	}
	defer l.Release()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %s", err)
	}
	if string(b) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("expected pid %d, got %q", os.Getpid(), string(b))
	}
}

func TestAcquireSecondTimeReturnsErrHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yashd.pid")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %s", err)
	}
	defer l.Release()

	if _, err := Acquire(path); err != ErrHeld {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
}

func TestReleaseRemovesFileAndAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yashd.pid")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %s", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %s", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected pid file to be removed, stat error: %v", err)
	}

	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("re-acquire after release: %s", err)
	}
	l2.Release()
}
