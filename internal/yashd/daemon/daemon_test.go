package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Detach re-execs os.Executable() (the test binary itself under `go test`),
// so it is exercised indirectly via Start/Shutdown below rather than
// invoked directly here.

func TestStartAcquiresLockAndWatchesLog(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "yashd.pid")
	logPath := filepath.Join(dir, "yashd.log")

	if err := os.WriteFile(logPath, nil, 0644); err != nil {
		t.Fatalf("seed log file: %s", err)
	}

	d, err := Start(pidPath, logPath)
	if err != nil {
		t.Fatalf("start: %s", err)
	}
	defer d.Shutdown()

	if _, err := os.Stat(pidPath); err != nil {
		t.Fatalf("expected pid file: %s", err)
	}
}

func TestStartFailsIfLockHeld(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "yashd.pid")
	logPath := filepath.Join(dir, "yashd.log")
	if err := os.WriteFile(logPath, nil, 0644); err != nil {
		t.Fatalf("seed log file: %s", err)
	}

	first, err := Start(pidPath, logPath)
	if err != nil {
		t.Fatalf("start: %s", err)
	}
	defer first.Shutdown()

	if _, err := Start(pidPath, logPath); err == nil {
		t.Fatal("expected second Start to fail while the lock is held")
	}
}

func TestReopenAfterRotation(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "yashd.pid")
	logPath := filepath.Join(dir, "yashd.log")
	if err := os.WriteFile(logPath, nil, 0644); err != nil {
		t.Fatalf("seed log file: %s", err)
	}

	d, err := Start(pidPath, logPath)
	if err != nil {
		t.Fatalf("start: %s", err)
	}
	defer d.Shutdown()

	if err := os.Rename(logPath, logPath+".1"); err != nil {
		t.Fatalf("rename log: %s", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(logPath); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected the log path to be recreated after external rotation")
}
