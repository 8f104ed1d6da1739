// Package daemon implements the Daemonizer (spec_full.md C1): detaching
// the process from its controlling terminal, redirecting stdio to the
// daemon's log file, acquiring the PID-file singleton lock, and watching
// the log file so an external logrotate-style rename/removal is noticed
// and the file reopened in place (spec_full.md §1.1).
//
// Grounded on the teacher's cli.runServe setup/teardown shape (cgroup
// service, then job service, each deferred-cleaned in reverse), applied
// here to the lock and log watcher instead of a cgroup+job pair.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/tjper/yashd/internal/fsnotify"
	"github.com/tjper/yashd/internal/log"
	"github.com/tjper/yashd/internal/yashd/lock"

	"golang.org/x/sys/unix"
)

var logger = log.New(os.Stdout, "daemon")

// detachedEnv marks a re-exec'd process as already detached, so Detach
// does not loop forever spawning copies of itself.
const detachedEnv = "YASHD_DETACHED"

// Detach re-execs the current binary with its controlling terminal
// severed (a new session via Setsid) and stdio redirected to logPath,
// then reports whether the CALLER is the original foreground process
// (detached == true, in which case the caller should exit immediately)
// or the already-detached child continuing on to serve (detached ==
// false).
func Detach(logPath string) (detached bool, err error) {
	if os.Getenv(detachedEnv) == "1" {
		return false, nil
	}

	self, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("resolve executable: %w", err)
	}

	logFile, err := openLog(logPath)
	if err != nil {
		return false, err
	}
	defer logFile.Close()

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	cmd.Dir = "/"
	cmd.Stdin = devnull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start detached process: %w", err)
	}
	logger.Infof("detached; pid: %d, log: %s", cmd.Process.Pid, logPath)
	return true, nil
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return f, nil
}

// Daemon holds the resources a running daemon process must release on
// shutdown: its PID-file lock and its log-rotation watcher.
type Daemon struct {
	lock    *lock.Lock
	watcher *fsnotify.Watcher
	logPath string
}

// Start acquires the PID-file lock and begins watching logPath for an
// external rename/removal, reopening and re-dup'ing fd 1/2 onto it when
// that happens. Start assumes stdio is already pointed at logPath (either
// by Detach's exec wiring, or directly by a non-daemonized foreground run
// wired to the same file by the caller).
func Start(pidPath, logPath string) (*Daemon, error) {
	lk, err := lock.Acquire(pidPath)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		lk.Release()
		return nil, fmt.Errorf("create log watcher: %w", err)
	}
	if _, err := w.AddWatch(logPath); err != nil {
		w.Close()
		lk.Release()
		return nil, fmt.Errorf("watch log %s: %w", logPath, err)
	}

	d := &Daemon{lock: lk, watcher: w, logPath: logPath}
	go d.watchLog()
	return d, nil
}

// watchLog reopens the log file and re-dups it onto fd 1 and fd 2 whenever
// the watched path is removed or renamed out from under the daemon
// (logrotate's usual move-then-recreate dance).
func (d *Daemon) watchLog() {
	for event := range d.watcher.Events {
		if event.Op&(fsnotify.Delete|fsnotify.Rename) == 0 {
			continue
		}
		logger.Infof("log file rotated externally; path: %s", d.logPath)
		if err := d.reopen(); err != nil {
			logger.Errorf("reopen rotated log; error: %s", err)
		}
	}
}

func (d *Daemon) reopen() error {
	f, err := openLog(d.logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Dup2(fd, int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("redirect stdout: %w", err)
	}
	if err := unix.Dup2(fd, int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("redirect stderr: %w", err)
	}

	_ = d.watcher.RemoveWatch(d.logPath)
	if _, err := d.watcher.AddWatch(d.logPath); err != nil {
		return fmt.Errorf("re-watch log: %w", err)
	}
	return nil
}

// Shutdown releases the PID-file lock and stops the log watcher.
func (d *Daemon) Shutdown() error {
	if err := d.watcher.Close(); err != nil {
		logger.Warnf("close log watcher; error: %s", err)
	}
	return d.lock.Release()
}
