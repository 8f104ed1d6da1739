// Package reexec implements the second stage of a resource-limited
// background job's launch: a child that waits for its parent's signal
// before image-replacing itself with the job's real argv (spec_full.md
// §2.3). The Job Launcher only takes this detour when the job is placed
// in a cgroup; jobs with no resource limit configured exec directly and
// never enter this package.
//
// Adapted from the teacher's jobworker/reexec package. The teacher's child
// stays alive as a supervising grandchild (cmd.Start/cmd.Wait, capturing
// output to a file for later streaming); yashd's redirection plan is
// already wired onto fd 0/1/2 by the Job Launcher before this process was
// forked, so the child here has nothing left to supervise — it execs in
// place via syscall.Exec and the kernel does the rest.
package reexec

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/tjper/yashd/internal/log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "reexec")

// Subcommand is the hidden argv[1] a reexec'd process is launched with, so
// the CLI can tell a fresh daemon invocation from a launcher-spawned child.
const Subcommand = "reexec"

var (
	// ErrCommandPipeNotFound indicates the parent did not pass the command
	// pipe at fd 3.
	ErrCommandPipeNotFound = errors.New("command pipe not found")
	// ErrContinuePipeNotFound indicates the parent did not pass the continue
	// pipe at fd 4.
	ErrContinuePipeNotFound = errors.New("continue pipe not found")

	errExpectedEOF = errors.New("expected EOF")
)

const (
	// CommandFailure indicates this process failed before reaching the
	// image-replacing exec call.
	CommandFailure = 100
)

// Job describes the argv a reexec child should become once released by its
// parent.
type Job struct {
	// ID identifies the job's cgroup, assigned by the Job Launcher.
	ID uuid.UUID
	// Argv is the command name followed by its arguments.
	Argv []string
}

// Exec reads the pending Job off fd 3, blocks until the parent closes fd 4,
// then replaces this process image with the Job's argv. On success Exec
// never returns: the calling process becomes the target command. On
// failure it returns CommandFailure and the error describing why the
// handoff could not complete.
func Exec(ctx context.Context) (int, error) {
	cmdfd := os.NewFile(uintptr(3), "/proc/self/fd/3")
	if cmdfd == nil {
		return CommandFailure, ErrCommandPipeNotFound
	}
	contfd := os.NewFile(uintptr(4), "/proc/self/fd/4")
	if contfd == nil {
		return CommandFailure, ErrContinuePipeNotFound
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(cmdfd); err != nil {
		return CommandFailure, errors.WithStack(err)
	}
	var job Job
	if err := json.Unmarshal(buf.Bytes(), &job); err != nil {
		return CommandFailure, errors.WithStack(err)
	}
	if len(job.Argv) == 0 {
		return CommandFailure, errors.New("reexec job has empty argv")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := waitForContinue(ctx, contfd); err != nil {
		return CommandFailure, errors.WithStack(err)
	}

	path, err := exec.LookPath(job.Argv[0])
	if err != nil {
		return CommandFailure, errors.WithStack(err)
	}

	logger.Infof("execing job; id: %s, argv: %v", job.ID, job.Argv)
	if err := unixExec(path, job.Argv, os.Environ()); err != nil {
		return CommandFailure, errors.WithStack(err)
	}
	// unixExec only returns on error; a success replaces this image.
	return CommandFailure, errors.New("unreachable")
}

// waitForContinue blocks until fd reaches EOF, which the parent signals by
// closing its end once it has finished placing this process in its cgroup.
func waitForContinue(ctx context.Context, fd io.ReadCloser) error {
	go func() {
		<-ctx.Done()
		if err := fd.Close(); err != nil {
			logger.Errorf("closing continue pipe; err: %s", err)
		}
	}()

	b := make([]byte, 1)
	_, err := fd.Read(b)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return errExpectedEOF
}
