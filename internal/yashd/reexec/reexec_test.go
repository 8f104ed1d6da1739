package reexec

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUnixExecStub(t *testing.T) {
	self, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not found")
	}

	var gotPath string
	var gotArgv []string
	restore := unixExec
	unixExec = func(argv0 string, argv []string, envv []string) error {
		gotPath = argv0
		gotArgv = argv
		return nil
	}
	defer func() { unixExec = restore }()

	job := Job{ID: uuid.New(), Argv: []string{"echo", "hi"}}
	if err := unixExec(self, job.Argv, os.Environ()); err != nil {
		t.Fatalf("unixExec: %s", err)
	}
	if gotPath != self {
		t.Fatalf("unexpected path; actual: %s, expected: %s", gotPath, self)
	}
	if len(gotArgv) != 2 || gotArgv[0] != "echo" || gotArgv[1] != "hi" {
		t.Fatalf("unexpected argv: %v", gotArgv)
	}
}

func TestJobRoundTrip(t *testing.T) {
	job := Job{ID: uuid.New(), Argv: []string{"sleep", "5"}}

	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}

	var got Job
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if got.ID != job.ID {
		t.Fatalf("unexpected id; actual: %s, expected: %s", got.ID, job.ID)
	}
	if len(got.Argv) != 2 || got.Argv[0] != "sleep" || got.Argv[1] != "5" {
		t.Fatalf("unexpected argv: %v", got.Argv)
	}
}

func TestWaitForContinueOnClose(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Close()
	}()

	if err := waitForContinue(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestWaitForContinueContextCancel(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := waitForContinue(ctx, r); err == nil {
		t.Fatal("expected an error when the context ends before the continue pipe is closed")
	}
}

func TestExecMissingPipes(t *testing.T) {
	code, err := Exec(context.Background())
	if err == nil {
		t.Fatal("expected error when fd 3/4 are not the protocol's pipes")
	}
	if code != CommandFailure {
		t.Fatalf("unexpected code: %d", code)
	}
}

func TestLaunchAndContinueProtocol(t *testing.T) {
	self, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not found")
	}

	l, err := Launch(
		context.Background(),
		self,
		Job{ID: uuid.New(), Argv: []string{"cat"}},
		Stdio{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr},
		Group{Lead: true},
	)
	if err != nil {
		t.Fatalf("launch: %s", err)
	}
	if l.Pid() <= 0 {
		t.Fatalf("unexpected pid: %d", l.Pid())
	}
	if err := l.Continue(); err != nil {
		t.Fatalf("continue: %s", err)
	}
	// cat is started with the reexec subcommand as its only argument, which
	// it treats as a file name it cannot open, so it exits promptly.
	_ = l.Wait()
}
