// Package launcher implements the Job Launcher (spec_full.md C7): it forks
// the one or two child processes behind a parsed Job, wires their stdio to
// either the client socket or a path-based redirect, places them in a
// fresh process group, and — for background jobs under an operator
// resource limit — routes the launch through internal/yashd/reexec so the
// child is placed in a cgroup before it becomes the target command.
//
// Grounded on the teacher's jobworker/job.New/start, generalized from a
// single always-backgrounded job to yashd's foreground/background/pipe
// grammar (spec_full.md §4.6).
package launcher

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"github.com/tjper/yashd/internal/log"
	"github.com/tjper/yashd/internal/yashd/cgroup"
	"github.com/tjper/yashd/internal/yashd/job"
	"github.com/tjper/yashd/internal/yashd/reexec"

	"github.com/pkg/errors"
)

var logger = log.New(os.Stdout, "launcher")

// CommandFailure is the exit code a child reports when it could not apply
// its redirections or join its process group before exec (spec.md §4.6,
// §7.5). Go's fork+exec model opens redirects in the parent rather than
// inside the forked child, so these failures surface as Launch errors (and
// in Job.ErrMsg) instead of an abnormal child exit; Launch does not record
// CommandFailure, or any exit code, on the Job.
const CommandFailure = 126

// Launcher forks and execs the children behind a Job.
type Launcher struct {
	self    string
	cgroups *cgroup.Service
	limits  cgroup.Limits
}

// New creates a Launcher. self is this daemon's own executable path
// (os.Executable), used to spawn reexec children. cgroups/limits may be
// nil/zero to disable resource containment entirely.
func New(self string, cgroups *cgroup.Service, limits cgroup.Limits) *Launcher {
	return &Launcher{self: self, cgroups: cgroups, limits: limits}
}

// process is one side (left or right) of a launched job: its pid, and, if
// this side was placed under a resource limit, the cgroup it was placed
// in. Reaping is the Supervisor's exclusive responsibility (spec.md §4.1,
// §5: "reaping done exclusively [there]... C8 does primary reaping"), so
// Launch never itself waits on a started process.
type process struct {
	pid    int
	cgroup *cgroup.Cgroup
}

// Launch forks and execs j's children, wiring them to conn's socket (or
// j's path-based redirects) per spec.md §4.6, and records the resulting
// group PID (and, for resource-limited background jobs, cgroup IDs) on j.
// It does not wait for the job; the caller (the session) is responsible
// for reaping it through the supervisor. j.ErrMsg is set without the
// client-facing "-yash: " prefix, which the protocol codec adds.
func (l *Launcher) Launch(ctx context.Context, j *job.Job, conn net.Conn) error {
	sock, err := socketFile(conn)
	if err != nil {
		j.ErrMsg = "cannot access client socket"
		return errors.Wrap(err, "socket file")
	}
	defer sock.Close()

	var pr, pw *os.File
	if j.Pipe {
		pr, pw, err = os.Pipe()
		if err != nil {
			j.ErrMsg = fmt.Sprintf("pipe: %s", err)
			return errors.Wrap(err, "pipe")
		}
		defer pr.Close()
		defer pw.Close()
	}

	leftStdout := sock
	if j.Pipe {
		leftStdout = pw
	}
	leftIn, leftOut, leftErr, closeLeft, err := openRedirects(j.LeftRedirects, sock, leftStdout, sock)
	if err != nil {
		j.ErrMsg = err.Error()
		return errors.Wrap(err, "left redirects")
	}
	defer closeLeft()

	background := j.Background && l.limits.Enabled()

	left, err := l.start(ctx, j.Left, leftIn, leftOut, leftErr, group{lead: true}, background)
	if err != nil {
		j.ErrMsg = err.Error()
		return errors.Wrap(err, "start left")
	}
	j.SetGpid(left.pid)
	if left.cgroup != nil {
		j.AddCgroup(left.cgroup.ID)
	}

	if j.Pipe {
		rightIn := pr
		rightOut := sock
		rightErr := sock
		rIn, rOut, rErr, closeRight, err := openRedirects(j.RightRedirects, rightIn, rightOut, rightErr)
		if err != nil {
			j.ErrMsg = err.Error()
			return errors.Wrap(err, "right redirects")
		}
		defer closeRight()

		right, err := l.start(ctx, j.Right, rIn, rOut, rErr, group{pgid: left.pid}, background)
		if err != nil {
			j.ErrMsg = err.Error()
			return errors.Wrap(err, "start right")
		}
		if right.cgroup != nil {
			j.AddCgroup(right.cgroup.ID)
		}
	}

	// Parent closes both pipe ends once every child has its own copy, so
	// EOF propagates correctly when the writer exits (spec.md §4.6 (4)).
	if j.Pipe {
		pr.Close()
		pw.Close()
	}

	return nil
}

type group struct {
	lead bool
	pgid int
}

// start launches one side of the job, either directly (the common path)
// or, for a resource-limited background job, via the reexec two-stage
// handoff so the child can be placed in a cgroup before it becomes the
// target command.
func (l *Launcher) start(ctx context.Context, argv []string, in, out, errw *os.File, g group, limited bool) (*process, error) {
	if !limited {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = in, out, errw
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: g.lead || g.pgid != 0, Pgid: g.pgid}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", argv[0], err)
		}
		return &process{pid: cmd.Process.Pid}, nil
	}

	cg, err := l.cgroups.CreateCgroup(l.limits)
	if err != nil {
		return nil, fmt.Errorf("create cgroup: %w", err)
	}
	logger.Infof("placing background job in cgroup; id: %s", cg.ID)

	rj := reexec.Job{ID: cg.ID, Argv: argv}
	stdio := reexec.Stdio{Stdin: in, Stdout: out, Stderr: errw}
	rg := reexec.Group{Lead: g.lead, Pgid: g.pgid}
	launched, err := reexec.Launch(ctx, l.self, rj, stdio, rg)
	if err != nil {
		return nil, fmt.Errorf("launch reexec child: %w", err)
	}

	if err := l.cgroups.PlacePID(cg, launched.Pid()); err != nil {
		_ = launched.Continue()
		return nil, fmt.Errorf("place job in cgroup: %w", err)
	}
	if err := launched.Continue(); err != nil {
		return nil, fmt.Errorf("release reexec child: %w", err)
	}

	return &process{pid: launched.Pid(), cgroup: cg}, nil
}

// openRedirects opens r's non-empty paths, falling back to the given
// defaults for any side left unspecified, per spec.md §4.4/§4.6 ("path
// goes to in_side/out_side/err_side", "apply the side's path-based
// redirections atop" the pipe/socket defaults).
func openRedirects(r job.Redirects, defIn, defOut, defErr *os.File) (in, out, errw *os.File, cleanup func(), err error) {
	in, out, errw = defIn, defOut, defErr
	var opened []*os.File
	cleanup = func() {
		for _, f := range opened {
			f.Close()
		}
	}

	if r.In != "" {
		f, err := os.OpenFile(r.In, os.O_RDONLY, 0)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("open %s: %w", r.In, err)
		}
		opened = append(opened, f)
		in = f
	}
	if r.Out != "" {
		f, err := os.OpenFile(r.Out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("open %s: %w", r.Out, err)
		}
		opened = append(opened, f)
		out = f
	}
	if r.Err != "" {
		f, err := os.OpenFile(r.Err, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("open %s: %w", r.Err, err)
		}
		opened = append(opened, f)
		errw = f
	}
	return in, out, errw, cleanup, nil
}

// fileConn is satisfied by *net.TCPConn: it exposes a dup'd *os.File of the
// connection's underlying socket, which Launch hands to children as their
// stdin/stdout/stderr (spec.md §4.6: "dup the client socket onto stdout
// and stderr").
//
// The duplicate shares conn's open file description. The servant goroutine
// keeps polling conn with read deadlines while a job launched on it runs,
// foreground or background, since the foreground wait happens on a
// separate job goroutine.
type fileConn interface {
	File() (*os.File, error)
}

func socketFile(conn net.Conn) (*os.File, error) {
	fc, ok := conn.(fileConn)
	if !ok {
		return nil, fmt.Errorf("connection type %T does not support fd duplication", conn)
	}
	f, err := fc.File()
	if err != nil {
		return nil, fmt.Errorf("dup socket: %w", err)
	}
	return f, nil
}
