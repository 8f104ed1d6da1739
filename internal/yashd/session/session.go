// Package session implements the per-client Servant (spec_full.md C5,
// spec.md §4.5): the poll loop that decodes one connection's requests,
// routes CMD lines through the parser/launcher/supervisor and CTL signals
// to the session's foreground job, and tears the connection down on
// CTL d or disconnect.
//
// Grounded on the teacher's jobworker session handling being driven
// entirely through the grpc server's per-RPC goroutines; yashd instead
// owns one long-lived goroutine per connection (spec.md §4.2's "new OS
// thread whose body is the Servant routine"), generalized here to a Go
// goroutine polling with a read deadline rather than a blocking read. Each
// CMD also gets its own job-thread goroutine (spec.md §4.5: "The servant
// then resumes polling") so a CTL c/z for a long-running foreground job can
// still be read and delivered while that job's thread blocks in waitpid.
package session

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tjper/yashd/internal/log"
	"github.com/tjper/yashd/internal/yashd/job"
	"github.com/tjper/yashd/internal/yashd/launcher"
	"github.com/tjper/yashd/internal/yashd/parser"
	"github.com/tjper/yashd/internal/yashd/protocol"
	"github.com/tjper/yashd/internal/yashd/registry"
	"github.com/tjper/yashd/internal/yashd/supervisor"

	"golang.org/x/sys/unix"
)

var logger = log.New(os.Stdout, "session")

// PollInterval is the servant's read-deadline poll period (spec.md §4.2,
// §5: "500 ms timeout").
const PollInterval = 500 * time.Millisecond

// Session is one client's servant state: its job table, codec, and the
// shared Launcher/Supervisor used to run its jobs. mu serializes every
// access to table (spec.md §5: "Job table: mutated only by the owning
// Session's threads") across the servant goroutine and the job-thread
// goroutines it spawns; it is held only for the quick lookup/insert/remove
// around a job's launch, never across a blocking wait.
type Session struct {
	record     *registry.Record
	conn       net.Conn
	codec      protocol.Codec
	launcher   *launcher.Launcher
	supervisor *supervisor.Supervisor

	mu    sync.Mutex
	table *job.Table
}

// New creates a Session for a freshly reserved registry.Record.
func New(rec *registry.Record, l *launcher.Launcher, s *supervisor.Supervisor) *Session {
	return &Session{
		record:     rec,
		conn:       rec.Conn,
		codec:      protocol.NewLineCodec(rec.Conn),
		table:      job.NewTable(),
		launcher:   l,
		supervisor: s,
	}
}

// Serve runs the servant poll loop until the client disconnects, sends
// CTL d, or the Record's run latch is cleared (spec.md §4.2, §4.5). Serve
// owns rec's connection and closes it before returning.
func (s *Session) Serve() {
	defer s.conn.Close()

	if err := s.codec.WritePrompt(); err != nil {
		logger.Warnf("write initial prompt; error: %s", err)
		return
	}

	for s.record.Running() {
		if err := s.conn.SetReadDeadline(time.Now().Add(PollInterval)); err != nil {
			logger.Errorf("set read deadline; error: %s", err)
			return
		}

		req, err := s.codec.ReadRequest()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if err == protocol.ErrMalformed {
				logger.Warnf("malformed request")
				continue
			}
			// EOF, reset, or any other read failure ends the session
			// (spec.md §4.8: "Hangup or read-error: exit the loop").
			return
		}

		switch req.Type {
		case protocol.CTL:
			if !s.handleCtl(req.Arg) {
				return
			}
		case protocol.CMD:
			s.handleCmd(req.Arg)
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// handleCtl applies one control character. It returns false if the session
// should terminate (CTL d).
func (s *Session) handleCtl(arg string) bool {
	switch arg {
	case "c":
		s.signalForeground(unix.SIGINT)
	case "z":
		s.signalForeground(unix.SIGTSTP)
	case "d":
		s.closeOnEOF()
		return false
	}
	return true
}

// signalForeground delivers sig to the newest non-Done, non-background
// job's group, per spec.md §4.5's CTL c/z mapping. If there is no such job
// the signal is dropped and the fact is logged at info level.
func (s *Session) signalForeground(sig unix.Signal) {
	s.mu.Lock()
	j, ok := s.table.NewestForeground()
	s.mu.Unlock()

	if !ok {
		logger.Infof("ctl with no foreground job; signal: %v", sig)
		return
	}
	if err := unix.Kill(-j.Gpid(), sig); err != nil {
		logger.Errorf("signal foreground job; gpid: %d, signal: %v, error: %s", j.Gpid(), sig, err)
	}
}

// closeOnEOF implements the CTL d open-question decision (SPEC_FULL.md §4
// Q2): a foreground job's group is sent SIGHUP rather than left attached
// to a socket nobody will read from again; its reap is left to whichever
// job thread is already blocked waiting on it, or the daemon's normal
// shutdown sweep.
func (s *Session) closeOnEOF() {
	s.mu.Lock()
	j, ok := s.table.NewestForeground()
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := unix.Kill(-j.Gpid(), unix.SIGHUP); err != nil {
		logger.Errorf("hangup foreground job on ctl d; gpid: %d, error: %s", j.Gpid(), err)
	}
}

// handleCmd parses and dispatches one CMD payload: a builtin (jobs/fg/bg)
// is handled synchronously; anything else is parsed into a job.Job and
// launched, per spec.md §4.5/§4.6.
func (s *Session) handleCmd(raw string) {
	if s.builtin(raw) {
		return
	}

	j := parser.Parse(raw)
	if j.ErrMsg != "" {
		s.writeError(j.ErrMsg)
		s.prompt()
		return
	}

	s.mu.Lock()
	err := s.table.Insert(j)
	s.mu.Unlock()
	if err != nil {
		s.writeError(err.Error())
		s.prompt()
		return
	}

	s.launch(j)
}

// launch spawns the job's children. A background job's "[N] gpid" launch
// notice is printed immediately and the servant's own prompt follows right
// away, while a reap goroutine waits for the job;
// a foreground job instead hands off to a job-thread goroutine (announce)
// that blocks in WaitForeground and only then emits the prompt, leaving
// this (the servant) goroutine free to keep polling for CTL signals.
func (s *Session) launch(j *job.Job) {
	if err := s.launcher.Launch(context.Background(), j, s.conn); err != nil {
		logger.Errorf("launch job; raw: %q, error: %s", j.Raw, err)
		s.writeError(j.ErrMsg)
		s.mu.Lock()
		_ = s.table.Remove(j.Number)
		s.mu.Unlock()
		s.prompt()
		return
	}
	j.SetStatus(job.Running)

	if j.Background {
		s.writeLine(fmt.Sprintf("[%d] %d", j.Number, j.Gpid()))
		s.prompt()
		go s.reap(j)
		return
	}

	s.announce(j)
}

// announce runs the blocking half of a foreground job's (or a resumed `fg`
// job's) life cycle on its own goroutine: it waits for the group to finish
// or stop, updates the table under mu, and emits the prompt that hands the
// terminal back to the client.
func (s *Session) announce(j *job.Job) {
	go func() {
		if err := s.supervisor.WaitForeground(j); err != nil {
			logger.Errorf("wait foreground job; raw: %q, error: %s", j.Raw, err)
		}
		s.finishForeground(j)
		s.prompt()
	}()
}

// reap waits out a background job on its own goroutine, silently, so it is
// removed from the table as soon as it exits rather than waiting for the
// next `jobs` maintenance pass.
func (s *Session) reap(j *job.Job) {
	if err := s.supervisor.WaitForeground(j); err != nil {
		logger.Errorf("wait background job; raw: %q, error: %s", j.Raw, err)
	}
	s.finishForeground(j)
}

// finishForeground removes j from the table if it finished, or vacates the
// foreground slot (marks it background) if it was merely stopped by a
// CTL z — matching the convention that a stopped job moves to the
// background job list rather than continuing to absorb CTL c/z.
func (s *Session) finishForeground(j *job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch j.Status() {
	case job.Done:
		if err := s.table.Remove(j.Number); err != nil {
			logger.Errorf("remove done job; number: %d, error: %s", j.Number, err)
		}
	case job.Stopped:
		j.Background = true
	}
}

func (s *Session) prompt() {
	if err := s.codec.WritePrompt(); err != nil {
		logger.Warnf("write prompt; error: %s", err)
	}
}

func (s *Session) writeError(msg string) {
	if err := s.codec.WriteError(msg); err != nil {
		logger.Warnf("write error reply; error: %s", err)
	}
}

func (s *Session) writeLine(line string) {
	if err := s.codec.WriteLine(line); err != nil {
		logger.Warnf("write line; error: %s", err)
	}
}
