// Package supervisor implements the Job Supervisor (spec_full.md C8):
// reaping children with blocking and non-blocking waits, maintaining job
// status, and the jobs/fg/bg builtins (spec.md §4.7, open question
// decisions in SPEC_FULL.md §4).
package supervisor

import (
	"fmt"
	"os"
	"strings"

	"github.com/tjper/yashd/internal/log"
	"github.com/tjper/yashd/internal/yashd/cgroup"
	"github.com/tjper/yashd/internal/yashd/job"

	"golang.org/x/sys/unix"
)

var logger = log.New(os.Stdout, "supervisor")

// Supervisor reaps and reports on the jobs in one session's job table. Every
// operation takes the table (or job) it acts on, since the table itself is
// owned by the Session; the only state a Supervisor carries is the cgroup
// Service used to release a background job's cgroup once it is reaped Done.
type Supervisor struct {
	cgroups *cgroup.Service
}

// New creates a Supervisor. cgroups may be nil if resource containment is
// disabled, in which case reaped jobs are never checked for cgroup cleanup.
func New(cgroups *cgroup.Service) *Supervisor { return &Supervisor{cgroups: cgroups} }

// releaseCgroups removes any cgroup j's children were placed in. Called once
// j has reached Done; safe to call on a job with no cgroups.
func (s *Supervisor) releaseCgroups(j *job.Job) {
	if s.cgroups == nil {
		return
	}
	for _, id := range j.CgroupIDs() {
		if err := s.cgroups.RemoveCgroup(id); err != nil {
			logger.Errorf("release job cgroup; id: %s, error: %s", id, err)
		}
	}
}

// WaitForeground blocks until j's process group is no longer foreground:
// every child has exited (Done), or the group has been stopped (Stopped).
// Expected child count is job.ChildCount() (1 simple, 2 piped).
func (s *Supervisor) WaitForeground(j *job.Job) error {
	j.ResetRemaining()

	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(-j.Gpid(), &ws, unix.WUNTRACED|unix.WCONTINUED, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			logger.Errorf("wait foreground job; gpid: %d, error: %s", j.Gpid(), err)
			j.SetStatus(job.Done)
			s.releaseCgroups(j)
			return fmt.Errorf("wait foreground job: %w", err)
		}

		switch {
		case ws.Exited() || ws.Signaled():
			if j.DecrementRemaining() == 0 {
				j.SetStatus(job.Done)
				s.releaseCgroups(j)
				return nil
			}
		case ws.Stopped():
			j.SetStatus(job.Stopped)
			return nil
		case ws.Continued():
			j.SetStatus(job.Running)
		}
	}
}

// MaintainJobs performs one non-blocking reaping pass over every non-Done
// job in table, per spec.md §4.7. It returns one status line for every job
// that became Done during the pass (and removes those jobs from table);
// Stopped/Running transitions update the job in place.
func (s *Supervisor) MaintainJobs(table *job.Table) []string {
	var lines []string

	for _, j := range table.All() {
		if j.Status() == job.Done {
			continue
		}
		s.reapOnce(j)
		if j.Status() == job.Done {
			lines = append(lines, line(j, job.Done, ""))
			if err := table.Remove(j.Number); err != nil {
				logger.Errorf("remove done job; number: %d, error: %s", j.Number, err)
			}
		}
	}

	return lines
}

// reapOnce drains every status change currently pending for j's group
// without blocking.
func (s *Supervisor) reapOnce(j *job.Job) {
	// A job that has not been launched has no group; waiting on -0 would
	// wait on the daemon's own process group instead.
	if j.Gpid() == 0 {
		return
	}
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-j.Gpid(), &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err != nil {
			// A spurious interruption is retried; any other error is logged and
			// the job is force-marked Done (spec.md §7.6).
			if err == unix.EINTR {
				continue
			}
			logger.Errorf("maintain job; gpid: %d, error: %s", j.Gpid(), err)
			j.SetStatus(job.Done)
			s.releaseCgroups(j)
			return
		}
		if pid == 0 {
			return
		}

		switch {
		case ws.Exited() || ws.Signaled():
			if j.DecrementRemaining() == 0 {
				j.SetStatus(job.Done)
				s.releaseCgroups(j)
				return
			}
		case ws.Stopped():
			j.SetStatus(job.Stopped)
			return
		case ws.Continued():
			j.SetStatus(job.Running)
		}
	}
}

// Jobs implements the `jobs` builtin: it runs a maintenance pass (whose
// Done notifications are returned first), then appends one line per
// Running/Stopped job, `+` marking the highest-numbered live job.
func (s *Supervisor) Jobs(table *job.Table) []string {
	lines := s.MaintainJobs(table)

	highest, hasHighest := table.HighestLive()
	for _, j := range table.All() {
		switch j.Status() {
		case job.Running, job.Stopped:
			marker := "-"
			if hasHighest && j.Number == highest.Number {
				marker = "+"
			}
			lines = append(lines, line(j, j.Status(), marker))
		}
	}
	return lines
}

// Fg implements the `fg` builtin (SPEC_FULL.md §4, open question 1) for a
// caller happy to block synchronously: it resumes job n and waits for it
// to finish or stop again. A session servant, which must keep polling for
// CTL signals while a resumed job runs, instead calls Resume directly and
// runs WaitForeground on its own job-thread goroutine.
func (s *Supervisor) Fg(table *job.Table, n int) (*job.Job, error) {
	j, err := s.Resume(table, n)
	if err != nil {
		return nil, err
	}
	return j, s.WaitForeground(j)
}

// Resume implements the continue half of `fg`: it selects job n (defaulting
// to the highest-numbered live job), sends SIGCONT if it is Stopped, marks
// it foreground, and returns without blocking. The caller is responsible
// for then running WaitForeground.
func (s *Supervisor) Resume(table *job.Table, n int) (*job.Job, error) {
	j, ok := selectJob(table, n)
	if !ok {
		return nil, errNoSuchJob
	}
	if j.Status() == job.Stopped {
		if err := unix.Kill(-j.Gpid(), unix.SIGCONT); err != nil {
			return nil, fmt.Errorf("continue job: %w", err)
		}
		j.SetStatus(job.Running)
	}
	j.Background = false
	return j, nil
}

// Bg implements the `bg` builtin: it continues job n in place, leaving it
// running in the background without blocking the caller.
func (s *Supervisor) Bg(table *job.Table, n int) (*job.Job, error) {
	j, ok := selectJob(table, n)
	if !ok {
		return nil, errNoSuchJob
	}
	if j.Status() != job.Stopped {
		return j, nil
	}
	if err := unix.Kill(-j.Gpid(), unix.SIGCONT); err != nil {
		return nil, fmt.Errorf("continue job: %w", err)
	}
	j.SetStatus(job.Running)
	return j, nil
}

var errNoSuchJob = fmt.Errorf("no such job")

// selectJob resolves n to a live (non-Done) job: n == 0 selects the
// highest-numbered live job (table.HighestLive, the `+` job in `jobs`
// output); otherwise n names a job number directly.
func selectJob(table *job.Table, n int) (*job.Job, bool) {
	if n == 0 {
		return table.HighestLive()
	}
	j, err := table.Get(n)
	if err != nil || j.Status() == job.Done {
		return nil, false
	}
	return j, true
}

// line formats one spec.md §4.7 status line: "[N](+|-) STATUS\ttokens... ".
// marker is "+", "-", or "" (maintainJobs' Done notifications carry no
// marker).
func line(j *job.Job, status job.Status, marker string) string {
	parts := append([]string{}, j.Left...)
	if j.Pipe {
		parts = append(parts, "|")
		parts = append(parts, j.Right...)
	}
	tokens := strings.Join(parts, " ") + " "

	return fmt.Sprintf("[%d]%s %s\t%s\n", j.Number, marker, displayStatus(status), tokens)
}

func displayStatus(s job.Status) string {
	switch s {
	case job.Running:
		return "Running"
	case job.Stopped:
		return "Stopped"
	case job.Done:
		return "Done"
	default:
		return string(s)
	}
}
