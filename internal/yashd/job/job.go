// Package job provides the data model for a single parsed command line and
// the process group it spawns: the unit the Session job table, the Launcher,
// and the Supervisor all operate on.
package job

import (
	"sync"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a Job.
type Status string

const (
	// Pending indicates the Job has been parsed and inserted into a job table
	// but has not yet been launched.
	Pending Status = "pending"
	// Running indicates the Job's process group is executing.
	Running Status = "running"
	// Stopped indicates the Job's process group has been sent SIGTSTP (or
	// equivalent) and is suspended, but remains in the job table.
	Stopped Status = "stopped"
	// Done indicates every process in the Job's group has exited, normally or
	// via signal.
	Done Status = "done"
)

// NoExit is the sentinel exit code for a Job that has not exited, or that was
// terminated by a signal rather than returning a code.
const NoExit = -1

// Redirects describes the path-based I/O redirection targets for one side of
// a Job. An empty field means "inherit the client socket" per spec.
type Redirects struct {
	In  string
	Out string
	Err string
}

// New creates a Job from a parsed command line. Callers populate Left/Right
// argv, Pipe, Background, and the Redirects before handing the Job to a
// Table for insertion; New only establishes bookkeeping fields.
func New(raw string, tokens []string) *Job {
	return &Job{
		mutex:  new(sync.RWMutex),
		ID:     uuid.New(),
		Raw:    raw,
		Tokens: tokens,
		status: Pending,
		exit:   NoExit,
	}
}

// Job is a single parsed command line and the process group (if any) it has
// spawned. Job fields set during parsing (Raw, Tokens, Left, Right, Pipe,
// Background, redirects) are immutable after parsing; fields mutated over
// the Job's lifetime (status, exit code, Gpid) are guarded by mutex and must
// be accessed through the accessor methods.
type Job struct {
	mutex *sync.RWMutex

	// ID is an internal correlation identifier; it never appears on the wire.
	// The client-visible identifier is Number, assigned at table insertion.
	ID uuid.UUID

	// Raw is the raw command string as received, trailing newline stripped.
	Raw string
	// Tokens is the whitespace-split tokenization of Raw.
	Tokens []string

	// Left is the left (or only, if Pipe is false) command's argv.
	Left []string
	// Right is the right command's argv. Empty unless Pipe is true.
	Right []string

	// LeftRedirects/RightRedirects are the path-based redirections for each
	// side. RightRedirects is only meaningful if Pipe is true.
	LeftRedirects  Redirects
	RightRedirects Redirects

	// Pipe indicates Left and Right are one pipeline (Left | Right).
	Pipe bool
	// Background indicates the job was suffixed with '&'.
	Background bool

	// Number is the 1-based job number, assigned when the Job is inserted
	// into a Table; it equals the slot index + 1 at insertion time.
	Number int

	// ErrMsg is populated by the parser or launcher on failure. A non-empty
	// ErrMsg means the Job was never spawned (if set by the parser) or failed
	// during setup (if set by the launcher).
	ErrMsg string

	status Status
	exit   int
	// Gpid is the process group ID of the job's children, non-zero iff
	// Status() != Done. Gpid equals the PID of the left-side (leader) child.
	gpid int
	// remaining is the number of this Job's children the Supervisor has not
	// yet reaped; it starts at ChildCount() once the Job is launched and
	// counts down to zero as waitForeground/maintainJobs reap exits.
	remaining int
	// cgroups holds the IDs of any cgroups the Launcher placed this Job's
	// children in, so the Supervisor can release them once the Job is Done.
	cgroups []uuid.UUID
}

// AddCgroup records a cgroup the Launcher placed one of this Job's children
// in.
func (j *Job) AddCgroup(id uuid.UUID) {
	j.mutex.Lock()
	j.cgroups = append(j.cgroups, id)
	j.mutex.Unlock()
}

// CgroupIDs returns the cgroups this Job's children were placed in, if any.
func (j *Job) CgroupIDs() []uuid.UUID {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	out := make([]uuid.UUID, len(j.cgroups))
	copy(out, j.cgroups)
	return out
}

// Status returns the Job's current status.
func (j *Job) Status() Status {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.status
}

// SetStatus updates the Job's status. Moving to Done clears the group ID.
func (j *Job) SetStatus(s Status) {
	j.mutex.Lock()
	j.status = s
	if s == Done {
		j.gpid = 0
	}
	j.mutex.Unlock()
}

// ExitCode returns the Job's exit code, or NoExit if it has not exited or was
// signal-terminated.
func (j *Job) ExitCode() int {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.exit
}

// SetExitCode records the Job's exit code.
func (j *Job) SetExitCode(code int) {
	j.mutex.Lock()
	j.exit = code
	j.mutex.Unlock()
}

// Gpid returns the Job's process group ID, or 0 if the Job has not launched
// or has finished (Status() == Done).
func (j *Job) Gpid() int {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.gpid
}

// SetGpid records the Job's process group ID.
func (j *Job) SetGpid(pid int) {
	j.mutex.Lock()
	j.gpid = pid
	j.mutex.Unlock()
}

// ChildCount returns how many OS processes this Job expects the Supervisor
// to reap: two for a pipeline, one otherwise.
func (j *Job) ChildCount() int {
	if j.Pipe {
		return 2
	}
	return 1
}

// ResetRemaining (re)initializes the Supervisor's outstanding-reap counter
// to ChildCount(). Called once the Job's children have been launched.
func (j *Job) ResetRemaining() {
	j.mutex.Lock()
	j.remaining = j.ChildCount()
	j.mutex.Unlock()
}

// DecrementRemaining records one reaped child and returns the count still
// outstanding.
func (j *Job) DecrementRemaining() int {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.remaining > 0 {
		j.remaining--
	}
	return j.remaining
}

// Remaining returns the number of children not yet reaped.
func (j *Job) Remaining() int {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.remaining
}
