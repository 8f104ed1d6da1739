// Package registry implements the process-wide Servant Registry (spec.md
// §2 C3, §5): the table of active per-client servant goroutines, their
// cooperative shutdown latches, and the dense-packing slot reuse scheme
// described in spec.md §4.3.
package registry

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// Record is one row in the registry: the bookkeeping for a single servant
// goroutine. Run is a cooperative cancellation latch; a servant checks it at
// each poll iteration (spec.md §5) and exits once cleared.
type Record struct {
	ID   uuid.UUID
	Conn net.Conn

	mu  sync.Mutex
	run bool
}

// Running reports whether the servant owning this Record should keep
// serving its client.
func (r *Record) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

// Stop clears the Record's run latch; the owning servant observes this at
// its next poll boundary (spec.md §5: "≤500 ms").
func (r *Record) Stop() {
	r.mu.Lock()
	r.run = false
	r.mu.Unlock()
}

// MaxServants bounds the number of concurrently connected clients (spec.md
// §5).
const MaxServants = 50

// Registry is the process-wide table of active servants. All methods are
// safe for concurrent use. Per spec.md §5's locking order, code holding a
// Session mutex must never call into Registry; Registry methods are always
// the outermost lock acquired.
type Registry struct {
	mu    sync.Mutex
	slots []*Record
	// watermark is one past the highest in-use slot index; new connections
	// are placed at slots[watermark] (growing the slice if needed).
	watermark int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// ErrFull indicates MaxServants are already registered.
var ErrFull = errFull{}

type errFull struct{}

func (errFull) Error() string { return "servant registry full" }

// Reserve allocates a slot for a new connection and returns its Record. The
// caller must spawn the servant goroutine promptly; the slot counts against
// MaxServants until Remove is called.
func (r *Registry) Reserve(conn net.Conn) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watermark >= MaxServants {
		return nil, ErrFull
	}

	rec := &Record{ID: uuid.New(), Conn: conn, run: true}

	if r.watermark < len(r.slots) {
		r.slots[r.watermark] = rec
	} else {
		r.slots = append(r.slots, rec)
	}
	r.watermark++

	return rec, nil
}

// Remove clears rec's slot and, per spec.md §4.3, decrements the watermark
// past any contiguous block of completed (nil) slots at the tail — it never
// shrinks the watermark past a slot still holding a running servant.
func (r *Registry) Remove(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, slot := range r.slots {
		if slot != rec {
			continue
		}
		r.slots[i] = nil
		break
	}

	for r.watermark > 0 && r.slots[r.watermark-1] == nil {
		r.watermark--
	}
}

// Count returns the number of in-use slots.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, slot := range r.slots {
		if slot != nil {
			n++
		}
	}
	return n
}

// ShutdownAll walks the registry in reverse, clearing every Record's run
// latch, per spec.md §5 ("Shutdown of all servants is performed by walking
// the registry in reverse"). It does not wait for servants to exit; callers
// that need that should track goroutine completion separately (e.g. with a
// sync.WaitGroup in the dispatcher).
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.slots) - 1; i >= 0; i-- {
		if r.slots[i] == nil {
			continue
		}
		r.slots[i].Stop()
		_ = r.slots[i].Conn.Close()
	}
}
