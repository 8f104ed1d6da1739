package job

import (
	"errors"
)

// Capacity is the maximum number of Jobs (spec.md §5) or JobThreads a single
// session may hold concurrently.
const Capacity = 20

// ErrTableFull indicates a Table is already at Capacity.
var ErrTableFull = errors.New("job table full")

// ErrNotFound indicates no Job with the requested number exists in the
// Table.
var ErrNotFound = errors.New("job not found")

// Table is a session's bounded, ordered collection of Jobs. Slots are
// nilable and fixed-capacity, the way registry.Registry holds its Records,
// so a Job's Number (the slot index + 1) is never reused by a still-live
// Job even as earlier jobs come and go. Table is not safe for concurrent
// use; the owning Session serializes access to it under its own mutex
// (spec.md §5: "Job table: mutated only by the owning Session's threads").
type Table struct {
	slots []*Job
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{slots: make([]*Job, 0, Capacity)}
}

// Insert assigns j to the lowest free slot, growing the table if every
// existing slot is occupied, and sets its Number to that slot index + 1.
// Insert fails with ErrTableFull once Capacity Jobs are resident.
func (t *Table) Insert(j *Job) error {
	for i, slot := range t.slots {
		if slot == nil {
			t.slots[i] = j
			j.Number = i + 1
			return nil
		}
	}
	if len(t.slots) >= Capacity {
		return ErrTableFull
	}
	t.slots = append(t.slots, j)
	j.Number = len(t.slots)
	return nil
}

// Remove clears the slot holding the Job with the given number. The slot
// becomes available for reuse by a future Insert; Number is assigned once,
// at insertion, and is stable for the Job's lifetime in this table.
func (t *Table) Remove(number int) error {
	for i, j := range t.slots {
		if j == nil || j.Number != number {
			continue
		}
		t.slots[i] = nil
		return nil
	}
	return ErrNotFound
}

// Get retrieves the Job with the given number.
func (t *Table) Get(number int) (*Job, error) {
	for _, j := range t.slots {
		if j != nil && j.Number == number {
			return j, nil
		}
	}
	return nil, ErrNotFound
}

// All returns every Job currently resident in the table, in slot order.
// The returned slice is a copy; mutating it does not affect the Table.
func (t *Table) All() []*Job {
	out := make([]*Job, 0, len(t.slots))
	for _, j := range t.slots {
		if j != nil {
			out = append(out, j)
		}
	}
	return out
}

// Len returns the number of Jobs currently resident.
func (t *Table) Len() int {
	n := 0
	for _, j := range t.slots {
		if j != nil {
			n++
		}
	}
	return n
}

// NewestForeground returns the highest-numbered Job that is not Done and not
// Background, i.e. the job a CTL c/z signal should target. The bool is false
// if no such Job exists.
func (t *Table) NewestForeground() (*Job, bool) {
	var newest *Job
	for _, j := range t.slots {
		if j == nil || j.Background || j.Status() == Done {
			continue
		}
		if newest == nil || j.Number > newest.Number {
			newest = j
		}
	}
	return newest, newest != nil
}

// HighestLive returns the highest-numbered Running or Stopped Job, the one
// the `jobs` builtin marks with '+'.
func (t *Table) HighestLive() (*Job, bool) {
	var highest *Job
	for _, j := range t.slots {
		if j == nil {
			continue
		}
		switch j.Status() {
		case Running, Stopped:
		default:
			continue
		}
		if highest == nil || j.Number > highest.Number {
			highest = j
		}
	}
	return highest, highest != nil
}
