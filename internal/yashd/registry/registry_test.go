package registry

import (
	"net"
	"testing"
)

type fakeConn struct {
	net.Conn
	closed bool
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestReserveAndRemove(t *testing.T) {
	r := New()

	rec1, err := r.Reserve(&fakeConn{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec2, err := r.Reserve(&fakeConn{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Count() != 2 {
		t.Fatalf("expected 2 servants, got %d", r.Count())
	}

	r.Remove(rec1)
	if r.Count() != 1 {
		t.Fatalf("expected 1 servant, got %d", r.Count())
	}

	r.Remove(rec2)
	if r.Count() != 0 {
		t.Fatalf("expected 0 servants, got %d", r.Count())
	}
	if r.watermark != 0 {
		t.Fatalf("expected watermark to shrink to 0, got %d", r.watermark)
	}
}

func TestRemoveMiddleSlotDoesNotShrinkPastRunningServant(t *testing.T) {
	r := New()

	rec1, _ := r.Reserve(&fakeConn{})
	_, _ = r.Reserve(&fakeConn{})
	rec3, _ := r.Reserve(&fakeConn{})

	r.Remove(rec1)
	if r.watermark != 3 {
		t.Fatalf("expected watermark to stay at 3 (rec3 still running), got %d", r.watermark)
	}

	r.Remove(rec3)
	if r.watermark != 2 {
		t.Fatalf("expected watermark to shrink past the now-nil tail slot, got %d", r.watermark)
	}
}

func TestReserveFullReturnsErrFull(t *testing.T) {
	r := New()
	for i := 0; i < MaxServants; i++ {
		if _, err := r.Reserve(&fakeConn{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if _, err := r.Reserve(&fakeConn{}); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestShutdownAllClosesConnsAndClearsLatches(t *testing.T) {
	r := New()
	conn := &fakeConn{}
	rec, _ := r.Reserve(conn)

	r.ShutdownAll()

	if rec.Running() {
		t.Fatalf("expected run latch cleared")
	}
	if !conn.closed {
		t.Fatalf("expected connection closed")
	}
}
