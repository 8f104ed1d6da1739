package job

import "testing"

func TestRemainingTracksChildCount(t *testing.T) {
	j := New("ls | grep x", nil)
	j.Pipe = true

	j.ResetRemaining()
	if got := j.Remaining(); got != 2 {
		t.Fatalf("expected remaining 2, got %d", got)
	}

	if got := j.DecrementRemaining(); got != 1 {
		t.Fatalf("expected remaining 1, got %d", got)
	}
	if got := j.DecrementRemaining(); got != 0 {
		t.Fatalf("expected remaining 0, got %d", got)
	}
	if got := j.DecrementRemaining(); got != 0 {
		t.Fatalf("expected remaining to stay at 0, got %d", got)
	}
}

func TestNewDefaultsStatusAndExitCode(t *testing.T) {
	j := New("echo hi", []string{"echo", "hi"})

	if j.Status() != Pending {
		t.Fatalf("expected Pending, got %v", j.Status())
	}
	if j.ExitCode() != NoExit {
		t.Fatalf("expected NoExit, got %v", j.ExitCode())
	}
	if j.ChildCount() != 1 {
		t.Fatalf("expected ChildCount 1 for a non-piped job, got %d", j.ChildCount())
	}
}
