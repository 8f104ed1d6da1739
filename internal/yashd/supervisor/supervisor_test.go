package supervisor

import (
	"strings"
	"testing"

	"github.com/tjper/yashd/internal/yashd/job"
)

func TestLineFormatMatchesSpecExample(t *testing.T) {
	j := job.New("sleep 30 &", []string{"sleep", "30", "&"})
	j.Left = []string{"sleep", "30"}
	j.Background = true

	got := line(j, job.Running, "+")
	if got != "[0]+ Running\tsleep 30 \n" {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestJobsMarksHighestLiveJobWithPlus(t *testing.T) {
	tbl := job.NewTable()

	first := job.New("sleep 10 &", nil)
	first.Left = []string{"sleep", "10"}
	first.Background = true
	first.SetStatus(job.Running)
	_ = tbl.Insert(first)

	second := job.New("sleep 20 &", nil)
	second.Left = []string{"sleep", "20"}
	second.Background = true
	second.SetStatus(job.Stopped)
	_ = tbl.Insert(second)

	s := New(nil)
	lines := s.Jobs(tbl)

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[1]-") {
		t.Fatalf("expected job 1 to carry '-', got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[2]+") {
		t.Fatalf("expected job 2 (highest live) to carry '+', got %q", lines[1])
	}
}

func TestSelectJobDefaultsToHighestLive(t *testing.T) {
	tbl := job.NewTable()

	done := job.New("echo hi &", nil)
	done.Background = true
	done.SetStatus(job.Done)
	_ = tbl.Insert(done)

	live := job.New("sleep 10 &", nil)
	live.Background = true
	live.SetStatus(job.Running)
	_ = tbl.Insert(live)

	got, ok := selectJob(tbl, 0)
	if !ok {
		t.Fatal("expected a selectable job")
	}
	if got != live {
		t.Fatalf("expected job %d, got %d", live.Number, got.Number)
	}
}

func TestSelectJobRejectsDoneJob(t *testing.T) {
	tbl := job.NewTable()

	done := job.New("echo hi", nil)
	done.SetStatus(job.Done)
	_ = tbl.Insert(done)

	if _, ok := selectJob(tbl, done.Number); ok {
		t.Fatal("expected a Done job to be unselectable")
	}
}

func TestFgUnknownJobReturnsErrNoSuchJob(t *testing.T) {
	tbl := job.NewTable()
	s := New(nil)

	if _, err := s.Fg(tbl, 7); err != errNoSuchJob {
		t.Fatalf("expected errNoSuchJob, got %v", err)
	}
}

func TestBgUnknownJobReturnsErrNoSuchJob(t *testing.T) {
	tbl := job.NewTable()
	s := New(nil)

	if _, err := s.Bg(tbl, 7); err != errNoSuchJob {
		t.Fatalf("expected errNoSuchJob, got %v", err)
	}
}

func TestBgRunningJobIsANoop(t *testing.T) {
	tbl := job.NewTable()
	running := job.New("sleep 10 &", nil)
	running.Background = true
	running.SetStatus(job.Running)
	_ = tbl.Insert(running)

	s := New(nil)
	got, err := s.Bg(tbl, running.Number)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != running {
		t.Fatalf("expected the same job back")
	}
	if got.Status() != job.Running {
		t.Fatalf("expected job to remain Running, got %v", got.Status())
	}
}
