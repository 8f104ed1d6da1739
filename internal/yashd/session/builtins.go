package session

import (
	"strconv"
	"strings"
)

// builtin recognizes and executes jobs/fg/bg (spec.md §4.5's builtin list,
// SPEC_FULL.md §4 open question 1). It reports whether raw named a builtin;
// handleCmd falls through to the parser/launcher path otherwise. Every
// builtin is responsible for its own prompt, since fg's prompt is deferred
// to its job thread while jobs/bg reply and prompt immediately.
func (s *Session) builtin(raw string) bool {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return false
	}

	switch tokens[0] {
	case "jobs":
		s.builtinJobs()
	case "fg":
		s.builtinFg(tokens[1:])
	case "bg":
		s.builtinBg(tokens[1:])
	default:
		return false
	}
	return true
}

func (s *Session) builtinJobs() {
	s.mu.Lock()
	lines := s.supervisor.Jobs(s.table)
	s.mu.Unlock()

	for _, line := range lines {
		s.writeLine(strings.TrimSuffix(line, "\n"))
	}
	s.prompt()
}

// builtinFg resumes job n and defers its completion (and the next prompt)
// to a job thread, exactly like a freshly launched foreground job, so the
// servant can keep reading CTL signals for it in the meantime.
func (s *Session) builtinFg(args []string) {
	n, ok := parseJobArg(args)
	if !ok {
		s.writeError("usage: fg [%job]")
		s.prompt()
		return
	}

	s.mu.Lock()
	j, err := s.supervisor.Resume(s.table, n)
	s.mu.Unlock()
	if err != nil {
		s.writeError(err.Error())
		s.prompt()
		return
	}

	s.announce(j)
}

func (s *Session) builtinBg(args []string) {
	n, ok := parseJobArg(args)
	if !ok {
		s.writeError("usage: bg [%job]")
		s.prompt()
		return
	}

	s.mu.Lock()
	_, err := s.supervisor.Bg(s.table, n)
	s.mu.Unlock()
	if err != nil {
		s.writeError(err.Error())
	}
	s.prompt()
}

// parseJobArg accepts an optional bare or "%"-prefixed job number,
// defaulting to 0 (the supervisor's "highest live job" sentinel).
func parseJobArg(args []string) (int, bool) {
	if len(args) == 0 {
		return 0, true
	}
	if len(args) > 1 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(args[0], "%"))
	if err != nil {
		return 0, false
	}
	return n, true
}
