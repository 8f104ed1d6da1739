package parser

import (
	"reflect"
	"testing"
)

func TestParseValid(t *testing.T) {
	type expected struct {
		left       []string
		right      []string
		pipe       bool
		background bool
	}
	tests := map[string]struct {
		raw string
		exp expected
	}{
		"simple": {
			raw: "echo hello",
			exp: expected{left: []string{"echo", "hello"}},
		},
		"background": {
			raw: "sleep 30 &",
			exp: expected{left: []string{"sleep", "30"}, background: true},
		},
		"pipe": {
			raw: "ls | grep x",
			exp: expected{left: []string{"ls"}, right: []string{"grep", "x"}, pipe: true},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			j := Parse(test.raw)
			if j.ErrMsg != "" {
				t.Fatalf("unexpected error: %s", j.ErrMsg)
			}
			if !reflect.DeepEqual(j.Left, test.exp.left) {
				t.Fatalf("left argv; actual: %v, expected: %v", j.Left, test.exp.left)
			}
			if !reflect.DeepEqual(j.Right, test.exp.right) {
				t.Fatalf("right argv; actual: %v, expected: %v", j.Right, test.exp.right)
			}
			if j.Pipe != test.exp.pipe {
				t.Fatalf("pipe; actual: %v, expected: %v", j.Pipe, test.exp.pipe)
			}
			if j.Background != test.exp.background {
				t.Fatalf("background; actual: %v, expected: %v", j.Background, test.exp.background)
			}
		})
	}
}

func TestParseRedirects(t *testing.T) {
	j := Parse("ls | grep x > /tmp/out")
	if j.ErrMsg != "" {
		t.Fatalf("unexpected error: %s", j.ErrMsg)
	}
	if j.RightRedirects.Out != "/tmp/out" {
		t.Fatalf("expected right stdout redirect, got %q", j.RightRedirects.Out)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]struct {
		raw string
		exp string
	}{
		"starts with redirect":  {raw: "> out", exp: "command should not start with >"},
		"starts with pipe":      {raw: "| grep x", exp: "command should not start with |"},
		"ends with redirect":    {raw: "echo hi >", exp: "command should not end with >"},
		"ends with pipe":        {raw: "echo hi |", exp: "command should not end with |"},
		"redirect near special": {raw: "echo hi > |", exp: "near token |"},
		"double pipe":           {raw: "ls | wc | grep x", exp: "near token |"},
		"background not last":   {raw: "echo hi & ls", exp: "& should be the last token"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			j := Parse(test.raw)
			if j.ErrMsg != test.exp {
				t.Fatalf("errmsg; actual: %q, expected: %q", j.ErrMsg, test.exp)
			}
		})
	}
}

func TestParseRoundTripTokens(t *testing.T) {
	raw := "ls  -la   /tmp"
	j := Parse(raw)
	if j.ErrMsg != "" {
		t.Fatalf("unexpected error: %s", j.ErrMsg)
	}
	if !reflect.DeepEqual(j.Left, []string{"ls", "-la", "/tmp"}) {
		t.Fatalf("unexpected left argv: %v", j.Left)
	}
}

func TestParseBounds(t *testing.T) {
	tooManyTokens := make([]byte, 0, 4000)
	for i := 0; i < MaxTokens+1; i++ {
		tooManyTokens = append(tooManyTokens, []byte("a ")...)
	}

	j := Parse(string(tooManyTokens))
	if j.ErrMsg == "" {
		t.Fatalf("expected bound violation error")
	}
}
