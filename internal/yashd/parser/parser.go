// Package parser tokenizes and classifies a single yashd command line into a
// job.Job, per spec.md §4.4. It never spawns anything; a parse failure is
// reported on the returned Job's ErrMsg field and no process is launched.
package parser

import (
	"fmt"
	"strings"

	"github.com/tjper/yashd/internal/validator"
	"github.com/tjper/yashd/internal/yashd/job"
)

// Bounds on the raw command line and its tokenization (spec.md §3).
const (
	MaxRawBytes   = 2000
	MaxTokens     = 1000
	MaxTokenBytes = 30
)

// side identifies which half of an (optionally piped) job a token applies
// to.
type side int

const (
	left side = iota
	right
)

// Parse tokenizes raw and classifies the tokens into a job.Job. If raw or
// its tokenization violate the bounds in spec.md §3, or the grammar in
// spec.md §4.4 is violated, the returned Job's ErrMsg is set and Left/Right
// are left unpopulated; the caller must not launch such a Job.
func Parse(raw string) *job.Job {
	tokens := strings.Fields(raw)

	v := validator.New()
	v.Assert(len(raw) <= MaxRawBytes, "command line too long")
	v.Assert(len(tokens) <= MaxTokens, "too many tokens")
	for _, tok := range tokens {
		v.Assert(len(tok) <= MaxTokenBytes, "token too long")
	}

	j := job.New(raw, tokens)
	if err := v.Err(); err != nil {
		j.ErrMsg = err.Error()
		return j
	}

	p := &parseState{job: j, tokens: tokens}
	p.run()
	return j
}

// parseState is the left-to-right scan over a job's tokens.
type parseState struct {
	job    *job.Job
	tokens []string

	cur  side
	left []string
	rght []string
}

func (p *parseState) run() {
	for i := 0; i < len(p.tokens); i++ {
		tok := p.tokens[i]

		switch tok {
		case "<", ">", "2>":
			if !p.redirect(tok, i) {
				return
			}
			i++ // consume the path token too.
		case "|":
			if !p.pipe(i) {
				return
			}
		case "&":
			if !p.background(i) {
				return
			}
		default:
			p.appendArg(tok)
		}
	}

	p.job.Left = p.left
	p.job.Right = p.rght
}

// isSpecial reports whether tok is one of the grammar's special tokens.
func isSpecial(tok string) bool {
	switch tok {
	case "<", ">", "2>", "|", "&":
		return true
	default:
		return false
	}
}

func (p *parseState) fail(format string, args ...interface{}) bool {
	p.job.ErrMsg = fmt.Sprintf(format, args...)
	return false
}

// redirect handles a <, >, or 2> token at position i. It returns false (and
// sets ErrMsg) on any grammar violation.
func (p *parseState) redirect(tok string, i int) bool {
	isFirstOfSide := (p.cur == left && len(p.left) == 0) || (p.cur == right && len(p.rght) == 0)
	if isFirstOfSide {
		return p.fail("command should not start with %s", tok)
	}
	if i == len(p.tokens)-1 {
		return p.fail("command should not end with %s", tok)
	}
	next := p.tokens[i+1]
	if isSpecial(next) {
		return p.fail("near token %s", next)
	}

	switch {
	case tok == "<" && p.cur == left:
		p.job.LeftRedirects.In = next
	case tok == "<" && p.cur == right:
		p.job.RightRedirects.In = next
	case tok == ">" && p.cur == left:
		p.job.LeftRedirects.Out = next
	case tok == ">" && p.cur == right:
		p.job.RightRedirects.Out = next
	case tok == "2>" && p.cur == left:
		p.job.LeftRedirects.Err = next
	case tok == "2>" && p.cur == right:
		p.job.RightRedirects.Err = next
	}
	return true
}

// pipe handles a | token at position i.
func (p *parseState) pipe(i int) bool {
	if i == 0 {
		return p.fail("command should not start with |")
	}
	if i == len(p.tokens)-1 {
		return p.fail("command should not end with |")
	}
	next := p.tokens[i+1]
	if isSpecial(next) {
		return p.fail("near token %s", next)
	}
	if p.job.Pipe {
		return p.fail("near token |")
	}

	p.job.Pipe = true
	p.cur = right
	return true
}

// background handles an & token at position i; it must be the final token.
func (p *parseState) background(i int) bool {
	if i != len(p.tokens)-1 {
		return p.fail("& should be the last token")
	}
	p.job.Background = true
	return true
}

func (p *parseState) appendArg(tok string) {
	if p.cur == left {
		p.left = append(p.left, tok)
	} else {
		p.rght = append(p.rght, tok)
	}
}
