package protocol

import (
	"bufio"
	"fmt"
	"io"
)

// sentinelStart and sentinelEnd bracket every message in the alternate
// framed mode described in spec.md §4.8.
var (
	sentinelStart = []byte{0x02, 0x02}
	sentinelEnd   = []byte{0x03, 0x03}
)

// NewSentinelCodec creates the optional sentinel-framed Codec variant named
// in spec.md §4.8. It is not wired into the dispatcher by default; it exists
// as a second, independently testable Codec implementation so the framing
// contract is exercised by more than one wire format.
func NewSentinelCodec(rw io.ReadWriter) Codec {
	return &sentinelCodec{r: bufio.NewReaderSize(rw, MaxCommandBytes+64), w: rw}
}

type sentinelCodec struct {
	r *bufio.Reader
	w io.Writer
}

// ReadRequest reads bytes up to and including a trailing sentinelEnd,
// strips the leading sentinelStart, and decodes the remainder with the line
// codec's TYPE SP ARG rules. Unlike the line codec, it does not trim a
// trailing "\r\n" from the body.
func (c *sentinelCodec) ReadRequest() (Request, error) {
	start := make([]byte, len(sentinelStart))
	if _, err := io.ReadFull(c.r, start); err != nil {
		return Request{}, err
	}
	for i := range start {
		if start[i] != sentinelStart[i] {
			return Request{}, ErrMalformed
		}
	}

	var body []byte
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return Request{}, err
		}
		body = append(body, b)
		if len(body) >= len(sentinelEnd) && bytesEqual(body[len(body)-len(sentinelEnd):], sentinelEnd) {
			body = body[:len(body)-len(sentinelEnd)]
			break
		}
		if len(body) > MaxCommandBytes+8 {
			return Request{}, ErrMalformed
		}
	}

	return decodeBody(string(body))
}

func decodeBody(line string) (Request, error) {
	typ, arg, ok := cut(line)
	if !ok || typ == "" {
		return Request{}, ErrMalformed
	}
	switch typ {
	case "CMD":
		if len(arg) > MaxCommandBytes {
			return Request{}, ErrMalformed
		}
		return Request{Type: CMD, Arg: arg}, nil
	case "CTL":
		if arg != "c" && arg != "z" && arg != "d" {
			return Request{}, ErrMalformed
		}
		return Request{Type: CTL, Arg: arg}, nil
	default:
		return Request{}, ErrMalformed
	}
}

func cut(s string) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *sentinelCodec) write(payload string) error {
	_, err := fmt.Fprintf(c.w, "%s%s%s", sentinelStart, payload, sentinelEnd)
	return err
}

func (c *sentinelCodec) WritePrompt() error {
	return c.write(Prompt)
}

func (c *sentinelCodec) WriteError(msg string) error {
	return c.write(fmt.Sprintf("%s%s\n", ErrorPrefix, msg))
}

func (c *sentinelCodec) WriteLine(line string) error {
	return c.write(line + "\n")
}
