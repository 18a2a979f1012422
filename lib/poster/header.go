package poster

import (
	"errors"
	"net/textproto"
	"strings"
)

// headerLine is one raw header field as received, folded continuation
// lines included, so untouched fields can be written back to storage
// byte for byte.
type headerLine struct {
	key  string // canonical form
	text string // full raw line(s), CRLF-joined for folded fields
}

type rawHeaderBlock struct {
	lines []headerLine
}

var errMalformedHeader = errors.New("poster: malformed header block")

// parseRawHeader splits a CRLF-separated header block into fields,
// attaching folded continuation lines to the field they extend.
func parseRawHeader(raw string) (*rawHeaderBlock, error) {
	b := new(rawHeaderBlock)
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(b.lines) == 0 {
				return nil, errMalformedHeader
			}
			b.lines[len(b.lines)-1].text += "\r\n" + line
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, errMalformedHeader
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:colon]))
		b.lines = append(b.lines, headerLine{key: key, text: line})
	}
	return b, nil
}

// Get returns the first value of name, unfolded and trimmed.
func (b *rawHeaderBlock) Get(name string) string {
	key := textproto.CanonicalMIMEHeaderKey(name)
	for _, l := range b.lines {
		if l.key == key {
			colon := strings.IndexByte(l.text, ':')
			v := l.text[colon+1:]
			v = strings.ReplaceAll(v, "\r\n", " ")
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Del removes every field named name.
func (b *rawHeaderBlock) Del(name string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	kept := b.lines[:0]
	for _, l := range b.lines {
		if l.key != key {
			kept = append(kept, l)
		}
	}
	b.lines = kept
}

// Set replaces the first field named name (appending if absent) with
// a single unfolded line.
func (b *rawHeaderBlock) Set(name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	for i, l := range b.lines {
		if l.key == key {
			b.lines[i].text = key + ": " + value
			return
		}
	}
	b.lines = append(b.lines, headerLine{key: key, text: key + ": " + value})
}

// Render writes the block back out as a CRLF-terminated header block,
// preserving the original order and the exact bytes of untouched
// fields.
func (b *rawHeaderBlock) Render() string {
	var sb strings.Builder
	for _, l := range b.lines {
		sb.WriteString(l.text)
		sb.WriteString("\r\n")
	}
	return sb.String()
}
