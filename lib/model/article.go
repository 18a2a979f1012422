package model

import (
	"bufio"
	"net/textproto"
	"strings"
)

// RequiredHeaders are the headers the poster must supply on every
// inbound article; absence of any of these is a 441 at post time.
var RequiredHeaders = []string{"Date", "From", "Subject", "Newsgroups", "Message-Id", "Path"}

// Article is an immutable posted message once accepted. The raw
// header block is retained verbatim for ARTICLE/HEAD output; Header
// holds the same data parsed into canonical MIME form for field
// access.
type Article struct {
	MessageID MessageID
	Header    textproto.MIMEHeader
	RawHeader string
	Body      []byte
}

// header returns the first value of a header, or "" if absent.
func (a *Article) header(name string) string {
	if a.Header == nil {
		return ""
	}
	return a.Header.Get(name)
}

func (a *Article) Subject() string    { return a.header("Subject") }
func (a *Article) From() string       { return a.header("From") }
func (a *Article) Date() string       { return a.header("Date") }
func (a *Article) Newsgroups() string { return a.header("Newsgroups") }
func (a *Article) Path() string       { return a.header("Path") }
func (a *Article) References() string { return a.header("References") }
func (a *Article) Control() string    { return a.header("Control") }
func (a *Article) Approved() string   { return a.header("Approved") }

// MissingRequiredHeaders reports which of RequiredHeaders have no
// value, for post-time validation.
func (a *Article) MissingRequiredHeaders() []string {
	var missing []string
	for _, h := range RequiredHeaders {
		if a.header(h) == "" {
			missing = append(missing, h)
		}
	}
	return missing
}

// ByteLen is the body length in octets. Overview's :bytes field
// reports twice this value; see DESIGN.md for why that is preserved.
func (a *Article) ByteLen() int {
	return len(a.Body)
}

// ParseHeader parses a raw CRLF-terminated header block (as stored
// verbatim alongside the article) into canonical MIME form.
func ParseHeader(raw string) (textproto.MIMEHeader, error) {
	r := textproto.NewReader(bufio.NewReader(strings.NewReader(raw + "\r\n")))
	return r.ReadMIMEHeader()
}

// LineCount is the number of CRLF-separated segments in the body,
// used for overview's :lines field.
func (a *Article) LineCount() int {
	if len(a.Body) == 0 {
		return 0
	}
	n := 1
	for i := 0; i+1 < len(a.Body); i++ {
		if a.Body[i] == '\r' && a.Body[i+1] == '\n' {
			n++
		}
	}
	return n
}
