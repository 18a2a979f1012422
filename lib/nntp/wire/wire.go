// Package wire wraps net/textproto.Conn (the line-framing and
// dot-stuffing codec) with the optional GZIP-framed multi-line mode
// that XFEATURE COMPRESS GZIP TERMINATOR negotiates.
package wire

import (
	"bufio"
	"compress/gzip"
	"io"
	"net/textproto"
)

// Conn is one NNTP connection's line-oriented codec. It behaves
// exactly like a bare *textproto.Conn until Compression is enabled,
// at which point each multi-line body (dot-stuffing and terminating
// ".\r\n" included) is sent as one GZIP stream whose decompression
// equals the uncompressed protocol verbatim.
type Conn struct {
	*textproto.Conn
	rw          io.ReadWriteCloser
	Compression bool
}

// New wraps rw (typically a net.Conn, possibly already TLS-upgraded)
// in a line-framing codec.
func New(rw io.ReadWriteCloser) *Conn {
	return &Conn{Conn: textproto.NewConn(rw), rw: rw}
}

// Rebind replaces the underlying stream, used after a STARTTLS
// handshake swaps the raw net.Conn for a *tls.Conn in place.
func (c *Conn) Rebind(rw io.ReadWriteCloser) {
	c.rw = rw
	c.Conn = textproto.NewConn(rw)
}

// MultiLineWriter returns a writer for one multi-line response body.
// Callers write the body (without the terminator) and must Close it,
// which emits the dot-terminator and, if compression is negotiated,
// closes the GZIP frame.
func (c *Conn) MultiLineWriter() io.WriteCloser {
	if !c.Compression {
		return c.Conn.Writer.DotWriter()
	}
	gz := gzip.NewWriter(c.Conn.W)
	return &gzipDotWriter{
		enc: dotEncoder{w: gz},
		gz:  gz,
		buf: c.Conn.W,
	}
}

// gzipDotWriter compresses the dot-stuffed plaintext of one
// multi-line body into a single GZIP stream written raw to the
// socket; the peer decompresses until stream end and sees the plain
// dot-terminated protocol.
type gzipDotWriter struct {
	enc dotEncoder
	gz  *gzip.Writer
	buf *bufio.Writer
}

func (g *gzipDotWriter) Write(p []byte) (int, error) {
	return g.enc.Write(p)
}

func (g *gzipDotWriter) Close() error {
	if err := g.enc.Terminate(); err != nil {
		g.gz.Close()
		return err
	}
	if err := g.gz.Close(); err != nil {
		return err
	}
	return g.buf.Flush()
}

// dotEncoder applies the NNTP multi-line text conventions to a
// plaintext stream: bare LF becomes CRLF, and a line-initial '.' is
// doubled. Terminate ends the body with the lone-dot line.
type dotEncoder struct {
	w       io.Writer
	midLine bool // last byte written was not a line ending
	sawCR   bool
}

func (d *dotEncoder) Write(p []byte) (n int, err error) {
	for _, b := range p {
		switch b {
		case '\r':
			d.sawCR = true
			d.midLine = true
			if _, err = d.w.Write([]byte{'\r'}); err != nil {
				return
			}
		case '\n':
			if !d.sawCR {
				if _, err = d.w.Write([]byte{'\r'}); err != nil {
					return
				}
			}
			d.sawCR = false
			d.midLine = false
			if _, err = d.w.Write([]byte{'\n'}); err != nil {
				return
			}
		case '.':
			if !d.midLine {
				if _, err = d.w.Write([]byte{'.'}); err != nil {
					return
				}
			}
			d.sawCR = false
			d.midLine = true
			if _, err = d.w.Write([]byte{'.'}); err != nil {
				return
			}
		default:
			d.sawCR = false
			d.midLine = true
			if _, err = d.w.Write([]byte{b}); err != nil {
				return
			}
		}
		n++
	}
	return
}

// Terminate closes the body: an unfinished line is ended first, then
// the lone-dot terminator is written.
func (d *dotEncoder) Terminate() error {
	if d.midLine {
		if _, err := d.w.Write([]byte("\r\n")); err != nil {
			return err
		}
	}
	_, err := d.w.Write([]byte(".\r\n"))
	return err
}

// MultiLineReader returns a reader that unstuffs a dot-terminated
// body, decompressing the GZIP frame first if compression is
// negotiated. Used by tests and client-side consumers.
func (c *Conn) MultiLineReader() io.Reader {
	if !c.Compression {
		return c.Conn.Reader.DotReader()
	}
	gz, err := gzip.NewReader(c.Conn.R)
	if err != nil {
		return errorReader{err}
	}
	gz.Multistream(false)
	return textproto.NewReader(bufio.NewReader(gz)).DotReader()
}

type errorReader struct{ err error }

func (e errorReader) Read([]byte) (int, error) { return 0, e.err }

// PrintResponse writes one CRLF-terminated single-line response,
// e.g. "211 1 42 42 comp.test".
func (c *Conn) PrintResponse(format string, args ...interface{}) error {
	return c.PrintfLine(format, args...)
}

// ReadCommand splits one received command line into its
// case-preserved verb and the (trimmed) remainder.
func ReadCommand(line string) (verb, rest string) {
	line = trimCRLF(line)
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			return line[:i], trimLeadingSpace(line[i+1:])
		}
	}
	return line, ""
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\r' || s[len(s)-1] == '\n') {
		s = s[:len(s)-1]
	}
	return s
}

func trimLeadingSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	return s
}
