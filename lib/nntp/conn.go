package nntp

import (
	"context"
	"crypto/tls"
	"net"
	"strings"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/nntp/wire"
)

// handles one parsed command line; rest is the raw argument text
// after the verb
type commandHandler func(c *session, rest string) error

// commands is the process-wide verb table, built once and immutable
// for the lifetime of the process.
var commands = map[string]commandHandler{
	"CAPABILITIES": sendCapabilities,
	"DATE":         sendDate,
	"MODE":         switchMode,
	"GROUP":        selectGroup,
	"LISTGROUP":    listGroup,
	"LIST":         listNewsgroups,
	"NEWGROUPS":    listNewGroups,
	"ARTICLE":      sendArticle,
	"HEAD":         sendHead,
	"BODY":         sendBody,
	"STAT":         sendStat,
	"LAST":         moveLast,
	"NEXT":         moveNext,
	"HDR":          sendHdr,
	"XHDR":         sendXHdr,
	"OVER":         sendOver,
	"XOVER":        sendOver,
	"POST":         recvPost,
	"AUTHINFO":     handleAuthInfo,
	"XFEATURE":     enableFeature,
	"STARTTLS":     upgradeTLS,
	"QUIT":         quitSession,
}

// session is one inbound NNTP connection: the wire codec, the
// per-connection state machine, and references to the server's shared
// collaborators.
type session struct {
	srv *Server

	C         *wire.Conn
	conn      net.Conn
	tlsConn   *tls.Conn
	tlsConfig *tls.Config

	state ConnState
}

func newSession(srv *Server, c net.Conn, tlsConfig *tls.Config, tlsActive bool) *session {
	s := &session{
		srv:       srv,
		C:         wire.New(c),
		conn:      c,
		tlsConfig: tlsConfig,
	}
	s.state.Open = true
	s.state.TLS = tlsActive
	if tc, ok := c.(*tls.Conn); ok {
		s.tlsConn = tc
	}
	s.state.CanPost = srv.AllowAnonPosting
	return s
}

func (c *session) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"pkg":  "nntp-conn",
		"addr": c.conn.RemoteAddr(),
	})
}

func (c *session) printfLine(format string, args ...interface{}) error {
	log.WithFields(log.Fields{
		"pkg":  "nntp-conn",
		"addr": c.conn.RemoteAddr(),
		"io":   "send",
	}).Debugf(format, args...)
	return c.C.PrintfLine(format, args...)
}

func (c *session) readline() (line string, err error) {
	line, err = c.C.ReadLine()
	log.WithFields(log.Fields{
		"pkg":  "nntp-conn",
		"addr": c.conn.RemoteAddr(),
		"io":   "recv",
	}).Debug(line)
	return
}

// Close shuts the connection down unconditionally, TLS first when it
// is on.
func (c *session) Close() {
	if c.tlsConn != nil {
		c.tlsConn.Close()
	} else {
		c.conn.Close()
	}
	c.state.Open = false
}

// ctx returns the request context for store queries issued by this
// session's handlers.
func (c *session) ctx() context.Context {
	return context.Background()
}

// Process sends the greeting, then reads and dispatches commands
// until the peer quits or the stream breaks. Exactly one response is
// emitted per received command, including on error paths.
func (c *session) Process() {
	defer c.Close()

	greeting := lineGreetingNoPosting
	if c.state.CanPost {
		greeting = lineGreetingPosting
	}
	if err := c.printfLine(greeting); err != nil {
		return
	}

	for c.state.Open {
		line, err := c.readline()
		if err != nil {
			// transport gone; abandon silently
			return
		}
		verb, rest := wire.ReadCommand(line)
		handler, known := commands[strings.ToUpper(verb)]
		if !known {
			if err = c.printfLine("%d Unknown command", ErrUnknownCommand.Code); err != nil {
				return
			}
			continue
		}
		if err = c.dispatch(handler, rest); err != nil {
			return
		}
	}
}

// sessionClosed is returned by QUIT to stop the Process loop after
// the farewell has been written, and by POST when the stream breaks
// mid-article, so that no further response is written.
type sessionClosed struct{}

func (sessionClosed) Error() string { return "session closed" }

// dispatch runs one handler and translates its error into the
// command's single response. A nil return keeps the loop going; a
// non-nil return ends the session.
func (c *session) dispatch(handler commandHandler, rest string) error {
	err := handler(c, rest)
	switch e := err.(type) {
	case nil:
		return nil
	case *NNTPError:
		return c.printfLine("%d %s", e.Code, e.Msg)
	case sessionClosed:
		return e
	default:
		c.logger().Error("handler failed: ", err)
		if werr := c.printfLine("%d %s", ErrBackendOffline.Code, ErrBackendOffline.Msg); werr != nil {
			return werr
		}
		return nil
	}
}
