package nntp

import (
	"context"
	"crypto/tls"
	"net"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/auth"
	"github.com/nntparchive/nntpd/lib/poster"
	"github.com/nntparchive/nntpd/lib/retriever"
)

// Server holds the shared collaborators every session runs against.
// It carries no per-connection state; sessions are created per
// accepted connection by ServeConn.
type Server struct {
	// name of this server; sessions do not read it (the poster is
	// given the name when it is constructed)
	Name string
	// read path for all article and group lookups
	Retriever *retriever.Retriever
	// accept pipeline for POST
	Poster *poster.Poster
	// credential checker for AUTHINFO
	Auth *auth.Authenticator
	// allow POST without authentication
	AllowAnonPosting bool
}

// ServeConn runs one NNTP session over an accepted connection until
// the peer quits, the stream breaks, or ctx is cancelled. tlsConfig
// enables STARTTLS when non-nil; tlsActive marks a stream already
// handshaken by an implicit-TLS listener.
func (s *Server) ServeConn(ctx context.Context, c net.Conn, tlsConfig *tls.Config, tlsActive bool) {
	sess := newSession(s, c, tlsConfig, tlsActive)

	// honor shutdown by closing the stream out from under the
	// blocked reader
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-done:
		}
	}()

	log.WithFields(log.Fields{
		"pkg":  "nntp-server",
		"addr": c.RemoteAddr(),
	}).Debug("handling inbound connection")
	sess.Process()
}
