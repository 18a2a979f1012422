package nntp

import (
	"crypto/tls"
	"errors"
	"strings"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/auth"
	"github.com/nntparchive/nntpd/lib/poster"
)

// recvPost drives the InPost state: after 340 the session reads raw
// article bytes until the lone-dot terminator, then hands the
// unstuffed payload to the poster. No other command runs until the
// terminator or the stream ends.
func recvPost(c *session, rest string) error {
	if !c.state.CanPost {
		return ErrPostingNotPermitted
	}
	if err := c.printfLine("340 Send article to be posted"); err != nil {
		return err
	}
	raw, err := c.readArticleData()
	if err != nil {
		// transport died mid-article; nothing more to say
		return sessionClosed{}
	}
	err = c.srv.Poster.Post(c.ctx(), raw, c.state.Identity)
	switch {
	case err == nil:
		return c.printfLine("240 Article received OK")
	case errors.Is(err, poster.ErrPostingFailed):
		return ErrPostingFailed
	case errors.Is(err, poster.ErrControlNotPermitted):
		return ErrPermissionDenied
	default:
		c.logger().Error("post failed: ", err)
		return ErrBackendOffline
	}
}

// readArticleData accumulates CRLF lines up to the lone-dot
// terminator, unstuffing leading dots. The buffered line reader
// already handles a terminator split across TCP segments.
func (c *session) readArticleData() ([]byte, error) {
	var sb strings.Builder
	for {
		line, err := c.C.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "." {
			return []byte(sb.String()), nil
		}
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}
		sb.WriteString(line)
		sb.WriteString("\r\n")
	}
}

// handleAuthInfo implements the USER/PASS exchange. The password is
// everything after the PASS token rejoined with single spaces, so
// whitespace runs inside a password collapse; that quirk is kept for
// compatibility with existing clients.
func handleAuthInfo(c *session, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return ErrSyntax
	}
	if c.state.Identity != nil {
		return ErrNotAvailable
	}
	switch strings.ToUpper(fields[0]) {
	case "USER":
		c.state.PendingUser = fields[1]
		c.state.authStarted = true
		return c.printfLine("381 Password required")
	case "PASS":
		if !c.state.authStarted {
			return ErrAuthOutOfSequence
		}
		password := strings.Join(fields[1:], " ")
		admin, err := c.srv.Auth.Check(c.ctx(), c.state.PendingUser, password, c.conn.RemoteAddr())
		if errors.Is(err, auth.ErrBadCredentials) {
			c.state.authStarted = false
			c.state.PendingUser = ""
			return ErrAuthRejected
		}
		if err != nil {
			return err
		}
		c.state.Identity = admin
		c.state.PendingUser = ""
		c.state.CanPost = true
		log.WithFields(log.Fields{
			"pkg":      "nntp-conn",
			"addr":     c.conn.RemoteAddr(),
			"username": admin.Username,
		}).Info("session authenticated")
		return c.printfLine("281 Authentication accepted")
	default:
		return ErrSyntax
	}
}

// enableFeature handles the one supported extension:
// XFEATURE COMPRESS GZIP TERMINATOR.
func enableFeature(c *session, rest string) error {
	if !strings.EqualFold(strings.Join(strings.Fields(rest), " "), "COMPRESS GZIP TERMINATOR") {
		return ErrSyntax
	}
	if err := c.printfLine("290 feature enabled"); err != nil {
		return err
	}
	c.C.Compression = true
	return nil
}

// upgradeTLS handles STARTTLS on explicit-TLS listeners: respond,
// handshake, and rebind the codec over the encrypted stream.
func upgradeTLS(c *session, rest string) error {
	if c.tlsConfig == nil || c.state.TLS {
		return ErrNotAvailable
	}
	if err := c.printfLine("382 Continue with TLS negotiation"); err != nil {
		return err
	}
	tconn := tls.Server(c.conn, c.tlsConfig)
	if err := tconn.Handshake(); err != nil {
		c.logger().Warn("TLS handshake failed: ", err)
		return err
	}
	c.tlsConn = tconn
	c.C.Rebind(tconn)
	c.state.TLS = true
	return nil
}
