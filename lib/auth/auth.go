// Package auth verifies AUTHINFO credentials against the
// administrator table, using bcrypt hashes so no plaintext or
// hand-rolled salted digest ever touches the store.
package auth

import (
	"context"
	"errors"
	"net"

	log "github.com/Sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/nntparchive/nntpd/lib/model"
	"github.com/nntparchive/nntpd/lib/store"
)

// ErrBadCredentials is the single rejection returned for an unknown
// username, a wrong password, or a principal restricted to loopback
// authenticating from elsewhere; callers must not leak which check
// failed.
var ErrBadCredentials = errors.New("auth: bad credentials")

// Authenticator checks username/password pairs for the AUTHINFO
// handler.
type Authenticator struct {
	store store.Store
}

func New(s store.Store) *Authenticator {
	return &Authenticator{store: s}
}

func (a *Authenticator) logger() *log.Entry {
	return log.WithFields(log.Fields{"pkg": "auth"})
}

// Check verifies the credential pair and, when the matched principal
// is restricted to local authentication, that remote is a loopback
// address. On success the full Administrator record is returned for
// the session to carry as its identity.
func (a *Authenticator) Check(ctx context.Context, username, password string, remote net.Addr) (*model.Administrator, error) {
	admin, err := a.store.GetAdministratorByUsername(ctx, username)
	if err != nil {
		// burn a comparison anyway so a missing username costs the
		// same as a wrong password
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(admin.CredentialHash, []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	if admin.LocalAuthenticationOnly && !isLoopback(remote) {
		a.logger().WithFields(log.Fields{
			"username": username,
			"addr":     remote,
		}).Warn("local-only principal rejected from remote address")
		return nil, ErrBadCredentials
	}
	return admin, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("nntpd-no-such-user"), bcrypt.MinCost)

// HashCredential produces the bcrypt hash stored in the administrator
// table, used by provisioning tooling and tests.
func HashCredential(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func isLoopback(addr net.Addr) bool {
	if addr == nil {
		return false
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
