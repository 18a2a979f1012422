package auth

import (
	"context"
	"net"
	"testing"

	"github.com/nntparchive/nntpd/lib/model"
	"github.com/nntparchive/nntpd/lib/store"
)

func tcpAddr(t *testing.T, s string) net.Addr {
	t.Helper()
	a, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func seedAdmin(t *testing.T, ms *store.MemoryStore, username, password string, localOnly bool) {
	t.Helper()
	hash, err := HashCredential(password)
	if err != nil {
		t.Fatal(err)
	}
	ms.PutAdministrator(&model.Administrator{
		Username:                username,
		CredentialHash:          hash,
		LocalAuthenticationOnly: localOnly,
	})
}

func TestCheckAcceptsValidCredentials(t *testing.T) {
	ms := store.NewMemoryStore()
	seedAdmin(t, ms, "alice", "hunter2", false)
	a := New(ms)

	admin, err := a.Check(context.Background(), "alice", "hunter2", tcpAddr(t, "203.0.113.9:54321"))
	if err != nil || admin.Username != "alice" {
		t.Fatalf("expected success, got %v %v", admin, err)
	}
}

func TestCheckRejectsWrongPasswordAndUnknownUser(t *testing.T) {
	ms := store.NewMemoryStore()
	seedAdmin(t, ms, "alice", "hunter2", false)
	a := New(ms)
	remote := tcpAddr(t, "203.0.113.9:54321")

	if _, err := a.Check(context.Background(), "alice", "wrong", remote); err != ErrBadCredentials {
		t.Fatalf("wrong password: expected ErrBadCredentials, got %v", err)
	}
	if _, err := a.Check(context.Background(), "nobody", "hunter2", remote); err != ErrBadCredentials {
		t.Fatalf("unknown user: expected ErrBadCredentials, got %v", err)
	}
}

func TestCheckLocalOnlyPrincipal(t *testing.T) {
	ms := store.NewMemoryStore()
	seedAdmin(t, ms, "op", "secret", true)
	a := New(ms)

	if _, err := a.Check(context.Background(), "op", "secret", tcpAddr(t, "203.0.113.9:54321")); err != ErrBadCredentials {
		t.Fatalf("remote peer must be rejected for local-only principal, got %v", err)
	}
	if _, err := a.Check(context.Background(), "op", "secret", tcpAddr(t, "127.0.0.1:54321")); err != nil {
		t.Fatalf("loopback peer must be accepted, got %v", err)
	}
	if _, err := a.Check(context.Background(), "op", "secret", tcpAddr(t, "[::1]:54321")); err != nil {
		t.Fatalf("v6 loopback peer must be accepted, got %v", err)
	}
}
