package listener

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nntparchive/nntpd/lib/auth"
	"github.com/nntparchive/nntpd/lib/cache"
	"github.com/nntparchive/nntpd/lib/config"
	"github.com/nntparchive/nntpd/lib/nntp"
	"github.com/nntparchive/nntpd/lib/poster"
	"github.com/nntparchive/nntpd/lib/retriever"
	"github.com/nntparchive/nntpd/lib/store"
)

func newTestServer(t *testing.T) *nntp.Server {
	t.Helper()
	ms := store.NewMemoryStore()
	c := cache.New(cache.DefaultConfig())
	t.Cleanup(c.Close)
	return &nntp.Server{
		Name:             "news.example.com",
		Retriever:        retriever.New(ms, c),
		Poster:           poster.New(ms, c, "news.example.com"),
		Auth:             auth.New(ms),
		AllowAnonPosting: true,
	}
}

func TestListenerServesAndDrains(t *testing.T) {
	// grab an ephemeral port for the listener to bind
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := probe.Addr().String()
	probe.Close()

	l := New(newTestServer(t), 4, []config.ListenerConfig{
		{Name: "test", Bind: addr, Transport: TransportCleartext},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.ListenAndServe(ctx) }()

	// the bind races the dial; retry briefly
	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	greeting, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(greeting, "200 ") {
		t.Fatalf("greeting: %q %v", greeting, err)
	}
	if _, err := conn.Write([]byte("QUIT\r\n")); err != nil {
		t.Fatal(err)
	}
	farewell, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(farewell, "205") {
		t.Fatalf("farewell: %q %v", farewell, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not drain after cancellation")
	}
	if l.AcceptErrors() != 0 {
		t.Fatalf("unexpected accept errors: %d", l.AcceptErrors())
	}
}
