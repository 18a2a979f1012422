// Package listener binds the configured ports (cleartext, implicit
// TLS, explicit TLS), bounds concurrent sessions with a semaphore,
// and hands accepted connections to the protocol server.
package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/config"
	"github.com/nntparchive/nntpd/lib/nntp"
)

const (
	TransportCleartext   = "cleartext"
	TransportImplicitTLS = "implicit-tls"
	TransportExplicitTLS = "explicit-tls"
)

// Listener runs one accept loop per configured port against a shared
// session semaphore.
type Listener struct {
	srv  *nntp.Server
	cfgs []config.ListenerConfig
	sem  chan struct{}

	acceptErrors int64

	mu        sync.Mutex
	listeners []net.Listener
	sessions  sync.WaitGroup
}

// New sizes the session semaphore at maxSessions (defaulting to 1000
// when unset) over the given port configurations.
func New(srv *nntp.Server, maxSessions int, cfgs []config.ListenerConfig) *Listener {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	return &Listener{
		srv:  srv,
		cfgs: cfgs,
		sem:  make(chan struct{}, maxSessions),
	}
}

func (l *Listener) logger() *log.Entry {
	return log.WithFields(log.Fields{"pkg": "listener"})
}

// AcceptErrors returns the count of non-cancellation accept failures,
// for diagnostics.
func (l *Listener) AcceptErrors() int64 {
	return atomic.LoadInt64(&l.acceptErrors)
}

// ListenAndServe binds every configured port and serves until ctx is
// cancelled, then closes the listeners and waits for in-flight
// sessions to finish.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, cfg := range l.cfgs {
		tlsConfig, err := loadTLS(cfg)
		if err != nil {
			return err
		}
		nl, err := net.Listen("tcp", cfg.Bind)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.listeners = append(l.listeners, nl)
		l.mu.Unlock()
		l.logger().WithFields(log.Fields{
			"name":      cfg.Name,
			"bind":      cfg.Bind,
			"transport": cfg.Transport,
		}).Info("listening")

		wg.Add(1)
		go func(cfg config.ListenerConfig, nl net.Listener, tlsConfig *tls.Config) {
			defer wg.Done()
			l.acceptLoop(ctx, cfg, nl, tlsConfig)
		}(cfg, nl, tlsConfig)
	}

	<-ctx.Done()
	l.mu.Lock()
	for _, nl := range l.listeners {
		nl.Close()
	}
	l.mu.Unlock()
	wg.Wait()
	l.sessions.Wait()
	return nil
}

func loadTLS(cfg config.ListenerConfig) (*tls.Config, error) {
	switch cfg.Transport {
	case TransportCleartext, "":
		return nil, nil
	case TransportImplicitTLS, TransportExplicitTLS:
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, err
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			ServerName:   cfg.ServerName,
		}, nil
	default:
		return nil, errors.New("listener: unknown transport " + cfg.Transport)
	}
}

// acceptLoop acquires a semaphore slot, accepts one connection, and
// hands it to a session goroutine that releases the slot when the
// session ends. Accept errors other than cancellation are logged and
// counted; the loop keeps going.
func (l *Listener) acceptLoop(ctx context.Context, cfg config.ListenerConfig, nl net.Listener, tlsConfig *tls.Config) {
	for {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		c, err := nl.Accept()
		if err != nil {
			<-l.sem
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			atomic.AddInt64(&l.acceptErrors, 1)
			l.logger().WithFields(log.Fields{"bind": cfg.Bind}).Error("accept failed: ", err)
			continue
		}

		l.sessions.Add(1)
		go func(c net.Conn) {
			defer func() {
				<-l.sem
				l.sessions.Done()
			}()
			l.handle(ctx, cfg, c, tlsConfig)
		}(c)
	}
}

func (l *Listener) handle(ctx context.Context, cfg config.ListenerConfig, c net.Conn, tlsConfig *tls.Config) {
	tlsActive := false
	if cfg.Transport == TransportImplicitTLS {
		tconn := tls.Server(c, tlsConfig)
		if err := tconn.Handshake(); err != nil {
			// no response on a broken handshake, just drop
			l.logger().WithFields(log.Fields{
				"addr": c.RemoteAddr(),
			}).Warn("implicit TLS handshake failed: ", err)
			c.Close()
			return
		}
		c = tconn
		tlsActive = true
	}
	var starttls *tls.Config
	if cfg.Transport == TransportExplicitTLS {
		starttls = tlsConfig
	}
	l.srv.ServeConn(ctx, c, starttls, tlsActive)
}
