package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/auth"
	"github.com/nntparchive/nntpd/lib/cache"
	"github.com/nntparchive/nntpd/lib/config"
	"github.com/nntparchive/nntpd/lib/listener"
	"github.com/nntparchive/nntpd/lib/nntp"
	"github.com/nntparchive/nntpd/lib/poster"
	"github.com/nntparchive/nntpd/lib/retriever"
	"github.com/nntparchive/nntpd/lib/store"
)

func main() {
	log.Info("starting up nntpd...")
	cfgFname := "nntpd.toml"
	if len(os.Args) > 1 {
		cfgFname = os.Args[1]
	}
	conf, err := config.Ensure(cfgFname)
	if err != nil {
		log.Fatal(err)
	}

	if conf.Log == "debug" {
		log.SetLevel(log.DebugLevel)
	}

	if conf.Store.DSN == "" {
		log.Fatal("no article store configured")
	}
	db, err := store.NewPostgresStore(conf.Store.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	c := cache.New(cache.Config{
		MaxBytes:    conf.Cache.MaxBytes,
		TTL:         conf.Cache.TTL,
		SweepPeriod: conf.Cache.SweepPeriod,
	})
	defer c.Close()

	if len(conf.Listeners) == 0 {
		log.Fatal("no listeners configured")
	}
	serverName := conf.Listeners[0].ServerName

	p := poster.New(db, c, serverName)
	if conf.Store.BlobDir != "" {
		blobs, err := store.NewFilesystemBlobStore(conf.Store.BlobDir)
		if err != nil {
			log.Fatal(err)
		}
		p = p.WithBlobStore(blobs)
	}

	srv := &nntp.Server{
		Name:             serverName,
		Retriever:        retriever.New(db, c),
		Poster:           p,
		Auth:             auth.New(db),
		AllowAnonPosting: true,
	}

	ctx, stop := context.WithCancel(context.Background())
	l := listener.New(srv, conf.MaxSessions, conf.Listeners)

	done := make(chan error, 1)
	go func() {
		done <- l.ListenAndServe(ctx)
	}()

	// SIGHUP reloads the config in place; SIGINT/SIGTERM stop the
	// accept loops and let in-flight sessions drain
	sigchnl := make(chan os.Signal, 1)
	signal.Notify(sigchnl, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case s := <-sigchnl:
			if s == syscall.SIGHUP {
				if err := conf.Reload(); err != nil {
					log.Error("config reload failed: ", err)
					continue
				}
				log.Infof("reloading config: %s", cfgFname)
				if conf.Log == "debug" {
					log.SetLevel(log.DebugLevel)
				} else {
					log.SetLevel(log.InfoLevel)
				}
				continue
			}
			log.Infof("received %s, shutting down", s)
			stop()
		case err := <-done:
			if err != nil {
				log.Fatal(err)
			}
			log.Info("shutdown complete")
			return
		}
	}
}
