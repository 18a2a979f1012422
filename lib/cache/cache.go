// Package cache implements the concurrent lookup cache that sits in
// front of lib/store: three indexes (message-id, (group, number), and
// group-name), size-budgeted with last-access eviction and TTL
// expiry.
package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/model"
)

const (
	articleEntryOverhead   = 1024
	newsgroupEntryOverhead = 512
	evictFraction          = 0.10
)

// Config tunes the cache's size budget and expiry, loaded from
// lib/config.
type Config struct {
	MaxBytes    int64
	TTL         time.Duration
	SweepPeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBytes:    256 * 1024 * 1024,
		TTL:         15 * time.Minute,
		SweepPeriod: 5 * time.Minute,
	}
}

type articleEntry struct {
	link       *model.ArticleNewsgroup
	article    *model.Article
	size       int64
	insertedAt time.Time
	lastAccess int64 // unix nanos, atomic
}

func (e *articleEntry) touch(now time.Time) {
	atomic.StoreInt64(&e.lastAccess, now.UnixNano())
}

func (e *articleEntry) accessedAt() time.Time {
	return time.Unix(0, atomic.LoadInt64(&e.lastAccess))
}

func (e *articleEntry) expired(now time.Time, ttl time.Duration) bool {
	return now.After(e.insertedAt.Add(ttl))
}

type groupEntry struct {
	group      *model.Newsgroup
	size       int64
	insertedAt time.Time
	lastAccess int64
}

func (e *groupEntry) touch(now time.Time) {
	atomic.StoreInt64(&e.lastAccess, now.UnixNano())
}

func (e *groupEntry) accessedAt() time.Time {
	return time.Unix(0, atomic.LoadInt64(&e.lastAccess))
}

func (e *groupEntry) expired(now time.Time, ttl time.Duration) bool {
	return now.After(e.insertedAt.Add(ttl))
}

type numberKey struct {
	group  model.NewsgroupName
	number int64
}

// Cache is the concurrent, size-budgeted lookup cache in front of
// the store. It is safe for many concurrent readers and writers.
// Lookups take the read lock for one map access. Insertions,
// invalidations and the expiry sweep take the write lock; the sweep
// holds it while it scans every entry, and an over-budget insertion
// holds it while it sorts every entry to pick victims, so a lookup can
// wait for that whole pass.
type Cache struct {
	cfg Config

	mu       sync.RWMutex
	byMsgID  map[model.MessageID]*articleEntry
	byNumber map[numberKey]*articleEntry
	byGroup  map[model.NewsgroupName]*groupEntry

	totalSize int64 // atomic

	stop chan struct{}
	once sync.Once
}

func New(cfg Config) *Cache {
	def := DefaultConfig()
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.SweepPeriod <= 0 {
		cfg.SweepPeriod = def.SweepPeriod
	}
	c := &Cache{
		cfg:      cfg,
		byMsgID:  make(map[model.MessageID]*articleEntry),
		byNumber: make(map[numberKey]*articleEntry),
		byGroup:  make(map[model.NewsgroupName]*groupEntry),
		stop:     make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) logger() *log.Entry {
	return log.WithFields(log.Fields{"pkg": "cache"})
}

// Close stops the periodic expiry sweep. Safe to call once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop() {
	t := time.NewTicker(c.cfg.SweepPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()
	var freed int64
	c.mu.Lock()
	for id, e := range c.byMsgID {
		if e.expired(now, c.cfg.TTL) {
			delete(c.byMsgID, id)
			delete(c.byNumber, numberKey{e.link.Newsgroup, e.link.Number})
			freed += e.size
		}
	}
	for name, e := range c.byGroup {
		if e.expired(now, c.cfg.TTL) {
			delete(c.byGroup, name)
			freed += e.size
		}
	}
	c.mu.Unlock()
	if freed > 0 {
		atomic.AddInt64(&c.totalSize, -freed)
		c.logger().WithFields(log.Fields{"freed": freed}).Debug("swept expired cache entries")
	}
}

func estimateArticleSize(a *model.Article) int64 {
	if a == nil {
		return articleEntryOverhead
	}
	return articleEntryOverhead + int64(len(a.RawHeader)) + int64(len(a.Body))
}

func estimateGroupSize(g *model.Newsgroup) int64 {
	return newsgroupEntryOverhead + int64(len(g.Description))
}

// maybeEvict evicts the oldest ~10% of entries (by last access, across
// both article indexes and the group index together) if totalSize
// exceeds the configured budget. Called with no lock held; it takes
// its own lock.
func (c *Cache) maybeEvict() {
	if atomic.LoadInt64(&c.totalSize) <= c.cfg.MaxBytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	type victim struct {
		key        interface{}
		lastAccess time.Time
		size       int64
		isGroup    bool
	}
	victims := make([]victim, 0, len(c.byMsgID)+len(c.byGroup))
	for id, e := range c.byMsgID {
		victims = append(victims, victim{id, e.accessedAt(), e.size, false})
	}
	for name, e := range c.byGroup {
		victims = append(victims, victim{name, e.accessedAt(), e.size, true})
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].lastAccess.Before(victims[j].lastAccess) })

	n := int(float64(len(victims)) * evictFraction)
	if n == 0 && len(victims) > 0 {
		n = 1
	}
	var freed int64
	for i := 0; i < n && i < len(victims); i++ {
		v := victims[i]
		if v.isGroup {
			name := v.key.(model.NewsgroupName)
			delete(c.byGroup, name)
		} else {
			id := v.key.(model.MessageID)
			if e, ok := c.byMsgID[id]; ok {
				delete(c.byNumber, numberKey{e.link.Newsgroup, e.link.Number})
			}
			delete(c.byMsgID, id)
		}
		freed += v.size
	}
	if freed > 0 {
		atomic.AddInt64(&c.totalSize, -freed)
	}
}
