package cache

import (
	"sync/atomic"
	"time"

	"github.com/nntparchive/nntpd/lib/model"
)

// GetArticleByMessageID returns the cached article and its link,
// touching the entry's last-access time. A false ok means miss or
// expired.
func (c *Cache) GetArticleByMessageID(id model.MessageID) (a *model.Article, link *model.ArticleNewsgroup, ok bool) {
	c.mu.RLock()
	e, found := c.byMsgID[id]
	c.mu.RUnlock()
	if !found {
		return nil, nil, false
	}
	if e.expired(time.Now(), c.cfg.TTL) {
		return nil, nil, false
	}
	e.touch(time.Now())
	return e.article, e.link, true
}

// GetArticleByNumber returns the cached article and link for
// (group, number).
func (c *Cache) GetArticleByNumber(group model.NewsgroupName, number int64) (a *model.Article, link *model.ArticleNewsgroup, ok bool) {
	c.mu.RLock()
	e, found := c.byNumber[numberKey{group, number}]
	c.mu.RUnlock()
	if !found {
		return nil, nil, false
	}
	if e.expired(time.Now(), c.cfg.TTL) {
		return nil, nil, false
	}
	e.touch(time.Now())
	return e.article, e.link, true
}

// GetNewsgroup returns the cached Newsgroup for name.
func (c *Cache) GetNewsgroup(name model.NewsgroupName) (g *model.Newsgroup, ok bool) {
	c.mu.RLock()
	e, found := c.byGroup[name]
	c.mu.RUnlock()
	if !found {
		return nil, false
	}
	if e.expired(time.Now(), c.cfg.TTL) {
		return nil, false
	}
	e.touch(time.Now())
	return e.group, true
}

// CacheArticle inserts (or refreshes) the article and its link in both
// the message-id and (group, number) indexes, keyed by the link's
// ArticleID/Newsgroup/Number fields. The entry's byte cost is the raw
// header plus body length plus a fixed per-entry overhead.
func (c *Cache) CacheArticle(a *model.Article, link *model.ArticleNewsgroup) {
	now := time.Now()
	size := estimateArticleSize(a)
	e := &articleEntry{link: link, article: a, size: size, insertedAt: now}
	e.touch(now)

	c.mu.Lock()
	if old, ok := c.byMsgID[link.ArticleID]; ok {
		atomic.AddInt64(&c.totalSize, -old.size)
	}
	c.byMsgID[link.ArticleID] = e
	c.byNumber[numberKey{link.Newsgroup, link.Number}] = e
	c.mu.Unlock()

	atomic.AddInt64(&c.totalSize, size)
	c.maybeEvict()
}

// CacheNewsgroup inserts (or refreshes) g in the group-name index.
func (c *Cache) CacheNewsgroup(g *model.Newsgroup) {
	now := time.Now()
	size := estimateGroupSize(g)
	e := &groupEntry{group: g, size: size, insertedAt: now}
	e.touch(now)

	c.mu.Lock()
	if old, ok := c.byGroup[g.Name]; ok {
		atomic.AddInt64(&c.totalSize, -old.size)
	}
	c.byGroup[g.Name] = e
	c.mu.Unlock()

	atomic.AddInt64(&c.totalSize, size)
	c.maybeEvict()
}

// InvalidateArticle removes id from the message-id index and its
// corresponding (group, number) entry. Callers must invalidate after
// a cancel, a post, or a moderation approval.
func (c *Cache) InvalidateArticle(id model.MessageID) {
	c.mu.Lock()
	e, ok := c.byMsgID[id]
	if ok {
		delete(c.byMsgID, id)
		delete(c.byNumber, numberKey{e.link.Newsgroup, e.link.Number})
	}
	c.mu.Unlock()
	if ok {
		atomic.AddInt64(&c.totalSize, -e.size)
	}
}

// InvalidateNewsgroup removes name from the group-name index, used
// when a group's watermarks change.
func (c *Cache) InvalidateNewsgroup(name model.NewsgroupName) {
	c.mu.Lock()
	e, ok := c.byGroup[name]
	if ok {
		delete(c.byGroup, name)
	}
	c.mu.Unlock()
	if ok {
		atomic.AddInt64(&c.totalSize, -e.size)
	}
}

// TotalSize returns the current estimated total byte cost of all
// cached entries, for tests and diagnostics.
func (c *Cache) TotalSize() int64 {
	return atomic.LoadInt64(&c.totalSize)
}
