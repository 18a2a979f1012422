// Package retriever is the read path the command handlers use: it
// resolves articles and newsgroups cache-first, applies the metagroup
// visibility filters at query-construction time, and exposes the bulk
// range reads LISTGROUP and OVER need.
package retriever

import (
	"context"
	"errors"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/cache"
	"github.com/nntparchive/nntpd/lib/model"
	"github.com/nntparchive/nntpd/lib/store"
)

// MaxScanResults caps bulk range reads so a single LISTGROUP or OVER
// over a huge group cannot hold a session for an unbounded scan.
const MaxScanResults = 100000

var (
	ErrNoSuchArticle   = store.ErrNoSuchArticle
	ErrNoSuchNewsgroup = store.ErrNoSuchNewsgroup
)

// Retriever resolves reads through the cache, falling back to the
// store and populating the cache on miss. It is safe for concurrent
// use by many sessions.
type Retriever struct {
	store store.Store
	cache *cache.Cache
}

func New(s store.Store, c *cache.Cache) *Retriever {
	return &Retriever{store: s, cache: c}
}

func (r *Retriever) logger() *log.Entry {
	return log.WithFields(log.Fields{"pkg": "retriever"})
}

func visibilityFilter(vis model.Visibility) store.VisibilityFilter {
	switch vis {
	case model.VisibilityCancelled:
		return store.VisibilityFilter{Cancelled: true}
	case model.VisibilityPending:
		return store.VisibilityFilter{Pending: true}
	default:
		return store.VisibilityFilter{}
	}
}

// ArticleByMessageID resolves an article by its message-id, cache
// first. Only links visible under the default filter qualify; a
// message-id whose every link is cancelled or pending behaves as
// not found.
func (r *Retriever) ArticleByMessageID(ctx context.Context, id model.MessageID) (*model.Article, *model.ArticleNewsgroup, error) {
	if a, link, ok := r.cache.GetArticleByMessageID(id); ok {
		if !link.Visible() {
			return nil, nil, ErrNoSuchArticle
		}
		return a, link, nil
	}
	a, links, err := r.store.GetArticleByMessageID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for _, link := range links {
		if link.Visible() {
			r.cache.CacheArticle(a, link)
			return a, link, nil
		}
	}
	return nil, nil, ErrNoSuchArticle
}

// ArticleByNumber resolves (group, number), applying the metagroup
// suffix of the requested name as the visibility filter.
func (r *Retriever) ArticleByNumber(ctx context.Context, group model.NewsgroupName, number int64) (*model.Article, *model.ArticleNewsgroup, error) {
	real, vis := group.SplitMetagroup()
	if vis == model.VisibilityNormal {
		if a, link, ok := r.cache.GetArticleByNumber(real, number); ok {
			if !link.Visible() {
				return nil, nil, ErrNoSuchArticle
			}
			return a, link, nil
		}
	}
	a, link, err := r.store.GetArticleByNumber(ctx, real, number, visibilityFilter(vis))
	if err != nil {
		return nil, nil, err
	}
	if vis == model.VisibilityNormal {
		r.cache.CacheArticle(a, link)
	}
	return a, link, nil
}

// Newsgroup resolves a group by name, cache first. Metagroup names
// resolve to the real group; the handler is responsible for deciding
// whether the caller may see the metagroup view at all.
func (r *Retriever) Newsgroup(ctx context.Context, name model.NewsgroupName) (*model.Newsgroup, error) {
	real, _ := name.SplitMetagroup()
	if g, ok := r.cache.GetNewsgroup(real); ok {
		return g, nil
	}
	g, err := r.store.GetNewsgroupByName(ctx, real)
	if err != nil {
		return nil, err
	}
	r.cache.CacheNewsgroup(g)
	return g, nil
}

// ArticleRange returns the links of group in [lo, hi] in the partition
// its name selects (visible links, or cancelled/pending links for a
// metagroup name), ordered by Number ascending, capped at max (MaxScanResults if max <= 0).
// It bypasses the cache in both directions: bulk scans neither consult
// nor populate it.
func (r *Retriever) ArticleRange(ctx context.Context, group model.NewsgroupName, lo, hi int64, max int) ([]*model.ArticleNewsgroup, error) {
	real, vis := group.SplitMetagroup()
	if max <= 0 || max > MaxScanResults {
		max = MaxScanResults
	}
	if hi < lo {
		return nil, nil
	}
	links, err := r.store.ListArticlesInRange(ctx, real, lo, hi, max, visibilityFilter(vis))
	if err != nil {
		r.logger().WithFields(log.Fields{"group": group, "lo": lo, "hi": hi}).Error("range scan failed: ", err)
		return nil, err
	}
	return links, nil
}

// ArticleForLink loads the article payload behind a link returned by
// ArticleRange, going through the cache like a point lookup.
func (r *Retriever) ArticleForLink(ctx context.Context, link *model.ArticleNewsgroup) (*model.Article, error) {
	if a, cached, ok := r.cache.GetArticleByMessageID(link.ArticleID); ok && cached.Newsgroup == link.Newsgroup {
		return a, nil
	}
	a, _, err := r.store.GetArticleByMessageID(ctx, link.ArticleID)
	if err != nil {
		return nil, err
	}
	r.cache.CacheArticle(a, link)
	return a, nil
}

// NextArticle finds the numerically next link after number in group,
// for the NEXT command.
func (r *Retriever) NextArticle(ctx context.Context, group model.NewsgroupName, number int64) (*model.ArticleNewsgroup, error) {
	g, err := r.Newsgroup(ctx, group)
	if err != nil {
		return nil, err
	}
	links, err := r.ArticleRange(ctx, group, number+1, g.HighWatermark, 1)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrNoSuchArticle
	}
	return links[0], nil
}

// PrevArticle finds the numerically previous link before number in
// group, for the LAST command.
func (r *Retriever) PrevArticle(ctx context.Context, group model.NewsgroupName, number int64) (*model.ArticleNewsgroup, error) {
	if number <= 1 {
		return nil, ErrNoSuchArticle
	}
	links, err := r.ArticleRange(ctx, group, 1, number-1, 0)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrNoSuchArticle
	}
	return links[len(links)-1], nil
}

// ListNewsgroups lists groups, optionally restricted to those created
// at or after createdSince (unix seconds). Wildmat filtering happens
// in the caller, which compiles the pattern once per command.
func (r *Retriever) ListNewsgroups(ctx context.Context, createdSince *int64) ([]*model.Newsgroup, error) {
	return r.store.ListNewsgroups(ctx, store.NewsgroupQuery{CreatedSince: createdSince})
}

// ErrBadRange is returned by ParseRange for a malformed range
// argument; the LISTGROUP, OVER and HDR handlers answer it with a 501
// response.
var ErrBadRange = errors.New("retriever: malformed range")
