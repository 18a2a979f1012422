// Package store defines the persistence contract the protocol core
// consumes and a Postgres-backed implementation of it. The core never
// touches SQL directly; everything goes through Store.
package store

import (
	"context"
	"errors"

	"github.com/nntparchive/nntpd/lib/model"
)

// ErrNoSuchArticle, ErrNoSuchNewsgroup are sentinel misses returned by
// the lookup methods instead of a typed zero value, so the retriever
// can distinguish "not found" from a real backend failure.
var (
	ErrNoSuchArticle       = errors.New("store: no such article")
	ErrNoSuchNewsgroup     = errors.New("store: no such newsgroup")
	ErrNoSuchAdministrator = errors.New("store: no such administrator")
)

// VisibilityFilter narrows a number/range lookup to a single
// visibility partition; it mirrors model.Visibility but is spelled
// out here since the store layer must not import query-construction
// helpers from the retriever.
type VisibilityFilter struct {
	Cancelled bool
	Pending   bool
}

// NewsgroupQuery narrows ListNewsgroups.
type NewsgroupQuery struct {
	// NameWildmat is not read by either store implementation; name
	// filtering happens in the caller.
	NameWildmat  string
	CreatedSince *int64 // unix seconds, nil means no lower bound
}

// Store is the persistence contract the protocol core depends on.
// Implementations must index message-id unique, (group, number)
// unique, (group, cancelled, pending, number), newsgroup name unique
// and username unique.
type Store interface {
	GetNewsgroupByName(ctx context.Context, name model.NewsgroupName) (*model.Newsgroup, error)

	// GetArticleByMessageID eager-loads the Article and the
	// ArticleNewsgroup link(s) it participates in.
	GetArticleByMessageID(ctx context.Context, id model.MessageID) (*model.Article, []*model.ArticleNewsgroup, error)

	GetArticleByNumber(ctx context.Context, group model.NewsgroupName, number int64, vis VisibilityFilter) (*model.Article, *model.ArticleNewsgroup, error)

	// ListArticlesInRange returns links ordered by Number ascending,
	// capped at max results, restricted to [lo, hi].
	ListArticlesInRange(ctx context.Context, group model.NewsgroupName, lo, hi int64, max int, vis VisibilityFilter) ([]*model.ArticleNewsgroup, error)

	ListNewsgroups(ctx context.Context, q NewsgroupQuery) ([]*model.Newsgroup, error)

	// InsertArticle persists the article and all of its group links
	// atomically. Number fields in links must already be assigned
	// under per-group serialization before this is called (see
	// lib/poster); the store is not responsible for the max+1 rule.
	InsertArticle(ctx context.Context, a *model.Article, links []*model.ArticleNewsgroup) error

	// UpdateArticleNewsgroup persists a mutated link (cancel/approve).
	UpdateArticleNewsgroup(ctx context.Context, link *model.ArticleNewsgroup) error

	// NextNumber atomically reserves the next Number for a group,
	// i.e. max(Number)+1 defaulting to 1. Implementations must
	// serialize this per group (see DESIGN.md).
	NextNumber(ctx context.Context, group model.NewsgroupName) (int64, error)

	ListAdministrators(ctx context.Context) ([]*model.Administrator, error)
	GetAdministratorByUsername(ctx context.Context, username string) (*model.Administrator, error)

	// UpsertNewsgroup creates or updates a Newsgroup row (newgroup and
	// checkgroups control actions); DeleteNewsgroup removes one
	// (rmgroup).
	UpsertNewsgroup(ctx context.Context, g *model.Newsgroup) error
	DeleteNewsgroup(ctx context.Context, name model.NewsgroupName) error
}
