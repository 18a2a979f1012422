package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nntparchive/nntpd/lib/model"
)

// MemoryStore is an in-memory Store used by the rest of the tree's
// tests; it implements the full contract without a database so
// lib/retriever, lib/cache and lib/poster can be exercised without a
// live Postgres instance.
type MemoryStore struct {
	mu     sync.Mutex
	groups map[model.NewsgroupName]*model.Newsgroup
	arts   map[model.MessageID]*model.Article
	links  map[model.NewsgroupName]map[int64]*model.ArticleNewsgroup
	admins map[string]*model.Administrator
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(map[model.NewsgroupName]*model.Newsgroup),
		arts:   make(map[model.MessageID]*model.Article),
		links:  make(map[model.NewsgroupName]map[int64]*model.ArticleNewsgroup),
		admins: make(map[string]*model.Administrator),
	}
}

func (m *MemoryStore) GetNewsgroupByName(ctx context.Context, name model.NewsgroupName) (*model.Newsgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[name]
	if !ok {
		return nil, ErrNoSuchNewsgroup
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryStore) GetArticleByMessageID(ctx context.Context, id model.MessageID) (*model.Article, []*model.ArticleNewsgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.arts[id]
	if !ok {
		return nil, nil, ErrNoSuchArticle
	}
	var links []*model.ArticleNewsgroup
	for _, byNum := range m.links {
		for _, l := range byNum {
			if l.ArticleID == id {
				cp := *l
				links = append(links, &cp)
			}
		}
	}
	return a, links, nil
}

func (m *MemoryStore) GetArticleByNumber(ctx context.Context, group model.NewsgroupName, number int64, vis VisibilityFilter) (*model.Article, *model.ArticleNewsgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNum, ok := m.links[group]
	if !ok {
		return nil, nil, ErrNoSuchArticle
	}
	l, ok := byNum[number]
	if !ok || l.Cancelled != vis.Cancelled || l.Pending != vis.Pending {
		return nil, nil, ErrNoSuchArticle
	}
	a, ok := m.arts[l.ArticleID]
	if !ok {
		return nil, nil, ErrNoSuchArticle
	}
	cp := *l
	return a, &cp, nil
}

func (m *MemoryStore) ListArticlesInRange(ctx context.Context, group model.NewsgroupName, lo, hi int64, max int, vis VisibilityFilter) ([]*model.ArticleNewsgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNum, ok := m.links[group]
	if !ok {
		return nil, nil
	}
	var nums []int64
	for n, l := range byNum {
		if n < lo || n > hi {
			continue
		}
		if l.Cancelled != vis.Cancelled || l.Pending != vis.Pending {
			continue
		}
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	if max > 0 && len(nums) > max {
		nums = nums[:max]
	}
	out := make([]*model.ArticleNewsgroup, 0, len(nums))
	for _, n := range nums {
		cp := *byNum[n]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) ListNewsgroups(ctx context.Context, q NewsgroupQuery) ([]*model.Newsgroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Newsgroup
	for _, g := range m.groups {
		if q.CreatedSince != nil && g.CreateDate.Unix() < *q.CreatedSince {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) InsertArticle(ctx context.Context, a *model.Article, links []*model.ArticleNewsgroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arts[a.MessageID] = a
	for _, l := range links {
		if m.links[l.Newsgroup] == nil {
			m.links[l.Newsgroup] = make(map[int64]*model.ArticleNewsgroup)
		}
		cp := *l
		m.links[l.Newsgroup][l.Number] = &cp
		if g, ok := m.groups[l.Newsgroup]; ok {
			g.PostCount++
			if g.LowWatermark == 0 || l.Number < g.LowWatermark {
				g.LowWatermark = l.Number
			}
			if l.Number > g.HighWatermark {
				g.HighWatermark = l.Number
			}
		}
	}
	return nil
}

func (m *MemoryStore) UpdateArticleNewsgroup(ctx context.Context, link *model.ArticleNewsgroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNum, ok := m.links[link.Newsgroup]
	if !ok {
		return ErrNoSuchArticle
	}
	cp := *link
	byNum[link.Number] = &cp
	return nil
}

func (m *MemoryStore) NextNumber(ctx context.Context, group model.NewsgroupName) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNum := m.links[group]
	var max int64
	for n := range byNum {
		if n > max {
			max = n
		}
	}
	// reserve the number on the group row, so a second call made before
	// the first caller's InsertArticle cannot hand out the same number
	if g, ok := m.groups[group]; ok {
		if g.HighWatermark > max {
			max = g.HighWatermark
		}
		g.HighWatermark = max + 1
	}
	return max + 1, nil
}

func (m *MemoryStore) ListAdministrators(ctx context.Context) ([]*model.Administrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Administrator, 0, len(m.admins))
	for _, a := range m.admins {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) GetAdministratorByUsername(ctx context.Context, username string) (*model.Administrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[username]
	if !ok {
		return nil, ErrNoSuchAdministrator
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) UpsertNewsgroup(ctx context.Context, g *model.Newsgroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.groups[g.Name] = &cp
	return nil
}

func (m *MemoryStore) DeleteNewsgroup(ctx context.Context, name model.NewsgroupName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, name)
	return nil
}

// PutAdministrator is a test helper for seeding principals directly.
func (m *MemoryStore) PutAdministrator(a *model.Administrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[a.Username] = a
}

var _ Store = (*MemoryStore)(nil)
