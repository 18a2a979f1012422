package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/nntparchive/nntpd/lib/model"
)

func testArticle(id model.MessageID) *model.Article {
	return &model.Article{
		MessageID: id,
		RawHeader: "Message-Id: " + id.String() + "\r\n",
		Body:      []byte("hello\r\n"),
	}
}

func TestCacheArticleHitMiss(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	if _, _, ok := c.GetArticleByMessageID("<a@x>"); ok {
		t.Fatal("expected miss before insertion")
	}

	link := &model.ArticleNewsgroup{ArticleID: "<a@x>", Newsgroup: "overchan.test", Number: 1}
	c.CacheArticle(testArticle("<a@x>"), link)

	a, got, ok := c.GetArticleByMessageID("<a@x>")
	if !ok || got.Number != 1 || a == nil || a.MessageID != "<a@x>" {
		t.Fatalf("expected hit, got %v %v %v", a, got, ok)
	}

	_, got, ok = c.GetArticleByNumber("overchan.test", 1)
	if !ok || got.ArticleID != "<a@x>" {
		t.Fatalf("expected positional hit, got %v %v", got, ok)
	}
}

func TestCacheInvalidateArticle(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	link := &model.ArticleNewsgroup{ArticleID: "<a@x>", Newsgroup: "overchan.test", Number: 1}
	c.CacheArticle(testArticle("<a@x>"), link)
	c.InvalidateArticle("<a@x>")

	if _, _, ok := c.GetArticleByMessageID("<a@x>"); ok {
		t.Fatal("expected miss after invalidation")
	}
	if _, _, ok := c.GetArticleByNumber("overchan.test", 1); ok {
		t.Fatal("expected positional miss after invalidation")
	}
}

func TestCacheNewsgroupInvalidation(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	g := &model.Newsgroup{Name: "overchan.test"}
	c.CacheNewsgroup(g)
	if _, ok := c.GetNewsgroup("overchan.test"); !ok {
		t.Fatal("expected hit")
	}
	c.InvalidateNewsgroup("overchan.test")
	if _, ok := c.GetNewsgroup("overchan.test"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestCacheSizeBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBytes = 4096 // small budget to force eviction quickly
	c := New(cfg)
	defer c.Close()

	for i := int64(0); i < 200; i++ {
		id := model.MessageID(fmt.Sprintf("<dummy-%d@x>", i))
		c.CacheArticle(testArticle(id), &model.ArticleNewsgroup{
			ArticleID: id,
			Newsgroup: "overchan.test",
			Number:    i,
		})
	}

	if got := c.TotalSize(); got > int64(float64(cfg.MaxBytes)*1.1)+articleEntryOverhead {
		t.Fatalf("cache grew unbounded: %d bytes (budget %d)", got, cfg.MaxBytes)
	}
}

func TestCacheExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Millisecond
	c := New(cfg)
	defer c.Close()

	c.CacheArticle(testArticle("<a@x>"), &model.ArticleNewsgroup{ArticleID: "<a@x>", Newsgroup: "overchan.test", Number: 1})
	time.Sleep(5 * time.Millisecond)

	if _, _, ok := c.GetArticleByMessageID("<a@x>"); ok {
		t.Fatal("expected expired entry to miss")
	}
}
