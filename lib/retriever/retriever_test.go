package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/nntparchive/nntpd/lib/cache"
	"github.com/nntparchive/nntpd/lib/model"
	"github.com/nntparchive/nntpd/lib/store"
)

func newTestRetriever(t *testing.T) (*Retriever, *store.MemoryStore, *cache.Cache) {
	t.Helper()
	ms := store.NewMemoryStore()
	c := cache.New(cache.DefaultConfig())
	t.Cleanup(c.Close)
	return New(ms, c), ms, c
}

func seedGroup(t *testing.T, ms *store.MemoryStore, name model.NewsgroupName) {
	t.Helper()
	err := ms.UpsertNewsgroup(context.Background(), &model.Newsgroup{
		Name:       name,
		CreateDate: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func seedArticle(t *testing.T, ms *store.MemoryStore, id model.MessageID, group model.NewsgroupName, num int64, cancelled, pending bool) {
	t.Helper()
	a := &model.Article{
		MessageID: id,
		RawHeader: "Message-Id: " + id.String() + "\r\nSubject: t\r\n",
		Body:      []byte("body\r\n"),
	}
	link := &model.ArticleNewsgroup{ArticleID: id, Newsgroup: group, Number: num, Cancelled: cancelled, Pending: pending}
	if err := ms.InsertArticle(context.Background(), a, []*model.ArticleNewsgroup{link}); err != nil {
		t.Fatal(err)
	}
}

func TestArticleByMessageIDCachesOnMiss(t *testing.T) {
	r, ms, c := newTestRetriever(t)
	seedGroup(t, ms, "comp.test")
	seedArticle(t, ms, "<a@x>", "comp.test", 1, false, false)

	a, link, err := r.ArticleByMessageID(context.Background(), "<a@x>")
	if err != nil || a.MessageID != "<a@x>" || link.Number != 1 {
		t.Fatalf("lookup failed: %v %v %v", a, link, err)
	}
	if _, _, ok := c.GetArticleByMessageID("<a@x>"); !ok {
		t.Fatal("expected cache populated after store miss path")
	}
}

func TestArticleByMessageIDHidesCancelled(t *testing.T) {
	r, ms, _ := newTestRetriever(t)
	seedGroup(t, ms, "comp.test")
	seedArticle(t, ms, "<dead@x>", "comp.test", 1, true, false)

	if _, _, err := r.ArticleByMessageID(context.Background(), "<dead@x>"); err != ErrNoSuchArticle {
		t.Fatalf("expected ErrNoSuchArticle for cancelled article, got %v", err)
	}
}

func TestArticleByNumberMetagroups(t *testing.T) {
	r, ms, _ := newTestRetriever(t)
	seedGroup(t, ms, "comp.test")
	seedArticle(t, ms, "<live@x>", "comp.test", 1, false, false)
	seedArticle(t, ms, "<dead@x>", "comp.test", 2, true, false)
	seedArticle(t, ms, "<mod@x>", "comp.test", 3, false, true)

	ctx := context.Background()

	if _, link, err := r.ArticleByNumber(ctx, "comp.test", 1); err != nil || link.ArticleID != "<live@x>" {
		t.Fatalf("normal lookup: %v %v", link, err)
	}
	if _, _, err := r.ArticleByNumber(ctx, "comp.test", 2); err != ErrNoSuchArticle {
		t.Fatalf("cancelled must be invisible in base group, got %v", err)
	}
	if _, link, err := r.ArticleByNumber(ctx, "comp.test.deleted", 2); err != nil || link.ArticleID != "<dead@x>" {
		t.Fatalf("deleted metagroup lookup: %v %v", link, err)
	}
	if _, link, err := r.ArticleByNumber(ctx, "comp.test.pending", 3); err != nil || link.ArticleID != "<mod@x>" {
		t.Fatalf("pending metagroup lookup: %v %v", link, err)
	}
}

func TestArticleRangeOrderAndCap(t *testing.T) {
	r, ms, _ := newTestRetriever(t)
	seedGroup(t, ms, "comp.test")
	for i := int64(10); i <= 14; i++ {
		seedArticle(t, ms, model.MessageID("<n"+string(rune('0'+i-10))+"@x>"), "comp.test", i, false, false)
	}

	links, err := r.ArticleRange(context.Background(), "comp.test", 10, 14, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 5 {
		t.Fatalf("expected 5 links, got %d", len(links))
	}
	for i := 1; i < len(links); i++ {
		if links[i].Number <= links[i-1].Number {
			t.Fatal("range results not strictly ascending")
		}
	}

	capped, err := r.ArticleRange(context.Background(), "comp.test", 10, 14, 2)
	if err != nil || len(capped) != 2 {
		t.Fatalf("expected capped scan of 2, got %d %v", len(capped), err)
	}
}

func TestArticleRangeEmptyWhenInverted(t *testing.T) {
	r, ms, _ := newTestRetriever(t)
	seedGroup(t, ms, "comp.test")
	seedArticle(t, ms, "<a@x>", "comp.test", 5, false, false)

	links, err := r.ArticleRange(context.Background(), "comp.test", 9, 3, 0)
	if err != nil || len(links) != 0 {
		t.Fatalf("inverted range must be empty, got %d %v", len(links), err)
	}
}

func TestNextPrevArticle(t *testing.T) {
	r, ms, _ := newTestRetriever(t)
	seedGroup(t, ms, "comp.test")
	seedArticle(t, ms, "<a@x>", "comp.test", 10, false, false)
	seedArticle(t, ms, "<b@x>", "comp.test", 11, true, false) // cancelled, skipped
	seedArticle(t, ms, "<c@x>", "comp.test", 12, false, false)

	ctx := context.Background()
	next, err := r.NextArticle(ctx, "comp.test", 10)
	if err != nil || next.Number != 12 {
		t.Fatalf("NEXT should skip cancelled 11, got %v %v", next, err)
	}
	prev, err := r.PrevArticle(ctx, "comp.test", 12)
	if err != nil || prev.Number != 10 {
		t.Fatalf("LAST should skip cancelled 11, got %v %v", prev, err)
	}
	if _, err := r.PrevArticle(ctx, "comp.test", 10); err != ErrNoSuchArticle {
		t.Fatalf("no previous article expected, got %v", err)
	}
	if _, err := r.NextArticle(ctx, "comp.test", 12); err != ErrNoSuchArticle {
		t.Fatalf("no next article expected, got %v", err)
	}
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		arg     string
		hi      int64
		wantLo  int64
		wantHi  int64
		wantErr bool
	}{
		{"5", 100, 5, 5, false},
		{"5-", 100, 5, 100, false},
		{"5-9", 100, 5, 9, false},
		{"9-5", 100, 9, 5, false}, // inverted is accepted, yields empty result downstream
		{"", 100, 0, 0, true},
		{"a", 100, 0, 0, true},
		{"5-a", 100, 0, 0, true},
		{"-5", 100, 0, 0, true},
		{"5--9", 100, 0, 0, true},
	}
	for _, tc := range cases {
		lo, hi, err := ParseRange(tc.arg, tc.hi)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseRange(%q): expected error", tc.arg)
			}
			continue
		}
		if err != nil || lo != tc.wantLo || hi != tc.wantHi {
			t.Errorf("ParseRange(%q) = %d, %d, %v; want %d, %d", tc.arg, lo, hi, err, tc.wantLo, tc.wantHi)
		}
	}
}
