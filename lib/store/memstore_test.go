package store

import (
	"context"
	"testing"
	"time"

	"github.com/nntparchive/nntpd/lib/model"
)

func TestMemoryStoreInsertAndFetch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.UpsertNewsgroup(ctx, &model.Newsgroup{Name: "overchan.test", CreateDate: time.Now()})

	a := &model.Article{MessageID: "<a@x>", RawHeader: "Subject: hi\r\n", Body: []byte("hello")}
	link := &model.ArticleNewsgroup{ArticleID: "<a@x>", Newsgroup: "overchan.test", Number: 1}
	if err := s.InsertArticle(ctx, a, []*model.ArticleNewsgroup{link}); err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}

	got, links, err := s.GetArticleByMessageID(ctx, "<a@x>")
	if err != nil {
		t.Fatalf("GetArticleByMessageID: %v", err)
	}
	if got.MessageID != "<a@x>" || len(links) != 1 || links[0].Number != 1 {
		t.Fatalf("unexpected result: %+v %+v", got, links)
	}

	_, _, err = s.GetArticleByMessageID(ctx, "<missing@x>")
	if err != ErrNoSuchArticle {
		t.Fatalf("expected ErrNoSuchArticle, got %v", err)
	}
}

func TestMemoryStoreNextNumber(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.UpsertNewsgroup(ctx, &model.Newsgroup{Name: "overchan.test"})

	n, err := s.NextNumber(ctx, "overchan.test")
	if err != nil || n != 1 {
		t.Fatalf("expected first number 1, got %d, %v", n, err)
	}

	link := &model.ArticleNewsgroup{ArticleID: "<a@x>", Newsgroup: "overchan.test", Number: 1}
	s.InsertArticle(ctx, &model.Article{MessageID: "<a@x>"}, []*model.ArticleNewsgroup{link})

	n, err = s.NextNumber(ctx, "overchan.test")
	if err != nil || n != 2 {
		t.Fatalf("expected next number 2, got %d, %v", n, err)
	}
}

func TestMemoryStoreRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.UpsertNewsgroup(ctx, &model.Newsgroup{Name: "overchan.test"})
	for i := int64(1); i <= 5; i++ {
		s.InsertArticle(ctx, &model.Article{MessageID: model.MessageID(string(rune('a' + i)))},
			[]*model.ArticleNewsgroup{{ArticleID: model.MessageID(string(rune('a' + i))), Newsgroup: "overchan.test", Number: i}})
	}
	links, err := s.ListArticlesInRange(ctx, "overchan.test", 2, 4, 100, VisibilityFilter{})
	if err != nil {
		t.Fatalf("ListArticlesInRange: %v", err)
	}
	if len(links) != 3 || links[0].Number != 2 || links[2].Number != 4 {
		t.Fatalf("unexpected range result: %+v", links)
	}
}
