package model

import (
	"net/textproto"
	"testing"
)

func testArticle(body string) *Article {
	h := textproto.MIMEHeader{}
	h.Set("Date", "Mon, 01 Jan 2024 00:00:00 +0000")
	h.Set("From", "poster@example.com")
	h.Set("Subject", "hello")
	h.Set("Newsgroups", "overchan.test")
	h.Set("Message-Id", "<a@x>")
	h.Set("Path", "x!y")
	return &Article{
		MessageID: "<a@x>",
		Header:    h,
		Body:      []byte(body),
	}
}

func TestMissingRequiredHeaders(t *testing.T) {
	a := testArticle("body")
	if missing := a.MissingRequiredHeaders(); len(missing) != 0 {
		t.Fatalf("expected no missing headers, got %v", missing)
	}
	a.Header.Del("Subject")
	missing := a.MissingRequiredHeaders()
	if len(missing) != 1 || missing[0] != "Subject" {
		t.Fatalf("expected [Subject] missing, got %v", missing)
	}
}

func TestByteLen(t *testing.T) {
	a := testArticle("hello\r\nworld")
	if a.ByteLen() != len("hello\r\nworld") {
		t.Fatalf("unexpected byte len %d", a.ByteLen())
	}
}

func TestLineCount(t *testing.T) {
	a := testArticle("one\r\ntwo\r\nthree")
	if got := a.LineCount(); got != 3 {
		t.Fatalf("expected 3 lines, got %d", got)
	}
	empty := testArticle("")
	if got := empty.LineCount(); got != 0 {
		t.Fatalf("expected 0 lines for empty body, got %d", got)
	}
}
