package model

import "testing"

func TestValidNewsgroup(t *testing.T) {
	g := NewsgroupName("overchan.test")
	if !g.Valid() {
		t.Fatalf("%s should be valid", g)
	}
}

func TestInvalidNewsgroup(t *testing.T) {
	g := NewsgroupName("asd.asd.asd.&&&")
	if g.Valid() {
		t.Fatalf("%s should be invalid", g)
	}
}

func TestInvalidNewsgroupNoDot(t *testing.T) {
	g := NewsgroupName("overchan")
	if g.Valid() {
		t.Fatalf("%s should be invalid, no dot", g)
	}
}

func TestSplitMetagroupDeleted(t *testing.T) {
	real, vis := NewsgroupName("overchan.test.deleted").SplitMetagroup()
	if real != "overchan.test" || vis != VisibilityCancelled {
		t.Fatalf("got (%s, %v)", real, vis)
	}
}

func TestSplitMetagroupPending(t *testing.T) {
	real, vis := NewsgroupName("overchan.test.pending").SplitMetagroup()
	if real != "overchan.test" || vis != VisibilityPending {
		t.Fatalf("got (%s, %v)", real, vis)
	}
}

func TestSplitMetagroupNormal(t *testing.T) {
	real, vis := NewsgroupName("overchan.test").SplitMetagroup()
	if real != "overchan.test" || vis != VisibilityNormal {
		t.Fatalf("got (%s, %v)", real, vis)
	}
}

func TestPostingFlag(t *testing.T) {
	mod := &Newsgroup{Moderated: true}
	if mod.PostingFlag(true) != 'm' {
		t.Fatal("moderated group should always report 'm'")
	}
	open := &Newsgroup{}
	if open.PostingFlag(true) != 'y' {
		t.Fatal("postable group should report 'y'")
	}
	if open.PostingFlag(false) != 'n' {
		t.Fatal("non-postable group should report 'n'")
	}
}
