package model

import (
	"regexp"
	"strings"
	"time"
)

// DeletedSuffix and PendingSuffix are the metagroup suffixes a reader
// with sufficient capability may append to a real group name to view
// its cancelled or pending-moderation entries (see Retriever).
const (
	DeletedSuffix = ".deleted"
	PendingSuffix = ".pending"
)

var exp_valid_newsgroup = regexp.MustCompilePOSIX(`^[a-zA-Z0-9]+(\.[a-zA-Z0-9+_-]+)+$`)

// NewsgroupName is a hierarchy-dot-separated newsgroup name. It is
// case-sensitive per RFC.
type NewsgroupName string

func (g NewsgroupName) String() string {
	return string(g)
}

// Valid reports whether the name is well formed: an alphanumeric first
// segment and one or more further segments of alphanumerics, '+', '_'
// or '-', joined by dots.
func (g NewsgroupName) Valid() bool {
	return exp_valid_newsgroup.Copy().MatchString(g.String())
}

// SplitMetagroup strips a recognized metagroup suffix from a
// requested group name, returning the real group name and the
// visibility the suffix implies. If no known suffix is present, the
// name is returned unchanged with VisibilityNormal.
func (g NewsgroupName) SplitMetagroup() (real NewsgroupName, vis Visibility) {
	s := g.String()
	if strings.HasSuffix(s, DeletedSuffix) {
		return NewsgroupName(s[:len(s)-len(DeletedSuffix)]), VisibilityCancelled
	}
	if strings.HasSuffix(s, PendingSuffix) {
		return NewsgroupName(s[:len(s)-len(PendingSuffix)]), VisibilityPending
	}
	return g, VisibilityNormal
}

// Visibility selects which ArticleNewsgroup rows a query should
// return; every link is in exactly one partition.
type Visibility int

const (
	VisibilityNormal Visibility = iota
	VisibilityCancelled
	VisibilityPending
)

// Newsgroup is a named feed of articles.
type Newsgroup struct {
	Name             NewsgroupName
	Description      string
	Creator          string
	CreateDate       time.Time
	Moderated        bool
	DenyLocalPosting bool
	DenyPeerPosting  bool

	// aggregate counters, cached on the row and reconciled on mutation
	PostCount     int64
	LowWatermark  int64
	HighWatermark int64
}

// PostingFlag returns the LIST ACTIVE posting-status character for
// this group, given whether the requesting principal may post to it
// at all.
func (g *Newsgroup) PostingFlag(canPost bool) byte {
	if g.Moderated {
		return 'm'
	}
	if canPost {
		return 'y'
	}
	return 'n'
}
