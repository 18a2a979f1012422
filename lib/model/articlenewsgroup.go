package model

// ArticleNewsgroup is the crosspost record linking one Article into
// one Newsgroup. Number is assigned at post time under per-group
// serialization (see lib/poster) as max(Number in group)+1 and is
// never reused, even once Cancelled.
type ArticleNewsgroup struct {
	ArticleID MessageID
	Newsgroup NewsgroupName
	Number    int64
	Cancelled bool
	Pending   bool
}

// Visible reports whether this link is visible under the default
// (non-metagroup) filter: neither cancelled nor awaiting moderation.
func (an *ArticleNewsgroup) Visible() bool {
	return !an.Cancelled && !an.Pending
}

// MatchesVisibility reports whether this link should be returned
// under the given metagroup visibility filter.
func (an *ArticleNewsgroup) MatchesVisibility(vis Visibility) bool {
	switch vis {
	case VisibilityCancelled:
		return an.Cancelled
	case VisibilityPending:
		return an.Pending
	default:
		return an.Visible()
	}
}
