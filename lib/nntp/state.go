package nntp

import (
	"github.com/nntparchive/nntpd/lib/model"
)

// groupView is the session's resolved view of its current newsgroup:
// either a real group or a metagroup synthesized from one plus a
// visibility filter. The watermarks are those of the view, computed
// when the group was selected.
type groupView struct {
	// Name is the name as selected, metagroup suffix included.
	Name model.NewsgroupName
	// Real is the underlying group name with any suffix stripped.
	Real  model.NewsgroupName
	Vis   model.Visibility
	Count int64
	Low   int64
	High  int64
}

// ConnState is the per-connection mutable state the dispatcher
// threads through every handler. The session owns it; nothing here is
// shared across connections.
type ConnState struct {
	// current newsgroup, nil until a successful GROUP/LISTGROUP
	Group *groupView
	// current article number, 0 means none selected
	Article int64

	// authenticated principal, nil until AUTHINFO PASS succeeds
	Identity *model.Administrator
	// username accepted by AUTHINFO USER, awaiting PASS
	PendingUser string
	// set once AUTHINFO USER has been issued (PendingUser may
	// legitimately be re-sent, resetting the exchange)
	authStarted bool

	// whether POST is allowed for this session right now
	CanPost bool
	// TLS established (implicit or via STARTTLS)
	TLS bool

	Open bool
}
