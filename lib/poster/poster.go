// Package poster accepts inbound articles: it parses and validates
// them, applies header hygiene, assigns per-group sequence numbers
// under serialization, persists through lib/store, and executes
// permission-gated control messages.
package poster

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/Sirupsen/logrus"

	"github.com/nntparchive/nntpd/lib/cache"
	"github.com/nntparchive/nntpd/lib/model"
	"github.com/nntparchive/nntpd/lib/store"
)

var (
	// ErrPostingFailed covers parse failures and missing required
	// headers; the session answers 441.
	ErrPostingFailed = errors.New("poster: posting failed")

	// ErrControlNotPermitted is returned when an article carries a
	// Control header the posting identity lacks the capability for;
	// the session answers 480.
	ErrControlNotPermitted = errors.New("poster: control message not permitted")
)

// Poster routes accepted articles into the store and keeps the cache
// coherent afterwards. One Poster is shared by all sessions.
type Poster struct {
	store      store.Store
	cache      *cache.Cache
	blobs      store.BlobStore
	serverName string

	// Number assignment is the single write-contention hotspot; it is
	// serialized per group so max+1 stays gap-free under concurrent
	// posts.
	mu         sync.Mutex
	groupLocks map[model.NewsgroupName]*sync.Mutex
}

func New(s store.Store, c *cache.Cache, serverName string) *Poster {
	return &Poster{
		store:      s,
		cache:      c,
		serverName: serverName,
		groupLocks: make(map[model.NewsgroupName]*sync.Mutex),
	}
}

// WithBlobStore attaches a body blob store; accepted articles are
// mirrored there after persistence. Reads still load bodies from the
// metadata store; nothing reads the mirrored copies back.
func (p *Poster) WithBlobStore(b store.BlobStore) *Poster {
	p.blobs = b
	return p
}

func (p *Poster) logger() *log.Entry {
	return log.WithFields(log.Fields{"pkg": "poster"})
}

func (p *Poster) groupLock(name model.NewsgroupName) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.groupLocks[name]
	if !ok {
		l = new(sync.Mutex)
		p.groupLocks[name] = l
	}
	return l
}

// controlPermitted maps a control verb to the capability that
// authorizes it. Control messages with no matching entry are never
// permitted.
func controlPermitted(verb string, identity *model.Administrator) bool {
	if identity == nil {
		return false
	}
	switch verb {
	case "cancel":
		return identity.CanCancel
	case "newgroup":
		return identity.CanCreateGroup
	case "rmgroup":
		return identity.CanDeleteGroup
	case "checkgroups":
		return identity.CanCheckGroups
	default:
		return false
	}
}

// Post runs the full accept pipeline on one raw article (terminator
// already stripped, leading dots already unstuffed, CRLF line
// endings). identity is nil for an unauthenticated poster.
func (p *Poster) Post(ctx context.Context, raw []byte, identity *model.Administrator) error {
	rawHeader, body, err := splitArticle(raw)
	if err != nil {
		return ErrPostingFailed
	}
	hdr, err := parseRawHeader(rawHeader)
	if err != nil {
		return ErrPostingFailed
	}
	for _, name := range model.RequiredHeaders {
		if hdr.Get(name) == "" {
			return ErrPostingFailed
		}
	}
	msgid := model.MessageID(hdr.Get("Message-Id"))
	if !msgid.Valid() {
		return ErrPostingFailed
	}

	groups := splitNewsgroups(hdr.Get("Newsgroups"))
	if len(groups) == 0 {
		return ErrPostingFailed
	}

	canApprove := false
	if identity != nil {
		for _, g := range groups {
			if identity.CanApprove(g) {
				canApprove = true
				break
			}
		}
	}

	p.applyHygiene(hdr, identity, canApprove)

	control := hdr.Get("Control")
	var controlVerb string
	if control != "" {
		controlVerb = strings.ToLower(firstToken(control))
		if !controlPermitted(controlVerb, identity) {
			return ErrControlNotPermitted
		}
	}

	links, err := p.routeToGroups(ctx, hdr, body, msgid, groups, identity)
	if err != nil {
		return err
	}

	if len(links) > 0 {
		a := &model.Article{
			MessageID: msgid,
			Header:    nil,
			RawHeader: hdr.Render(),
			Body:      body,
		}
		if parsed, perr := model.ParseHeader(a.RawHeader); perr == nil {
			a.Header = parsed
		}
		if err := p.store.InsertArticle(ctx, a, links); err != nil {
			p.logger().WithFields(log.Fields{"msgid": msgid}).Error("insert failed: ", err)
			return err
		}
		p.mirrorToBlobStore(a)
		p.cache.InvalidateArticle(msgid)
		for _, l := range links {
			p.cache.InvalidateNewsgroup(l.Newsgroup)
		}
	}

	if control != "" {
		if err := p.executeControl(ctx, controlVerb, control, body, msgid, links, identity); err != nil {
			return err
		}
	}
	return nil
}

// mirrorToBlobStore writes the accepted article's full raw form to
// the blob store, if one is configured. Failures are logged, not
// fatal; the metadata store already holds the article.
func (p *Poster) mirrorToBlobStore(a *model.Article) {
	if p.blobs == nil {
		return
	}
	w, err := p.blobs.Create(a.MessageID)
	if err != nil {
		p.logger().WithFields(log.Fields{"msgid": a.MessageID}).Error("blob create failed: ", err)
		return
	}
	_, werr := w.Write(append([]byte(a.RawHeader+"\r\n"), a.Body...))
	cerr := w.Close()
	if werr != nil || cerr != nil {
		p.logger().WithFields(log.Fields{"msgid": a.MessageID}).Error("blob write failed: ", werr, cerr)
	}
}

// routeToGroups resolves each target group and either performs a
// moderation approval or allocates a fresh number for the article,
// returning the links to persist. Unknown groups are skipped without
// failing the post.
func (p *Poster) routeToGroups(ctx context.Context, hdr *rawHeaderBlock, body []byte, msgid model.MessageID, groups []model.NewsgroupName, identity *model.Administrator) ([]*model.ArticleNewsgroup, error) {
	approval := isApprovalBody(body) && hdr.Get("References") != ""

	var links []*model.ArticleNewsgroup
	for _, name := range groups {
		g, err := p.store.GetNewsgroupByName(ctx, name)
		if errors.Is(err, store.ErrNoSuchNewsgroup) {
			p.logger().WithFields(log.Fields{"group": name, "msgid": msgid}).Debug("skipping unknown group")
			continue
		}
		if err != nil {
			return nil, err
		}

		canApproveHere := identity != nil && identity.CanApprove(g.Name)

		if approval && canApproveHere {
			if err := p.approveReferenced(ctx, hdr.Get("References"), g.Name); err == nil {
				// approval consumed; no new record for this group
				continue
			}
		}

		lock := p.groupLock(g.Name)
		lock.Lock()
		num, err := p.store.NextNumber(ctx, g.Name)
		lock.Unlock()
		if err != nil {
			return nil, err
		}
		links = append(links, &model.ArticleNewsgroup{
			ArticleID: msgid,
			Newsgroup: g.Name,
			Number:    num,
			Cancelled: false,
			Pending:   g.Moderated && !canApproveHere,
		})
	}
	return links, nil
}

// approveReferenced locates the pending link of the referenced
// article in group and clears its Pending flag.
func (p *Poster) approveReferenced(ctx context.Context, references string, group model.NewsgroupName) error {
	ref := lastMessageID(references)
	if ref == "" {
		return store.ErrNoSuchArticle
	}
	_, targetLinks, err := p.store.GetArticleByMessageID(ctx, model.MessageID(ref))
	if err != nil {
		return err
	}
	for _, l := range targetLinks {
		if l.Newsgroup == group && l.Pending {
			l.Pending = false
			if err := p.store.UpdateArticleNewsgroup(ctx, l); err != nil {
				return err
			}
			p.cache.InvalidateArticle(l.ArticleID)
			p.cache.InvalidateNewsgroup(group)
			p.logger().WithFields(log.Fields{"msgid": ref, "group": group}).Info("pending article approved")
			return nil
		}
	}
	return store.ErrNoSuchArticle
}

// applyHygiene rewrites the header block before storage: Approved,
// Supersedes and the injection headers are only kept for identities
// holding the matching capability.
func (p *Poster) applyHygiene(hdr *rawHeaderBlock, identity *model.Administrator, canApprove bool) {
	if !canApprove {
		hdr.Del("Approved")
	}
	if identity == nil || !identity.CanCancel {
		hdr.Del("Supersedes")
	}
	if identity == nil || !identity.CanInject {
		hdr.Set("Injection-Date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 -0700"))
		hdr.Del("Injection-Info")
		hdr.Del("Xref")
		if f := hdr.Get("Followup-To"); f != "" && f == hdr.Get("Newsgroups") {
			hdr.Del("Followup-To")
		}
	}
}

// executeControl applies the control action after the control article
// itself has been persisted.
func (p *Poster) executeControl(ctx context.Context, verb, control string, body []byte, msgid model.MessageID, ownLinks []*model.ArticleNewsgroup, identity *model.Administrator) error {
	args := strings.Fields(control)[1:]
	switch verb {
	case "cancel":
		if len(args) != 1 {
			return ErrPostingFailed
		}
		return p.executeCancel(ctx, model.MessageID(args[0]), msgid, ownLinks)
	case "newgroup":
		if len(args) < 1 {
			return ErrPostingFailed
		}
		return p.executeNewgroup(ctx, args, identity)
	case "rmgroup":
		if len(args) != 1 {
			return ErrPostingFailed
		}
		return p.executeRmgroup(ctx, model.NewsgroupName(args[0]))
	case "checkgroups":
		return p.executeCheckgroups(ctx, body)
	}
	return nil
}

// executeCancel marks the target's links cancelled in the groups this
// cancel article was posted to, then marks the cancel article's own
// links cancelled too so the tombstone does not linger in listings.
func (p *Poster) executeCancel(ctx context.Context, target, own model.MessageID, ownLinks []*model.ArticleNewsgroup) error {
	groups := make(map[model.NewsgroupName]bool, len(ownLinks))
	for _, l := range ownLinks {
		groups[l.Newsgroup] = true
	}

	_, targetLinks, err := p.store.GetArticleByMessageID(ctx, target)
	if err != nil {
		if errors.Is(err, store.ErrNoSuchArticle) {
			p.logger().WithFields(log.Fields{"msgid": target}).Debug("cancel target not found")
			return nil
		}
		return err
	}
	for _, l := range targetLinks {
		if !groups[l.Newsgroup] || l.Cancelled {
			continue
		}
		l.Cancelled = true
		if err := p.store.UpdateArticleNewsgroup(ctx, l); err != nil {
			return err
		}
		p.cache.InvalidateNewsgroup(l.Newsgroup)
	}
	p.cache.InvalidateArticle(target)

	for _, l := range ownLinks {
		l.Cancelled = true
		if err := p.store.UpdateArticleNewsgroup(ctx, l); err != nil {
			return err
		}
	}
	p.cache.InvalidateArticle(own)
	p.logger().WithFields(log.Fields{"target": target, "by": own}).Info("article cancelled")
	return nil
}

func (p *Poster) executeNewgroup(ctx context.Context, args []string, identity *model.Administrator) error {
	name := model.NewsgroupName(args[0])
	if !name.Valid() {
		return ErrPostingFailed
	}
	creator := ""
	if identity != nil {
		creator = identity.Username + "@" + p.serverName
	}
	g := &model.Newsgroup{
		Name:       name,
		Creator:    creator,
		CreateDate: time.Now().UTC(),
		Moderated:  len(args) > 1 && strings.EqualFold(args[1], "moderated"),
	}
	if err := p.store.UpsertNewsgroup(ctx, g); err != nil {
		return err
	}
	p.cache.InvalidateNewsgroup(name)
	p.logger().WithFields(log.Fields{"group": name, "moderated": g.Moderated}).Info("newsgroup created")
	return nil
}

func (p *Poster) executeRmgroup(ctx context.Context, name model.NewsgroupName) error {
	if err := p.store.DeleteNewsgroup(ctx, name); err != nil {
		return err
	}
	p.cache.InvalidateNewsgroup(name)
	p.logger().WithFields(log.Fields{"group": name}).Info("newsgroup removed")
	return nil
}

// executeCheckgroups reconciles group descriptions from the control
// article's body, one "name description" line per group. Lines naming
// unknown or invalid groups are skipped.
func (p *Poster) executeCheckgroups(ctx context.Context, body []byte) error {
	for _, line := range strings.Split(string(body), "\r\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := model.NewsgroupName(fields[0])
		if !name.Valid() {
			continue
		}
		g, err := p.store.GetNewsgroupByName(ctx, name)
		if errors.Is(err, store.ErrNoSuchNewsgroup) {
			continue
		}
		if err != nil {
			return err
		}
		g.Description = strings.Join(fields[1:], " ")
		if err := p.store.UpsertNewsgroup(ctx, g); err != nil {
			return err
		}
		p.cache.InvalidateNewsgroup(name)
	}
	return nil
}

// splitArticle separates the raw article into its header block and
// body at the first blank line.
func splitArticle(raw []byte) (rawHeader string, body []byte, err error) {
	sep := bytes.Index(raw, []byte("\r\n\r\n"))
	if sep < 0 {
		// header-only article: must still end with a blank line omitted
		if len(raw) == 0 {
			return "", nil, errMalformedHeader
		}
		return string(raw), nil, nil
	}
	return string(raw[:sep+2]), raw[sep+4:], nil
}

func splitNewsgroups(value string) []model.NewsgroupName {
	var out []model.NewsgroupName
	seen := make(map[model.NewsgroupName]bool)
	for _, f := range strings.FieldsFunc(value, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' }) {
		name := model.NewsgroupName(f)
		if !name.Valid() || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// lastMessageID extracts the final angle-bracketed message-id from a
// References header, the article being replied to.
func lastMessageID(references string) string {
	fields := strings.Fields(references)
	for i := len(fields) - 1; i >= 0; i-- {
		if model.MessageID(fields[i]).Valid() {
			return fields[i]
		}
	}
	return ""
}

// isApprovalBody reports whether the body begins with the moderator
// approval keyword on its own line.
func isApprovalBody(body []byte) bool {
	return bytes.HasPrefix(body, []byte("APPROVE\r\n")) || bytes.HasPrefix(body, []byte("APPROVED\r\n")) ||
		bytes.Equal(body, []byte("APPROVE")) || bytes.Equal(body, []byte("APPROVED"))
}
