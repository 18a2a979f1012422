package nntp

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nntparchive/nntpd/lib/model"
	"github.com/nntparchive/nntpd/lib/nntp/wildmat"
	"github.com/nntparchive/nntpd/lib/retriever"
)

func sendCapabilities(c *session, rest string) error {
	if err := c.printfLine("101 Capability list:"); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	fmt.Fprintf(dw, "VERSION 2\n")
	fmt.Fprintf(dw, "IMPLEMENTATION nntpd\n")
	fmt.Fprintf(dw, "READER\n")
	if c.state.CanPost {
		fmt.Fprintf(dw, "POST\n")
	}
	fmt.Fprintf(dw, "AUTHINFO USER\n")
	fmt.Fprintf(dw, "HDR\n")
	fmt.Fprintf(dw, "OVER\n")
	fmt.Fprintf(dw, "LIST ACTIVE NEWSGROUPS ACTIVE.TIMES OVERVIEW.FMT\n")
	fmt.Fprintf(dw, "XFEATURE-COMPRESS GZIP TERMINATOR\n")
	if c.tlsConfig != nil && !c.state.TLS {
		fmt.Fprintf(dw, "STARTTLS\n")
	}
	return dw.Close()
}

func sendDate(c *session, rest string) error {
	return c.printfLine("111 %s", time.Now().UTC().Format("20060102150405"))
}

func switchMode(c *session, rest string) error {
	if !strings.EqualFold(strings.TrimSpace(rest), "READER") {
		return ErrSyntax
	}
	if c.state.CanPost {
		return c.printfLine(lineGreetingPosting)
	}
	return c.printfLine(lineGreetingNoPosting)
}

// metagroupAllowed decides whether the session's principal may see
// the synthesized .deleted/.pending view of a real group. Ordinary
// readers never see them.
func (c *session) metagroupAllowed(real model.NewsgroupName, vis model.Visibility) bool {
	id := c.state.Identity
	if id == nil {
		return false
	}
	switch vis {
	case model.VisibilityCancelled:
		return id.CanCancel || id.CanApproveAny
	case model.VisibilityPending:
		return id.CanApprove(real)
	default:
		return true
	}
}

// resolveGroupView resolves a (possibly metagroup-suffixed) name into
// the session's view of it, with the view's own watermarks.
func (c *session) resolveGroupView(name model.NewsgroupName) (*groupView, error) {
	real, vis := name.SplitMetagroup()
	if vis != model.VisibilityNormal && !c.metagroupAllowed(real, vis) {
		// hidden, not merely forbidden
		return nil, ErrNoSuchGroup
	}
	g, err := c.srv.Retriever.Newsgroup(c.ctx(), real)
	if errors.Is(err, retriever.ErrNoSuchNewsgroup) {
		return nil, ErrNoSuchGroup
	}
	if err != nil {
		return nil, err
	}
	view := &groupView{Name: name, Real: real, Vis: vis}
	if vis == model.VisibilityNormal {
		view.Count = g.PostCount
		view.Low = g.LowWatermark
		view.High = g.HighWatermark
		return view, nil
	}
	// metagroup watermarks come from a scan of the filtered view
	links, err := c.srv.Retriever.ArticleRange(c.ctx(), name, 1, g.HighWatermark, 0)
	if err != nil {
		return nil, err
	}
	view.Count = int64(len(links))
	if len(links) > 0 {
		view.Low = links[0].Number
		view.High = links[len(links)-1].Number
	}
	return view, nil
}

func selectGroup(c *session, rest string) error {
	args := strings.Fields(rest)
	if len(args) != 1 {
		return ErrSyntax
	}
	view, err := c.resolveGroupView(model.NewsgroupName(args[0]))
	if err != nil {
		return err
	}
	c.state.Group = view
	c.state.Article = view.Low
	return c.printfLine("211 %d %d %d %s", view.Count, view.Low, view.High, view.Name)
}

func listGroup(c *session, rest string) error {
	args := strings.Fields(rest)
	if len(args) > 2 {
		return ErrSyntax
	}
	view := c.state.Group
	if len(args) >= 1 {
		var err error
		view, err = c.resolveGroupView(model.NewsgroupName(args[0]))
		if err != nil {
			return err
		}
	}
	if view == nil {
		return ErrNoGroupSelected
	}
	lo, hi := view.Low, view.High
	if len(args) == 2 {
		var err error
		lo, hi, err = retriever.ParseRange(args[1], view.High)
		if err != nil {
			return ErrSyntax
		}
	}
	links, err := c.srv.Retriever.ArticleRange(c.ctx(), view.Name, lo, hi, 0)
	if err != nil {
		return err
	}
	c.state.Group = view
	c.state.Article = view.Low
	if err := c.printfLine("211 %d %d %d %s list follows", view.Count, view.Low, view.High, view.Name); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	for _, l := range links {
		fmt.Fprintf(dw, "%d\n", l.Number)
	}
	return dw.Close()
}

func listNewsgroups(c *session, rest string) error {
	args := strings.Fields(rest)
	sub := "ACTIVE"
	if len(args) > 0 {
		sub = strings.ToUpper(args[0])
	}
	var pattern *wildmat.Pattern
	if len(args) > 1 {
		var err error
		pattern, err = wildmat.Compile(args[1], false)
		if err != nil {
			return ErrSyntax
		}
	}

	switch sub {
	case "OVERVIEW.FMT":
		if err := c.printfLine("215 Order of fields in overview database"); err != nil {
			return err
		}
		dw := c.C.MultiLineWriter()
		fmt.Fprintf(dw, "Subject:\nFrom:\nDate:\nMessage-ID:\nReferences:\n:bytes\n:lines\n")
		return dw.Close()
	case "ACTIVE", "NEWSGROUPS", "ACTIVE.TIMES":
	default:
		return ErrSyntax
	}

	groups, err := c.srv.Retriever.ListNewsgroups(c.ctx(), nil)
	if err != nil {
		return err
	}
	if err := c.printfLine("215 List of newsgroups follows"); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	for _, g := range groups {
		if pattern != nil && !pattern.Match(g.Name.String()) {
			continue
		}
		switch sub {
		case "ACTIVE":
			fmt.Fprintf(dw, "%s %d %d %c\n", g.Name, g.HighWatermark, g.LowWatermark, g.PostingFlag(c.state.CanPost))
		case "NEWSGROUPS":
			fmt.Fprintf(dw, "%s\t%s\n", g.Name, g.Description)
		case "ACTIVE.TIMES":
			fmt.Fprintf(dw, "%s %d %s\n", g.Name, g.CreateDate.Unix(), g.Creator)
		}
	}
	return dw.Close()
}

// parseNewGroupsInstant parses the NEWGROUPS date/time arguments:
// YYMMDD or YYYYMMDD, HHMMSS, optional GMT token (local time is
// treated as UTC either way, matching reader expectations for an
// archive).
func parseNewGroupsInstant(args []string) (time.Time, error) {
	if len(args) < 2 || len(args) > 3 {
		return time.Time{}, ErrSyntax
	}
	if len(args) == 3 && !strings.EqualFold(args[2], "GMT") {
		return time.Time{}, ErrSyntax
	}
	date, hms := args[0], args[1]
	var layout string
	switch len(date) {
	case 6:
		layout = "060102"
	case 8:
		layout = "20060102"
	default:
		return time.Time{}, ErrSyntax
	}
	t, err := time.ParseInLocation(layout+"150405", date+hms, time.UTC)
	if err != nil {
		return time.Time{}, ErrSyntax
	}
	return t, nil
}

func listNewGroups(c *session, rest string) error {
	since, err := parseNewGroupsInstant(strings.Fields(rest))
	if err != nil {
		return ErrSyntax
	}
	unix := since.Unix()
	groups, err := c.srv.Retriever.ListNewsgroups(c.ctx(), &unix)
	if err != nil {
		return err
	}
	if err := c.printfLine("231 List of new newsgroups follows"); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	for _, g := range groups {
		fmt.Fprintf(dw, "%s %d %d %c\n", g.Name, g.HighWatermark, g.LowWatermark, g.PostingFlag(c.state.CanPost))
	}
	return dw.Close()
}

// selectArticle implements the shared parameter precedence of
// ARTICLE/HEAD/BODY/STAT: an explicit message-id bypasses the current
// group, a numeric parameter requires one, and no parameter requires
// a current article number. The reported number is 0 for message-id
// selection.
func (c *session) selectArticle(arg string) (*model.Article, int64, error) {
	if strings.HasPrefix(arg, "<") {
		a, _, err := c.srv.Retriever.ArticleByMessageID(c.ctx(), model.MessageID(arg))
		if errors.Is(err, retriever.ErrNoSuchArticle) {
			return nil, 0, ErrNoSuchArticle
		}
		if err != nil {
			return nil, 0, err
		}
		return a, 0, nil
	}

	view := c.state.Group
	if view == nil {
		return nil, 0, ErrNoGroupSelected
	}
	if arg != "" {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n < 0 {
			return nil, 0, ErrSyntax
		}
		a, _, err := c.srv.Retriever.ArticleByNumber(c.ctx(), view.Name, n)
		if errors.Is(err, retriever.ErrNoSuchArticle) {
			return nil, 0, ErrNoSuchArticleNumber
		}
		if err != nil {
			return nil, 0, err
		}
		c.state.Article = n
		return a, n, nil
	}

	if c.state.Article == 0 {
		return nil, 0, ErrNoCurrentArticle
	}
	a, _, err := c.srv.Retriever.ArticleByNumber(c.ctx(), view.Name, c.state.Article)
	if errors.Is(err, retriever.ErrNoSuchArticle) {
		return nil, 0, ErrNoCurrentArticle
	}
	if err != nil {
		return nil, 0, err
	}
	return a, c.state.Article, nil
}

func sendArticle(c *session, rest string) error {
	a, n, err := c.selectArticle(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	if err := c.printfLine("220 %d %s Article follows (multi-line)", n, a.MessageID); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	io.WriteString(dw, a.RawHeader)
	io.WriteString(dw, "\r\n")
	dw.Write(a.Body)
	return dw.Close()
}

func sendHead(c *session, rest string) error {
	a, n, err := c.selectArticle(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	if err := c.printfLine("221 %d %s Headers follow (multi-line)", n, a.MessageID); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	io.WriteString(dw, a.RawHeader)
	return dw.Close()
}

func sendBody(c *session, rest string) error {
	a, n, err := c.selectArticle(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	if err := c.printfLine("222 %d %s Body follows (multi-line)", n, a.MessageID); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	dw.Write(a.Body)
	return dw.Close()
}

func sendStat(c *session, rest string) error {
	a, n, err := c.selectArticle(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	return c.printfLine("223 %d %s Article exists", n, a.MessageID)
}

func moveLast(c *session, rest string) error {
	view := c.state.Group
	if view == nil {
		return ErrNoGroupSelected
	}
	if c.state.Article == 0 {
		return ErrNoCurrentArticle
	}
	link, err := c.srv.Retriever.PrevArticle(c.ctx(), view.Name, c.state.Article)
	if errors.Is(err, retriever.ErrNoSuchArticle) {
		return ErrNoPrevArticle
	}
	if err != nil {
		return err
	}
	c.state.Article = link.Number
	return c.printfLine("223 %d %s Article exists", link.Number, link.ArticleID)
}

func moveNext(c *session, rest string) error {
	view := c.state.Group
	if view == nil {
		return ErrNoGroupSelected
	}
	if c.state.Article == 0 {
		return ErrNoCurrentArticle
	}
	link, err := c.srv.Retriever.NextArticle(c.ctx(), view.Name, c.state.Article)
	if errors.Is(err, retriever.ErrNoSuchArticle) {
		return ErrNoNextArticle
	}
	if err != nil {
		return err
	}
	c.state.Article = link.Number
	return c.printfLine("223 %d %s Article exists", link.Number, link.ArticleID)
}

// overviewRow is one article selected for OVER/HDR output together
// with the number to report for it.
type overviewRow struct {
	number  int64
	article *model.Article
}

// selectOverviewRows resolves the shared [range|msg-id] argument of
// OVER, HDR and XHDR into the articles to report on.
func (c *session) selectOverviewRows(arg string) ([]overviewRow, error) {
	if strings.HasPrefix(arg, "<") {
		a, _, err := c.srv.Retriever.ArticleByMessageID(c.ctx(), model.MessageID(arg))
		if errors.Is(err, retriever.ErrNoSuchArticle) {
			return nil, ErrNoSuchArticle
		}
		if err != nil {
			return nil, err
		}
		return []overviewRow{{0, a}}, nil
	}

	view := c.state.Group
	if view == nil {
		return nil, ErrNoGroupSelected
	}

	if arg == "" {
		if c.state.Article == 0 {
			return nil, ErrNoCurrentArticle
		}
		a, _, err := c.srv.Retriever.ArticleByNumber(c.ctx(), view.Name, c.state.Article)
		if errors.Is(err, retriever.ErrNoSuchArticle) {
			return nil, ErrNoCurrentArticle
		}
		if err != nil {
			return nil, err
		}
		return []overviewRow{{c.state.Article, a}}, nil
	}

	lo, hi, err := retriever.ParseRange(arg, view.High)
	if err != nil {
		return nil, ErrSyntax
	}
	links, err := c.srv.Retriever.ArticleRange(c.ctx(), view.Name, lo, hi, 0)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrNoSuchArticleNumber
	}
	rows := make([]overviewRow, 0, len(links))
	for _, l := range links {
		a, err := c.srv.Retriever.ArticleForLink(c.ctx(), l)
		if err != nil {
			// the link exists but the payload is gone; skip it rather
			// than abort the whole scan
			c.logger().Warn("dangling link during range scan: ", err)
			continue
		}
		rows = append(rows, overviewRow{l.Number, a})
	}
	return rows, nil
}

// unfold flattens internal CR, LF and TAB bytes to single spaces so
// multi-line header values stay one overview field wide.
func unfold(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return ' '
		}
		return r
	}, s)
}

func sendOver(c *session, rest string) error {
	rows, err := c.selectOverviewRows(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	if err := c.printfLine("224 Overview information follows (multi-line)"); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	for _, row := range rows {
		a := row.article
		// :bytes doubles the body length; legacy reader software
		// depends on it, so it stays
		fmt.Fprintf(dw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			row.number,
			unfold(a.Subject()),
			unfold(a.From()),
			unfold(a.Date()),
			a.MessageID,
			unfold(a.References()),
			a.ByteLen()*2,
			a.LineCount())
	}
	return dw.Close()
}

func sendHdr(c *session, rest string) error  { return c.hdrCommon(rest, 225) }
func sendXHdr(c *session, rest string) error { return c.hdrCommon(rest, 221) }

func (c *session) hdrCommon(rest string, code int) error {
	fields := strings.Fields(rest)
	if len(fields) < 1 || len(fields) > 2 {
		return ErrSyntax
	}
	header := fields[0]
	arg := ""
	if len(fields) == 2 {
		arg = fields[1]
	}
	rows, err := c.selectOverviewRows(arg)
	if err != nil {
		return err
	}
	if err := c.printfLine("%d Headers follow (multi-line)", code); err != nil {
		return err
	}
	dw := c.C.MultiLineWriter()
	for _, row := range rows {
		fmt.Fprintf(dw, "%d %s\n", row.number, unfold(row.article.Header.Get(header)))
	}
	return dw.Close()
}

func quitSession(c *session, rest string) error {
	if err := c.printfLine(lineQuit); err != nil {
		return err
	}
	return sessionClosed{}
}
