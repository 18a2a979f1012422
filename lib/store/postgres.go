package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/Sirupsen/logrus"
	_ "github.com/lib/pq"

	"github.com/nntparchive/nntpd/lib/model"
)

// statement keys for the prepared-statement table: every query the
// store issues is prepared once at startup and looked up by key
// thereafter, rather than re-parsed per call.
type stmtKey int

const (
	stGroupByName stmtKey = iota
	stArticleByMsgID
	stLinksByMsgID
	stArticleByNumber
	stLinkByNumber
	stRangeLinks
	stListGroups
	stInsertArticle
	stInsertLink
	stUpdateLink
	stNextNumber
	stListAdmins
	stAdminByUsername
	stModeratesByUser
	stUpsertGroup
	stDeleteGroup
	numStmts
)

var stmtText = map[stmtKey]string{
	stGroupByName:     `SELECT name, description, creator, create_date, moderated, deny_local_posting, deny_peer_posting, post_count, low_watermark, high_watermark FROM newsgroups WHERE name = $1`,
	stArticleByMsgID:  `SELECT message_id, raw_header, body FROM articles WHERE message_id = $1`,
	stLinksByMsgID:    `SELECT newsgroup, number, cancelled, pending FROM article_newsgroups WHERE message_id = $1`,
	stArticleByNumber: `SELECT a.message_id, a.raw_header, a.body FROM article_newsgroups l JOIN articles a ON a.message_id = l.message_id WHERE l.newsgroup = $1 AND l.number = $2 AND l.cancelled = $3 AND l.pending = $4`,
	stLinkByNumber:    `SELECT newsgroup, number, cancelled, pending FROM article_newsgroups WHERE newsgroup = $1 AND number = $2 AND cancelled = $3 AND pending = $4`,
	stRangeLinks:      `SELECT newsgroup, number, cancelled, pending FROM article_newsgroups WHERE newsgroup = $1 AND number BETWEEN $2 AND $3 AND cancelled = $4 AND pending = $5 ORDER BY number ASC LIMIT $6`,
	stListGroups:      `SELECT name, description, creator, create_date, moderated, deny_local_posting, deny_peer_posting, post_count, low_watermark, high_watermark FROM newsgroups WHERE ($1 = '' OR name LIKE $1) AND ($2 = 0 OR create_date >= to_timestamp($2)) ORDER BY name ASC`,
	stInsertArticle:   `INSERT INTO articles (message_id, raw_header, body) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
	stInsertLink:      `INSERT INTO article_newsgroups (message_id, newsgroup, number, cancelled, pending) VALUES ($1, $2, $3, $4, $5)`,
	stUpdateLink:      `UPDATE article_newsgroups SET cancelled = $3, pending = $4 WHERE newsgroup = $1 AND number = $2`,
	stNextNumber:      `UPDATE newsgroups SET high_watermark = high_watermark + 1 WHERE name = $1 RETURNING high_watermark`,
	stListAdmins:      `SELECT username, credential_hash, can_approve_any, can_cancel, can_inject, can_create_group, can_delete_group, can_check_groups, local_auth_only FROM administrators`,
	stAdminByUsername: `SELECT username, credential_hash, can_approve_any, can_cancel, can_inject, can_create_group, can_delete_group, can_check_groups, local_auth_only FROM administrators WHERE username = $1`,
	stModeratesByUser: `SELECT newsgroup FROM administrator_moderates WHERE username = $1`,
	stUpsertGroup:     `INSERT INTO newsgroups (name, description, creator, create_date, moderated, deny_local_posting, deny_peer_posting, low_watermark, high_watermark) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0) ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, moderated = EXCLUDED.moderated`,
	stDeleteGroup:     `DELETE FROM newsgroups WHERE name = $1`,
}

// PostgresStore implements Store on top of database/sql + lib/pq,
// with every query prepared once at startup.
type PostgresStore struct {
	conn  *sql.DB
	stmts map[stmtKey]*sql.Stmt
}

// NewPostgresStore opens a connection pool against dsn (a
// lib/pq-style connection string) and prepares all statements.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	s := &PostgresStore{conn: conn, stmts: make(map[stmtKey]*sql.Stmt, numStmts)}
	if err := s.ensure(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensure() error {
	for _, ddl := range createTableStatements {
		if _, err := s.conn.Exec(ddl); err != nil {
			return fmt.Errorf("store: create tables: %w", err)
		}
	}
	for key, text := range stmtText {
		stmt, err := s.conn.Prepare(text)
		if err != nil {
			return fmt.Errorf("store: prepare statement %d: %w", key, err)
		}
		s.stmts[key] = stmt
	}
	return nil
}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS newsgroups (
		name VARCHAR(255) PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		creator TEXT NOT NULL DEFAULT '',
		create_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		moderated BOOLEAN NOT NULL DEFAULT false,
		deny_local_posting BOOLEAN NOT NULL DEFAULT false,
		deny_peer_posting BOOLEAN NOT NULL DEFAULT false,
		post_count BIGINT NOT NULL DEFAULT 0,
		low_watermark BIGINT NOT NULL DEFAULT 0,
		high_watermark BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		message_id VARCHAR(255) PRIMARY KEY,
		raw_header TEXT NOT NULL,
		body BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS article_newsgroups (
		message_id VARCHAR(255) NOT NULL REFERENCES articles(message_id),
		newsgroup VARCHAR(255) NOT NULL REFERENCES newsgroups(name),
		number BIGINT NOT NULL,
		cancelled BOOLEAN NOT NULL DEFAULT false,
		pending BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (newsgroup, number)
	)`,
	`CREATE INDEX IF NOT EXISTS article_newsgroups_visibility ON article_newsgroups (newsgroup, cancelled, pending, number)`,
	`CREATE TABLE IF NOT EXISTS administrators (
		username VARCHAR(255) PRIMARY KEY,
		credential_hash BYTEA NOT NULL,
		can_approve_any BOOLEAN NOT NULL DEFAULT false,
		can_cancel BOOLEAN NOT NULL DEFAULT false,
		can_inject BOOLEAN NOT NULL DEFAULT false,
		can_create_group BOOLEAN NOT NULL DEFAULT false,
		can_delete_group BOOLEAN NOT NULL DEFAULT false,
		can_check_groups BOOLEAN NOT NULL DEFAULT false,
		local_auth_only BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS administrator_moderates (
		username VARCHAR(255) NOT NULL REFERENCES administrators(username),
		newsgroup VARCHAR(255) NOT NULL,
		PRIMARY KEY (username, newsgroup)
	)`,
}

func (s *PostgresStore) logger() *log.Entry {
	return log.WithFields(log.Fields{"pkg": "store"})
}

func (s *PostgresStore) GetNewsgroupByName(ctx context.Context, name model.NewsgroupName) (*model.Newsgroup, error) {
	row := s.stmts[stGroupByName].QueryRowContext(ctx, name.String())
	g, err := scanNewsgroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSuchNewsgroup
	}
	return g, err
}

func scanNewsgroup(row *sql.Row) (*model.Newsgroup, error) {
	var g model.Newsgroup
	var name string
	if err := row.Scan(&name, &g.Description, &g.Creator, &g.CreateDate, &g.Moderated,
		&g.DenyLocalPosting, &g.DenyPeerPosting, &g.PostCount, &g.LowWatermark, &g.HighWatermark); err != nil {
		return nil, err
	}
	g.Name = model.NewsgroupName(name)
	return &g, nil
}

func (s *PostgresStore) GetArticleByMessageID(ctx context.Context, id model.MessageID) (*model.Article, []*model.ArticleNewsgroup, error) {
	row := s.stmts[stArticleByMsgID].QueryRowContext(ctx, id.String())
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNoSuchArticle
	}
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.stmts[stLinksByMsgID].QueryContext(ctx, id.String())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var links []*model.ArticleNewsgroup
	for rows.Next() {
		l := &model.ArticleNewsgroup{ArticleID: id}
		var group string
		if err := rows.Scan(&group, &l.Number, &l.Cancelled, &l.Pending); err != nil {
			return nil, nil, err
		}
		l.Newsgroup = model.NewsgroupName(group)
		links = append(links, l)
	}
	return a, links, rows.Err()
}

func scanArticle(row *sql.Row) (*model.Article, error) {
	var a model.Article
	var id, raw string
	var body []byte
	if err := row.Scan(&id, &raw, &body); err != nil {
		return nil, err
	}
	a.MessageID = model.MessageID(id)
	a.RawHeader = raw
	a.Body = body
	hdr, err := model.ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	a.Header = hdr
	return &a, nil
}

func (s *PostgresStore) GetArticleByNumber(ctx context.Context, group model.NewsgroupName, number int64, vis VisibilityFilter) (*model.Article, *model.ArticleNewsgroup, error) {
	row := s.stmts[stArticleByNumber].QueryRowContext(ctx, group.String(), number, vis.Cancelled, vis.Pending)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNoSuchArticle
	}
	if err != nil {
		return nil, nil, err
	}
	linkRow := s.stmts[stLinkByNumber].QueryRowContext(ctx, group.String(), number, vis.Cancelled, vis.Pending)
	l := &model.ArticleNewsgroup{ArticleID: a.MessageID}
	var g string
	if err := linkRow.Scan(&g, &l.Number, &l.Cancelled, &l.Pending); err != nil {
		return nil, nil, err
	}
	l.Newsgroup = model.NewsgroupName(g)
	return a, l, nil
}

func (s *PostgresStore) ListArticlesInRange(ctx context.Context, group model.NewsgroupName, lo, hi int64, max int, vis VisibilityFilter) ([]*model.ArticleNewsgroup, error) {
	rows, err := s.stmts[stRangeLinks].QueryContext(ctx, group.String(), lo, hi, vis.Cancelled, vis.Pending, max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ArticleNewsgroup
	for rows.Next() {
		l := &model.ArticleNewsgroup{}
		var g string
		if err := rows.Scan(&g, &l.Number, &l.Cancelled, &l.Pending); err != nil {
			return nil, err
		}
		l.Newsgroup = model.NewsgroupName(g)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListNewsgroups(ctx context.Context, q NewsgroupQuery) ([]*model.Newsgroup, error) {
	var since int64
	if q.CreatedSince != nil {
		since = *q.CreatedSince
	}
	// the SQL side does no wildmat matching of its own (wildmat syntax
	// doesn't map onto LIKE); stListGroups always selects all groups
	// and the LIST handler in lib/nntp applies the real wildmat filter
	// in memory.
	rows, err := s.stmts[stListGroups].QueryContext(ctx, "", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Newsgroup
	for rows.Next() {
		var g model.Newsgroup
		var name string
		if err := rows.Scan(&name, &g.Description, &g.Creator, &g.CreateDate, &g.Moderated,
			&g.DenyLocalPosting, &g.DenyPeerPosting, &g.PostCount, &g.LowWatermark, &g.HighWatermark); err != nil {
			return nil, err
		}
		g.Name = model.NewsgroupName(name)
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertArticle(ctx context.Context, a *model.Article, links []*model.ArticleNewsgroup) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.stmts[stInsertArticle]).ExecContext(ctx, a.MessageID.String(), a.RawHeader, a.Body); err != nil {
		return fmt.Errorf("store: insert article: %w", err)
	}
	for _, l := range links {
		if _, err := tx.StmtContext(ctx, s.stmts[stInsertLink]).ExecContext(ctx, a.MessageID.String(), l.Newsgroup.String(), l.Number, l.Cancelled, l.Pending); err != nil {
			return fmt.Errorf("store: insert link: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateArticleNewsgroup(ctx context.Context, link *model.ArticleNewsgroup) error {
	_, err := s.stmts[stUpdateLink].ExecContext(ctx, link.Newsgroup.String(), link.Number, link.Cancelled, link.Pending)
	return err
}

func (s *PostgresStore) NextNumber(ctx context.Context, group model.NewsgroupName) (int64, error) {
	row := s.stmts[stNextNumber].QueryRowContext(ctx, group.String())
	var n int64
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoSuchNewsgroup
		}
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) ListAdministrators(ctx context.Context) ([]*model.Administrator, error) {
	rows, err := s.stmts[stListAdmins].QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Administrator
	for rows.Next() {
		a, err := scanAdministrator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, a := range out {
		if err := s.loadModerates(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// loadModerates fills in the set of groups the administrator may
// approve pending posts for.
func (s *PostgresStore) loadModerates(ctx context.Context, a *model.Administrator) error {
	rows, err := s.stmts[stModeratesByUser].QueryContext(ctx, a.Username)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return err
		}
		a.Moderates[model.NewsgroupName(g)] = true
	}
	return rows.Err()
}

func (s *PostgresStore) GetAdministratorByUsername(ctx context.Context, username string) (*model.Administrator, error) {
	row := s.stmts[stAdminByUsername].QueryRowContext(ctx, username)
	a, err := scanAdministratorRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSuchAdministrator
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadModerates(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAdministrator(rows *sql.Rows) (*model.Administrator, error) {
	return scanAdministratorScanner(rows)
}

func scanAdministratorRow(row *sql.Row) (*model.Administrator, error) {
	return scanAdministratorScanner(row)
}

func scanAdministratorScanner(sc scanner) (*model.Administrator, error) {
	var a model.Administrator
	if err := sc.Scan(&a.Username, &a.CredentialHash, &a.CanApproveAny, &a.CanCancel, &a.CanInject,
		&a.CanCreateGroup, &a.CanDeleteGroup, &a.CanCheckGroups, &a.LocalAuthenticationOnly); err != nil {
		return nil, err
	}
	a.Moderates = make(map[model.NewsgroupName]bool)
	return &a, nil
}

func (s *PostgresStore) UpsertNewsgroup(ctx context.Context, g *model.Newsgroup) error {
	_, err := s.stmts[stUpsertGroup].ExecContext(ctx, g.Name.String(), g.Description, g.Creator, g.CreateDate,
		g.Moderated, g.DenyLocalPosting, g.DenyPeerPosting)
	return err
}

func (s *PostgresStore) DeleteNewsgroup(ctx context.Context, name model.NewsgroupName) error {
	_, err := s.stmts[stDeleteGroup].ExecContext(ctx, name.String())
	return err
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}
