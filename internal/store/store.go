// Package store persists visitor metrics, tracked outbound links and the
// outcome of contact dispatches in a local sqlite database. Message
// content is never stored.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nrednav/cuid2"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *sqlx.DB
}

// Visit is a privacy-conscious page view: the client IP is only kept as a
// salted hash.
type Visit struct {
	ID        int64  `db:"id" json:"id"`
	HashedIP  string `db:"hashed_ip" json:"hashed_ip"`
	UserAgent string `db:"user_agent" json:"user_agent"`
	Path      string `db:"path" json:"path"`
	CreatedAt int64  `db:"created_at" json:"-"`
}

func (v Visit) Time() time.Time { return time.Unix(v.CreatedAt, 0) }

// Link is an outbound project or profile link with a click counter.
type Link struct {
	Slug   string `db:"slug" json:"slug"`
	URL    string `db:"url" json:"url"`
	Label  string `db:"label" json:"label"`
	Clicks int64  `db:"clicks" json:"clicks"`
}

type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// Submission records one dispatch attempt without its content.
type Submission struct {
	ID         string  `db:"id" json:"id"`
	Outcome    Outcome `db:"outcome" json:"outcome"`
	Error      string  `db:"error" json:"error,omitempty"`
	DurationMS int64   `db:"duration_ms" json:"duration_ms"`
	CreatedAt  int64   `db:"created_at" json:"-"`
}

func (s Submission) Time() time.Time { return time.Unix(s.CreatedAt, 0) }

type Stats struct {
	TotalVisitors     int64        `json:"total_visitors"`
	UniqueVisitors    int64        `json:"unique_visitors"`
	VisitorsToday     int64        `json:"visitors_today"`
	VisitorsThisWeek  int64        `json:"visitors_this_week"`
	TotalClicks       int64        `json:"total_clicks"`
	MessagesSent      int64        `json:"messages_sent"`
	MessagesFailed    int64        `json:"messages_failed"`
	TopLinks          []Link       `json:"top_links"`
	RecentVisitors    []Visit      `json:"recent_visitors"`
	RecentSubmissions []Submission `json:"recent_submissions"`
}

// Open connects to the sqlite database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite serialises writers anyway; one connection also keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS visitors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hashed_ip TEXT NOT NULL,
			user_agent TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS visitors_created_at ON visitors (created_at)`,
		`CREATE TABLE IF NOT EXISTS links (
			slug TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			clicks INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordVisit(ctx context.Context, v Visit) error {
	if v.CreatedAt == 0 {
		v.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO visitors (hashed_ip, user_agent, path, created_at)
		VALUES (:hashed_ip, :user_agent, :path, :created_at)`, v)
	if err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}
	return nil
}

// PruneVisits deletes visits older than before and returns how many went.
func (s *Store) PruneVisits(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visitors WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning visits: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) RecentVisits(ctx context.Context, limit int) ([]Visit, error) {
	var visits []Visit
	err := s.db.SelectContext(ctx, &visits, `
		SELECT id, hashed_ip, user_agent, path, created_at
		FROM visitors
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing visits: %w", err)
	}
	return visits, nil
}

// SeedLinks inserts or updates the tracked links, keeping click counts.
func (s *Store) SeedLinks(ctx context.Context, links []Link) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seeding links: %w", err)
	}
	defer tx.Rollback()

	for _, l := range links {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO links (slug, url, label) VALUES (:slug, :url, :label)
			ON CONFLICT (slug) DO UPDATE SET url = excluded.url, label = excluded.label`, l)
		if err != nil {
			return fmt.Errorf("seeding link %s: %w", l.Slug, err)
		}
	}
	return tx.Commit()
}

// Click increments the counter of slug and returns the link.
func (s *Store) Click(ctx context.Context, slug string) (Link, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE links SET clicks = clicks + 1 WHERE slug = ?`, slug)
	if err != nil {
		return Link{}, fmt.Errorf("counting click: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Link{}, ErrNotFound
	}

	var l Link
	if err := s.db.GetContext(ctx, &l, `SELECT slug, url, label, clicks FROM links WHERE slug = ?`, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Link{}, ErrNotFound
		}
		return Link{}, fmt.Errorf("loading link: %w", err)
	}
	return l, nil
}

func (s *Store) Links(ctx context.Context) ([]Link, error) {
	var links []Link
	err := s.db.SelectContext(ctx, &links, `SELECT slug, url, label, clicks FROM links ORDER BY clicks DESC, slug`)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	return links, nil
}

// RecordSubmission stores a dispatch outcome and returns its reference id.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) (string, error) {
	if sub.ID == "" {
		sub.ID = cuid2.Generate()
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO submissions (id, outcome, error, duration_ms, created_at)
		VALUES (:id, :outcome, :error, :duration_ms, :created_at)`, sub)
	if err != nil {
		return "", fmt.Errorf("recording submission: %w", err)
	}
	return sub.ID, nil
}

func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	var subs []Submission
	err := s.db.SelectContext(ctx, &subs, `
		SELECT id, outcome, error, duration_ms, created_at
		FROM submissions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	return subs, nil
}

// Stats aggregates the admin dashboard figures relative to now.
func (s *Store) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{}
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.TotalVisitors, `SELECT COUNT(*) FROM visitors`, nil},
		{&stats.UniqueVisitors, `SELECT COUNT(DISTINCT hashed_ip) FROM visitors`, nil},
		{&stats.VisitorsToday, `SELECT COUNT(*) FROM visitors WHERE created_at >= ?`, []any{startOfDay.Unix()}},
		{&stats.VisitorsThisWeek, `SELECT COUNT(*) FROM visitors WHERE created_at >= ?`, []any{now.Add(-7 * 24 * time.Hour).Unix()}},
		{&stats.TotalClicks, `SELECT COALESCE(SUM(clicks), 0) FROM links`, nil},
		{&stats.MessagesSent, `SELECT COUNT(*) FROM submissions WHERE outcome = ?`, []any{OutcomeSent}},
		{&stats.MessagesFailed, `SELECT COUNT(*) FROM submissions WHERE outcome = ?`, []any{OutcomeFailed}},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, c.query, c.args...); err != nil {
			return nil, fmt.Errorf("loading stats: %w", err)
		}
	}

	var err error
	if stats.TopLinks, err = s.Links(ctx); err != nil {
		return nil, err
	}
	if len(stats.TopLinks) > 10 {
		stats.TopLinks = stats.TopLinks[:10]
	}
	if stats.RecentVisitors, err = s.RecentVisits(ctx, 50); err != nil {
		return nil, err
	}
	if stats.RecentSubmissions, err = s.RecentSubmissions(ctx, 20); err != nil {
		return nil, err
	}
	return stats, nil
}
