// Package postgres provides Postgres-backed persistence for crawl results.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ResultStoreConfig controls the Postgres connection pool used for crawl
// result rows.
type ResultStoreConfig struct {
	DSN             string
	SessionsTable   string
	PagesTable      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultStore writes completed sessions and their pages into Postgres. One
// session row carries the plan, answer, and knowledge snapshot as JSONB;
// page rows are one per PageRecord.
type ResultStore struct {
	pool          execCloser
	sessionsTable string
	pagesTable    string
}

// NewResultStore creates a Postgres-backed ResultStore using the provided
// config.
func NewResultStore(ctx context.Context, cfg ResultStoreConfig) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	sessions, pages, err := tableNames(cfg.SessionsTable, cfg.PagesTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultStore{pool: pool, sessionsTable: sessions, pagesTable: pages}, nil
}

// NewResultStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewResultStoreWithPool(pool execCloser, sessionsTable, pagesTable string) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	sessions, pages, err := tableNames(sessionsTable, pagesTable)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: pool, sessionsTable: sessions, pagesTable: pages}, nil
}

func tableNames(sessions, pages string) (string, string, error) {
	if sessions == "" {
		sessions = "crawl_sessions"
	}
	if pages == "" {
		pages = "crawl_pages"
	}
	for _, t := range []string{sessions, pages} {
		if !validTableName.MatchString(t) {
			return "", "", fmt.Errorf("invalid table name %q", t)
		}
	}
	return sessions, pages, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreResult inserts the session row and one row per page.
func (s *ResultStore) StoreResult(ctx context.Context, result crawler.Result) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	if result.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	planJSON, err := json.Marshal(result.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	knowledgeJSON, err := json.Marshal(result.Knowledge)
	if err != nil {
		return fmt.Errorf("marshal knowledge: %w", err)
	}

	sessionQuery := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	objective,
	start_url,
	started_at,
	finished_at,
	plan,
	knowledge,
	answer,
	page_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.sessionsTable)

	args := []any{
		result.SessionID,
		result.Objective,
		result.StartURL,
		result.StartedAt,
		result.FinishedAt,
		planJSON,
		knowledgeJSON,
		result.Answer,
		len(result.Pages),
	}
	if _, err := s.pool.Exec(ctx, sessionQuery, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, page := range result.Pages {
		if err := s.storePage(ctx, result.SessionID, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *ResultStore) storePage(ctx context.Context, sessionID string, page crawler.PageRecord) error {
	sectionsJSON, err := json.Marshal(page.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections for %s: %w", page.URL, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	url,
	title,
	fetched_at,
	phase,
	page_type,
	relevance_score,
	sections,
	links_found
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.pagesTable)

	args := []any{
		sessionID,
		page.URL,
		page.Title,
		page.FetchedAt,
		string(page.Phase),
		page.PageType,
		page.RelevanceScore,
		sectionsJSON,
		page.LinksFound,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert page %s: %w", page.URL, err)
	}
	return nil
}
