// Package site is the content site served behind the page cache:
// markdown pages kept in SQLite and rendered to HTML.
package site

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

var ErrNotFound = errors.New("page not found")

type Page struct {
	Section   string
	Slug      string
	Title     string
	Body      string
	UpdatedAt time.Time
}

// Path returns the URL path the page is served at.
func (p Page) Path() string {
	return "/" + p.Section + "/" + p.Slug
}

type Store struct {
	db *sql.DB
}

// Open opens (and creates, if needed) the SQLite database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer, and ":memory:" databases are per connection
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS pages (
		section TEXT NOT NULL,
		slug TEXT NOT NULL,
		title TEXT NOT NULL,
		body_md TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (section, slug)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create pages table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Seed fills an empty database with a few pages.
func (s *Store) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	now := time.Now()
	for _, p := range seedPages {
		p.UpdatedAt = now
		if err := s.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Page(ctx context.Context, section, slug string) (Page, error) {
	p := Page{Section: section, Slug: slug}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT title, body_md, updated_at FROM pages WHERE section = ? AND slug = ?",
		section, slug).Scan(&p.Title, &p.Body, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

// List returns the pages of a section, newest first. An empty section lists all pages.
func (s *Store) List(ctx context.Context, section string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section, slug, title, body_md, updated_at FROM pages
		WHERE ? = '' OR section = ?
		ORDER BY updated_at DESC, slug ASC`, section, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pages []Page
	for rows.Next() {
		var p Page
		var updated int64
		if err := rows.Scan(&p.Section, &p.Slug, &p.Title, &p.Body, &updated); err != nil {
			return nil, err
		}
		p.UpdatedAt = time.Unix(updated, 0)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// Sections returns the names of all sections that have pages.
func (s *Store) Sections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT section FROM pages ORDER BY section")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sections []string
	for rows.Next() {
		var section string
		if err := rows.Scan(&section); err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

// Save inserts or replaces a page.
func (s *Store) Save(ctx context.Context, p Page) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO pages (section, slug, title, body_md, updated_at) VALUES (?, ?, ?, ?, ?)",
		p.Section, p.Slug, p.Title, p.Body, p.UpdatedAt.Unix())
	return err
}

var seedPages = []Page{
	{Section: "blog", Slug: "hello", Title: "Hello", Body: "# Hello\n\nThe first post on this site."},
	{Section: "blog", Slug: "caching", Title: "On caching", Body: "Pages are served from memory and *refreshed in the background*."},
	{Section: "portfolio", Slug: "pagecache", Title: "Page cache", Body: "A stale-while-revalidate page cache.\n\n- fresh\n- stale\n- miss"},
}
