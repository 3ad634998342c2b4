// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library maintains the local index of rendered books: a SQLite
// database plus a YAML record per book, so renders are discoverable without
// re-opening the PDFs.
package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/teticio/kindle2pdf/pkg/types"
)

const (
	dbFile   = "library.db"
	booksDir = "books"
)

// Store manages the rendered-book index.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens or creates the index database under cfg.Dir and ensures the
// schema exists.
func Open(cfg types.LibraryConfig) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(cfg.Dir, booksDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating library directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening library database: %w", err)
	}

	s := &Store{db: db, dir: cfg.Dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS books (
		asin TEXT PRIMARY KEY,
		title TEXT,
		pages INTEGER,
		pdf_path TEXT,
		rendered_at TEXT,
		uploaded INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("executing schema statement: %w", err)
	}
	return nil
}

// Record upserts the index row for a book and writes its YAML record under
// books/<asin>.yaml.
func (s *Store) Record(b types.Book) error {
	_, err := s.db.Exec(
		`INSERT INTO books (asin, title, pages, pdf_path, rendered_at, uploaded)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(asin) DO UPDATE SET
		   title = excluded.title,
		   pages = excluded.pages,
		   pdf_path = excluded.pdf_path,
		   rendered_at = excluded.rendered_at,
		   uploaded = excluded.uploaded`,
		b.ASIN, b.Title, b.Pages, b.PDFPath, b.RenderedAt.UTC().Format("2006-01-02T15:04:05Z"), boolToInt(b.Uploaded),
	)
	if err != nil {
		return fmt.Errorf("recording book %s: %w", b.ASIN, err)
	}

	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding book record: %w", err)
	}
	path := filepath.Join(s.dir, booksDir, b.ASIN+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing book record: %w", err)
	}
	return nil
}

// MarkUploaded flags a book as uploaded to reMarkable.
func (s *Store) MarkUploaded(asin string) error {
	res, err := s.db.Exec(`UPDATE books SET uploaded = 1 WHERE asin = ?`, asin)
	if err != nil {
		return fmt.Errorf("marking %s uploaded: %w", asin, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %s not in library", asin)
	}
	return nil
}

// List returns all books, most recently rendered first.
func (s *Store) List() ([]types.Book, error) {
	rows, err := s.db.Query(
		`SELECT asin, title, pages, pdf_path, rendered_at, uploaded
		 FROM books ORDER BY rendered_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying library: %w", err)
	}
	defer rows.Close()

	var books []types.Book
	for rows.Next() {
		var b types.Book
		var renderedAt string
		var uploaded int
		if err := rows.Scan(&b.ASIN, &b.Title, &b.Pages, &b.PDFPath, &renderedAt, &uploaded); err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		if b.RenderedAt, err = parseTime(renderedAt); err != nil {
			return nil, fmt.Errorf("parsing rendered_at for %s: %w", b.ASIN, err)
		}
		b.Uploaded = uploaded != 0
		books = append(books, b)
	}
	return books, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
