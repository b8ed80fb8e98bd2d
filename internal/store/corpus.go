package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source is a curated seed URL for a domain.
type Source struct {
	URL    string `yaml:"url"`
	Domain string `yaml:"-"`
	Title  string `yaml:"title"`
	Year   int    `yaml:"year"`
	Notes  string `yaml:"notes"`
}

// CorpusDoc is one ingested retrieval document.
type CorpusDoc struct {
	ID       string
	Domain   string
	ClientID string
	URL      string
	Title    string
	Content  string
	Vector   []float32
}

// AddSource records a seed URL; an existing URL is left unchanged. It
// reports whether a row was inserted.
func (s *Store) AddSource(ctx context.Context, src Source) (bool, error) {
	if src.URL == "" || src.Domain == "" {
		return false, fmt.Errorf("source url and domain are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rag_sources (url, domain, title, year, notes) VALUES (?, ?, ?, ?, ?)`,
		src.URL, src.Domain, src.Title, src.Year, src.Notes)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SourcesFor returns the seed URLs registered for domain.
func (s *Store) SourcesFor(ctx context.Context, domain string) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, domain, title, year, notes FROM rag_sources WHERE domain = ? ORDER BY year DESC, url`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.URL, &src.Domain, &src.Title, &src.Year, &src.Notes); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// InsertDocs stores documents with their vectors in one transaction.
func (s *Store) InsertDocs(ctx context.Context, docs []CorpusDoc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rag_docs (id, domain, client_id, url, title, content, vec, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		vec, err := json.Marshal(d.Vector)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Domain, d.ClientID, d.URL, d.Title, d.Content, vec, time.Now()); err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
	}
	return tx.Commit()
}

// DocsFor returns documents filed under domain or owned by client (when
// client is non-empty).
func (s *Store) DocsFor(ctx context.Context, domain, client string) ([]CorpusDoc, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, client_id, url, title, content, vec FROM rag_docs
		 WHERE domain = ? OR (client_id <> '' AND client_id = ?)`,
		domain, client)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CorpusDoc
	for rows.Next() {
		var d CorpusDoc
		var vec []byte
		if err := rows.Scan(&d.ID, &d.Domain, &d.ClientID, &d.URL, &d.Title, &d.Content, &vec); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(vec, &d.Vector); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// HasDocURL reports whether url was already ingested for domain.
func (s *Store) HasDocURL(ctx context.Context, domain, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rag_docs WHERE domain = ? AND url = ?`, domain, url).Scan(&n)
	return n > 0, err
}
