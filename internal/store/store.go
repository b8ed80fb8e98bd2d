// Package store persists glossary entries, do-not-translate lists,
// translation memory segments, the retrieval corpus and pipeline checkpoints
// in a single SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and applies the
// schema. Writes are serialised through a single connection; SQLite allows
// one writer at a time anyway and this keeps glossary read-modify-write
// sequences atomic without busy retries.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// The global client and cross-domain scope are stored as empty strings rather than
// NULL so the composite primary keys stay unique.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS glossary (
		client_id TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT '',
		concept_key TEXT NOT NULL,
		lang TEXT NOT NULL,
		preferred TEXT NOT NULL DEFAULT '',
		variants_json TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (client_id, domain, concept_key, lang)
	);

	CREATE TABLE IF NOT EXISTS dnt_client (
		client_id TEXT NOT NULL,
		term TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (client_id, term)
	);

	-- tm_segments is append-only; every accepted pair is a new row
	CREATE TABLE IF NOT EXISTS tm_segments (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		src_lang TEXT NOT NULL,
		tgt_lang TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		src_text TEXT NOT NULL,
		tgt_text TEXT NOT NULL,
		src_vec BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- rag_sources lists curated seed URLs per domain, tried before web search
	CREATE TABLE IF NOT EXISTS rag_sources (
		url TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rag_docs (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		vec BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- checkpoints holds the last completed pipeline stage per document run
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_key TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		state_json TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_glossary_concept_lang ON glossary(concept_key, lang);
	CREATE INDEX IF NOT EXISTS idx_glossary_client_domain ON glossary(client_id, domain);
	CREATE INDEX IF NOT EXISTS idx_tm_lookup ON tm_segments(client_id, src_lang, tgt_lang);
	CREATE INDEX IF NOT EXISTS idx_rag_domain ON rag_docs(domain);
	CREATE INDEX IF NOT EXISTS idx_rag_client ON rag_docs(client_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization so
// composed and decomposed forms compare equal.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
