package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MemoryEntry is a row from the tm_segments table.
type MemoryEntry struct {
	ID         string
	ClientID   string
	SourceLang string
	TargetLang string
	Domain     string
	SourceText string
	TargetText string
	Vector     []float32
	CreatedAt  time.Time
}

// CacheStats summarises translation memory usage.
type CacheStats struct {
	TotalEntries int
	Clients      int
	LangPairs    int
}

// InsertMemory appends an accepted segment pair. Rows are never updated;
// the same source stored twice yields two rows.
func (s *Store) InsertMemory(ctx context.Context, e MemoryEntry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return "", fmt.Errorf("encoding embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tm_segments (id, client_id, src_lang, tgt_lang, domain, src_text, tgt_text, src_vec, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClientID, e.SourceLang, e.TargetLang, e.Domain,
		normalizeText(e.SourceText), e.TargetText, vec, time.Now())
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// MemoryCandidates returns every stored segment for the exact
// (client, source language, target language) scope with its vector decoded.
// Rows whose vector cannot be decoded are skipped.
func (s *Store) MemoryCandidates(ctx context.Context, client, srcLang, tgtLang string) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, src_text, tgt_text, src_vec, created_at FROM tm_segments
		 WHERE client_id = ? AND src_lang = ? AND tgt_lang = ? AND src_vec IS NOT NULL`,
		client, srcLang, tgtLang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemoryEntry
	for rows.Next() {
		e := MemoryEntry{ClientID: client, SourceLang: srcLang, TargetLang: tgtLang}
		var vec []byte
		if err := rows.Scan(&e.ID, &e.Domain, &e.SourceText, &e.TargetText, &vec, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(vec, &e.Vector); err != nil || len(e.Vector) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListMemory returns segments newest first, optionally restricted to one
// client. Vectors are not loaded.
func (s *Store) ListMemory(ctx context.Context, client string, limit int) ([]MemoryEntry, error) {
	query := `SELECT id, client_id, src_lang, tgt_lang, domain, src_text, tgt_text, created_at FROM tm_segments`
	var args []any
	if client != "" {
		query += ` WHERE client_id = ?`
		args = append(args, client)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.SourceLang, &e.TargetLang, &e.Domain, &e.SourceText, &e.TargetText, &e.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// MemoryStats returns summary statistics for the translation memory.
func (s *Store) MemoryStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT client_id),
			COUNT(DISTINCT src_lang || '>' || tgt_lang)
		FROM tm_segments`).Scan(&stats.TotalEntries, &stats.Clients, &stats.LangPairs)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearMemory deletes the client's segments, or every segment when client is
// empty, and returns the number removed.
func (s *Store) ClearMemory(ctx context.Context, client string) (int64, error) {
	query := `DELETE FROM tm_segments`
	var args []any
	if client != "" {
		query += ` WHERE client_id = ?`
		args = append(args, client)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteMemory removes one segment by id.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tm_segments WHERE id = ?`, id)
	return err
}
