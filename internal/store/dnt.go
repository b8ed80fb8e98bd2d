package store

import (
	"context"
	"fmt"
)

// AddDNT adds term to the client's do-not-translate list. Adding an
// existing term is a no-op.
func (s *Store) AddDNT(ctx context.Context, client, term string) error {
	term = normalizeText(term)
	if client == "" || term == "" {
		return fmt.Errorf("client and term are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dnt_client (client_id, term) VALUES (?, ?)`, client, term)
	return err
}

// RemoveDNT deletes term from the client's list and reports whether it was
// present.
func (s *Store) RemoveDNT(ctx context.Context, client, term string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dnt_client WHERE client_id = ? AND term = ?`, client, normalizeText(term))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DNTList returns the client's do-not-translate terms in lexical order.
func (s *Store) DNTList(ctx context.Context, client string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term FROM dnt_client WHERE client_id = ? ORDER BY term`, client)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}
