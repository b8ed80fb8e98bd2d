package store

import (
	"context"
	"database/sql"
	"time"
)

// Checkpoint is the last completed pipeline stage for a document run.
type Checkpoint struct {
	ThreadKey string
	Stage     string
	State     []byte
	UpdatedAt time.Time
}

// SaveCheckpoint replaces the checkpoint for threadKey.
func (s *Store) SaveCheckpoint(ctx context.Context, threadKey, stage string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_key, stage, state_json, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_key) DO UPDATE SET stage = excluded.stage, state_json = excluded.state_json, updated_at = excluded.updated_at`,
		threadKey, stage, string(state), time.Now())
	return err
}

// LoadCheckpoint returns the checkpoint for threadKey, or nil if none.
func (s *Store) LoadCheckpoint(ctx context.Context, threadKey string) (*Checkpoint, error) {
	cp := Checkpoint{ThreadKey: threadKey}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT stage, state_json, updated_at FROM checkpoints WHERE thread_key = ?`, threadKey).
		Scan(&cp.Stage, &state, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp.State = []byte(state)
	return &cp, nil
}

// ClearCheckpoint removes the checkpoint for threadKey.
func (s *Store) ClearCheckpoint(ctx context.Context, threadKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_key = ?`, threadKey)
	return err
}
