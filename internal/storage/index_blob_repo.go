package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"docchat/internal/util"
)

// IndexBlobRepo stores serialized session indexes in Postgres.
type IndexBlobRepo struct {
	conn Conn
}

func NewIndexBlobRepo(conn Conn) *IndexBlobRepo {
	return &IndexBlobRepo{conn: conn}
}

func (r *IndexBlobRepo) Save(ctx context.Context, sessionID string, blob []byte) error {
	_, err := r.conn.Exec(ctx, `
INSERT INTO index_blobs (session_id, blob)
VALUES ($1, $2)
ON CONFLICT (session_id)
DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()`, sessionID, blob)
	if err != nil {
		return fmt.Errorf("upsert index blob %s: %w", sessionID, err)
	}
	return nil
}

func (r *IndexBlobRepo) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var blob []byte
	err := r.conn.QueryRow(ctx, `SELECT blob FROM index_blobs WHERE session_id=$1`, sessionID).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.Errorf(util.ErrIndexNotFound, "storage.IndexBlobRepo.Load", "no index for session %s", sessionID)
		}
		return nil, fmt.Errorf("load index blob %s: %w", sessionID, err)
	}
	return blob, nil
}

func (r *IndexBlobRepo) Exists(ctx context.Context, sessionID string) (bool, error) {
	var ok bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM index_blobs WHERE session_id=$1)`, sessionID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check index blob %s: %w", sessionID, err)
	}
	return ok, nil
}

func (r *IndexBlobRepo) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT session_id FROM index_blobs ORDER BY created_at ASC, session_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list index blobs: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan index blob: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index blobs: %w", err)
	}
	return out, nil
}

func (r *IndexBlobRepo) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM index_blobs WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete index blob %s: %w", sessionID, err)
	}
	return nil
}
