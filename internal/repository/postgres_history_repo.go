package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/textcheck/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した履歴リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Append は履歴レコードを追加する。
func (r *PostgresHistoryRepo) Append(ctx context.Context, entry *model.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_history (id, identity_id, kind, fingerprint, excerpt, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.IdentityID, string(entry.Kind), entry.Fingerprint, entry.Excerpt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// ListByIdentity は指定アイデンティティの履歴を新しい順に最大limit件返す。
func (r *PostgresHistoryRepo) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*model.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, identity_id, kind, fingerprint, excerpt, created_at
		 FROM job_history
		 WHERE identity_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		identityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*model.HistoryEntry
	for rows.Next() {
		entry := &model.HistoryEntry{}
		var kind string
		if err := rows.Scan(&entry.ID, &entry.IdentityID, &kind, &entry.Fingerprint, &entry.Excerpt, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Kind = model.JobKind(kind)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}

	return entries, nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
