package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/textcheck/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresIdentityRepo はPostgreSQLを使用したアイデンティティリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// Create はアイデンティティを新規作成する。
// ユーザー名の一意制約違反はmodel.ErrDuplicateUsernameに変換する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, username, email, credential_hash, tier, usage_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		identity.ID, identity.Username, identity.Email, identity.CredentialHash,
		string(identity.Tier), identity.UsageCount, identity.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.ErrDuplicateUsername
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	return r.findBy(ctx, `WHERE id = $1`, id)
}

// FindByUsername は指定ユーザー名のアイデンティティを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByUsername(ctx context.Context, username string) (*model.Identity, error) {
	return r.findBy(ctx, `WHERE username = $1`, username)
}

func (r *PostgresIdentityRepo) findBy(ctx context.Context, where string, arg any) (*model.Identity, error) {
	identity := &model.Identity{}
	var tier string
	var lastAuthAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, credential_hash, tier, usage_count, created_at, last_auth_at
		 FROM identities `+where,
		arg,
	).Scan(&identity.ID, &identity.Username, &identity.Email, &identity.CredentialHash,
		&tier, &identity.UsageCount, &identity.CreatedAt, &lastAuthAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	identity.Tier = model.Tier(tier)
	if lastAuthAt.Valid {
		t := lastAuthAt.Time
		identity.LastAuthAt = &t
	}
	return identity, nil
}

// ReserveUsage は利用枠の確認とカウンタ加算を単一の条件付きUPDATEで実行する。
// 行レベルロックにより、アイデンティティごとに線形化可能。
func (r *PostgresIdentityRepo) ReserveUsage(ctx context.Context, id string, freeLimit int) (*model.Identity, error) {
	identity := &model.Identity{}
	var tier string
	var lastAuthAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`UPDATE identities
		 SET usage_count = usage_count + 1
		 WHERE id = $1 AND (tier = 'premium' OR usage_count < $2)
		 RETURNING id, username, email, credential_hash, tier, usage_count, created_at, last_auth_at`,
		id, freeLimit,
	).Scan(&identity.ID, &identity.Username, &identity.Email, &identity.CredentialHash,
		&tier, &identity.UsageCount, &identity.CreatedAt, &lastAuthAt)

	if err == sql.ErrNoRows {
		// 更新対象なし: 存在しないのか上限超過なのかを判別する
		var exists bool
		checkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM identities WHERE id = $1)`, id,
		).Scan(&exists)
		if checkErr != nil {
			return nil, fmt.Errorf("failed to check identity existence: %w", checkErr)
		}
		if !exists {
			return nil, model.ErrNotFound
		}
		return nil, model.ErrQuotaExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve usage: %w", err)
	}

	identity.Tier = model.Tier(tier)
	if lastAuthAt.Valid {
		t := lastAuthAt.Time
		identity.LastAuthAt = &t
	}
	return identity, nil
}

// SetPremium は階層をプレミアムに更新する。冪等。
func (r *PostgresIdentityRepo) SetPremium(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET tier = 'premium' WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set premium: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// UpdateLastAuth は最終認証日時を更新する。
func (r *PostgresIdentityRepo) UpdateLastAuth(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET last_auth_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last auth: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
