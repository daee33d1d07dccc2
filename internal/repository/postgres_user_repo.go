package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/coachnotify/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var rejectionReason sql.NullString
	var tokens pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, role, status, rejection_reason, fcm_tokens,
		        created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.FirstName, &user.LastName, &user.Role, &user.Status,
		&rejectionReason, &tokens, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	user.RejectionReason = nullStringValue(rejectionReason)
	user.FCMTokens = []string(tokens)
	return user, nil
}

// UpdateTokens はユーザーのFCMトークン一覧を置き換える。
// ユーザーが存在しない場合は何もしない。
func (r *PostgresUserRepo) UpdateTokens(ctx context.Context, id string, tokens []string) error {
	if tokens == nil {
		tokens = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET fcm_tokens = $2, updated_at = now() WHERE id = $1`,
		id, pq.Array(tokens),
	)
	if err != nil {
		return fmt.Errorf("failed to update fcm tokens: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
