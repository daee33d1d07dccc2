package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/coachnotify/internal/model"
)

// PostgresSessionPackageRepo はsession_packagesテーブルのリポジトリ。
type PostgresSessionPackageRepo struct {
	db *sql.DB
}

// NewPostgresSessionPackageRepo はPostgresSessionPackageRepoを生成する。
func NewPostgresSessionPackageRepo(db *sql.DB) *PostgresSessionPackageRepo {
	return &PostgresSessionPackageRepo{db: db}
}

// FindByClientAndTrainer はペアに対応する最も古いパッケージを返す。見つからない場合はnilを返す。
func (r *PostgresSessionPackageRepo) FindByClientAndTrainer(ctx context.Context, clientID, trainerID string) (*model.SessionPackage, error) {
	p := &model.SessionPackage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, trainer_id, sessions_remaining, created_at, updated_at
		 FROM session_packages
		 WHERE client_id = $1 AND trainer_id = $2
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		clientID, trainerID,
	).Scan(&p.ID, &p.ClientID, &p.TrainerID, &p.SessionsRemaining, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session package: %w", err)
	}
	return p, nil
}

// UpdateSessionsRemaining は残セッション数を上書きする。
func (r *PostgresSessionPackageRepo) UpdateSessionsRemaining(ctx context.Context, id string, remaining int, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE session_packages SET sessions_remaining = $2, updated_at = $3 WHERE id = $1`,
		id, remaining, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session package: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session package not found: %s", id)
	}
	return nil
}

// PostgresPaymentHistoryRepo はpayment_historyテーブルのリポジトリ。
type PostgresPaymentHistoryRepo struct {
	db *sql.DB
}

// NewPostgresPaymentHistoryRepo はPostgresPaymentHistoryRepoを生成する。
func NewPostgresPaymentHistoryRepo(db *sql.DB) *PostgresPaymentHistoryRepo {
	return &PostgresPaymentHistoryRepo{db: db}
}

// Create は決済履歴を追加する。
func (r *PostgresPaymentHistoryRepo) Create(ctx context.Context, h *model.PaymentHistory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_history
		   (id, client_id, trainer_id, session_package_id, amount, sessions_purchased,
		    stripe_payment_intent_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.ClientID, h.TrainerID, h.SessionPackageID, h.Amount, h.SessionsPurchased,
		h.StripePaymentIntentID, h.Status, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment history: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ SessionPackageRepository = (*PostgresSessionPackageRepo)(nil)
	_ PaymentHistoryRepository = (*PostgresPaymentHistoryRepo)(nil)
)
