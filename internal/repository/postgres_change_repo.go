package repository

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/hitoshi/coachnotify/internal/model"
)

// PostgresChangeRepo はdocument_changesテーブル（変更フィードのアウトボックス）のリポジトリ。
type PostgresChangeRepo struct {
	db *sql.DB
}

// NewPostgresChangeRepo はPostgresChangeRepoを生成する。
func NewPostgresChangeRepo(db *sql.DB) *PostgresChangeRepo {
	return &PostgresChangeRepo{db: db}
}

// ClaimPending は未処理の変更をFOR UPDATE SKIP LOCKEDで排他的に取得し、
// 同一文の中でprocessed_atを設定する。取得した変更はID順に並ぶ。
func (r *PostgresChangeRepo) ClaimPending(ctx context.Context, limit int) ([]*model.Change, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE document_changes SET processed_at = now()
		 WHERE id IN (
		     SELECT id FROM document_changes
		     WHERE processed_at IS NULL
		     ORDER BY id ASC
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, collection, change_type, document_id, before_state, after_state,
		           created_at, processed_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("未処理の変更の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var changes []*model.Change
	for rows.Next() {
		c := &model.Change{}
		var before, after []byte
		var processedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Collection, &c.Type, &c.DocumentID, &before, &after,
			&c.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("変更の読み取りに失敗しました: %w", err)
		}
		c.After = after
		if len(before) > 0 {
			c.Before = before
		}
		if processedAt.Valid {
			t := processedAt.Time
			c.ProcessedAt = &t
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("変更の走査に失敗しました: %w", err)
	}

	// RETURNINGの順序は保証されないためID順に並べ直す
	sortChangesByID(changes)
	return changes, nil
}

// DeleteProcessedBefore はbefore以前に処理済みとなった変更を削除する。
func (r *PostgresChangeRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM document_changes WHERE processed_at IS NOT NULL AND processed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed changes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func sortChangesByID(changes []*model.Change) {
	slices.SortFunc(changes, func(a, b *model.Change) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// compile-time interface check
var _ ChangeRepository = (*PostgresChangeRepo)(nil)
