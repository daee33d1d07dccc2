// Package cleanup は処理済みドキュメント変更の自動削除ジョブを提供する。
// 保持期間（デフォルト7日）を超過したdocument_changesの行を日次バッチで削除する。
// 未処理の変更は保持期間に関わらず削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ChangePruner は処理済み変更の削除インターフェース。
type ChangePruner interface {
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した処理済み変更の自動削除ジョブ。
// 冪等な削除処理で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	changes       ChangePruner
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 処理済み変更の保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合は7日を使う。
func NewCleanupJob(changes ChangePruner, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &CleanupJob{
		changes:       changes,
		logger:        logger,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Run はprocessed_atがRetentionDays日前より古い変更を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.changes.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("変更クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("変更クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("変更クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
