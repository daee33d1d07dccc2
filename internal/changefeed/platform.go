// Package changefeed はドキュメント変更フィードとスケジュール実行の基盤を提供する。
//
// 監視対象テーブルへの書き込みはトリガーでdocument_changesに記録され、
// pg_notifyで起こされたListenerが取得してRegistryに登録されたハンドラへ配信する。
package changefeed

import (
	"context"

	"github.com/hitoshi/coachnotify/internal/model"
)

// Handler はドキュメント変更1件を処理する。戻り値はなく、失敗は各ハンドラ内でログに記録する。
type Handler func(ctx context.Context, change *model.Change)

// Job はスケジュール実行される処理。
type Job func(ctx context.Context)

// Platform はトリガーハンドラとスケジュールジョブの登録先。
type Platform interface {
	// OnCreate はcollectionのドキュメント作成時に呼ばれるハンドラを登録する。
	OnCreate(collection string, h Handler)
	// OnUpdate はcollectionのドキュメント更新時に呼ばれるハンドラを登録する。
	OnUpdate(collection string, h Handler)
	// OnSchedule はcron形式のスケジュールでジョブを登録する。
	OnSchedule(schedule string, job Job) error
}
