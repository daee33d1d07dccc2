package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/coachnotify/internal/model"
)

// Runtime はRegistryとcronスケジューラでPlatformを実装する。
type Runtime struct {
	registry *Registry
	cron     *cron.Cron
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRuntime はRuntimeを生成する。スケジュールはlocのタイムゾーンで解釈する。
func NewRuntime(registry *Registry, loc *time.Location, logger *slog.Logger) *Runtime {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		registry: registry,
		cron:     cron.New(cron.WithLocation(loc)),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnCreate はcollectionの作成ハンドラを登録する。
func (r *Runtime) OnCreate(collection string, h Handler) {
	r.registry.Register(collection, model.ChangeCreate, h)
}

// OnUpdate はcollectionの更新ハンドラを登録する。
func (r *Runtime) OnUpdate(collection string, h Handler) {
	r.registry.Register(collection, model.ChangeUpdate, h)
}

// OnSchedule は5フィールドのcron形式でジョブを登録する。
// 実行ごとに独立したgoroutineで呼ばれ、前回の実行完了を待たない。
func (r *Runtime) OnSchedule(schedule string, job Job) error {
	_, err := r.cron.AddFunc(schedule, func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("スケジュールジョブでpanicが発生しました",
					slog.String("schedule", schedule),
					slog.String("panic", fmt.Sprintf("%v", rec)),
				)
			}
		}()
		job(r.ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// Start はスケジューラを起動する。
func (r *Runtime) Start() {
	r.cron.Start()
	r.logger.Info("スケジューラを開始しました", slog.Int("job_count", len(r.cron.Entries())))
}

// Stop はスケジューラを停止し、実行中のジョブの完了を待つ。
func (r *Runtime) Stop(ctx context.Context) {
	r.cancel()
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn("スケジュールジョブの完了待ちがタイムアウトしました")
	}
	r.logger.Info("スケジューラを停止しました")
}

// Registry は変更の配信先Registryを返す。
func (r *Runtime) Registry() *Registry {
	return r.registry
}

var _ Platform = (*Runtime)(nil)
