// Package reminder は定期実行のリマインド通知ジョブを提供する。
// セッション開始前のリマインドと、当日予定のワークアウトのリマインドを送る。
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/coachnotify/internal/metrics"
	"github.com/hitoshi/coachnotify/internal/model"
	"github.com/hitoshi/coachnotify/internal/repository"
)

// QueryLimit は1回の実行で対象とする最大件数。
const QueryLimit = 500

// NameResolver はユーザーの表示名を解決するインターフェース。
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) string
}

// Composer はイベントを通知に変換するインターフェース。
type Composer interface {
	Compose(ev model.Event) model.Notification
}

// Dispatcher は通知をユーザーへ配信するインターフェース。
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, n model.Notification)
}

// fanOut はeventsを並行に組み立て・配信し、全件の完了を待つ。
func fanOut(ctx context.Context, composer Composer, dispatcher Dispatcher, events []model.Event) {
	var wg sync.WaitGroup
	for _, ev := range events {
		wg.Add(1)
		go func(e model.Event) {
			defer wg.Done()
			dispatcher.Dispatch(ctx, e.RecipientID, composer.Compose(e))
		}(ev)
	}
	wg.Wait()
}

// SessionJob は開始15〜30分前のセッションについてクライアントとトレーナーへリマインドを送る。
// 15分間隔で実行される前提で、同じ窓内での再実行は重複して送信する。
type SessionJob struct {
	sessions   repository.SessionRepository
	names      NameResolver
	composer   Composer
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewSessionJob はSessionJobを生成する。mcはnilでもよい。
func NewSessionJob(
	sessions repository.SessionRepository,
	names NameResolver,
	composer Composer,
	dispatcher Dispatcher,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *SessionJob {
	return &SessionJob{
		sessions:   sessions,
		names:      names,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    mc,
		now:        time.Now,
	}
}

// Run はRunOnceを実行し、エラーをログに記録する。スケジューラから呼ばれる。
func (j *SessionJob) Run(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("セッションリマインドの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は対象セッションを取得し、1件につき2通のリマインドを並行に送信する。
func (j *SessionJob) RunOnce(ctx context.Context) error {
	start := j.now()
	from := start.Add(15 * time.Minute)
	to := start.Add(30 * time.Minute)

	sessions, err := j.sessions.ListStartingBetween(ctx, from, to, model.SessionStatusScheduled, QueryLimit)
	if err != nil {
		return err
	}
	if j.metrics != nil {
		j.metrics.RecordReminderMatches("session", len(sessions))
	}
	if len(sessions) == 0 {
		j.logger.Info("リマインド対象のセッションはありません")
		return nil
	}

	events := make([]model.Event, 0, len(sessions)*2)
	for _, s := range sessions {
		clientName := j.names.DisplayName(ctx, s.ClientID)
		trainerName := j.names.DisplayName(ctx, s.TrainerID)

		events = append(events,
			model.Event{
				Kind:        model.EventSessionReminder,
				ActorID:     s.TrainerID,
				ActorName:   trainerName,
				RecipientID: s.ClientID,
				EntityID:    s.ID,
				At:          s.StartTime,
			},
			model.Event{
				Kind:        model.EventSessionReminder,
				ActorID:     s.ClientID,
				ActorName:   clientName,
				RecipientID: s.TrainerID,
				EntityID:    s.ID,
				At:          s.StartTime,
			},
		)
	}

	fanOut(ctx, j.composer, j.dispatcher, events)

	j.logger.Info("セッションリマインドを送信しました",
		slog.Int("session_count", len(sessions)),
		slog.Int("notification_count", len(events)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// WorkoutJob は当日予定の未完了ワークアウトについてクライアントへリマインドを送る。
// 当日の範囲は設定されたタイムゾーンの0時から翌0時まで。
type WorkoutJob struct {
	workouts   repository.WorkoutRepository
	composer   Composer
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	loc        *time.Location
	now        func() time.Time
}

// NewWorkoutJob はWorkoutJobを生成する。mcはnilでもよい。
func NewWorkoutJob(
	workouts repository.WorkoutRepository,
	composer Composer,
	dispatcher Dispatcher,
	loc *time.Location,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *WorkoutJob {
	if loc == nil {
		loc = time.UTC
	}
	return &WorkoutJob{
		workouts:   workouts,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    mc,
		loc:        loc,
		now:        time.Now,
	}
}

// Run はRunOnceを実行し、エラーをログに記録する。スケジューラから呼ばれる。
func (j *WorkoutJob) Run(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("ワークアウトリマインドの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// dayBounds はlocにおけるtの暦日の開始と翌日の開始を返す。
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// RunOnce は当日予定のワークアウトを取得し、1件につき1通のリマインドを並行に送信する。
func (j *WorkoutJob) RunOnce(ctx context.Context) error {
	start := j.now()
	from, to := dayBounds(start, j.loc)

	workouts, err := j.workouts.ListScheduledBetween(ctx, from, to,
		[]model.WorkoutStatus{model.WorkoutStatusAssigned, model.WorkoutStatusScheduled}, QueryLimit)
	if err != nil {
		return err
	}
	if j.metrics != nil {
		j.metrics.RecordReminderMatches("workout", len(workouts))
	}
	if len(workouts) == 0 {
		j.logger.Info("リマインド対象のワークアウトはありません")
		return nil
	}

	events := make([]model.Event, 0, len(workouts))
	for _, w := range workouts {
		events = append(events, model.Event{
			Kind:        model.EventWorkoutReminder,
			ActorID:     w.TrainerID,
			RecipientID: w.ClientID,
			EntityID:    w.ID,
			Subject:     w.Title,
			At:          w.ScheduledDate,
		})
	}

	fanOut(ctx, j.composer, j.dispatcher, events)

	j.logger.Info("ワークアウトリマインドを送信しました",
		slog.Int("workout_count", len(workouts)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
