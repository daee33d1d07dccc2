// Package trigger はドキュメント変更からドメインイベントを導出し、通知を配信する。
//
// 各ハンドラは元の書き込みがコミットされた後に呼ばれるため、
// 失敗やpanicはすべてログに記録して握りつぶす。
package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/coachnotify/internal/changefeed"
	"github.com/hitoshi/coachnotify/internal/metrics"
	"github.com/hitoshi/coachnotify/internal/model"
)

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

// ConversationFinder は会話の参加者を取得するインターフェース。
type ConversationFinder interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
}

// Handlers はコレクションごとのトリガーハンドラ群。
type Handlers struct {
	names         NameResolver
	composer      Composer
	dispatcher    Dispatcher
	conversations ConversationFinder
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
}

// NewHandlers はHandlersを生成する。mcはnilでもよい。
func NewHandlers(
	names NameResolver,
	composer Composer,
	dispatcher Dispatcher,
	conversations ConversationFinder,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Handlers {
	return &Handlers{
		names:         names,
		composer:      composer,
		dispatcher:    dispatcher,
		conversations: conversations,
		logger:        logger,
		metrics:       mc,
	}
}

// Register は全ハンドラをプラットフォームに登録する。
func (h *Handlers) Register(p changefeed.Platform) {
	p.OnCreate(model.CollectionAssignedWorkout, h.OnWorkoutCreated)
	p.OnUpdate(model.CollectionAssignedWorkout, h.OnWorkoutUpdated)
	p.OnCreate(model.CollectionSessions, h.OnSessionCreated)
	p.OnUpdate(model.CollectionSessions, h.OnSessionUpdated)
	p.OnUpdate(model.CollectionUsers, h.OnUserUpdated)
	p.OnCreate(model.CollectionNutritionPlans, h.OnNutritionPlanCreated)
	p.OnCreate(model.CollectionMealEntries, h.OnMealLogged)
	p.OnCreate(model.CollectionMessages, h.OnMessageCreated)
}

// run はハンドラ本体を実行し、エラーとpanicをログに記録する。
func (h *Handlers) run(name string, change *model.Change, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("トリガーハンドラでpanicが発生しました",
				slog.String("handler", name),
				slog.String("document_id", change.DocumentID),
				slog.String("panic", fmt.Sprintf("%v", rec)),
			)
			if h.metrics != nil {
				h.metrics.RecordHandlerFailure(name)
			}
		}
	}()

	if err := fn(); err != nil {
		h.logger.Error("トリガーハンドラの処理に失敗しました",
			slog.String("handler", name),
			slog.String("document_id", change.DocumentID),
			slog.String("error", err.Error()),
		)
		if h.metrics != nil {
			h.metrics.RecordHandlerFailure(name)
		}
	}
}

// notify はイベントを組み立てて受信者へ配信する。
func (h *Handlers) notify(ctx context.Context, ev model.Event) {
	n := h.composer.Compose(ev)
	h.dispatcher.Dispatch(ctx, ev.RecipientID, n)
}

// decodeDiff は更新前後の状態を展開する。
func decodeDiff[T any](change *model.Change) (before, after T, err error) {
	if err = change.DecodeBefore(&before); err != nil {
		return before, after, fmt.Errorf("変更前の状態を展開できません: %w", err)
	}
	if err = change.DecodeAfter(&after); err != nil {
		return before, after, fmt.Errorf("変更後の状態を展開できません: %w", err)
	}
	return before, after, nil
}

func decodeAfter[T any](change *model.Change) (T, error) {
	var v T
	if err := change.DecodeAfter(&v); err != nil {
		return v, fmt.Errorf("ドキュメントを展開できません: %w", err)
	}
	return v, nil
}

// OnWorkoutCreated はワークアウト割り当てをクライアントへ通知する。
func (h *Handlers) OnWorkoutCreated(ctx context.Context, change *model.Change) {
	h.run("onWorkoutCreated", change, func() error {
		w, err := decodeAfter[model.Workout](change)
		if err != nil {
			return err
		}
		h.notify(ctx, model.Event{
			Kind:        model.EventWorkoutAssigned,
			ActorID:     w.TrainerID,
			ActorName:   h.names.DisplayName(ctx, w.TrainerID),
			RecipientID: w.ClientID,
			EntityID:    w.ID,
			Subject:     w.Title,
		})
		return nil
	})
}

// OnWorkoutUpdated はstatusがcompletedに変わった時だけトレーナーへ通知する。
func (h *Handlers) OnWorkoutUpdated(ctx context.Context, change *model.Change) {
	h.run("onWorkoutUpdated", change, func() error {
		before, after, err := decodeDiff[model.Workout](change)
		if err != nil {
			return err
		}
		if before.Status == model.WorkoutStatusCompleted || after.Status != model.WorkoutStatusCompleted {
			return nil
		}
		h.notify(ctx, model.Event{
			Kind:        model.EventWorkoutCompleted,
			ActorID:     after.ClientID,
			ActorName:   h.names.DisplayName(ctx, after.ClientID),
			RecipientID: after.TrainerID,
			EntityID:    after.ID,
			Subject:     after.Title,
		})
		return nil
	})
}

// counterpart はセッションの操作者と通知先を決める。
// last_modified_byがクライアントでもトレーナーでもない場合はfallbackActorを操作者とみなす。
func counterpart(s model.Session, fallbackActor model.UserRole) (actorID, recipientID string) {
	switch s.LastModifiedBy {
	case s.ClientID:
		return s.ClientID, s.TrainerID
	case s.TrainerID:
		return s.TrainerID, s.ClientID
	}
	if fallbackActor == model.RoleTrainer {
		return s.TrainerID, s.ClientID
	}
	return s.ClientID, s.TrainerID
}

// OnSessionCreated はセッション予約を相手方へ通知する。
// 予約者が不明な場合はクライアントが予約したものとしてトレーナーへ通知する。
func (h *Handlers) OnSessionCreated(ctx context.Context, change *model.Change) {
	h.run("onSessionCreated", change, func() error {
		s, err := decodeAfter[model.Session](change)
		if err != nil {
			return err
		}
		actorID, recipientID := counterpart(s, model.RoleClient)
		h.notify(ctx, model.Event{
			Kind:        model.EventSessionBooked,
			ActorID:     actorID,
			ActorName:   h.names.DisplayName(ctx, actorID),
			RecipientID: recipientID,
			EntityID:    s.ID,
			At:          s.StartTime,
		})
		return nil
	})
}

// OnSessionUpdated はstatusがcancelledに変わった時だけ相手方へ通知する。
// キャンセルした人が不明な場合はトレーナーがキャンセルしたものとしてクライアントへ通知する。
func (h *Handlers) OnSessionUpdated(ctx context.Context, change *model.Change) {
	h.run("onSessionUpdated", change, func() error {
		before, after, err := decodeDiff[model.Session](change)
		if err != nil {
			return err
		}
		if before.Status == model.SessionStatusCancelled || after.Status != model.SessionStatusCancelled {
			return nil
		}
		actorID, recipientID := counterpart(after, model.RoleTrainer)
		h.notify(ctx, model.Event{
			Kind:        model.EventSessionCancelled,
			ActorID:     actorID,
			ActorName:   h.names.DisplayName(ctx, actorID),
			RecipientID: recipientID,
			EntityID:    after.ID,
			At:          after.StartTime,
			Detail:      after.CancellationReason,
		})
		return nil
	})
}

// OnUserUpdated はアカウント審査結果をユーザー本人へ通知する。
func (h *Handlers) OnUserUpdated(ctx context.Context, change *model.Change) {
	h.run("onUserUpdated", change, func() error {
		before, after, err := decodeDiff[model.User](change)
		if err != nil {
			return err
		}
		if before.Status == after.Status {
			return nil
		}

		switch after.Status {
		case model.AccountStatusApproved:
			h.notify(ctx, model.Event{
				Kind:        model.EventAccountApproved,
				RecipientID: after.ID,
				EntityID:    after.ID,
			})
		case model.AccountStatusRejected:
			h.notify(ctx, model.Event{
				Kind:        model.EventAccountRejected,
				RecipientID: after.ID,
				EntityID:    after.ID,
				Detail:      after.RejectionReason,
			})
		}
		return nil
	})
}

// OnNutritionPlanCreated は栄養プランの割り当てをクライアントへ通知する。
func (h *Handlers) OnNutritionPlanCreated(ctx context.Context, change *model.Change) {
	h.run("onNutritionPlanCreated", change, func() error {
		p, err := decodeAfter[model.NutritionPlan](change)
		if err != nil {
			return err
		}
		h.notify(ctx, model.Event{
			Kind:        model.EventNutritionPlanAssigned,
			ActorID:     p.TrainerID,
			ActorName:   h.names.DisplayName(ctx, p.TrainerID),
			RecipientID: p.ClientID,
			EntityID:    p.ID,
			Subject:     p.Name,
		})
		return nil
	})
}

// OnMealLogged は食事記録をトレーナーへ通知する。トレーナー未設定なら何もしない。
func (h *Handlers) OnMealLogged(ctx context.Context, change *model.Change) {
	h.run("onMealLogged", change, func() error {
		m, err := decodeAfter[model.MealEntry](change)
		if err != nil {
			return err
		}
		if m.TrainerID == "" {
			return nil
		}
		h.notify(ctx, model.Event{
			Kind:        model.EventMealLogged,
			ActorID:     m.ClientID,
			ActorName:   h.names.DisplayName(ctx, m.ClientID),
			RecipientID: m.TrainerID,
			EntityID:    m.ID,
			Subject:     m.MealType,
			Detail:      m.Description,
		})
		return nil
	})
}

// OnMessageCreated は会話の参加者のうち送信者以外の最初の1人へ通知する。
func (h *Handlers) OnMessageCreated(ctx context.Context, change *model.Change) {
	h.run("onMessageCreated", change, func() error {
		msg, err := decodeAfter[model.Message](change)
		if err != nil {
			return err
		}

		conv, err := h.conversations.FindByID(ctx, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("会話の取得に失敗しました: %w", err)
		}
		if conv == nil {
			h.logger.Warn("会話が存在しないため通知しません",
				slog.String("conversation_id", msg.ConversationID),
				slog.String("message_id", msg.ID),
			)
			return nil
		}

		recipientID := ""
		for _, p := range conv.Participants {
			if p != "" && p != msg.SenderID {
				recipientID = p
				break
			}
		}
		if recipientID == "" {
			return nil
		}

		h.notify(ctx, model.Event{
			Kind:           model.EventMessageReceived,
			ActorID:        msg.SenderID,
			ActorName:      h.names.DisplayName(ctx, msg.SenderID),
			RecipientID:    recipientID,
			EntityID:       msg.ID,
			Detail:         msg.Text,
			ConversationID: msg.ConversationID,
		})
		return nil
	})
}
