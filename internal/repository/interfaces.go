// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/coachnotify/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// UpdateTokens はユーザーのFCMトークン一覧を置き換える。
	// 読み取りと書き込みの間に他の書き込みがあっても後勝ちとなる。
	UpdateTokens(ctx context.Context, id string, tokens []string) error
}

// WorkoutRepository は割り当て済みワークアウトの読み取りインターフェース。
type WorkoutRepository interface {
	// ListScheduledBetween はscheduled_dateが[from, to)に含まれ、
	// statusがstatusesのいずれかであるワークアウトを最大limit件返す。
	ListScheduledBetween(ctx context.Context, from, to time.Time, statuses []model.WorkoutStatus, limit int) ([]*model.Workout, error)
}

// SessionRepository はトレーニングセッションの読み取りインターフェース。
type SessionRepository interface {
	// ListStartingBetween はstart_timeが[from, to]に含まれ、
	// 指定statusのセッションを最大limit件返す。
	ListStartingBetween(ctx context.Context, from, to time.Time, status model.SessionStatus, limit int) ([]*model.Session, error)
}

// ConversationRepository は会話の読み取りインターフェース。
type ConversationRepository interface {
	// FindByID は指定IDの会話を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
}

// SessionPackageRepository はセッションパッケージの永続化インターフェース。
type SessionPackageRepository interface {
	// FindByClientAndTrainer はペアに対応するパッケージのうち最も古いものを返す。
	// 見つからない場合はnilを返す。
	FindByClientAndTrainer(ctx context.Context, clientID, trainerID string) (*model.SessionPackage, error)

	// UpdateSessionsRemaining は残セッション数を上書きし、updated_atを設定する。
	UpdateSessionsRemaining(ctx context.Context, id string, remaining int, updatedAt time.Time) error
}

// PaymentHistoryRepository は決済履歴の永続化インターフェース。
type PaymentHistoryRepository interface {
	// Create は決済履歴を1件追加する。同一payment intentの重複は許容する。
	Create(ctx context.Context, h *model.PaymentHistory) error
}

// ChangeRepository は変更フィード（document_changes）の操作インターフェース。
type ChangeRepository interface {
	// ClaimPending は未処理の変更を最大limit件、ID順に取得して処理済みにする。
	// 複数のリスナーが同時に呼んでも同じ変更は一度しか返らない。
	ClaimPending(ctx context.Context, limit int) ([]*model.Change, error)

	// DeleteProcessedBefore はbefore以前に処理済みとなった変更を削除し、削除件数を返す。
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
