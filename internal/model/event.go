package model

import "time"

// EventKind はドメインイベントの種類を表す。
// 通知のdataに "type" として格納され、クライアントのディープリンクに使われる。
type EventKind string

const (
	EventWorkoutAssigned       EventKind = "workout_assigned"
	EventWorkoutCompleted      EventKind = "workout_completed"
	EventSessionBooked         EventKind = "session_booked"
	EventSessionCancelled      EventKind = "session_cancelled"
	EventAccountApproved       EventKind = "account_approved"
	EventAccountRejected       EventKind = "account_rejected"
	EventNutritionPlanAssigned EventKind = "nutrition_plan_assigned"
	EventMealLogged            EventKind = "meal_logged"
	EventMessageReceived       EventKind = "message_received"
	EventSessionReminder       EventKind = "session_reminder"
	EventWorkoutReminder       EventKind = "workout_reminder"
	EventPaymentSucceeded      EventKind = "payment_succeeded"
)

// Event は「何かが起きた」ことを表すドメインイベント。
// ドキュメント変更やWebhookから都度導出され、永続化はされない。
// 種類ごとに使うフィールドは異なり、未使用のフィールドはゼロ値のまま。
type Event struct {
	Kind        EventKind
	ActorID     string
	ActorName   string
	RecipientID string
	EntityID    string
	// Subject はワークアウト名、プラン名、食事種別など本文に埋め込む対象名。
	Subject string
	// Detail はキャンセル理由、食事の説明、メッセージ本文などの任意テキスト。
	Detail string
	// At はセッション開始時刻など本文に埋め込む時刻。
	At       time.Time
	Amount   float64
	Currency string
	Sessions int
	// ConversationID はmessage_receivedのディープリンク先。
	ConversationID string
}
