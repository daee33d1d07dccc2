package model

import (
	"encoding/json"
	"time"
)

// ChangeType はドキュメント変更の種類を表す。
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
)

// 監視対象コレクション名。
const (
	CollectionUsers           = "users"
	CollectionAssignedWorkout = "assignedWorkouts"
	CollectionSessions        = "sessions"
	CollectionNutritionPlans  = "nutritionPlans"
	CollectionMealEntries     = "mealEntries"
	CollectionMessages        = "messages"
	CollectionSessionPackages = "sessionPackages"
	CollectionPaymentHistory  = "paymentHistory"
)

// Change は変更フィードが配信する1件のドキュメント変更。
// Beforeはupdateの場合のみ設定される。
type Change struct {
	ID          int64
	Collection  string
	Type        ChangeType
	DocumentID  string
	Before      json.RawMessage
	After       json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// DecodeBefore は変更前の状態をvに展開する。
func (c *Change) DecodeBefore(v any) error {
	if len(c.Before) == 0 {
		return ErrNoPriorState
	}
	return json.Unmarshal(c.Before, v)
}

// DecodeAfter は変更後の状態をvに展開する。
func (c *Change) DecodeAfter(v any) error {
	return json.Unmarshal(c.After, v)
}
