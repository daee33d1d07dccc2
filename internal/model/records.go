package model

import "time"

// WorkoutStatus は割り当て済みワークアウトの状態を表す。
type WorkoutStatus string

const (
	WorkoutStatusAssigned   WorkoutStatus = "assigned"
	WorkoutStatusScheduled  WorkoutStatus = "scheduled"
	WorkoutStatusInProgress WorkoutStatus = "in_progress"
	WorkoutStatusCompleted  WorkoutStatus = "completed"
)

// Workout はトレーナーがクライアントに割り当てたワークアウト（assignedWorkouts）。
type Workout struct {
	ID            string        `json:"id"`
	ClientID      string        `json:"client_id"`
	TrainerID     string        `json:"trainer_id"`
	Title         string        `json:"title"`
	Status        WorkoutStatus `json:"status"`
	ScheduledDate time.Time     `json:"scheduled_date"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SessionStatus はトレーニングセッションの状態を表す。
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Session はクライアントとトレーナーの対面/オンラインセッション。
// LastModifiedBy は最後に更新したユーザーのIDで、未設定の場合もある。
type Session struct {
	ID                 string        `json:"id"`
	ClientID           string        `json:"client_id"`
	TrainerID          string        `json:"trainer_id"`
	StartTime          time.Time     `json:"start_time"`
	Status             SessionStatus `json:"status"`
	CancellationReason string        `json:"cancellation_reason"`
	LastModifiedBy     string        `json:"last_modified_by"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// NutritionPlan はトレーナーが作成した栄養プラン。
type NutritionPlan struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	TrainerID string    `json:"trainer_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MealEntry はクライアントが記録した食事。
// トレーナー未割り当てのクライアントではTrainerIDが空になる。
type MealEntry struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	TrainerID   string    `json:"trainer_id"`
	MealType    string    `json:"meal_type"`
	Description string    `json:"description"`
	LoggedAt    time.Time `json:"logged_at"`
}

// Conversation はメッセージスレッドの参加者情報。
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message は会話内の1メッセージ。
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionPackage は(client, trainer)ペアごとの購入済みセッション残数。
type SessionPackage struct {
	ID                string    `json:"id"`
	ClientID          string    `json:"client_id"`
	TrainerID         string    `json:"trainer_id"`
	SessionsRemaining int       `json:"sessions_remaining"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PaymentHistory は決済成功の記録。Amountは主通貨単位（セントではない）。
type PaymentHistory struct {
	ID                    string
	ClientID              string
	TrainerID             string
	SessionPackageID      string
	Amount                float64
	SessionsPurchased     int
	StripePaymentIntentID string
	Status                string
	CreatedAt             time.Time
}
