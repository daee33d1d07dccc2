// Package compose はドメインイベントからプッシュ通知の文面を組み立てる。
// 入出力を持たない純粋な変換で、時計とタイムゾーンは生成時に注入する。
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/coachnotify/internal/model"
)

// MessagePreviewRunes はmessage_receivedの本文に使うプレビューの最大文字数。
const MessagePreviewRunes = 100

const unknownActor = "Someone"

// Sanitizer は自由記述テキストの正規化インターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
	Preview(raw string, maxRunes int) string
}

// Composer はEventをNotificationに変換する。
type Composer struct {
	sanitizer Sanitizer
	loc       *time.Location
	now       func() time.Time
}

// NewComposer はComposerを生成する。nowがnilの場合はtime.Nowを使う。
func NewComposer(sanitizer Sanitizer, loc *time.Location, now func() time.Time) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Composer{sanitizer: sanitizer, loc: loc, now: now}
}

// Compose はイベント種別ごとの固定テンプレートで通知を組み立てる。
// 任意フィールドが空の場合、その部分は本文から省かれる。
func (c *Composer) Compose(ev model.Event) model.Notification {
	actor := c.clean(ev.ActorName)
	if actor == "" {
		actor = unknownActor
	}
	subject := c.clean(ev.Subject)
	detail := c.clean(ev.Detail)

	n := model.Notification{
		RecipientID: ev.RecipientID,
		Data:        map[string]any{"type": string(ev.Kind)},
	}

	switch ev.Kind {
	case model.EventWorkoutAssigned:
		n.Title = "New Workout Assigned"
		n.Body = fmt.Sprintf("%s assigned you a new workout: %s", actor, subject)
		setID(n.Data, "workoutId", ev.EntityID)

	case model.EventWorkoutCompleted:
		n.Title = "Workout Completed"
		n.Body = fmt.Sprintf("%s completed %s", actor, subject)
		setID(n.Data, "workoutId", ev.EntityID)

	case model.EventSessionBooked:
		n.Title = "New Session Booked"
		n.Body = fmt.Sprintf("%s booked a session for %s", actor, c.when(ev.At))
		setID(n.Data, "sessionId", ev.EntityID)

	case model.EventSessionCancelled:
		n.Title = "Session Cancelled"
		n.Body = fmt.Sprintf("%s cancelled the session scheduled for %s.", actor, c.when(ev.At))
		if detail != "" {
			n.Body += " Reason: " + detail
		}
		setID(n.Data, "sessionId", ev.EntityID)

	case model.EventAccountApproved:
		n.Title = "Account Approved"
		n.Body = "Your account has been approved. Welcome aboard!"

	case model.EventAccountRejected:
		n.Title = "Account Update"
		n.Body = "Your account application was not approved."
		if detail != "" {
			n.Body += " Reason: " + detail
		}

	case model.EventNutritionPlanAssigned:
		n.Title = "New Nutrition Plan"
		n.Body = fmt.Sprintf("%s assigned you a nutrition plan: %s", actor, subject)
		setID(n.Data, "planId", ev.EntityID)

	case model.EventMealLogged:
		n.Title = "Meal Logged"
		meal := subject
		if meal == "" {
			meal = "a meal"
		}
		n.Body = fmt.Sprintf("%s logged %s", actor, meal)
		if detail != "" {
			n.Body += ": " + detail
		}
		setID(n.Data, "mealId", ev.EntityID)

	case model.EventMessageReceived:
		n.Title = actor
		n.Body = c.sanitizer.Preview(ev.Detail, MessagePreviewRunes)
		setID(n.Data, "conversationId", ev.ConversationID)
		setID(n.Data, "senderId", ev.ActorID)

	case model.EventSessionReminder:
		n.Title = "Session Reminder"
		n.Body = fmt.Sprintf("Your session with %s starts %s", actor, c.when(ev.At))
		setID(n.Data, "sessionId", ev.EntityID)

	case model.EventWorkoutReminder:
		n.Title = "Workout Reminder"
		n.Body = fmt.Sprintf("Don't forget today's workout: %s", subject)
		setID(n.Data, "workoutId", ev.EntityID)

	case model.EventPaymentSucceeded:
		n.Title = "Payment Successful"
		n.Body = fmt.Sprintf("Your payment of %.2f %s was received. %d sessions have been added to your package.",
			ev.Amount, strings.ToUpper(ev.Currency), ev.Sessions)
		setID(n.Data, "paymentIntentId", ev.EntityID)
		n.Data["sessionsAdded"] = ev.Sessions

	default:
		n.Title = "Notification"
	}

	return n
}

func (c *Composer) clean(s string) string {
	return c.sanitizer.Sanitize(s)
}

func (c *Composer) when(t time.Time) string {
	if t.IsZero() {
		return "an upcoming time"
	}
	return RelativeDate(t, c.now(), c.loc)
}

func setID(data map[string]any, key, value string) {
	if value != "" {
		data[key] = value
	}
}
