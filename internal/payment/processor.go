package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/hitoshi/coachnotify/internal/metrics"
	"github.com/hitoshi/coachnotify/internal/model"
	"github.com/hitoshi/coachnotify/internal/repository"
)

// SessionsPerPurchase は1回の決済で付与するセッション数。
const SessionsPerPurchase = 10

// HistoryStatusCompleted は決済成功時の履歴ステータス。
const HistoryStatusCompleted = "completed"

// 処理対象のイベント種別。
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// Composer はイベントを通知に変換するインターフェース。
type Composer interface {
	Compose(ev model.Event) model.Notification
}

// Dispatcher は通知をユーザーへ配信するインターフェース。
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, n model.Notification)
}

// Processor はStripe Webhookを検証し、決済成功時にセッション付与と履歴記録と通知を行う。
//
// 付与・履歴・通知はそれぞれ独立に試行し、1つの失敗が他を妨げない。
// 同じイベントが再送された場合は重複して付与・記録する。
type Processor struct {
	verifier   EventVerifier
	packages   repository.SessionPackageRepository
	history    repository.PaymentHistoryRepository
	composer   Composer
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	now        func() time.Time
	newID      func() string
}

// NewProcessor はProcessorを生成する。mcはnilでもよい。
func NewProcessor(
	verifier EventVerifier,
	packages repository.SessionPackageRepository,
	history repository.PaymentHistoryRepository,
	composer Composer,
	dispatcher Dispatcher,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Processor {
	return &Processor{
		verifier:   verifier,
		packages:   packages,
		history:    history,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    mc,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// HandleWebhook は署名を検証してイベントを処理する。
// 検証に失敗した場合のみ*VerificationErrorを返し、それ以外は常にnilを返す。
func (p *Processor) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := p.verifier.Verify(payload, signatureHeader)
	if err != nil {
		p.logger.Warn("Webhookの署名検証に失敗しました",
			slog.String("error", err.Error()),
		)
		p.record("", "invalid_signature")
		var vErr *VerificationError
		if !errors.As(err, &vErr) {
			err = &VerificationError{Err: err}
		}
		return err
	}

	eventType := string(event.Type)
	switch eventType {
	case EventPaymentIntentSucceeded:
		p.handleSucceeded(ctx, event)
	case EventPaymentIntentFailed:
		pi, err := decodeIntent(event)
		if err != nil {
			p.logger.Error("決済インテントの展開に失敗しました",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		} else {
			p.logger.Info("決済が失敗しました",
				slog.String("event_id", event.ID),
				slog.String("payment_intent_id", pi.ID),
			)
		}
		p.record(eventType, "logged")
	default:
		p.logger.Info("未対応のイベント種別を受信しました",
			slog.String("event_id", event.ID),
			slog.String("event_type", eventType),
		)
		p.record(eventType, "ignored")
	}
	return nil
}

func (p *Processor) record(eventType, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordWebhookEvent(eventType, outcome)
	}
}

func decodeIntent(event stripe.Event) (*stripe.PaymentIntent, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data object", event.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	return &pi, nil
}

// handleSucceeded は付与、履歴記録、通知をそれぞれ独立に実行する。
func (p *Processor) handleSucceeded(ctx context.Context, event stripe.Event) {
	pi, err := decodeIntent(event)
	if err != nil {
		p.logger.Error("決済インテントの展開に失敗しました",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		p.record(EventPaymentIntentSucceeded, "malformed")
		return
	}

	clientID := pi.Metadata["client_id"]
	trainerID := pi.Metadata["trainer_id"]
	if clientID == "" || trainerID == "" {
		p.logger.Warn("決済インテントのメタデータにclient_idまたはtrainer_idがありません",
			slog.String("event_id", event.ID),
			slog.String("payment_intent_id", pi.ID),
		)
		p.record(EventPaymentIntentSucceeded, "missing_metadata")
		return
	}

	packageID := p.creditPackage(ctx, clientID, trainerID, pi.ID)
	p.recordHistory(ctx, clientID, trainerID, packageID, pi)

	amount := float64(pi.Amount) / 100
	p.dispatcher.Dispatch(ctx, clientID, p.composer.Compose(model.Event{
		Kind:        model.EventPaymentSucceeded,
		ActorID:     trainerID,
		RecipientID: clientID,
		EntityID:    pi.ID,
		Amount:      amount,
		Currency:    string(pi.Currency),
		Sessions:    SessionsPerPurchase,
	}))

	p.logger.Info("決済成功を処理しました",
		slog.String("event_id", event.ID),
		slog.String("payment_intent_id", pi.ID),
		slog.String("client_id", clientID),
		slog.String("trainer_id", trainerID),
		slog.Bool("credited", packageID != ""),
	)
	p.record(EventPaymentIntentSucceeded, "processed")
}

// creditPackage はペアの最初のパッケージに残セッションを加算し、そのIDを返す。
// パッケージが存在しない場合や失敗した場合は空文字列を返す。
// 読み取りと書き込みの間に他の更新があると後勝ちで加算が失われる。
func (p *Processor) creditPackage(ctx context.Context, clientID, trainerID, intentID string) string {
	pkg, err := p.packages.FindByClientAndTrainer(ctx, clientID, trainerID)
	if err != nil {
		p.logger.Error("セッションパッケージの取得に失敗しました",
			slog.String("payment_intent_id", intentID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if pkg == nil {
		p.logger.Warn("セッションパッケージが存在しないため付与をスキップします",
			slog.String("payment_intent_id", intentID),
			slog.String("client_id", clientID),
			slog.String("trainer_id", trainerID),
		)
		return ""
	}

	remaining := pkg.SessionsRemaining + SessionsPerPurchase
	if err := p.packages.UpdateSessionsRemaining(ctx, pkg.ID, remaining, p.now()); err != nil {
		p.logger.Error("セッションパッケージの更新に失敗しました",
			slog.String("payment_intent_id", intentID),
			slog.String("session_package_id", pkg.ID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return pkg.ID
}

// recordHistory は付与の成否に関わらず決済履歴を追加する。
func (p *Processor) recordHistory(ctx context.Context, clientID, trainerID, packageID string, pi *stripe.PaymentIntent) {
	h := &model.PaymentHistory{
		ID:                    p.newID(),
		ClientID:              clientID,
		TrainerID:             trainerID,
		SessionPackageID:      packageID,
		Amount:                float64(pi.Amount) / 100,
		SessionsPurchased:     SessionsPerPurchase,
		StripePaymentIntentID: pi.ID,
		Status:                HistoryStatusCompleted,
		CreatedAt:             p.now(),
	}
	if err := p.history.Create(ctx, h); err != nil {
		p.logger.Error("決済履歴の記録に失敗しました",
			slog.String("payment_intent_id", pi.ID),
			slog.String("error", err.Error()),
		)
	}
}
