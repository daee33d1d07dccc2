package payment

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/hitoshi/coachnotify/internal/model"
)

// CreateIntentRequest はcreatePaymentIntentのリクエスト。
type CreateIntentRequest struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	ClientID  string  `json:"clientId"`
	TrainerID string  `json:"trainerId"`
}

// CreateIntentResponse はcreatePaymentIntentのレスポンス。Amountは最小通貨単位。
type CreateIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// ConfirmIntentRequest はconfirmPaymentIntentのリクエスト。
type ConfirmIntentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

// ConfirmIntentResponse はconfirmPaymentIntentのレスポンス。
type ConfirmIntentResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Service はモバイルクライアントから呼ばれる決済インテントのCallable API。
type Service struct {
	intents IntentProvider
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(intents IntentProvider, logger *slog.Logger) *Service {
	return &Service{intents: intents, logger: logger}
}

// CreatePaymentIntent はセッションパック購入用の決済インテントを作成する。
// callerIDは認証済み呼び出し元のユーザーIDで、空の場合はunauthenticatedを返す。
func (s *Service) CreatePaymentIntent(ctx context.Context, callerID string, req CreateIntentRequest) (*CreateIntentResponse, error) {
	if callerID == "" {
		return nil, model.NewUnauthenticatedError("The function must be called while authenticated.")
	}
	if req.Amount <= 0 || strings.TrimSpace(req.Currency) == "" || req.ClientID == "" || req.TrainerID == "" {
		return nil, model.NewInvalidArgumentError("Missing required parameters: amount, currency, clientId, trainerId")
	}

	amountCents := int64(math.Round(req.Amount * 100))
	metadata := map[string]string{
		"client_id":          req.ClientID,
		"trainer_id":         req.TrainerID,
		"sessions_purchased": strconv.Itoa(SessionsPerPurchase),
		"firebase_user_id":   callerID,
	}

	pi, err := s.intents.CreateIntent(ctx, amountCents, strings.ToLower(req.Currency), metadata)
	if err != nil {
		s.logger.Error("決済インテントの作成に失敗しました",
			slog.String("caller_id", callerID),
			slog.String("client_id", req.ClientID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalError("Unable to create payment intent")
	}

	s.logger.Info("決済インテントを作成しました",
		slog.String("payment_intent_id", pi.ID),
		slog.String("client_id", req.ClientID),
		slog.String("trainer_id", req.TrainerID),
		slog.Int64("amount", pi.Amount),
	)

	return &CreateIntentResponse{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}, nil
}

// ConfirmPaymentIntent は決済インテントの現在の状態を返す。
func (s *Service) ConfirmPaymentIntent(ctx context.Context, callerID string, req ConfirmIntentRequest) (*ConfirmIntentResponse, error) {
	if callerID == "" {
		return nil, model.NewUnauthenticatedError("The function must be called while authenticated.")
	}
	if req.PaymentIntentID == "" {
		return nil, model.NewInvalidArgumentError("Missing required parameter: paymentIntentId")
	}

	pi, err := s.intents.GetIntent(ctx, req.PaymentIntentID)
	if err != nil {
		s.logger.Error("決済インテントの取得に失敗しました",
			slog.String("caller_id", callerID),
			slog.String("payment_intent_id", req.PaymentIntentID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalError("Unable to retrieve payment intent")
	}

	return &ConfirmIntentResponse{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
	}, nil
}
