package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/coachnotify/internal/middleware"
	"github.com/hitoshi/coachnotify/internal/model"
	"github.com/hitoshi/coachnotify/internal/payment"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	CreatePaymentIntent(ctx context.Context, callerID string, req payment.CreateIntentRequest) (*payment.CreateIntentResponse, error)
	ConfirmPaymentIntent(ctx context.Context, callerID string, req payment.ConfirmIntentRequest) (*payment.ConfirmIntentResponse, error)
}

// PaymentHandler は決済インテントのCallable APIのHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
	logger  *slog.Logger
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

// CreateIntent は決済インテントを作成する。
// POST /api/payments/create-intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req payment.CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidArgumentError("Request body must be a JSON object."))
		return
	}

	// 未認証の判定はサービス側で行う
	callerID, _ := middleware.UserIDFromContext(r.Context())

	resp, err := h.service.CreatePaymentIntent(r.Context(), callerID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ConfirmIntent は決済インテントの状態を返す。
// POST /api/payments/confirm-intent
func (h *PaymentHandler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	var req payment.ConfirmIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidArgumentError("Request body must be a JSON object."))
		return
	}

	callerID, _ := middleware.UserIDFromContext(r.Context())

	resp, err := h.service.ConfirmPaymentIntent(r.Context(), callerID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	h.logger.Error("unexpected payment service error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
