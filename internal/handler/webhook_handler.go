// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/coachnotify/internal/payment"
)

// stripeSignatureHeader はStripeが署名を載せるヘッダ名。
const stripeSignatureHeader = "Stripe-Signature"

// WebhookProcessor はWebhookペイロードを検証して処理するインターフェース。
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

// WebhookHandler は決済プロバイダのWebhookを受け付けるHTTPハンドラー。
type WebhookHandler struct {
	processor    WebhookProcessor
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(processor WebhookProcessor, maxBodyBytes int64, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:    processor,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Receive はWebhookを処理する。
// POST /webhooks/stripe
//
// 署名検証に失敗した場合のみ400を返し、それ以外は後続処理の結果に関わらず200を返す。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read webhook body", slog.String("error", err.Error()))
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.processor.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		var vErr *payment.VerificationError
		if errors.As(err, &vErr) {
			http.Error(w, "Webhook Error: "+vErr.Error(), http.StatusBadRequest)
			return
		}
		// 検証後の失敗はプロセッサ内でログ済みのため応答には影響させない
		h.logger.Error("unexpected webhook processing error", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
