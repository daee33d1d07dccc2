// Package payment はStripe決済のWebhook処理と、決済インテントのCallable APIを提供する。
package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// VerificationError はWebhookの署名検証に失敗したことを表す。
// 呼び出し元はHTTP 400で応答し、リトライしない。
type VerificationError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *VerificationError) Error() string {
	return e.Err.Error()
}

// Unwrap は元のエラーを返す。
func (e *VerificationError) Unwrap() error {
	return e.Err
}

// EventVerifier はWebhookペイロードの署名を検証してイベントを復元する。
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (stripe.Event, error)
}

// StripeVerifier はエンドポイントシークレットでStripe-Signatureヘッダを検証する。
type StripeVerifier struct {
	secret string
}

// NewStripeVerifier はStripeVerifierを生成する。
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// Verify は署名とタイムスタンプ許容範囲を検証する。
// APIバージョンの不一致は許容する。
func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, &VerificationError{Err: err}
	}
	return event, nil
}

// IntentProvider は決済インテントの作成と取得を行う。
type IntentProvider interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// StripeIntents はStripe APIクライアントによるIntentProviderの実装。
type StripeIntents struct {
	api *client.API
}

// NewStripeIntents はシークレットキーでStripe APIクライアントを初期化する。
func NewStripeIntents(secretKey string) *StripeIntents {
	return &StripeIntents{api: client.New(secretKey, nil)}
}

// CreateIntent は自動支払い方法を有効にした決済インテントを作成する。
func (s *StripeIntents) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return pi, nil
}

// GetIntent は決済インテントを取得する。
func (s *StripeIntents) GetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return pi, nil
}

var (
	_ EventVerifier  = (*StripeVerifier)(nil)
	_ IntentProvider = (*StripeIntents)(nil)
)
