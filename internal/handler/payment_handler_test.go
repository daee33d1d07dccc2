package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/coachnotify/internal/middleware"
	"github.com/hitoshi/coachnotify/internal/model"
	"github.com/hitoshi/coachnotify/internal/payment"
)

// mockPaymentService はPaymentServiceInterfaceのモック実装。
type mockPaymentService struct {
	createFn  func(ctx context.Context, callerID string, req payment.CreateIntentRequest) (*payment.CreateIntentResponse, error)
	confirmFn func(ctx context.Context, callerID string, req payment.ConfirmIntentRequest) (*payment.ConfirmIntentResponse, error)
}

func (m *mockPaymentService) CreatePaymentIntent(ctx context.Context, callerID string, req payment.CreateIntentRequest) (*payment.CreateIntentResponse, error) {
	return m.createFn(ctx, callerID, req)
}

func (m *mockPaymentService) ConfirmPaymentIntent(ctx context.Context, callerID string, req payment.ConfirmIntentRequest) (*payment.ConfirmIntentResponse, error) {
	return m.confirmFn(ctx, callerID, req)
}

func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorDetail {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error
}

func TestPaymentHandler_CreateIntent_Success(t *testing.T) {
	svc := &mockPaymentService{
		createFn: func(_ context.Context, callerID string, req payment.CreateIntentRequest) (*payment.CreateIntentResponse, error) {
			if callerID != "uid-1" {
				t.Errorf("callerID = %q, want uid-1", callerID)
			}
			if req.Amount != 50 || req.Currency != "usd" || req.ClientID != "c1" || req.TrainerID != "t1" {
				t.Errorf("unexpected request: %+v", req)
			}
			return &payment.CreateIntentResponse{ID: "pi_1", ClientSecret: "secret", Amount: 5000, Currency: "usd", Status: "requires_payment_method"}, nil
		},
	}
	var buf bytes.Buffer
	h := NewPaymentHandler(svc, newTestLogger(&buf))

	req := httptest.NewRequest(http.MethodPost, "/api/payments/create-intent",
		strings.NewReader(`{"amount":50,"currency":"usd","clientId":"c1","trainerId":"t1"}`))
	w := httptest.NewRecorder()

	h.CreateIntent(w, withUserID(req, "uid-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp["id"] != "pi_1" || resp["client_secret"] != "secret" {
		t.Errorf("unexpected response: %v", resp)
	}
	if resp["amount"].(float64) != 5000 {
		t.Errorf("amount = %v, want 5000", resp["amount"])
	}
}

func TestPaymentHandler_CreateIntent_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{name: "unauthenticated", err: model.NewUnauthenticatedError("login"), wantCode: http.StatusUnauthorized, wantStatus: "UNAUTHENTICATED"},
		{name: "invalid argument", err: model.NewInvalidArgumentError("missing"), wantCode: http.StatusBadRequest, wantStatus: "INVALID_ARGUMENT"},
		{name: "internal", err: model.NewInternalError("provider"), wantCode: http.StatusInternalServerError, wantStatus: "INTERNAL"},
		{name: "untyped", err: errors.New("boom"), wantCode: http.StatusInternalServerError, wantStatus: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPaymentService{
				createFn: func(context.Context, string, payment.CreateIntentRequest) (*payment.CreateIntentResponse, error) {
					return nil, tt.err
				},
			}
			var buf bytes.Buffer
			h := NewPaymentHandler(svc, newTestLogger(&buf))

			req := httptest.NewRequest(http.MethodPost, "/api/payments/create-intent", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			h.CreateIntent(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := decodeError(t, w); got.Status != tt.wantStatus {
				t.Errorf("error.status = %q, want %q", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestPaymentHandler_MalformedBody_ReturnsInvalidArgument(t *testing.T) {
	svc := &mockPaymentService{
		createFn: func(context.Context, string, payment.CreateIntentRequest) (*payment.CreateIntentResponse, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
		confirmFn: func(context.Context, string, payment.ConfirmIntentRequest) (*payment.ConfirmIntentResponse, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	var buf bytes.Buffer
	h := NewPaymentHandler(svc, newTestLogger(&buf))

	for _, fn := range []http.HandlerFunc{h.CreateIntent, h.ConfirmIntent} {
		w := httptest.NewRecorder()
		fn(w, withUserID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`)), "uid-1"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if got := decodeError(t, w); got.Status != "INVALID_ARGUMENT" {
			t.Errorf("error.status = %q", got.Status)
		}
	}
}

func TestPaymentHandler_ConfirmIntent_Success(t *testing.T) {
	svc := &mockPaymentService{
		confirmFn: func(_ context.Context, callerID string, req payment.ConfirmIntentRequest) (*payment.ConfirmIntentResponse, error) {
			if req.PaymentIntentID != "pi_1" {
				t.Errorf("PaymentIntentID = %q", req.PaymentIntentID)
			}
			return &payment.ConfirmIntentResponse{ID: "pi_1", Status: "succeeded", Amount: 5000, Currency: "usd"}, nil
		},
	}
	var buf bytes.Buffer
	h := NewPaymentHandler(svc, newTestLogger(&buf))

	req := httptest.NewRequest(http.MethodPost, "/api/payments/confirm-intent", strings.NewReader(`{"paymentIntentId":"pi_1"}`))
	w := httptest.NewRecorder()
	h.ConfirmIntent(w, withUserID(req, "uid-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp payment.ConfirmIntentResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Status != "succeeded" {
		t.Errorf("Status = %q", resp.Status)
	}
}
