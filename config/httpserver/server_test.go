package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/trakkie-id/paynow/model"
	"github.com/trakkie-id/paynow/service"
	"github.com/trakkie-id/paynow/testutil"
)

// MockService implements service.TransactionService for testing
type MockService struct {
	BeginFunc   func(ctx context.Context, offer *model.EnrolmentOffer, payer *model.Payer) (*service.BeginResult, error)
	ConfirmFunc func(ctx context.Context, token string) (*service.ConfirmResult, error)
	AbortFunc   func(ctx context.Context, payload string) error
}

func (m *MockService) Begin(ctx context.Context, offer *model.EnrolmentOffer, payer *model.Payer) (*service.BeginResult, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, offer, payer)
	}
	return nil, errors.New("not implemented")
}

func (m *MockService) Confirm(ctx context.Context, token string) (*service.ConfirmResult, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *MockService) Abort(ctx context.Context, payload string) error {
	if m.AbortFunc != nil {
		return m.AbortFunc(ctx, payload)
	}
	return errors.New("not implemented")
}

// MockOffers implements service.OfferStore for testing
type MockOffers struct {
	OfferFunc func(ctx context.Context, id uint) (*model.EnrolmentOffer, error)
}

func (m *MockOffers) Offer(ctx context.Context, id uint) (*model.EnrolmentOffer, error) {
	if m.OfferFunc != nil {
		return m.OfferFunc(ctx, id)
	}
	return nil, fmt.Errorf("%w: id %d", service.ErrOfferNotFound, id)
}

func newTestServer(t *testing.T, svc *MockService, offers *MockOffers) *Server {
	t.Helper()
	if offers == nil {
		offers = &MockOffers{}
	}
	return New(Deps{Service: svc, Offers: offers, Logger: testutil.NewLogger(t)})
}

func serve(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandlePay(t *testing.T) {
	offer := &model.EnrolmentOffer{ID: 9, CourseID: 3, Cost: decimal.RequireFromString("10"), Currency: "USD", Enabled: true}

	tests := []struct {
		name       string
		body       string
		beginErr   error
		wantStatus int
	}{
		{
			name:       "Given a known offer When paying Then redirect url is returned",
			body:       `{"instance_id":9,"payer":{"id":7,"first_name":"Ada","last_name":"Lovelace","email":"a@b.com"}}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "Given an unknown offer When paying Then 404",
			body:       `{"instance_id":10,"payer":{"id":7}}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Given no payer When paying Then 400",
			body:       `{"instance_id":9}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Given an unsupported currency When paying Then 400",
			body:       `{"instance_id":9,"payer":{"id":7}}`,
			beginErr:   service.ErrUnsupportedCurrency,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Given the gateway is down When paying Then 502",
			body:       `{"instance_id":9,"payer":{"id":7}}`,
			beginErr:   fmt.Errorf("%w: timeout", service.ErrGatewayUnavailable),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{BeginFunc: func(_ context.Context, o *model.EnrolmentOffer, p *model.Payer) (*service.BeginResult, error) {
				if tt.beginErr != nil {
					return nil, tt.beginErr
				}
				if o.ID != 9 || p.Email != "a@b.com" {
					t.Errorf("Begin() called with offer %d payer %+v", o.ID, p)
				}
				return &service.BeginResult{TransactionID: 41, RedirectURL: "https://www.paynow.co.zw/Payment/?reference=41"}, nil
			}}
			offers := &MockOffers{OfferFunc: func(_ context.Context, id uint) (*model.EnrolmentOffer, error) {
				if id == 9 {
					return offer, nil
				}
				return nil, fmt.Errorf("%w: id %d", service.ErrOfferNotFound, id)
			}}

			w := serve(newTestServer(t, svc, offers), http.MethodPost, PayPath, []byte(tt.body))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus == http.StatusOK {
				var got struct {
					TransactionID uint   `json:"transaction_id"`
					RedirectURL   string `json:"redirect_url"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if got.TransactionID != 41 || got.RedirectURL == "" {
					t.Errorf("response = %+v", got)
				}
			}
		})
	}
}

func TestHandleConfirm(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "Given a pending transaction When confirming Then 200", wantStatus: http.StatusOK},
		{name: "Given an unknown transaction When confirming Then 404", err: service.ErrTransactionNotFound, wantStatus: http.StatusNotFound},
		{name: "Given a processed transaction When confirming Then 409", err: service.ErrAlreadyProcessed, wantStatus: http.StatusConflict},
		{name: "Given enrolment fails When confirming Then 500", err: service.ErrEnrolmentFailed, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var token string
			svc := &MockService{ConfirmFunc: func(_ context.Context, tok string) (*service.ConfirmResult, error) {
				token = tok
				if tt.err != nil {
					return nil, tt.err
				}
				trx := &model.Transaction{CourseID: 3}
				trx.ID = 41
				return &service.ConfirmResult{Transaction: trx, CourseID: 3}, nil
			}}

			w := serve(newTestServer(t, svc, nil), http.MethodGet, ConfirmPath+"?result=41", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if token != "41" {
				t.Errorf("token = %q, want 41", token)
			}
		})
	}
}

func TestHandleFailReportsPaymentFailure(t *testing.T) {
	svc := &MockService{AbortFunc: func(_ context.Context, payload string) error {
		if payload != "v5ZgCz1Q" {
			t.Errorf("payload = %q", payload)
		}
		return &service.PaymentFailure{TransactionID: 41, ResponseText: "DECLINED"}
	}}

	w := serve(newTestServer(t, svc, nil), http.MethodGet, FailPath+"?result=v5ZgCz1Q", nil)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["response_text"] != "DECLINED" || got["kind"] != "payment_failure" {
		t.Errorf("body = %v", got)
	}
}

func TestHandleHealth(t *testing.T) {
	healthy := New(Deps{Service: &MockService{}, Offers: &MockOffers{}, Check: func(context.Context) error { return nil }})
	if w := serve(healthy, http.MethodGet, HealthPath, nil); w.Code != http.StatusOK {
		t.Errorf("healthy status = %d", w.Code)
	}

	broken := New(Deps{Service: &MockService{}, Offers: &MockOffers{}, Check: func(context.Context) error { return errors.New("db down") }})
	if w := serve(broken, http.MethodGet, HealthPath, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("broken status = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{service.ErrInvalidTransaction, http.StatusBadRequest},
		{service.ErrTransactionNotFound, http.StatusNotFound},
		{service.ErrAlreadyProcessed, http.StatusConflict},
		{&service.PaymentFailure{ResponseText: "x"}, http.StatusPaymentRequired},
		{service.ErrGatewayInitiationFailed, http.StatusBadGateway},
		{service.ErrTransactionPersist, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
