package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dotpay/internal/domain"
	"dotpay/internal/forex"
	"dotpay/internal/middleware"
	"dotpay/internal/reconcile"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"
	"dotpay/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	senderAddress    = "0x1111111111111111111111111111111111111111"
	recipientAddress = "0x2222222222222222222222222222222222222222"
	txHash           = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconcile.Result), args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, id domain.RecipientIdentifier) (*domain.ResolvedRecipient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResolvedRecipient), args.Error(1)
}

type MockRateService struct {
	mock.Mock
}

func (m *MockRateService) GetRate(ctx context.Context) (*domain.ExchangeRate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}

func (m *MockRateService) Quote(ctx context.Context, display string, currency domain.DisplayCurrency, decimals int32) (*forex.Quote, error) {
	args := m.Called(ctx, display, currency, decimals)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forex.Quote), args.Error(1)
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithAddress(req.Context(), senderAddress))
}

func TestNotifyPayment_StatusMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"receipt pending", errors.ErrReceiptNotYetAvailable, http.StatusConflict, "Transaction receipt not available yet. Try again in a few seconds."},
		{"reverted", errors.ErrOnChainFailure, http.StatusBadRequest, "Transaction failed on-chain."},
		{"no match", errors.ErrNoMatchingTransfer, http.StatusBadRequest, "No matching USDC transfer found in transaction logs."},
		{"bad event", errors.ErrInvalidEventData, http.StatusBadRequest, "Invalid transfer event data."},
		{"invalid hash", errors.Wrap(errors.ErrInvalidTxHash, "hash"), http.StatusBadRequest, "Invalid transaction hash."},
		{"not configured", errors.ErrDirectoryNotConfigured, http.StatusInternalServerError, "Backend is not configured."},
		{"delivery failed", errors.Wrap(errors.ErrDeliveryFailed, "status 500"), http.StatusBadGateway, "Failed to send notification."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(MockReconciler)
			rec.On("Reconcile", mock.Anything, mock.Anything).Return(nil, tt.err)
			h := NewNotificationHandler(rec, logger.NewNop())

			body := fmt.Sprintf(`{"toAddress":%q,"txHash":%q}`, recipientAddress, txHash)
			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payment", strings.NewReader(body)))
			rr := httptest.NewRecorder()
			h.NotifyPayment(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			env := decodeEnvelope(t, rr)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantMessage, env.Message)
		})
	}
}

func TestNotifyPayment_Success(t *testing.T) {
	rec := new(MockReconciler)
	rec.On("Reconcile", mock.Anything, reconcile.Request{
		Sender:    senderAddress,
		Recipient: recipientAddress,
		TxHash:    txHash,
		Note:      "rent",
	}).Return(&reconcile.Result{Data: json.RawMessage(`{"id":"n-1"}`)}, nil)

	h := NewNotificationHandler(rec, logger.NewNop())
	body := fmt.Sprintf(`{"to":%q,"hash":%q,"note":"rent"}`, recipientAddress, txHash)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payment", strings.NewReader(body)))
	rr := httptest.NewRecorder()
	h.NotifyPayment(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"OK","data":{"id":"n-1"}}`, rr.Body.String())
	rec.AssertExpectations(t)
}

func TestNotifyPayment_RequestErrors(t *testing.T) {
	rec := new(MockReconciler)
	h := NewNotificationHandler(rec, logger.NewNop())

	rr := httptest.NewRecorder()
	h.NotifyPayment(rr, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payment", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized.", decodeEnvelope(t, rr).Message)

	rr = httptest.NewRecorder()
	h.NotifyPayment(rr, authed(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/payment", strings.NewReader(`{not json`))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid JSON body.", decodeEnvelope(t, rr).Message)

	rec.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestResolve(t *testing.T) {
	handle := "alice"
	resolver := new(MockResolver)
	resolver.On("Resolve", mock.Anything, domain.RecipientIdentifier{Kind: domain.RecipientHandle, RawValue: "@alice"}).
		Return(&domain.ResolvedRecipient{SettlementAddress: senderAddress, Handle: &handle, DisplayName: "@alice"}, nil)
	resolver.On("Resolve", mock.Anything, domain.RecipientIdentifier{Kind: domain.RecipientHandle, RawValue: "@nobody"}).
		Return(nil, errors.ErrRecipientNotFound)
	resolver.On("Resolve", mock.Anything, domain.RecipientIdentifier{Kind: domain.RecipientEmail, RawValue: "a@b.co"}).
		Return(nil, errors.ErrDirectoryNotConfigured)

	h := NewRecipientHandler(resolver, validator.New(), logger.NewNop())
	call := func(query string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.Resolve(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/recipients/resolve?"+query, nil)))
		return rr
	}

	rr := call("kind=handle&q=%40alice")
	require.Equal(t, http.StatusOK, rr.Code)
	var ok struct {
		Data resolveResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ok))
	assert.Equal(t, senderAddress, ok.Data.Recipient.SettlementAddress)
	assert.True(t, ok.Data.Self)

	rr = call("kind=handle&q=%40nobody")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No DotPay user found.", decodeEnvelope(t, rr).Message)

	rr = call("kind=email&q=a%40b.co")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = call("kind=carrier-pigeon&q=x")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeEnvelope(t, rr).Errors, "Kind")
}

func TestForexHandler(t *testing.T) {
	token := domain.Token{Symbol: "USDC", Decimals: 6}
	svc := new(MockRateService)
	svc.On("GetRate", mock.Anything).Return(&domain.ExchangeRate{
		LocalCurrency: "KES",
		TokenSymbol:   "USDC",
		Rate:          decimal.NewFromInt(129),
		Source:        "Static",
	}, nil).Once()
	svc.On("GetRate", mock.Anything).Return(nil, errors.ErrRateNotAvailable).Once()
	svc.On("Quote", mock.Anything, "1,000", domain.CurrencyLocal, int32(6)).
		Return(&forex.Quote{TokenValue: "7.75", LocalValue: "1000"}, nil)
	svc.On("Quote", mock.Anything, "abc", domain.CurrencyToken, int32(6)).
		Return(nil, errors.ErrInvalidAmount)

	h := NewForexHandler(svc, token, validator.New(), logger.NewNop())

	rr := httptest.NewRecorder()
	h.GetRate(rr, httptest.NewRequest(http.MethodGet, "/api/v1/rates/token", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Static"`)

	rr = httptest.NewRecorder()
	h.GetRate(rr, httptest.NewRequest(http.MethodGet, "/api/v1/rates/token", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.Quote(rr, httptest.NewRequest(http.MethodGet, "/api/v1/amount/quote?value=1,000&currency=local", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"token_value":"7.75"`)

	rr = httptest.NewRecorder()
	h.Quote(rr, httptest.NewRequest(http.MethodGet, "/api/v1/amount/quote?value=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Enter a valid amount.", decodeEnvelope(t, rr).Message)

	rr = httptest.NewRecorder()
	h.Quote(rr, httptest.NewRequest(http.MethodGet, "/api/v1/amount/quote?value=1&currency=EUR", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	svc.AssertExpectations(t)
}

func TestSystemHandler(t *testing.T) {
	healthy := NewSystemHandler(map[string]Pinger{
		"database": func(ctx context.Context) error { return nil },
	}, logger.NewNop())

	rr := httptest.NewRecorder()
	healthy.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	healthy.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ready":true`)

	degraded := NewSystemHandler(map[string]Pinger{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return fmt.Errorf("connection refused") },
	}, logger.NewNop())

	rr = httptest.NewRecorder()
	degraded.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"outage"`)
}

type confirmerFunc func(ctx context.Context, txID string) (*domain.TransferReceipt, error)

func (f confirmerFunc) WaitConfirmed(ctx context.Context, txID string) (*domain.TransferReceipt, error) {
	return f(ctx, txID)
}

func watch(t *testing.T, confirmer Confirmer) []transferStatus {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/transfers/{hash}/watch", NewTransferHandler(confirmer, time.Second, logger.NewNop()).Watch)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/transfers/" + txHash + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []transferStatus
	for {
		var msg transferStatus
		if err := conn.ReadJSON(&msg); err != nil {
			return got
		}
		got = append(got, msg)
	}
}

func TestTransferWatch(t *testing.T) {
	confirmed := watch(t, confirmerFunc(func(ctx context.Context, txID string) (*domain.TransferReceipt, error) {
		assert.Equal(t, txHash, txID)
		return &domain.TransferReceipt{Succeeded: true, BlockReference: "0x10"}, nil
	}))
	require.Len(t, confirmed, 2)
	assert.Equal(t, "submitted", confirmed[0].Status)
	assert.Equal(t, "confirmed", confirmed[1].Status)
	assert.Equal(t, "0x10", confirmed[1].Block)

	reverted := watch(t, confirmerFunc(func(ctx context.Context, txID string) (*domain.TransferReceipt, error) {
		return &domain.TransferReceipt{BlockReference: "0x11"}, errors.ErrOnChainFailure
	}))
	require.Len(t, reverted, 2)
	assert.Equal(t, "failed", reverted[1].Status)
	assert.Equal(t, "Transaction failed on-chain.", reverted[1].Message)
}

func TestTransferWatch_RejectsBadHash(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/transfers/{hash}/watch", NewTransferHandler(nil, time.Second, logger.NewNop()).Watch)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/transfers/0x1234/watch", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid transaction hash.", decodeEnvelope(t, rr).Message)
}
