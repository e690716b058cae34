package handler

import (
	"context"
	"net/http"
	"strings"

	"dotpay/internal/domain"
	"dotpay/internal/forex"
	"dotpay/pkg/validator"
)

type RateService interface {
	GetRate(ctx context.Context) (*domain.ExchangeRate, error)
	Quote(ctx context.Context, display string, currency domain.DisplayCurrency, decimals int32) (*forex.Quote, error)
}

// ForexHandler serves the token rate and amount quotes.
type ForexHandler struct {
	service   RateService
	token     domain.Token
	validator *validator.Validator
	logger    Logger
}

func NewForexHandler(service RateService, token domain.Token, val *validator.Validator, log Logger) *ForexHandler {
	return &ForexHandler{
		service:   service,
		token:     token,
		validator: val,
		logger:    log,
	}
}

// GetRate returns local currency units per token.
func (h *ForexHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.service.GetRate(r.Context())
	if err != nil {
		h.logger.Warn("Rate unavailable", map[string]interface{}{"error": err.Error()})
		respondServiceError(w, err)
		return
	}
	respondOK(w, rate)
}

type quoteQuery struct {
	Value    string `validate:"required,max=32"`
	Currency string `validate:"required,oneof=LOCAL TOKEN"`
}

// Quote converts an entered amount into base units and both display currencies.
func (h *ForexHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := quoteQuery{
		Value:    strings.TrimSpace(r.URL.Query().Get("value")),
		Currency: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))),
	}
	if q.Currency == "" {
		q.Currency = string(domain.CurrencyToken)
	}
	if errs := h.validator.ValidateStructured(&q); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	quote, err := h.service.Quote(r.Context(), q.Value, domain.DisplayCurrency(q.Currency), h.token.Decimals)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w, quote)
}
