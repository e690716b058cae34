package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"dotpay/internal/chain"
	"dotpay/internal/domain"
	"dotpay/internal/middleware"
	"dotpay/pkg/validator"
)

const defaultActivityLimit = 10

type TransferLister interface {
	TokenTransfers(ctx context.Context, contract, address string, limit int) ([]domain.TokenTransfer, error)
}

// ActivityHandler lists recent token transfers for a wallet.
type ActivityHandler struct {
	lister TransferLister
	token  domain.Token
	logger Logger
}

func NewActivityHandler(lister TransferLister, token domain.Token, log Logger) *ActivityHandler {
	return &ActivityHandler{lister: lister, token: token, logger: log}
}

type activityResponse struct {
	Transfers []domain.TokenTransfer `json:"transfers"`
}

// List handles GET /activity?address=&limit=. address defaults to the caller.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		address, _ = middleware.AddressFromContext(r.Context())
	}
	if !validator.IsEVMAddress(address) {
		respondJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "Invalid address.",
			Data:    activityResponse{Transfers: []domain.TokenTransfer{}},
		})
		return
	}

	transfers, err := h.lister.TokenTransfers(r.Context(), h.token.Contract, address, activityLimit(r.URL.Query().Get("limit")))
	if err != nil {
		h.logger.Warn("Activity unavailable", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
		respondServiceError(w, err)
		return
	}
	respondOK(w, activityResponse{Transfers: transfers})
}

// activityLimit parses limit, clamped to 1..MaxActivityLimit.
func activityLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultActivityLimit
	}
	if n < 1 {
		return 1
	}
	if n > chain.MaxActivityLimit {
		return chain.MaxActivityLimit
	}
	return n
}
