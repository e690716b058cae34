package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"dotpay/internal/middleware"
	"dotpay/internal/reconcile"
	"dotpay/pkg/errors"
)

type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

type NotificationHandler struct {
	reconciler Reconciler
	logger     Logger
}

func NewNotificationHandler(reconciler Reconciler, log Logger) *NotificationHandler {
	return &NotificationHandler{reconciler: reconciler, logger: log}
}

// paymentNotificationRequest accepts both the long and short field names.
type paymentNotificationRequest struct {
	ToAddress string `json:"toAddress"`
	To        string `json:"to"`
	TxHash    string `json:"txHash"`
	Hash      string `json:"hash"`
	Note      string `json:"note"`
}

// NotifyPayment verifies a submitted transfer on the ledger and notifies its recipient.
func (h *NotificationHandler) NotifyPayment(w http.ResponseWriter, r *http.Request) {
	sender, ok := middleware.AddressFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized.")
		return
	}

	var body paymentNotificationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	req := reconcile.Request{
		Sender:    sender,
		Recipient: firstNonEmpty(body.ToAddress, body.To),
		TxHash:    firstNonEmpty(body.TxHash, body.Hash),
		Note:      body.Note,
	}

	result, err := h.reconciler.Reconcile(r.Context(), req)
	if err != nil {
		fields := map[string]interface{}{
			"tx_hash": req.TxHash,
			"from":    sender,
			"error":   err.Error(),
		}
		if errors.IsRetryable(err) {
			h.logger.Info("Payment notification deferred", fields)
		} else {
			h.logger.Warn("Payment notification failed", fields)
		}
		respondServiceError(w, err)
		return
	}

	var data interface{}
	if len(result.Data) > 0 {
		data = result.Data
	}
	respondOK(w, data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
