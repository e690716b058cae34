package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware decides
	},
}

type Confirmer interface {
	WaitConfirmed(ctx context.Context, txID string) (*domain.TransferReceipt, error)
}

// TransferHandler streams confirmation status for a submitted transfer.
type TransferHandler struct {
	confirmer Confirmer
	timeout   time.Duration
	logger    Logger
}

func NewTransferHandler(confirmer Confirmer, timeout time.Duration, log Logger) *TransferHandler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &TransferHandler{confirmer: confirmer, timeout: timeout, logger: log}
}

type transferStatus struct {
	Type    string `json:"type"`
	TxHash  string `json:"txHash"`
	Status  string `json:"status"`
	Block   string `json:"block,omitempty"`
	Message string `json:"message,omitempty"`
	At      string `json:"at"`
}

// Watch upgrades to a websocket, sends "submitted", then "confirmed" or
// "failed" once the receipt is known, and closes.
func (h *TransferHandler) Watch(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(mux.Vars(r)["hash"])
	if !validator.IsTxHash(hash) {
		respondError(w, http.StatusBadRequest, errors.UserMessage(errors.ErrInvalidTxHash))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	if err := conn.WriteJSON(h.status(hash, "submitted", nil, nil)); err != nil {
		return
	}

	receipt, err := h.confirmer.WaitConfirmed(ctx, hash)
	var msg transferStatus
	switch {
	case err == nil:
		msg = h.status(hash, "confirmed", receipt, nil)
	case stderrors.Is(err, errors.ErrOnChainFailure):
		msg = h.status(hash, "failed", receipt, err)
	default:
		select {
		case <-gone:
			return
		default:
		}
		msg = h.status(hash, "unknown", nil, err)
	}

	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn("Failed to send transfer status", map[string]interface{}{"tx_hash": hash, "error": err.Error()})
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg.Status),
		time.Now().Add(time.Second))
}

func (h *TransferHandler) status(hash, status string, receipt *domain.TransferReceipt, err error) transferStatus {
	s := transferStatus{
		Type:   "transfer_status",
		TxHash: hash,
		Status: status,
		At:     time.Now().UTC().Format(time.RFC3339),
	}
	if receipt != nil {
		s.Block = receipt.BlockReference
	}
	if err != nil {
		s.Message = errors.UserMessage(err)
	}
	return s
}
