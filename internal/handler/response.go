// Package handler provides the HTTP handlers for the DotPay payment service.
package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"dotpay/pkg/errors"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// envelope is the response body shared with the directory service.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "OK", Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: false, Message: message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Validation failed", Errors: errs})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrReceiptNotYetAvailable):
		return http.StatusConflict
	case stderrors.Is(err, errors.ErrDeliveryFailed), stderrors.Is(err, errors.ErrActivityUnavailable):
		return http.StatusBadGateway
	case stderrors.Is(err, errors.ErrDirectoryNotConfigured):
		return http.StatusInternalServerError
	case stderrors.Is(err, errors.ErrRecipientNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrLookupFailed), stderrors.Is(err, errors.ErrRateNotAvailable):
		return http.StatusServiceUnavailable
	case stderrors.Is(err, errors.ErrInvalidInput),
		stderrors.Is(err, errors.ErrInvalidAmount),
		stderrors.Is(err, errors.ErrOnChainFailure),
		stderrors.Is(err, errors.ErrNoMatchingTransfer),
		stderrors.Is(err, errors.ErrInvalidEventData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), errors.UserMessage(err))
}
