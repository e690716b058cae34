package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"dotpay/internal/domain"
	"dotpay/internal/middleware"
	"dotpay/internal/recipient"
	"dotpay/pkg/errors"
	"dotpay/pkg/validator"
)

type RecipientResolver interface {
	Resolve(ctx context.Context, id domain.RecipientIdentifier) (*domain.ResolvedRecipient, error)
}

type RecipientHandler struct {
	resolver  RecipientResolver
	validator *validator.Validator
	logger    Logger
}

func NewRecipientHandler(resolver RecipientResolver, val *validator.Validator, log Logger) *RecipientHandler {
	return &RecipientHandler{resolver: resolver, validator: val, logger: log}
}

type resolveQuery struct {
	Kind  string `validate:"required,oneof=dotpay handle wallet email phone"`
	Query string `validate:"required,max=254"`
}

type resolveResponse struct {
	Recipient *domain.ResolvedRecipient `json:"recipient"`
	Self      bool                      `json:"self"`
}

// Resolve handles GET /recipients/resolve?kind=&q=.
func (h *RecipientHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := resolveQuery{
		Kind:  strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind"))),
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}
	if errs := h.validator.ValidateStructured(&q); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), domain.RecipientIdentifier{
		Kind:     domain.RecipientKind(q.Kind),
		RawValue: q.Query,
	})
	if err != nil {
		status := statusFor(err)
		// Lookup is a read: a missing directory is an availability problem here.
		if stderrors.Is(err, errors.ErrDirectoryNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		if status >= http.StatusInternalServerError {
			h.logger.Warn("Recipient lookup failed", map[string]interface{}{
				"kind":  q.Kind,
				"error": err.Error(),
			})
		}
		respondError(w, status, resolveMessage(err))
		return
	}

	sender, _ := middleware.AddressFromContext(r.Context())
	respondOK(w, resolveResponse{
		Recipient: resolved,
		Self:      sender != "" && domain.SameAddress(resolved.SettlementAddress, sender),
	})
}

func resolveMessage(err error) string {
	var verr *recipient.ValidationError
	if stderrors.As(err, &verr) {
		return verr.Message
	}
	return errors.UserMessage(err)
}
