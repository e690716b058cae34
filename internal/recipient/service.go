// Package recipient resolves free-form recipient identifiers to settlement addresses.
package recipient

import (
	"context"
	stderrors "errors"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"
)

// Directory is the remote user directory.
type Directory interface {
	Lookup(ctx context.Context, query string) (*domain.DirectoryUser, error)
	GetByAddress(ctx context.Context, address string) (*domain.DirectoryUser, error)
}

type configurable interface {
	Configured() bool
}

func directoryConfigured(dir Directory) bool {
	if dir == nil {
		return false
	}
	if c, ok := dir.(configurable); ok {
		return c.Configured()
	}
	return true
}

// Service performs one-shot resolutions for server-side and CLI callers.
type Service struct {
	directory Directory
	logger    logger.Logger
}

func NewService(directory Directory, log logger.Logger) *Service {
	return &Service{directory: directory, logger: log}
}

// Resolve validates id and looks it up. Wallet addresses resolve locally and are
// enriched from the directory when it is reachable.
func (s *Service) Resolve(ctx context.Context, id domain.RecipientIdentifier) (*domain.ResolvedRecipient, error) {
	query, err := Validate(id.Kind, id.RawValue)
	if err != nil {
		return nil, err
	}

	if id.Kind == domain.RecipientWallet {
		resolved := FromAddress(query)
		if !directoryConfigured(s.directory) {
			return resolved, nil
		}
		user, err := s.directory.GetByAddress(ctx, query)
		if err != nil {
			if !stderrors.Is(err, errors.ErrRecipientNotFound) {
				s.logger.Debug("Address enrichment failed", map[string]interface{}{
					"address": query,
					"error":   err.Error(),
				})
			}
			return resolved, nil
		}
		if domain.SameAddress(user.Address, query) {
			return FromUser(user), nil
		}
		return resolved, nil
	}

	if !directoryConfigured(s.directory) {
		return nil, errors.ErrDirectoryNotConfigured
	}

	user, err := s.directory.Lookup(ctx, query)
	if err != nil {
		if stderrors.Is(err, errors.ErrRecipientNotFound) || stderrors.Is(err, errors.ErrDirectoryNotConfigured) {
			return nil, err
		}
		s.logger.Warn("Recipient lookup failed", map[string]interface{}{
			"kind":  id.Kind,
			"error": err.Error(),
		})
		if stderrors.Is(err, errors.ErrLookupFailed) {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrLookupFailed, err.Error())
	}
	if user == nil || user.Address == "" {
		return nil, errors.ErrRecipientNotFound
	}
	return FromUser(user), nil
}

// CheckNotSelf fails with ErrSelfSend when the recipient is the sender.
func CheckNotSelf(recipient *domain.ResolvedRecipient, sender string) error {
	if recipient != nil && domain.SameAddress(recipient.SettlementAddress, sender) {
		return errors.ErrSelfSend
	}
	return nil
}
