package recipient

import (
	"regexp"
	"strings"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/validator"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneSeparators = regexp.MustCompile(`[\s()-]`)
	nonDigit        = regexp.MustCompile(`[^0-9]`)
)

const (
	minPhoneDigits  = 7
	shortAddrPrefix = 6
	shortAddrSuffix = 4
)

// ValidationError is a shape failure with a message fit for the sender.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return errors.ErrInvalidInput }

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// Validate checks the kind-specific shape of raw and returns the query to send
// to the directory. It never performs I/O.
func Validate(kind domain.RecipientKind, raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", invalid("Enter a recipient.")
	}

	switch kind {
	case domain.RecipientWallet:
		if !validator.IsEVMAddress(q) {
			return "", invalid("Enter a valid wallet address (0x…).")
		}
		return strings.ToLower(q), nil
	case domain.RecipientHandle:
		if !validator.IsHandle(q) {
			return "", invalid("Enter a valid @username.")
		}
		return strings.ToLower(q), nil
	case domain.RecipientDotPayID:
		if !validator.IsDotPayID(q) && !validator.IsHandle(q) {
			return "", invalid("Enter @username or a DotPay ID (DP…).")
		}
		return q, nil
	case domain.RecipientEmail:
		if !emailPattern.MatchString(q) {
			return "", invalid("Enter a valid email address.")
		}
		return q, nil
	case domain.RecipientPhone:
		normalized := phoneSeparators.ReplaceAllString(q, "")
		if len(nonDigit.ReplaceAllString(normalized, "")) < minPhoneDigits {
			return "", invalid("Enter a valid phone number.")
		}
		return normalized, nil
	default:
		return "", invalid("unknown recipient kind " + string(kind))
	}
}

// ShortAddress renders 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) <= shortAddrPrefix+shortAddrSuffix {
		return addr
	}
	return addr[:shortAddrPrefix] + "…" + addr[len(addr)-shortAddrSuffix:]
}

// DisplayName prefers @username, then the DotPay ID, then the short address.
func DisplayName(user *domain.DirectoryUser) string {
	if user.Username != nil && *user.Username != "" {
		return "@" + *user.Username
	}
	if user.DotPayID != nil && *user.DotPayID != "" {
		return *user.DotPayID
	}
	return ShortAddress(user.Address)
}

// FromUser builds a resolution from a directory record.
func FromUser(user *domain.DirectoryUser) *domain.ResolvedRecipient {
	return &domain.ResolvedRecipient{
		SettlementAddress: strings.ToLower(user.Address),
		Handle:            user.Username,
		InternalID:        user.DotPayID,
		DisplayName:       DisplayName(user),
	}
}

// FromAddress builds a resolution for a bare wallet address.
func FromAddress(addr string) *domain.ResolvedRecipient {
	return &domain.ResolvedRecipient{
		SettlementAddress: strings.ToLower(addr),
		DisplayName:       ShortAddress(addr),
	}
}
