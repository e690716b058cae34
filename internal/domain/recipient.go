package domain

import "strings"

// RecipientKind is the declared kind of a free-form recipient identifier.
type RecipientKind string

const (
	// RecipientDotPayID accepts a DP-prefixed internal identifier or a handle.
	RecipientDotPayID RecipientKind = "dotpay"
	RecipientHandle   RecipientKind = "handle"
	RecipientWallet   RecipientKind = "wallet"
	RecipientEmail    RecipientKind = "email"
	RecipientPhone    RecipientKind = "phone"
)

// Valid reports whether k is a known recipient kind.
func (k RecipientKind) Valid() bool {
	switch k {
	case RecipientDotPayID, RecipientHandle, RecipientWallet, RecipientEmail, RecipientPhone:
		return true
	}
	return false
}

// RecipientIdentifier is what the sender typed, together with the kind they picked.
type RecipientIdentifier struct {
	Kind     RecipientKind `json:"kind"`
	RawValue string        `json:"value"`
}

// ResolvedRecipient is an immutable resolution result.
type ResolvedRecipient struct {
	SettlementAddress string  `json:"address"`
	Handle            *string `json:"username,omitempty"`
	InternalID        *string `json:"dotpayId,omitempty"`
	DisplayName       string  `json:"displayName"`
}

// SameAddress compares two settlement addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// DirectoryUser is a user record as returned by the directory service.
type DirectoryUser struct {
	Address  string  `json:"address"`
	Username *string `json:"username"`
	DotPayID *string `json:"dotpayId"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}
