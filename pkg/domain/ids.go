// Package domain holds the primitives shared by every ledger aggregate:
// typed identifiers and decimal money.
package domain

import (
	"strings"

	dErrors "rotrust/pkg/domain-errors"
)

// MaxIDLength bounds identifiers so they stay usable as ledger and index keys.
const MaxIDLength = 128

// Distinct identifier types prevent passing an escrow id where a property id
// is expected. Values are opaque caller-chosen strings.
type (
	PropertyID string
	TransferID string
	EscrowID   string
	PartyID    string
)

func (id PropertyID) String() string { return string(id) }
func (id TransferID) String() string { return string(id) }
func (id EscrowID) String() string   { return string(id) }
func (id PartyID) String() string    { return string(id) }

// Validate re-checks an id that did not come through a Parse function.
func (id PropertyID) Validate() error { _, err := parseID("property id", string(id)); return err }
func (id TransferID) Validate() error { _, err := parseID("transfer id", string(id)); return err }
func (id EscrowID) Validate() error   { _, err := parseID("escrow id", string(id)); return err }
func (id PartyID) Validate() error    { _, err := parseID("party id", string(id)); return err }

// Validator is implemented by every identifier type.
type Validator interface {
	Validate() error
}

// ValidateIDs returns the first invalid identifier's error.
func ValidateIDs(ids ...Validator) error {
	for _, v := range ids {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParsePropertyID validates a property identifier at a trust boundary.
func ParsePropertyID(s string) (PropertyID, error) {
	v, err := parseID("property id", s)
	return PropertyID(v), err
}

// ParseTransferID validates a transfer identifier at a trust boundary.
func ParseTransferID(s string) (TransferID, error) {
	v, err := parseID("transfer id", s)
	return TransferID(v), err
}

// ParseEscrowID validates an escrow identifier at a trust boundary.
func ParseEscrowID(s string) (EscrowID, error) {
	v, err := parseID("escrow id", s)
	return EscrowID(v), err
}

// ParsePartyID validates a party (owner, seller, buyer, verifier) identifier.
func ParsePartyID(s string) (PartyID, error) {
	v, err := parseID("party id", s)
	return PartyID(v), err
}

// ValidateLocalID validates identifiers scoped inside an aggregate, such as
// payment, document and condition ids.
func ValidateLocalID(field, s string) error {
	_, err := parseID(field, s)
	return err
}

// parseID accepts [A-Za-z0-9._:-]{1,128}. The key separators used by ledger
// backends ("/" and NUL) can never appear in an id.
func parseID(field, s string) (string, error) {
	if s == "" {
		return "", dErrors.Newf(dErrors.CodeValidation, "%s is required", field)
	}
	if len(s) > MaxIDLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "%s exceeds %d characters", field, MaxIDLength)
	}
	if strings.IndexFunc(s, func(r rune) bool { return !isIDRune(r) }) >= 0 {
		return "", dErrors.Newf(dErrors.CodeValidation, "%s contains invalid characters", field)
	}
	return s, nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == ':':
		return true
	}
	return false
}
