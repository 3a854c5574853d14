package domain

import (
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/inkflow/inkflow/internal/errors"
)

// SignerStatus represents the lifecycle status of one signer.
type SignerStatus int

const (
	// SignerStatusUnspecified represents an invalid signer status.
	SignerStatusUnspecified SignerStatus = iota
	// SignerStatusPending indicates the signer has not been contacted yet.
	SignerStatusPending
	// SignerStatusDelivered indicates an invite was dispatched to the signer.
	SignerStatusDelivered
	// SignerStatusOpened indicates the signer viewed the signing page.
	SignerStatusOpened
	// SignerStatusSigned indicates the signer completed their signature.
	SignerStatusSigned
	// SignerStatusDeclined indicates the signer refused to sign.
	SignerStatusDeclined
)

// Signer represents one party required to act on a signing request.
type Signer struct {
	ID     string
	Name   string
	Email  string
	Order  int
	Status SignerStatus
	// Token is the opaque access credential for this signer's signing view.
	Token    string
	SignedAt *time.Time
	// IsSelf marks the sender signing their own document; invites are
	// skipped for self signers.
	IsSelf bool
}

// Terminal reports whether the signer can take no further action.
func (s Signer) Terminal() bool {
	return s.Status == SignerStatusSigned || s.Status == SignerStatusDeclined
}

// SignerInput describes one signer in a create request.
type SignerInput struct {
	Name   string
	Email  string
	Order  int
	IsSelf bool
}

// NormalizeSignerInput trims and validates one signer entry.
func NormalizeSignerInput(input SignerInput) (SignerInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return SignerInput{}, apperrors.New(apperrors.CodeSignerNameEmpty, "signer name is required")
	}
	input.Email = strings.TrimSpace(input.Email)
	if !validEmail(input.Email) {
		return SignerInput{}, apperrors.WithMetadata(
			apperrors.CodeSignerEmailBad,
			"signer email is invalid",
			map[string]string{"Email": input.Email},
		)
	}
	return input, nil
}

// SignerStatusLabel returns the wire label for a signer status.
func SignerStatusLabel(status SignerStatus) string {
	switch status {
	case SignerStatusPending:
		return "pending"
	case SignerStatusDelivered:
		return "delivered"
	case SignerStatusOpened:
		return "opened"
	case SignerStatusSigned:
		return "signed"
	case SignerStatusDeclined:
		return "declined"
	default:
		return "unspecified"
	}
}

// SignerStatusFromLabel converts a wire label to a SignerStatus value.
func SignerStatusFromLabel(label string) SignerStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pending":
		return SignerStatusPending
	case "delivered":
		return SignerStatusDelivered
	case "opened":
		return SignerStatusOpened
	case "signed":
		return SignerStatusSigned
	case "declined":
		return SignerStatusDeclined
	default:
		return SignerStatusUnspecified
	}
}

func validEmail(value string) bool {
	if value == "" || strings.ContainsAny(value, " \t") {
		return false
	}
	parsed, err := mail.ParseAddress(value)
	return err == nil && parsed.Address == value
}
