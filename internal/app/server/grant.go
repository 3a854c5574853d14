package server

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/inkflow/inkflow/internal/errors"
)

// GrantConfig defines how dashboard subscribe grants are verified. Grants
// are minted by the sender's identity provider with the shared secret; this
// process only validates them.
type GrantConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

// subscribeGrantClaims is the internal claims type used for JWT parsing.
type subscribeGrantClaims struct {
	jwt.RegisteredClaims
	SenderEmail string `json:"sender_email"`
}

// ValidateSubscribeGrant verifies a grant token and returns the sender email
// it was issued for.
func ValidateSubscribeGrant(grant string, cfg GrantConfig) (string, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return "", apperrors.New(apperrors.CodeSubscribeGrantInvalid, "subscribe grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Secret) == 0 || cfg.Issuer == "" || cfg.Audience == "" {
		return "", errors.New("subscribe grant verifier is not configured")
	}

	var parsed subscribeGrantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", mapGrantError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return "", apperrors.WithMetadata(
			apperrors.CodeSubscribeGrantInvalid,
			"subscribe grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return "", apperrors.WithMetadata(
			apperrors.CodeSubscribeGrantInvalid,
			"subscribe grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ExpiresAt == nil {
		return "", apperrors.New(apperrors.CodeSubscribeGrantInvalid, "subscribe grant exp is required")
	}

	now := cfg.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return "", apperrors.New(apperrors.CodeSubscribeGrantExpired, "subscribe grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return "", apperrors.New(apperrors.CodeSubscribeGrantInvalid, "subscribe grant not active yet")
	}

	senderEmail := strings.TrimSpace(parsed.SenderEmail)
	if senderEmail == "" {
		return "", apperrors.New(apperrors.CodeSubscribeGrantInvalid, "subscribe grant sender is required")
	}
	return senderEmail, nil
}

// mapGrantError translates jwt library errors to application errors.
func mapGrantError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeSubscribeGrantInvalid, "subscribe grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeSubscribeGrantInvalid, "subscribe grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeSubscribeGrantInvalid, "subscribe grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}
