// Package token resolves opaque signer access tokens to their request and
// signer without leaking whether a presented token ever existed.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/inkflow/inkflow/internal/errors"
	"github.com/inkflow/inkflow/internal/signing/domain"
	"github.com/inkflow/inkflow/internal/signing/storage"
)

// ErrTokenNotFound is returned for every failed resolution: unknown tokens,
// invalidated tokens, and tokens whose request is gone all look identical,
// so a caller probing tokens learns nothing.
var ErrTokenNotFound = apperrors.New(apperrors.CodeTokenNotFound, "signing link is not available")

// Service issues and resolves signer access tokens.
type Service struct {
	tokens   storage.TokenStore
	requests storage.RequestStore
	now      func() time.Time
}

// NewService creates a token service over the given stores.
func NewService(tokens storage.TokenStore, requests storage.RequestStore, now func() time.Time) (*Service, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if requests == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{tokens: tokens, requests: requests, now: now}, nil
}

// Issue records one signer token in the lookup index.
func (s *Service) Issue(ctx context.Context, requestID, signerID, token string) error {
	if s == nil {
		return fmt.Errorf("token service is not configured")
	}
	return s.tokens.PutToken(ctx, storage.TokenRecord{
		Token:     strings.TrimSpace(token),
		RequestID: strings.TrimSpace(requestID),
		SignerID:  strings.TrimSpace(signerID),
		CreatedAt: s.now().UTC(),
	})
}

// IssueForRequest records every signer token of a freshly created request.
func (s *Service) IssueForRequest(ctx context.Context, request domain.SigningRequest) error {
	if s == nil {
		return fmt.Errorf("token service is not configured")
	}
	for _, signer := range request.Signers {
		if err := s.Issue(ctx, request.ID, signer.ID, signer.Token); err != nil {
			return fmt.Errorf("issue token for signer %s: %w", signer.ID, err)
		}
	}
	return nil
}

// Resolve maps one presented token to its live request and signer. Any
// failure resolves to ErrTokenNotFound.
func (s *Service) Resolve(ctx context.Context, token string) (domain.SigningRequest, domain.Signer, error) {
	if s == nil {
		return domain.SigningRequest{}, domain.Signer{}, fmt.Errorf("token service is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.SigningRequest{}, domain.Signer{}, ErrTokenNotFound
	}

	record, err := s.tokens.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.SigningRequest{}, domain.Signer{}, ErrTokenNotFound
		}
		return domain.SigningRequest{}, domain.Signer{}, fmt.Errorf("lookup token: %w", err)
	}
	if record.InvalidatedAt != nil {
		return domain.SigningRequest{}, domain.Signer{}, ErrTokenNotFound
	}

	request, err := s.requests.GetRequest(ctx, record.RequestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.SigningRequest{}, domain.Signer{}, ErrTokenNotFound
		}
		return domain.SigningRequest{}, domain.Signer{}, fmt.Errorf("load token request: %w", err)
	}
	signer, ok := request.SignerByID(record.SignerID)
	if !ok {
		return domain.SigningRequest{}, domain.Signer{}, ErrTokenNotFound
	}
	return request, signer, nil
}

// InvalidateForRequest flags every live token of a request; links stop
// resolving once the request reaches an absorbing state.
func (s *Service) InvalidateForRequest(ctx context.Context, requestID string) error {
	if s == nil {
		return fmt.Errorf("token service is not configured")
	}
	return s.tokens.InvalidateRequestTokens(ctx, requestID, s.now().UTC())
}
