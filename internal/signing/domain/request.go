// Package domain holds the signing request aggregate and its pure state rules.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/inkflow/inkflow/internal/errors"
	"github.com/inkflow/inkflow/internal/id"
)

// RequestStatus describes the lifecycle of a signing request.
type RequestStatus int

const (
	// RequestStatusUnspecified represents an invalid request status.
	RequestStatusUnspecified RequestStatus = iota
	// RequestStatusPending indicates no signer has been contacted yet.
	RequestStatusPending
	// RequestStatusInProgress indicates at least one signer has acted.
	RequestStatusInProgress
	// RequestStatusCompleted indicates every signer has signed.
	RequestStatusCompleted
	// RequestStatusDeclined indicates a signer refused to sign.
	RequestStatusDeclined
	// RequestStatusVoided indicates the sender cancelled the request.
	RequestStatusVoided
	// RequestStatusExpired indicates the due date passed before completion.
	RequestStatusExpired
)

// OrderingMode controls how signer activation is sequenced.
type OrderingMode int

const (
	// OrderingModeUnspecified represents an invalid ordering mode.
	OrderingModeUnspecified OrderingMode = iota
	// OrderingModeSequential activates signers one at a time by ascending order.
	OrderingModeSequential
	// OrderingModeParallel activates all non-terminal signers at once.
	OrderingModeParallel
)

var (
	// ErrEmptyDocumentName indicates a missing document name.
	ErrEmptyDocumentName = apperrors.New(apperrors.CodeRequestDocumentNameEmpty, "document name is required")
	// ErrEmptySenderName indicates a missing sender name.
	ErrEmptySenderName = apperrors.New(apperrors.CodeRequestSenderNameEmpty, "sender name is required")
	// ErrNoSigners indicates a request without signers.
	ErrNoSigners = apperrors.New(apperrors.CodeRequestNoSigners, "at least one signer is required")
)

// SigningRequest is the aggregate tracking one document's multi-party
// signing lifecycle. It is mutated only through engine operations.
type SigningRequest struct {
	ID           string
	DocumentID   string
	DocumentName string
	SenderName   string
	SenderEmail  string
	Signers      []Signer
	Fields       []SignatureField
	Status       RequestStatus
	OrderingMode OrderingMode
	Message      string
	Subject      string
	CcEmails     []string
	DueDate      *time.Time
	// VoidReason and DeclineReason are set by the terminal transition that
	// absorbed the request.
	VoidReason    string
	DeclineReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Version is the optimistic concurrency token; every persisted write
	// bumps it by one.
	Version int64
}

// CreateRequestInput describes the sender's create operation.
type CreateRequestInput struct {
	DocumentID   string
	DocumentName string
	SenderName   string
	SenderEmail  string
	Signers      []SignerInput
	Fields       []FieldInput
	Message      string
	Subject      string
	CcEmails     []string
	OrderingMode OrderingMode
	DueDate      *time.Time
}

// CreateRequest creates a new signing request with generated IDs and one
// access token per signer. The request starts pending; no invites are
// dispatched until Deliver.
func CreateRequest(input CreateRequestInput, now func() time.Time, idGenerator func() (string, error), tokenGenerator func() (string, error)) (SigningRequest, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if tokenGenerator == nil {
		tokenGenerator = id.NewToken
	}

	normalized, err := NormalizeCreateRequestInput(input)
	if err != nil {
		return SigningRequest{}, err
	}

	requestID, err := idGenerator()
	if err != nil {
		return SigningRequest{}, fmt.Errorf("generate request id: %w", err)
	}

	createdAt := now().UTC()
	if normalized.DueDate != nil && !normalized.DueDate.After(createdAt) {
		return SigningRequest{}, apperrors.New(apperrors.CodeRequestDueDatePast, "due date must be in the future")
	}

	signers := make([]Signer, 0, len(normalized.Signers))
	for _, signerInput := range normalized.Signers {
		signerID, err := idGenerator()
		if err != nil {
			return SigningRequest{}, fmt.Errorf("generate signer id: %w", err)
		}
		token, err := tokenGenerator()
		if err != nil {
			return SigningRequest{}, fmt.Errorf("generate signer token: %w", err)
		}
		signers = append(signers, Signer{
			ID:     signerID,
			Name:   signerInput.Name,
			Email:  signerInput.Email,
			Order:  signerInput.Order,
			Status: SignerStatusPending,
			Token:  token,
			IsSelf: signerInput.IsSelf,
		})
	}

	fields := make([]SignatureField, 0, len(normalized.Fields))
	for _, fieldInput := range normalized.Fields {
		fieldID, err := idGenerator()
		if err != nil {
			return SigningRequest{}, fmt.Errorf("generate field id: %w", err)
		}
		fields = append(fields, SignatureField{
			ID:          fieldID,
			SignerOrder: fieldInput.SignerOrder,
			X:           fieldInput.X,
			Y:           fieldInput.Y,
			W:           fieldInput.W,
			H:           fieldInput.H,
			Type:        fieldInput.Type,
			Label:       fieldInput.Label,
		})
	}

	return SigningRequest{
		ID:           requestID,
		DocumentID:   normalized.DocumentID,
		DocumentName: normalized.DocumentName,
		SenderName:   normalized.SenderName,
		SenderEmail:  normalized.SenderEmail,
		Signers:      signers,
		Fields:       fields,
		Status:       RequestStatusPending,
		OrderingMode: normalized.OrderingMode,
		Message:      normalized.Message,
		Subject:      normalized.Subject,
		CcEmails:     normalized.CcEmails,
		DueDate:      normalized.DueDate,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Version:      1,
	}, nil
}

// NormalizeCreateRequestInput trims and validates a create request input.
// Signer orders must be unique; every assigned field must reference an
// existing signer order.
func NormalizeCreateRequestInput(input CreateRequestInput) (CreateRequestInput, error) {
	input.DocumentID = strings.TrimSpace(input.DocumentID)
	input.DocumentName = strings.TrimSpace(input.DocumentName)
	if input.DocumentName == "" {
		return CreateRequestInput{}, ErrEmptyDocumentName
	}
	input.SenderName = strings.TrimSpace(input.SenderName)
	if input.SenderName == "" {
		return CreateRequestInput{}, ErrEmptySenderName
	}
	input.SenderEmail = strings.TrimSpace(input.SenderEmail)
	if !validEmail(input.SenderEmail) {
		return CreateRequestInput{}, apperrors.WithMetadata(
			apperrors.CodeRequestSenderEmailBad,
			"sender email is invalid",
			map[string]string{"Email": input.SenderEmail},
		)
	}
	if len(input.Signers) == 0 {
		return CreateRequestInput{}, ErrNoSigners
	}

	seenOrders := make(map[int]struct{}, len(input.Signers))
	normalizedSigners := make([]SignerInput, 0, len(input.Signers))
	for _, signerInput := range input.Signers {
		normalizedSigner, err := NormalizeSignerInput(signerInput)
		if err != nil {
			return CreateRequestInput{}, err
		}
		if _, dup := seenOrders[normalizedSigner.Order]; dup {
			return CreateRequestInput{}, apperrors.WithMetadata(
				apperrors.CodeSignerOrderDuplicate,
				"signer order values must be unique",
				map[string]string{"Order": strconv.Itoa(normalizedSigner.Order)},
			)
		}
		seenOrders[normalizedSigner.Order] = struct{}{}
		normalizedSigners = append(normalizedSigners, normalizedSigner)
	}
	input.Signers = normalizedSigners

	normalizedFields := make([]FieldInput, 0, len(input.Fields))
	for _, fieldInput := range input.Fields {
		normalizedField, err := NormalizeFieldInput(fieldInput)
		if err != nil {
			return CreateRequestInput{}, err
		}
		if normalizedField.SignerOrder != UnassignedSignerOrder {
			if _, ok := seenOrders[normalizedField.SignerOrder]; !ok {
				return CreateRequestInput{}, apperrors.WithMetadata(
					apperrors.CodeFieldSignerUnknown,
					"field references a signer order that does not exist",
					map[string]string{"Order": strconv.Itoa(normalizedField.SignerOrder)},
				)
			}
		}
		normalizedFields = append(normalizedFields, normalizedField)
	}
	input.Fields = normalizedFields

	if input.OrderingMode == OrderingModeUnspecified {
		input.OrderingMode = OrderingModeSequential
	}

	input.Message = strings.TrimSpace(input.Message)
	input.Subject = strings.TrimSpace(input.Subject)
	ccEmails := make([]string, 0, len(input.CcEmails))
	for _, cc := range input.CcEmails {
		cc = strings.TrimSpace(cc)
		if cc == "" {
			continue
		}
		ccEmails = append(ccEmails, cc)
	}
	input.CcEmails = ccEmails
	if input.DueDate != nil {
		utc := input.DueDate.UTC()
		input.DueDate = &utc
	}
	return input, nil
}

// SignerByID returns the signer with the given ID.
func (r SigningRequest) SignerByID(signerID string) (Signer, bool) {
	for _, signer := range r.Signers {
		if signer.ID == signerID {
			return signer, true
		}
	}
	return Signer{}, false
}

// SignerByEmail returns the first signer with the given email,
// case-insensitively.
func (r SigningRequest) SignerByEmail(email string) (Signer, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, signer := range r.Signers {
		if strings.ToLower(signer.Email) == email {
			return signer, true
		}
	}
	return Signer{}, false
}

// FieldsForSigner returns the fields assigned to the signer's order.
// Unassigned fields belong to the lowest signer order in the request.
func (r SigningRequest) FieldsForSigner(signer Signer) []SignatureField {
	lowest := 0
	for _, s := range r.Signers {
		if lowest == 0 || s.Order < lowest {
			lowest = s.Order
		}
	}
	assigned := make([]SignatureField, 0, len(r.Fields))
	for _, field := range r.Fields {
		order := field.SignerOrder
		if order == UnassignedSignerOrder {
			order = lowest
		}
		if order == signer.Order {
			assigned = append(assigned, field)
		}
	}
	return assigned
}

// RequestStatusLabel returns the wire label for a request status.
func RequestStatusLabel(status RequestStatus) string {
	switch status {
	case RequestStatusPending:
		return "pending"
	case RequestStatusInProgress:
		return "in_progress"
	case RequestStatusCompleted:
		return "completed"
	case RequestStatusDeclined:
		return "declined"
	case RequestStatusVoided:
		return "voided"
	case RequestStatusExpired:
		return "expired"
	default:
		return "unspecified"
	}
}

// RequestStatusFromLabel converts a wire label to a RequestStatus value.
func RequestStatusFromLabel(label string) RequestStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pending":
		return RequestStatusPending
	case "in_progress":
		return RequestStatusInProgress
	case "completed":
		return RequestStatusCompleted
	case "declined":
		return RequestStatusDeclined
	case "voided":
		return RequestStatusVoided
	case "expired":
		return RequestStatusExpired
	default:
		return RequestStatusUnspecified
	}
}

// OrderingModeLabel returns the wire label for an ordering mode.
func OrderingModeLabel(mode OrderingMode) string {
	switch mode {
	case OrderingModeSequential:
		return "sequential"
	case OrderingModeParallel:
		return "parallel"
	default:
		return "unspecified"
	}
}

// OrderingModeFromLabel converts a wire label to an OrderingMode value.
func OrderingModeFromLabel(label string) OrderingMode {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "sequential":
		return OrderingModeSequential
	case "parallel":
		return OrderingModeParallel
	default:
		return OrderingModeUnspecified
	}
}
