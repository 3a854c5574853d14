package server

import (
	"encoding/json"
	"time"

	"github.com/inkflow/inkflow/internal/signing/domain"
	"github.com/inkflow/inkflow/internal/signing/storage"
)

// createRequestPayload is the management API create body.
type createRequestPayload struct {
	DocumentID   string              `json:"document_id,omitempty"`
	DocumentName string              `json:"document_name"`
	SenderName   string              `json:"sender_name"`
	Signers      []createSignerInput `json:"signers"`
	Fields       []createFieldInput  `json:"fields,omitempty"`
	Message      string              `json:"message,omitempty"`
	Subject      string              `json:"subject,omitempty"`
	CcEmails     []string            `json:"cc_emails,omitempty"`
	OrderingMode string              `json:"ordering_mode,omitempty"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
}

type createSignerInput struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Order  int    `json:"order"`
	IsSelf bool   `json:"is_self,omitempty"`
}

type createFieldInput struct {
	SignerOrder int     `json:"signer_order"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	Type        string  `json:"type"`
	Label       string  `json:"label,omitempty"`
}

func (p createRequestPayload) toDomain(senderEmail string) domain.CreateRequestInput {
	input := domain.CreateRequestInput{
		DocumentID:   p.DocumentID,
		DocumentName: p.DocumentName,
		SenderName:   p.SenderName,
		SenderEmail:  senderEmail,
		Message:      p.Message,
		Subject:      p.Subject,
		CcEmails:     p.CcEmails,
		OrderingMode: domain.OrderingModeFromLabel(p.OrderingMode),
		DueDate:      p.DueDate,
	}
	for _, signer := range p.Signers {
		input.Signers = append(input.Signers, domain.SignerInput{
			Name:   signer.Name,
			Email:  signer.Email,
			Order:  signer.Order,
			IsSelf: signer.IsSelf,
		})
	}
	for _, field := range p.Fields {
		input.Fields = append(input.Fields, domain.FieldInput{
			SignerOrder: field.SignerOrder,
			X:           field.X,
			Y:           field.Y,
			W:           field.W,
			H:           field.H,
			Type:        domain.FieldTypeFromLabel(field.Type),
			Label:       field.Label,
		})
	}
	return input
}

// requestView is the management API representation of a signing request.
type requestView struct {
	ID            string       `json:"id"`
	DocumentID    string       `json:"document_id,omitempty"`
	DocumentName  string       `json:"document_name"`
	SenderName    string       `json:"sender_name"`
	SenderEmail   string       `json:"sender_email"`
	Status        string       `json:"status"`
	OrderingMode  string       `json:"ordering_mode"`
	Message       string       `json:"message,omitempty"`
	Subject       string       `json:"subject,omitempty"`
	CcEmails      []string     `json:"cc_emails,omitempty"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	VoidReason    string       `json:"void_reason,omitempty"`
	DeclineReason string       `json:"decline_reason,omitempty"`
	Signers       []signerView `json:"signers"`
	Fields        []fieldView  `json:"fields,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Version       int64        `json:"version"`
}

type signerView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Order    int        `json:"order"`
	Status   string     `json:"status"`
	IsSelf   bool       `json:"is_self,omitempty"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
	// Token is only populated on the create response.
	Token string `json:"token,omitempty"`
}

type fieldView struct {
	ID          string  `json:"id"`
	SignerOrder int     `json:"signer_order"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	Type        string  `json:"type"`
	Label       string  `json:"label,omitempty"`
	Value       string  `json:"value,omitempty"`
}

func toRequestView(request domain.SigningRequest) requestView {
	view := requestView{
		ID:            request.ID,
		DocumentID:    request.DocumentID,
		DocumentName:  request.DocumentName,
		SenderName:    request.SenderName,
		SenderEmail:   request.SenderEmail,
		Status:        domain.RequestStatusLabel(request.Status),
		OrderingMode:  domain.OrderingModeLabel(request.OrderingMode),
		Message:       request.Message,
		Subject:       request.Subject,
		CcEmails:      request.CcEmails,
		DueDate:       request.DueDate,
		VoidReason:    request.VoidReason,
		DeclineReason: request.DeclineReason,
		CreatedAt:     request.CreatedAt,
		UpdatedAt:     request.UpdatedAt,
		Version:       request.Version,
	}
	for _, signer := range request.Signers {
		view.Signers = append(view.Signers, toSignerView(signer))
	}
	for _, field := range request.Fields {
		view.Fields = append(view.Fields, toFieldView(field))
	}
	return view
}

// toCreatedRequestView carries each signer's access token so the sender can
// distribute signing links without depending on the notification transport.
// Only the create response exposes tokens; every later read omits them.
func toCreatedRequestView(request domain.SigningRequest) requestView {
	view := toRequestView(request)
	for i, signer := range request.Signers {
		view.Signers[i].Token = signer.Token
	}
	return view
}

func toSignerView(signer domain.Signer) signerView {
	return signerView{
		ID:       signer.ID,
		Name:     signer.Name,
		Email:    signer.Email,
		Order:    signer.Order,
		Status:   domain.SignerStatusLabel(signer.Status),
		IsSelf:   signer.IsSelf,
		SignedAt: signer.SignedAt,
	}
}

func toFieldView(field domain.SignatureField) fieldView {
	return fieldView{
		ID:          field.ID,
		SignerOrder: field.SignerOrder,
		X:           field.X,
		Y:           field.Y,
		W:           field.W,
		H:           field.H,
		Type:        domain.FieldTypeLabel(field.Type),
		Label:       field.Label,
		Value:       field.Value,
	}
}

// listRequestsView pages the dashboard listing.
type listRequestsView struct {
	Requests      []requestView `json:"requests"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// signerPageView is what a signer token resolves to. It deliberately omits
// other signers' emails and the sender's distribution list.
type signerPageView struct {
	RequestID    string      `json:"request_id"`
	DocumentName string      `json:"document_name"`
	SenderName   string      `json:"sender_name"`
	Message      string      `json:"message,omitempty"`
	Status       string      `json:"status"`
	Signer       signerView  `json:"signer"`
	Fields       []fieldView `json:"fields"`
}

func toSignerPageView(request domain.SigningRequest, signer domain.Signer) signerPageView {
	view := signerPageView{
		RequestID:    request.ID,
		DocumentName: request.DocumentName,
		SenderName:   request.SenderName,
		Message:      request.Message,
		Status:       domain.RequestStatusLabel(request.Status),
		Signer:       toSignerView(signer),
	}
	for _, field := range request.FieldsForSigner(signer) {
		view.Fields = append(view.Fields, toFieldView(field))
	}
	return view
}

// auditEventView is one audit ledger entry on the wire.
type auditEventView struct {
	ID        string          `json:"id"`
	SignerID  string          `json:"signer_id,omitempty"`
	EventName string          `json:"event_name"`
	ActorType string          `json:"actor_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func toAuditEventView(event storage.AuditEvent) auditEventView {
	return auditEventView{
		ID:        event.ID,
		SignerID:  event.SignerID,
		EventName: event.EventName,
		ActorType: event.ActorType,
		ActorID:   event.ActorID,
		Metadata:  json.RawMessage(event.MetadataJSON),
		Timestamp: event.Timestamp,
	}
}

// downloadView is the render handoff payload for completed documents.
type downloadView struct {
	RequestID    string       `json:"request_id"`
	DocumentID   string       `json:"document_id,omitempty"`
	DocumentName string       `json:"document_name"`
	Status       string       `json:"status"`
	Signers      []signerView `json:"signers"`
	Fields       []fieldView  `json:"fields"`
}

func toDownloadView(request domain.SigningRequest) downloadView {
	view := downloadView{
		RequestID:    request.ID,
		DocumentID:   request.DocumentID,
		DocumentName: request.DocumentName,
		Status:       domain.RequestStatusLabel(request.Status),
	}
	for _, signer := range request.Signers {
		view.Signers = append(view.Signers, toSignerView(signer))
	}
	for _, field := range request.Fields {
		view.Fields = append(view.Fields, toFieldView(field))
	}
	return view
}

type voidPayload struct {
	Reason string `json:"reason"`
}

type resendPayload struct {
	SignerID string `json:"signer_id,omitempty"`
}

type signPayload struct {
	Values map[string]string `json:"values"`
}

type declinePayload struct {
	Reason string `json:"reason"`
}
