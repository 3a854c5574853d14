package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/inkflow/inkflow/internal/errors"
)

func fixedIDs(prefix string) func() (string, error) {
	counter := 0
	return func() (string, error) {
		counter++
		return fmt.Sprintf("%s%d", prefix, counter), nil
	}
}

func twoSignerInput() CreateRequestInput {
	return CreateRequestInput{
		DocumentID:   "doc1",
		DocumentName: "Service Agreement",
		SenderName:   "Avery Quinn",
		SenderEmail:  "avery@example.com",
		Signers: []SignerInput{
			{Name: "Blair Ono", Email: "blair@example.com", Order: 1},
			{Name: "Casey Rios", Email: "casey@example.com", Order: 2},
		},
		Fields: []FieldInput{
			{SignerOrder: 1, Type: FieldTypeSignature, X: 10, Y: 20, W: 120, H: 40},
			{SignerOrder: UnassignedSignerOrder, Type: FieldTypeDate},
		},
	}
}

func TestCreateRequestGeneratesSignersAndTokens(t *testing.T) {
	fixedTime := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tokenSeq := fixedIDs("tok")

	request, err := CreateRequest(twoSignerInput(), func() time.Time { return fixedTime }, fixedIDs("id"), tokenSeq)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if request.ID != "id1" {
		t.Fatalf("expected request id id1, got %q", request.ID)
	}
	if request.Status != RequestStatusPending {
		t.Fatalf("expected pending status, got %v", request.Status)
	}
	if request.OrderingMode != OrderingModeSequential {
		t.Fatalf("expected sequential default, got %v", request.OrderingMode)
	}
	if len(request.Signers) != 2 {
		t.Fatalf("expected 2 signers, got %d", len(request.Signers))
	}
	seen := make(map[string]struct{})
	for _, signer := range request.Signers {
		if signer.Status != SignerStatusPending {
			t.Fatalf("expected pending signer, got %v", signer.Status)
		}
		if signer.Token == "" {
			t.Fatal("expected signer token to be issued")
		}
		if _, dup := seen[signer.Token]; dup {
			t.Fatalf("duplicate token %q", signer.Token)
		}
		seen[signer.Token] = struct{}{}
	}
	if len(request.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(request.Fields))
	}
	if !request.CreatedAt.Equal(fixedTime) || !request.UpdatedAt.Equal(fixedTime) {
		t.Fatal("expected timestamps to match fixed time")
	}
	if request.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", request.Version)
	}
}

func TestCreateRequestRejectsPastDueDate(t *testing.T) {
	fixedTime := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	pastDue := fixedTime.Add(-time.Hour)

	input := twoSignerInput()
	input.DueDate = &pastDue

	_, err := CreateRequest(input, func() time.Time { return fixedTime }, fixedIDs("id"), fixedIDs("tok"))
	if err == nil {
		t.Fatal("expected error for past due date")
	}
}

func TestNormalizeCreateRequestInputValidation(t *testing.T) {
	valid := twoSignerInput()

	tests := []struct {
		name   string
		mutate func(*CreateRequestInput)
		err    error
	}{
		{
			name:   "empty document name",
			mutate: func(in *CreateRequestInput) { in.DocumentName = "  " },
			err:    ErrEmptyDocumentName,
		},
		{
			name:   "empty sender name",
			mutate: func(in *CreateRequestInput) { in.SenderName = "" },
			err:    ErrEmptySenderName,
		},
		{
			name:   "no signers",
			mutate: func(in *CreateRequestInput) { in.Signers = nil },
			err:    ErrNoSigners,
		},
		{
			name: "duplicate signer order",
			mutate: func(in *CreateRequestInput) {
				in.Signers[1].Order = in.Signers[0].Order
			},
			err: apperrors.New(apperrors.CodeSignerOrderDuplicate, ""),
		},
		{
			name: "field assigned to unknown order",
			mutate: func(in *CreateRequestInput) {
				in.Fields[0].SignerOrder = 9
			},
			err: apperrors.New(apperrors.CodeFieldSignerUnknown, ""),
		},
		{
			name: "bad signer email",
			mutate: func(in *CreateRequestInput) {
				in.Signers[0].Email = "not-an-email"
			},
			err: apperrors.New(apperrors.CodeSignerEmailBad, ""),
		},
		{
			name: "bad sender email",
			mutate: func(in *CreateRequestInput) {
				in.SenderEmail = "nope@"
			},
			err: apperrors.New(apperrors.CodeRequestSenderEmailBad, ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			input.Signers = append([]SignerInput(nil), valid.Signers...)
			input.Fields = append([]FieldInput(nil), valid.Fields...)
			tt.mutate(&input)
			_, err := NormalizeCreateRequestInput(input)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
		})
	}
}

func TestFieldsForSignerDefaultsUnassigned(t *testing.T) {
	request, err := CreateRequest(twoSignerInput(), nil, fixedIDs("id"), fixedIDs("tok"))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	first, _ := request.SignerByEmail("blair@example.com")
	second, _ := request.SignerByEmail("casey@example.com")

	// Both the explicitly assigned field and the unassigned one belong to
	// the lowest-order signer.
	if got := len(request.FieldsForSigner(first)); got != 2 {
		t.Fatalf("expected 2 fields for first signer, got %d", got)
	}
	if got := len(request.FieldsForSigner(second)); got != 0 {
		t.Fatalf("expected 0 fields for second signer, got %d", got)
	}
}

func TestStatusLabelsRoundTrip(t *testing.T) {
	statuses := []RequestStatus{
		RequestStatusPending,
		RequestStatusInProgress,
		RequestStatusCompleted,
		RequestStatusDeclined,
		RequestStatusVoided,
		RequestStatusExpired,
	}
	for _, status := range statuses {
		label := RequestStatusLabel(status)
		if got := RequestStatusFromLabel(label); got != status {
			t.Fatalf("round trip for %q: got %v, want %v", label, got, status)
		}
	}
	if RequestStatusFromLabel("bogus") != RequestStatusUnspecified {
		t.Fatal("expected unknown label to map to unspecified")
	}
}
