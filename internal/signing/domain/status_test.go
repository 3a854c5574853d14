package domain

import "testing"

func signersWith(statuses ...SignerStatus) []Signer {
	signers := make([]Signer, 0, len(statuses))
	for i, status := range statuses {
		signers = append(signers, Signer{
			ID:     string(rune('a' + i)),
			Order:  i + 1,
			Status: status,
		})
	}
	return signers
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		signers  []Signer
		override TerminalOverride
		want     RequestStatus
	}{
		{
			name:    "all pending",
			signers: signersWith(SignerStatusPending, SignerStatusPending),
			want:    RequestStatusPending,
		},
		{
			name:    "delivery alone is not progress",
			signers: signersWith(SignerStatusDelivered, SignerStatusPending),
			want:    RequestStatusPending,
		},
		{
			name:    "one opened",
			signers: signersWith(SignerStatusOpened, SignerStatusPending),
			want:    RequestStatusInProgress,
		},
		{
			name:    "partially signed",
			signers: signersWith(SignerStatusSigned, SignerStatusPending),
			want:    RequestStatusInProgress,
		},
		{
			name:    "all signed",
			signers: signersWith(SignerStatusSigned, SignerStatusSigned),
			want:    RequestStatusCompleted,
		},
		{
			name:    "any declined wins",
			signers: signersWith(SignerStatusSigned, SignerStatusDeclined),
			want:    RequestStatusDeclined,
		},
		{
			name:     "void override beats progress",
			signers:  signersWith(SignerStatusSigned, SignerStatusSigned),
			override: OverrideVoided,
			want:     RequestStatusVoided,
		},
		{
			name:     "expired override beats pending",
			signers:  signersWith(SignerStatusPending),
			override: OverrideExpired,
			want:     RequestStatusExpired,
		},
		{
			name:    "no signers",
			signers: nil,
			want:    RequestStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.signers, tt.override); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsAbsorbing(t *testing.T) {
	absorbing := []RequestStatus{
		RequestStatusCompleted,
		RequestStatusVoided,
		RequestStatusDeclined,
		RequestStatusExpired,
	}
	for _, status := range absorbing {
		if !IsAbsorbing(status) {
			t.Fatalf("expected %v to be absorbing", status)
		}
	}
	for _, status := range []RequestStatus{RequestStatusPending, RequestStatusInProgress} {
		if IsAbsorbing(status) {
			t.Fatalf("expected %v not to be absorbing", status)
		}
	}
}

func TestRecomputeKeepsTerminalOverride(t *testing.T) {
	request := SigningRequest{
		Status:  RequestStatusVoided,
		Signers: signersWith(SignerStatusSigned, SignerStatusSigned),
	}
	request.Recompute()
	if request.Status != RequestStatusVoided {
		t.Fatalf("expected voided to stay absorbed, got %v", request.Status)
	}

	request = SigningRequest{
		Status:  RequestStatusInProgress,
		Signers: signersWith(SignerStatusSigned, SignerStatusSigned),
	}
	request.Recompute()
	if request.Status != RequestStatusCompleted {
		t.Fatalf("expected completed after all signed, got %v", request.Status)
	}
}
