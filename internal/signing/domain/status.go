package domain

// TerminalOverride names an absorbing outcome forced onto a request
// regardless of signer progress.
type TerminalOverride int

const (
	// OverrideNone leaves the status derived from signer states alone.
	OverrideNone TerminalOverride = iota
	// OverrideVoided forces the voided status.
	OverrideVoided
	// OverrideExpired forces the expired status.
	OverrideExpired
)

// DeriveStatus computes the request status as a pure function of the signer
// status multiset plus the terminal override. Storing the result is an
// optimization only; this function is the source of truth. Delivery alone
// is not progress: a request stays pending until a signer opens or signs.
func DeriveStatus(signers []Signer, override TerminalOverride) RequestStatus {
	switch override {
	case OverrideVoided:
		return RequestStatusVoided
	case OverrideExpired:
		return RequestStatusExpired
	}

	if len(signers) == 0 {
		return RequestStatusPending
	}

	allSigned := true
	anyProgress := false
	for _, signer := range signers {
		switch signer.Status {
		case SignerStatusDeclined:
			return RequestStatusDeclined
		case SignerStatusSigned:
			anyProgress = true
		case SignerStatusOpened:
			anyProgress = true
			allSigned = false
		default:
			allSigned = false
		}
	}
	if allSigned {
		return RequestStatusCompleted
	}
	if anyProgress {
		return RequestStatusInProgress
	}
	return RequestStatusPending
}

// IsAbsorbing reports whether a request status permits no further signer
// mutation.
func IsAbsorbing(status RequestStatus) bool {
	switch status {
	case RequestStatusCompleted, RequestStatusVoided, RequestStatusDeclined, RequestStatusExpired:
		return true
	default:
		return false
	}
}

// Recompute derives and stores the current status on the aggregate.
// The override is inferred from the stored terminal markers: a voided or
// expired request stays absorbed.
func (r *SigningRequest) Recompute() {
	override := OverrideNone
	switch r.Status {
	case RequestStatusVoided:
		override = OverrideVoided
	case RequestStatusExpired:
		override = OverrideExpired
	}
	r.Status = DeriveStatus(r.Signers, override)
}
