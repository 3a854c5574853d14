package domain

import (
	"sort"
	"strconv"

	apperrors "github.com/inkflow/inkflow/internal/errors"
)

// ActiveSigners computes the set of signers permitted to open or sign right
// now. Sequential mode activates the lowest-order signer that has not
// reached a terminal status; parallel mode activates every non-terminal
// signer. An absorbed request activates nobody.
func ActiveSigners(request SigningRequest) []Signer {
	if IsAbsorbing(request.Status) {
		return nil
	}

	if request.OrderingMode == OrderingModeParallel {
		active := make([]Signer, 0, len(request.Signers))
		for _, signer := range request.Signers {
			if !signer.Terminal() {
				active = append(active, signer)
			}
		}
		return active
	}

	ordered := make([]Signer, len(request.Signers))
	copy(ordered, request.Signers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	for _, signer := range ordered {
		if !signer.Terminal() {
			return []Signer{signer}
		}
	}
	return nil
}

// IsActive reports whether the given signer may act right now.
func IsActive(request SigningRequest, signerID string) bool {
	for _, signer := range ActiveSigners(request) {
		if signer.ID == signerID {
			return true
		}
	}
	return false
}

// EnsureMaySign validates that the signer is currently active. Sequential
// requests reject out-of-turn signing attempts.
func EnsureMaySign(request SigningRequest, signerID string) error {
	signer, ok := request.SignerByID(signerID)
	if !ok {
		return apperrors.New(apperrors.CodeSignerUnknown, "signer does not exist on request")
	}
	if IsAbsorbing(request.Status) {
		return apperrors.New(apperrors.CodeStateConflict, "request no longer accepts signatures")
	}
	if IsActive(request, signerID) {
		return nil
	}
	if request.OrderingMode == OrderingModeSequential && !signer.Terminal() {
		return apperrors.WithMetadata(
			apperrors.CodeSignerOutOfOrder,
			"an earlier signer has not finished yet",
			map[string]string{"Order": strconv.Itoa(signer.Order)},
		)
	}
	return apperrors.New(apperrors.CodeStateConflict, "signer may not act in the current request state")
}

// EnsureMayDecline validates that the signer can still refuse. Declining is
// not gated by ordering: any non-terminal signer may decline while the
// request is live, including a sequential signer whose turn has not come.
func EnsureMayDecline(request SigningRequest, signerID string) error {
	signer, ok := request.SignerByID(signerID)
	if !ok {
		return apperrors.New(apperrors.CodeSignerUnknown, "signer does not exist on request")
	}
	if IsAbsorbing(request.Status) {
		return apperrors.New(apperrors.CodeStateConflict, "request no longer accepts signatures")
	}
	if signer.Terminal() {
		return apperrors.New(apperrors.CodeStateConflict, "signer may not act in the current request state")
	}
	return nil
}
