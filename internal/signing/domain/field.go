package domain

import (
	"strings"

	apperrors "github.com/inkflow/inkflow/internal/errors"
)

// FieldType identifies the kind of input a signature field captures.
type FieldType int

const (
	// FieldTypeUnspecified represents an invalid field type.
	FieldTypeUnspecified FieldType = iota
	// FieldTypeSignature captures a drawn or typed signature.
	FieldTypeSignature
	// FieldTypeInitial captures signer initials.
	FieldTypeInitial
	// FieldTypeDate captures a date stamp.
	FieldTypeDate
	// FieldTypeText captures free-form text.
	FieldTypeText
	// FieldTypeCheckbox captures a boolean acknowledgement.
	FieldTypeCheckbox
)

// UnassignedSignerOrder marks a field that defaults to the first active signer.
const UnassignedSignerOrder = 0

// SignatureField represents one placed field on the document. Position and
// size are opaque to the orchestration core; they pass through to rendering.
type SignatureField struct {
	ID string
	// SignerOrder assigns the field to the signer with that order, or
	// UnassignedSignerOrder to default to the first active signer.
	SignerOrder int
	X           float64
	Y           float64
	W           float64
	H           float64
	Type        FieldType
	Label       string
	// Value is the captured input, set when the assigned signer signs.
	Value string
}

// FieldInput describes one field placement in a create request.
type FieldInput struct {
	SignerOrder int
	X           float64
	Y           float64
	W           float64
	H           float64
	Type        FieldType
	Label       string
}

// NormalizeFieldInput validates one field placement.
func NormalizeFieldInput(input FieldInput) (FieldInput, error) {
	if input.Type == FieldTypeUnspecified {
		return FieldInput{}, apperrors.New(apperrors.CodeFieldTypeInvalid, "field type is required")
	}
	input.Label = strings.TrimSpace(input.Label)
	return input, nil
}

// FieldTypeLabel returns the wire label for a field type.
func FieldTypeLabel(fieldType FieldType) string {
	switch fieldType {
	case FieldTypeSignature:
		return "signature"
	case FieldTypeInitial:
		return "initial"
	case FieldTypeDate:
		return "date"
	case FieldTypeText:
		return "text"
	case FieldTypeCheckbox:
		return "checkbox"
	default:
		return "unspecified"
	}
}

// FieldTypeFromLabel converts a wire label to a FieldType value.
func FieldTypeFromLabel(label string) FieldType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "signature":
		return FieldTypeSignature
	case "initial":
		return FieldTypeInitial
	case "date":
		return FieldTypeDate
	case "text":
		return FieldTypeText
	case "checkbox":
		return FieldTypeCheckbox
	default:
		return FieldTypeUnspecified
	}
}
