// Package errors provides structured error handling for signing workflows.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument represents a malformed or unparseable input.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Request validation errors
	CodeRequestDocumentNameEmpty Code = "REQUEST_DOCUMENT_NAME_EMPTY"
	CodeRequestSenderNameEmpty   Code = "REQUEST_SENDER_NAME_EMPTY"
	CodeRequestSenderEmailBad    Code = "REQUEST_SENDER_EMAIL_INVALID"
	CodeRequestNoSigners         Code = "REQUEST_NO_SIGNERS"
	CodeRequestDueDatePast       Code = "REQUEST_DUE_DATE_IN_PAST"

	// Signer validation errors
	CodeSignerNameEmpty      Code = "SIGNER_NAME_EMPTY"
	CodeSignerEmailBad       Code = "SIGNER_EMAIL_INVALID"
	CodeSignerOrderDuplicate Code = "SIGNER_ORDER_DUPLICATE"
	CodeSignerUnknown        Code = "SIGNER_UNKNOWN"

	// Field validation errors
	CodeFieldTypeInvalid   Code = "FIELD_TYPE_INVALID"
	CodeFieldSignerUnknown Code = "FIELD_SIGNER_UNKNOWN"
	CodeFieldValueMissing  Code = "FIELD_VALUE_MISSING"

	// State machine errors
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeSignerOutOfOrder  Code = "SIGNER_OUT_OF_ORDER"
	CodeVersionConflict   Code = "VERSION_CONFLICT"
	CodeRequestNotExpired Code = "REQUEST_NOT_EXPIRED"

	// Token errors
	CodeTokenNotFound Code = "TOKEN_NOT_FOUND"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// Dispatch errors
	CodeDispatchFailed Code = "DISPATCH_FAILED"

	// Sync errors
	CodeSubscribeGrantInvalid Code = "SUBSCRIBE_GRANT_INVALID"
	CodeSubscribeGrantExpired Code = "SUBSCRIBE_GRANT_EXPIRED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeInvalidArgument,
		CodeRequestDocumentNameEmpty,
		CodeRequestSenderNameEmpty,
		CodeRequestSenderEmailBad,
		CodeRequestNoSigners,
		CodeRequestDueDatePast,
		CodeSignerNameEmpty,
		CodeSignerEmailBad,
		CodeSignerOrderDuplicate,
		CodeFieldTypeInvalid,
		CodeFieldSignerUnknown,
		CodeFieldValueMissing:
		return http.StatusBadRequest

	// Conflict - state doesn't allow operation
	case CodeStateConflict,
		CodeSignerOutOfOrder,
		CodeVersionConflict,
		CodeRequestNotExpired,
		CodeConflict:
		return http.StatusConflict

	// Not found - resource doesn't exist; token lookups are intentionally
	// indistinguishable from missing requests
	case CodeNotFound,
		CodeTokenNotFound,
		CodeSignerUnknown:
		return http.StatusNotFound

	// Unauthorized - dashboard subscribe grant failures
	case CodeSubscribeGrantInvalid,
		CodeSubscribeGrantExpired:
		return http.StatusUnauthorized

	case CodeDispatchFailed:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
