package pipeline

import (
	"meetscribe/internal/model"
)

// Machine-readable error codes carried in HTTP error responses
const (
	CodeBadUpload       = "BAD_UPLOAD"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeUsageLimit      = "USAGE_LIMIT_EXCEEDED"
	CodeProviderFailure = "PROVIDER_FAILURE"
	CodeBadResult       = "PROVIDER_BAD_RESULT"
	CodeInternal        = "INTERNAL_ERROR"
)

// Error is a pipeline failure mapped to one of the documented HTTP statuses
type Error struct {
	Status  int
	Code    string
	Message string
	Stats   *model.UsageStats

	// transient marks provider errors that a later attempt may clear, so
	// the status poller knows not to persist a terminal failure for them
	transient bool
}

func (e *Error) Error() string {
	return e.Message
}

func clientErr(status int, code, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}
