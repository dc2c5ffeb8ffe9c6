package stt

import (
	"errors"
	"net"
	"net/http"
)

// Error classes from the provider. The orchestrator retries config
// rejections with a degraded configuration and transient errors with
// backoff; anything else is fatal for the job.
var (
	ErrConfigRejected = errors.New("provider rejected configuration")
	ErrTransient      = errors.New("provider transient error")
	ErrBadPayload     = errors.New("provider returned unparseable result")
)

// IsConfigRejected reports whether err is a configuration-rejection error
func IsConfigRejected(err error) bool {
	return errors.Is(err, ErrConfigRejected)
}

// IsTransient reports whether err is worth retrying with backoff
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyStatus maps an HTTP status from the provider to an error class.
// Statuses outside the known classes return nil; the caller reports those
// as plain errors.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrConfigRejected
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return ErrTransient
	default:
		return nil
	}
}
