package wirechat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedMedia indicates a download was requested for a message
	// that carries no attachment, or an attachment of an unknown kind.
	ErrUnsupportedMedia = errors.New("message carries no downloadable media")

	// ErrNoRecipientDevices indicates a relay found no devices to encrypt
	// for after the session fan-out.
	ErrNoRecipientDevices = errors.New("no recipient devices")

	// ErrNotConnected indicates an operation needing the transport was
	// attempted without one attached.
	ErrNotConnected = errors.New("no transport attached")
)

// UploadError reports a failed media upload with the host's status code so
// the caller can decide retry policy outside the engine.
type UploadError struct {
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("media upload failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// MediaRetryError reports a failed media re-key request, carrying the
// status code from the peer's retry response.
type MediaRetryError struct {
	StatusCode int
}

func (e *MediaRetryError) Error() string {
	return fmt.Sprintf("media retry rejected with status %d", e.StatusCode)
}
