// Package limits provides centralized wire-compatibility constants for the
// chat protocol engine. These values are fixed by the wire protocol and must
// not be made configurable; changing any of them breaks interoperability
// with peer implementations.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MediaKeyLength is the size of the random media key a sender generates
	// for every uploaded attachment.
	MediaKeyLength = 32

	// MediaMACLength is the number of bytes of the HMAC-SHA256 tag appended
	// to an encrypted media stream. The tag is truncated, not full-length.
	MediaMACLength = 10

	// MediaKeyExpandedLength is the total HKDF expansion used to derive the
	// IV, cipher key, MAC key and reference key from a media key.
	MediaKeyExpandedLength = 112

	// RetryCeiling is the maximum number of retry receipts sent for a single
	// undecryptable message before the engine silently gives up.
	RetryCeiling = 5

	// MinPreKeyCount is the low-water mark for server-reported available
	// pre-keys. Dropping below it triggers a replenishment upload.
	MinPreKeyCount = 5

	// PreKeyUploadBatch is the number of fresh pre-keys included in a
	// replenishment upload.
	PreKeyUploadBatch = 30

	// MaxEnvelopeDepth bounds unwrapping of future-proof message wrappers
	// (ephemeral, view-once, edited) to prevent an infinite loop on
	// malicious input.
	MaxEnvelopeDepth = 5

	// MaxMediaPayload is the absolute maximum accepted for any media
	// plaintext or ciphertext. This prevents memory exhaustion on
	// untrusted downloads (64MB limit).
	MaxMediaPayload = 64 * 1024 * 1024

	// MaxMessagePayload is the absolute maximum for a decrypted message
	// envelope (1MB limit).
	MaxMessagePayload = 1024 * 1024

	// RetryVersion is the protocol version stamped on retry receipts.
	RetryVersion = "1"
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided.
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates a payload exceeds its maximum size.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidatePayloadSize validates a payload against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePayloadSize(payload []byte, maxSize int) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), maxSize)
	}
	return nil
}

// ValidateMediaPayload validates a media blob size against MaxMediaPayload.
// This limit should be applied to all untrusted media input, both before
// encryption and after download.
func ValidateMediaPayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > MaxMediaPayload {
		return fmt.Errorf("%w: media size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), MaxMediaPayload)
	}
	return nil
}

// ValidateMessagePayload validates a decrypted message envelope size against
// MaxMessagePayload.
func ValidateMessagePayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > MaxMessagePayload {
		return fmt.Errorf("%w: envelope size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), MaxMessagePayload)
	}
	return nil
}
