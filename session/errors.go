package session

import (
	"errors"
	"fmt"
)

// FailureCause classifies why a ciphertext could not be decrypted. The
// receive pipeline maps every cause to a retry request rather than a hard
// failure.
type FailureCause int

const (
	CauseUnknown FailureCause = iota
	CauseNoSession
	CauseBadMAC
	CauseReplay
)

func (c FailureCause) String() string {
	switch c {
	case CauseNoSession:
		return "no-session"
	case CauseBadMAC:
		return "bad-mac"
	case CauseReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// DecryptError reports a failed decryption for one sender device, tagged by
// cause. It is a normal branch of the receive pipeline, not exceptional
// control flow.
type DecryptError struct {
	JID   string
	Cause FailureCause
	Err   error
}

func (e *DecryptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt failed for %s (%s): %v", e.JID, e.Cause, e.Err)
	}
	return fmt.Sprintf("decrypt failed for %s (%s)", e.JID, e.Cause)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// DecryptCause extracts the failure cause from an error chain. The second
// result is false when the error is not a DecryptError.
func DecryptCause(err error) (FailureCause, bool) {
	var de *DecryptError
	if errors.As(err, &de) {
		return de.Cause, true
	}
	return CauseUnknown, false
}
