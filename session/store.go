package session

import "context"

// Ciphertext is one encrypted payload for one device. Type distinguishes a
// session-establishing message ("pkmsg", carrying key-exchange material)
// from a regular session message ("msg").
type Ciphertext struct {
	Type string
	Data []byte
}

const (
	// CiphertextPreKey marks a session-establishing message.
	CiphertextPreKey = "pkmsg"
	// CiphertextMessage marks a regular session message.
	CiphertextMessage = "msg"
)

// Store is the external session-repository capability. One implementation
// per deployment; the engine never sees key material, only this contract.
type Store interface {
	// HasSession reports whether a usable session exists for the device.
	HasSession(ctx context.Context, jid string) (bool, error)

	// CreateSession establishes a fresh session with the device via the
	// key-exchange capability, replacing any existing one.
	CreateSession(ctx context.Context, jid string) error

	// Encrypt encrypts plaintext for the device's session.
	Encrypt(ctx context.Context, jid string, plaintext []byte) (*Ciphertext, error)

	// Decrypt decrypts a ciphertext received from the device. Failures are
	// reported as *DecryptError tagged with a cause.
	Decrypt(ctx context.Context, jid string, ct *Ciphertext) ([]byte, error)
}

// DeviceLister resolves the device jids currently registered under each
// user jid. The transport collaborator implements this against the server's
// device list query.
type DeviceLister interface {
	UserDevices(ctx context.Context, jids []string) ([]string, error)
}

// DeviceListerFunc is a function type that implements DeviceLister.
type DeviceListerFunc func(ctx context.Context, jids []string) ([]string, error)

// UserDevices implements DeviceLister for DeviceListerFunc.
func (f DeviceListerFunc) UserDevices(ctx context.Context, jids []string) ([]string, error) {
	return f(ctx, jids)
}
