package store

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is a curve25519 key pair used for pre-keys.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair creates a fresh curve25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	private := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(private); err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to derive public key: %w", err)
	}
	return KeyPair{Public: public, Private: private}, nil
}

// SigningKeyPair is the ed25519 identity key used to sign pre-keys and the
// device identity certificate.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// PreKey is a one-time key bundle consumed during session establishment.
// A pre-key handed out by NextPreKeys must never be issued again.
type PreKey struct {
	KeyPair
	KeyID uint32
}

// SignedPreKey is the medium-term pre-key signed by the identity key.
type SignedPreKey struct {
	KeyPair
	KeyID     uint32
	Signature []byte
}

// Identity is the local account's addressing identity.
type Identity struct {
	ID   string
	LID  string
	Name string
}

// DisappearingMode records the account's default disappearing-message
// duration and when it was set.
type DisappearingMode struct {
	Duration uint32
	SetAt    int64
}

// AccountSettings holds server-synchronized account preferences.
type AccountSettings struct {
	UnarchiveChats      bool
	DefaultDisappearing *DisappearingMode
}

// Credentials is the local device's cryptographic and addressing state.
type Credentials struct {
	Me                Identity
	RegistrationID    uint32
	SignedIdentityKey SigningKeyPair
	SignedPreKey      SignedPreKey
	NextPreKeyID      uint32
	// DeviceIdentity is the signed device identity certificate included in
	// retry-receipt key bundles.
	DeviceIdentity  []byte
	AccountSettings AccountSettings
}

// InitCredentials generates a fresh local identity: registration id,
// signing identity key, signed pre-key number one and the device identity
// certificate.
func InitCredentials() (*Credentials, error) {
	registrationID, err := generateRegistrationID()
	if err != nil {
		return nil, err
	}

	identityPublic, identityPrivate, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity key: %w", err)
	}
	identity := SigningKeyPair{Public: identityPublic, Private: identityPrivate}

	signedPreKey, err := signPreKey(identity, 1)
	if err != nil {
		return nil, err
	}

	deviceIdentity := ed25519.Sign(identity.Private, []byte("device-identity"))

	return &Credentials{
		RegistrationID:    registrationID,
		SignedIdentityKey: identity,
		SignedPreKey:      signedPreKey,
		NextPreKeyID:      1,
		DeviceIdentity:    deviceIdentity,
	}, nil
}

// signPreKey generates a pre-key and signs its public part with the
// identity key.
func signPreKey(identity SigningKeyPair, keyID uint32) (SignedPreKey, error) {
	pair, err := GenerateKeyPair()
	if err != nil {
		return SignedPreKey{}, err
	}
	return SignedPreKey{
		KeyPair:   pair,
		KeyID:     keyID,
		Signature: ed25519.Sign(identity.Private, pair.Public),
	}, nil
}

// generateRegistrationID produces a 14-bit non-zero registration id, the
// range the wire protocol expects.
func generateRegistrationID() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to generate registration id: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:])%16380 + 1, nil
}

// CredentialsStore exposes the local credentials and allocates pre-keys.
type CredentialsStore interface {
	// Credentials returns the live credentials record.
	Credentials() *Credentials

	// NextPreKeys allocates count fresh pre-keys and marks them used.
	// An allocated pre-key is never issued twice.
	NextPreKeys(count int) ([]PreKey, error)
}
