package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// maxReplayWindow bounds the per-device set of seen ciphertext digests.
const maxReplayWindow = 1024

// Exchanger delivers a session-initiation handshake message to a peer
// device and returns its response. It models the external key-exchange
// capability; the transport collaborator implements it against the server's
// key distribution endpoint.
type Exchanger interface {
	Exchange(ctx context.Context, jid string, msg []byte) ([]byte, error)
}

// ExchangerFunc is a function type that implements Exchanger.
type ExchangerFunc func(ctx context.Context, jid string, msg []byte) ([]byte, error)

// Exchange implements Exchanger for ExchangerFunc.
func (f ExchangerFunc) Exchange(ctx context.Context, jid string, msg []byte) ([]byte, error) {
	return f(ctx, jid, msg)
}

type noiseSession struct {
	send  *noise.CipherState
	recv  *noise.CipherState
	fresh bool
	seen  map[[sha256.Size]byte]struct{}
}

// NoiseStore is the default in-process Store, backed by pairwise Noise-IK
// sessions. It stands in for a full Signal-style repository: session
// establishment is a single IK round trip through the Exchanger, and both
// sides of a pair can be wired directly together in tests via Respond.
type NoiseStore struct {
	mu       sync.Mutex
	suite    noise.CipherSuite
	static   noise.DHKey
	peers    map[string][]byte
	sessions map[string]*noiseSession
	exchange Exchanger
}

// NewNoiseStore creates a store with a fresh static key pair.
func NewNoiseStore(exchange Exchanger) (*NoiseStore, error) {
	suite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	static, err := suite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate static key: %w", err)
	}
	return &NoiseStore{
		suite:    suite,
		static:   static,
		peers:    make(map[string][]byte),
		sessions: make(map[string]*noiseSession),
		exchange: exchange,
	}, nil
}

// PublicKey returns the store's static public key for peer registration.
func (s *NoiseStore) PublicKey() []byte {
	return s.static.Public
}

// RegisterPeer records the static public key of a peer device. A session
// with an unregistered peer cannot be created.
func (s *NoiseStore) RegisterPeer(jid string, publicKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[jid] = publicKey
}

// HasSession implements Store.
func (s *NoiseStore) HasSession(_ context.Context, jid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[jid]
	return ok, nil
}

// CreateSession implements Store: it runs a Noise-IK handshake with the
// peer device through the Exchanger, replacing any existing session.
func (s *NoiseStore) CreateSession(ctx context.Context, jid string) error {
	s.mu.Lock()
	peerKey, ok := s.peers[jid]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no registered identity for %s", jid)
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   s.suite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     true,
		StaticKeypair: s.static,
		PeerStatic:    peerKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create handshake state: %w", err)
	}

	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("failed to write handshake message: %w", err)
	}

	msg2, err := s.exchange.Exchange(ctx, jid, msg1)
	if err != nil {
		return fmt.Errorf("key exchange with %s: %w", jid, err)
	}

	_, cs1, cs2, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return fmt.Errorf("failed to read handshake response: %w", err)
	}
	if cs1 == nil || cs2 == nil {
		return fmt.Errorf("handshake with %s did not complete", jid)
	}

	s.mu.Lock()
	s.sessions[jid] = &noiseSession{
		send:  cs1,
		recv:  cs2,
		fresh: true,
		seen:  make(map[[sha256.Size]byte]struct{}),
	}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "CreateSession",
		"jid":      jid,
	}).Debug("Established noise session")
	return nil
}

// Respond handles the responder side of a session initiation from jid. It
// consumes the initiator's handshake message, establishes the session and
// returns the response message.
func (s *NoiseStore) Respond(_ context.Context, jid string, msg []byte) ([]byte, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   s.suite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     false,
		StaticKeypair: s.static,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	if _, _, _, err := hs.ReadMessage(nil, msg); err != nil {
		return nil, fmt.Errorf("failed to read handshake message: %w", err)
	}

	msg2, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to write handshake response: %w", err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, fmt.Errorf("handshake with %s did not complete", jid)
	}

	s.mu.Lock()
	s.sessions[jid] = &noiseSession{
		// cs1 carries initiator-to-responder traffic.
		send:  cs2,
		recv:  cs1,
		fresh: false,
		seen:  make(map[[sha256.Size]byte]struct{}),
	}
	s.mu.Unlock()

	return msg2, nil
}

// Encrypt implements Store. The first message of a fresh session is marked
// as session-establishing ("pkmsg").
func (s *NoiseStore) Encrypt(_ context.Context, jid string, plaintext []byte) (*Ciphertext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[jid]
	if !ok {
		return nil, fmt.Errorf("no session for %s", jid)
	}

	data, err := sess.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encryption for %s: %w", jid, err)
	}

	ctType := CiphertextMessage
	if sess.fresh {
		ctType = CiphertextPreKey
		sess.fresh = false
	}
	return &Ciphertext{Type: ctType, Data: data}, nil
}

// Decrypt implements Store. Failures are tagged: missing session, replayed
// ciphertext, and authentication failure each get their cause so the
// receive pipeline can branch without string matching.
func (s *NoiseStore) Decrypt(_ context.Context, jid string, ct *Ciphertext) ([]byte, error) {
	if ct.Type != CiphertextPreKey && ct.Type != CiphertextMessage {
		return nil, &DecryptError{JID: jid, Cause: CauseUnknown,
			Err: fmt.Errorf("unsupported ciphertext type %q", ct.Type)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[jid]
	if !ok {
		return nil, &DecryptError{JID: jid, Cause: CauseNoSession}
	}

	digest := sha256.Sum256(ct.Data)
	if _, replayed := sess.seen[digest]; replayed {
		return nil, &DecryptError{JID: jid, Cause: CauseReplay}
	}

	plaintext, err := sess.recv.Decrypt(nil, nil, ct.Data)
	if err != nil {
		return nil, &DecryptError{JID: jid, Cause: CauseBadMAC, Err: err}
	}

	if len(sess.seen) >= maxReplayWindow {
		sess.seen = make(map[[sha256.Size]byte]struct{})
	}
	sess.seen[digest] = struct{}{}

	return plaintext, nil
}
