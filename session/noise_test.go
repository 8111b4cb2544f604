package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairedStores wires two noise stores directly together: alice's key
// exchange is served by bob's responder.
func pairedStores(t *testing.T) (alice, bob *NoiseStore) {
	t.Helper()

	var err error
	bob, err = NewNoiseStore(nil)
	require.NoError(t, err)

	alice, err = NewNoiseStore(ExchangerFunc(func(ctx context.Context, jid string, msg []byte) ([]byte, error) {
		return bob.Respond(ctx, "alice@s.whatsapp.net", msg)
	}))
	require.NoError(t, err)

	alice.RegisterPeer("bob@s.whatsapp.net", bob.PublicKey())
	return alice, bob
}

func TestNoiseStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	alice, bob := pairedStores(t)

	t.Run("no session before creation", func(t *testing.T) {
		exists, err := alice.HasSession(ctx, "bob@s.whatsapp.net")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("create session establishes both sides", func(t *testing.T) {
		require.NoError(t, alice.CreateSession(ctx, "bob@s.whatsapp.net"))

		exists, err := alice.HasSession(ctx, "bob@s.whatsapp.net")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = bob.HasSession(ctx, "alice@s.whatsapp.net")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("first message is session-establishing", func(t *testing.T) {
		ct, err := alice.Encrypt(ctx, "bob@s.whatsapp.net", []byte("first"))
		require.NoError(t, err)
		assert.Equal(t, CiphertextPreKey, ct.Type)

		plain, err := bob.Decrypt(ctx, "alice@s.whatsapp.net", ct)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), plain)

		ct, err = alice.Encrypt(ctx, "bob@s.whatsapp.net", []byte("second"))
		require.NoError(t, err)
		assert.Equal(t, CiphertextMessage, ct.Type)

		plain, err = bob.Decrypt(ctx, "alice@s.whatsapp.net", ct)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), plain)
	})

	t.Run("unregistered peer cannot get a session", func(t *testing.T) {
		err := alice.CreateSession(ctx, "stranger@s.whatsapp.net")
		assert.Error(t, err)
	})
}

func TestNoiseStoreDecryptCauses(t *testing.T) {
	ctx := context.Background()
	alice, bob := pairedStores(t)
	require.NoError(t, alice.CreateSession(ctx, "bob@s.whatsapp.net"))

	t.Run("no session", func(t *testing.T) {
		_, err := bob.Decrypt(ctx, "nobody@s.whatsapp.net", &Ciphertext{Type: CiphertextMessage, Data: []byte{1}})
		cause, ok := DecryptCause(err)
		require.True(t, ok)
		assert.Equal(t, CauseNoSession, cause)
	})

	t.Run("replay", func(t *testing.T) {
		ct, err := alice.Encrypt(ctx, "bob@s.whatsapp.net", []byte("once"))
		require.NoError(t, err)

		_, err = bob.Decrypt(ctx, "alice@s.whatsapp.net", ct)
		require.NoError(t, err)

		_, err = bob.Decrypt(ctx, "alice@s.whatsapp.net", ct)
		cause, ok := DecryptCause(err)
		require.True(t, ok)
		assert.Equal(t, CauseReplay, cause)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		ct, err := alice.Encrypt(ctx, "bob@s.whatsapp.net", []byte("intact"))
		require.NoError(t, err)
		ct.Data[0] ^= 0xFF

		_, err = bob.Decrypt(ctx, "alice@s.whatsapp.net", ct)
		cause, ok := DecryptCause(err)
		require.True(t, ok)
		assert.Equal(t, CauseBadMAC, cause)
	})

	t.Run("unsupported ciphertext type", func(t *testing.T) {
		_, err := bob.Decrypt(ctx, "alice@s.whatsapp.net", &Ciphertext{Type: "skmsg", Data: []byte{1}})
		cause, ok := DecryptCause(err)
		require.True(t, ok)
		assert.Equal(t, CauseUnknown, cause)
	})
}
