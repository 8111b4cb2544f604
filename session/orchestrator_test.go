package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records calls and fails selected devices.
type fakeStore struct {
	sessions    map[string]bool
	created     []string
	failEncrypt map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    make(map[string]bool),
		failEncrypt: make(map[string]bool),
	}
}

func (f *fakeStore) HasSession(_ context.Context, jid string) (bool, error) {
	return f.sessions[jid], nil
}

func (f *fakeStore) CreateSession(_ context.Context, jid string) error {
	f.created = append(f.created, jid)
	f.sessions[jid] = true
	return nil
}

func (f *fakeStore) Encrypt(_ context.Context, jid string, plaintext []byte) (*Ciphertext, error) {
	if f.failEncrypt[jid] {
		return nil, fmt.Errorf("device unreachable")
	}
	return &Ciphertext{Type: CiphertextMessage, Data: append([]byte(jid+":"), plaintext...)}, nil
}

func (f *fakeStore) Decrypt(_ context.Context, jid string, ct *Ciphertext) ([]byte, error) {
	if !f.sessions[jid] {
		return nil, &DecryptError{JID: jid, Cause: CauseNoSession}
	}
	return ct.Data, nil
}

func staticDevices(devices map[string][]string) DeviceLister {
	return DeviceListerFunc(func(_ context.Context, jids []string) ([]string, error) {
		var all []string
		for _, jid := range jids {
			all = append(all, devices[jid]...)
		}
		return all, nil
	})
}

func TestAssertSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("creates only missing sessions", func(t *testing.T) {
		store := newFakeStore()
		store.sessions["a:1@s.whatsapp.net"] = true
		o := NewOrchestrator(store, staticDevices(nil))

		err := o.AssertSessions(ctx, []string{"a:1@s.whatsapp.net", "a:2@s.whatsapp.net"}, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"a:2@s.whatsapp.net"}, store.created)
	})

	t.Run("force recreates existing sessions", func(t *testing.T) {
		store := newFakeStore()
		store.sessions["a:1@s.whatsapp.net"] = true
		o := NewOrchestrator(store, staticDevices(nil))

		err := o.AssertSessions(ctx, []string{"a:1@s.whatsapp.net"}, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"a:1@s.whatsapp.net"}, store.created)
	})
}

func TestEncryptForDevicesPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failEncrypt["b:2@s.whatsapp.net"] = true
	o := NewOrchestrator(store, staticDevices(nil))

	jids := []string{"b:1@s.whatsapp.net", "b:2@s.whatsapp.net", "b:3@s.whatsapp.net"}
	encrypted, failed := o.EncryptForDevices(ctx, jids, []byte("fan out"))

	require.Len(t, encrypted, 2)
	assert.Equal(t, "b:1@s.whatsapp.net", encrypted[0].JID)
	assert.Equal(t, "b:3@s.whatsapp.net", encrypted[1].JID)

	require.Len(t, failed, 1)
	assert.Equal(t, "b:2@s.whatsapp.net", failed[0].JID)
}

func TestUserDevicesCache(t *testing.T) {
	ctx := context.Background()
	calls := 0
	lister := DeviceListerFunc(func(_ context.Context, jids []string) ([]string, error) {
		calls++
		return []string{"c:1@s.whatsapp.net", "c:2@s.whatsapp.net"}, nil
	})
	o := NewOrchestrator(newFakeStore(), lister)

	first, err := o.UserDevices(ctx, []string{"c@s.whatsapp.net"}, true)
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, calls)

	_, err = o.UserDevices(ctx, []string{"c@s.whatsapp.net"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "cached resolution should not re-query")

	_, err = o.UserDevices(ctx, []string{"c@s.whatsapp.net"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "bypassing the cache must re-query")
}

func TestOrchestratorDecryptWrapsUnknown(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	o := NewOrchestrator(store, staticDevices(nil))

	_, err := o.Decrypt(ctx, "anyone@s.whatsapp.net", &Ciphertext{Type: CiphertextMessage})
	cause, ok := DecryptCause(err)
	require.True(t, ok)
	assert.Equal(t, CauseNoSession, cause)

	var de *DecryptError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "anyone@s.whatsapp.net", de.JID)
}
