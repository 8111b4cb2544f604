package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want JID
	}{
		{
			name: "plain user",
			raw:  "15551234567@s.whatsapp.net",
			want: JID{User: "15551234567", Server: DefaultUserServer},
		},
		{
			name: "user with device",
			raw:  "15551234567:3@s.whatsapp.net",
			want: JID{User: "15551234567", Device: 3, Server: DefaultUserServer},
		},
		{
			name: "user with agent and device",
			raw:  "15551234567.2:11@s.whatsapp.net",
			want: JID{User: "15551234567", Agent: 2, Device: 11, Server: DefaultUserServer},
		},
		{
			name: "group",
			raw:  "1203630000000000@g.us",
			want: JID{User: "1203630000000000", Server: GroupServer},
		},
		{
			name: "bare server",
			raw:  "s.whatsapp.net",
			want: JID{Server: DefaultUserServer},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJID(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}

	t.Run("invalid device", func(t *testing.T) {
		_, err := ParseJID("user:notanumber@s.whatsapp.net")
		assert.Error(t, err)
	})
}

func TestJIDPredicates(t *testing.T) {
	assert.True(t, IsGroupJID("1203630000000000@g.us"))
	assert.False(t, IsGroupJID("15551234567@s.whatsapp.net"))

	assert.True(t, IsUserJID("15551234567@s.whatsapp.net"))
	assert.False(t, IsUserJID("1203630000000000@g.us"))

	assert.True(t, IsHiddenUserJID("998877@lid"))
	assert.False(t, IsHiddenUserJID("15551234567@s.whatsapp.net"))
}

func TestNormalizeUserJID(t *testing.T) {
	assert.Equal(t, "15551234567@s.whatsapp.net",
		NormalizeUserJID("15551234567.2:11@s.whatsapp.net"))
	assert.Equal(t, "15551234567@s.whatsapp.net",
		NormalizeUserJID("15551234567@s.whatsapp.net"))
}

func TestSameUser(t *testing.T) {
	t.Run("same user different devices", func(t *testing.T) {
		assert.True(t, SameUser("15551234567:1@s.whatsapp.net", "15551234567:4@s.whatsapp.net"))
	})

	t.Run("different users", func(t *testing.T) {
		assert.False(t, SameUser("15551234567@s.whatsapp.net", "15557654321@s.whatsapp.net"))
	})

	t.Run("empty input never matches", func(t *testing.T) {
		assert.False(t, SameUser("", "15551234567@s.whatsapp.net"))
		assert.False(t, SameUser("", ""))
	})
}
