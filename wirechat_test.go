package wirechat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/session"
	"github.com/opd-ai/wirechat/store"
	"github.com/opd-ai/wirechat/wire"
)

// capture is a NodeSender recording every stanza the engine sends.
type capture struct {
	nodes []*wire.Node
}

func (c *capture) SendNode(_ context.Context, node *wire.Node) error {
	c.nodes = append(c.nodes, node)
	return nil
}

func (c *capture) byTag(tag string) []*wire.Node {
	var matched []*wire.Node
	for _, node := range c.nodes {
		if node.Tag == tag {
			matched = append(matched, node)
		}
	}
	return matched
}

func (c *capture) receiptsOfType(receiptType string) []*wire.Node {
	var matched []*wire.Node
	for _, node := range c.byTag("receipt") {
		if node.AttrOr("type", "") == receiptType {
			matched = append(matched, node)
		}
	}
	return matched
}

// fakeSessions is a session.Store whose "encryption" is the identity
// transform. Decryption succeeds only for jids marked known.
type fakeSessions struct {
	known map[string]bool
}

func newFakeSessions(knownJIDs ...string) *fakeSessions {
	known := make(map[string]bool)
	for _, jid := range knownJIDs {
		known[jid] = true
	}
	return &fakeSessions{known: known}
}

func (f *fakeSessions) HasSession(_ context.Context, jid string) (bool, error) {
	return f.known[jid], nil
}

func (f *fakeSessions) CreateSession(_ context.Context, jid string) error {
	f.known[jid] = true
	return nil
}

func (f *fakeSessions) Encrypt(_ context.Context, jid string, plaintext []byte) (*session.Ciphertext, error) {
	return &session.Ciphertext{Type: session.CiphertextMessage, Data: plaintext}, nil
}

func (f *fakeSessions) Decrypt(_ context.Context, jid string, ct *session.Ciphertext) ([]byte, error) {
	if !f.known[jid] {
		return nil, &session.DecryptError{JID: jid, Cause: session.CauseNoSession}
	}
	return ct.Data, nil
}

const (
	testOwnJID    = "me@s.whatsapp.net"
	testFriendJID = "friend@s.whatsapp.net"
	testGroupJID  = "room@g.us"
)

// newTestClient wires a Client around fakes: captured transport, identity
// sessions and in-memory stores.
func newTestClient(t *testing.T, sessions *fakeSessions) (*Client, *capture) {
	t.Helper()

	creds, err := store.InitCredentials()
	require.NoError(t, err)
	creds.Me.ID = testOwnJID

	sender := &capture{}
	orchestrator := session.NewOrchestrator(sessions,
		session.DeviceListerFunc(func(_ context.Context, jids []string) ([]string, error) {
			return jids, nil
		}))

	client, err := New(NewOptions(), Deps{
		Sender:      sender,
		Sessions:    orchestrator,
		Credentials: store.NewMemoryStore(creds),
	})
	require.NoError(t, err)
	return client, sender
}

// inboundTextNode builds an inbound message node whose enc payload is the
// serialized envelope, matching the identity-transform fake sessions.
func inboundTextNode(t *testing.T, id, from, text string, attrs wire.Attrs) *wire.Node {
	t.Helper()

	envelope := &message.Message{Content: message.NewText(text)}
	plaintext, err := envelope.Marshal()
	require.NoError(t, err)

	nodeAttrs := wire.Attrs{"id": id, "from": from, "t": "1700000000"}
	for key, value := range attrs {
		nodeAttrs[key] = value
	}
	return wire.NewNode("message", nodeAttrs,
		wire.NewDataNode("enc", wire.Attrs{"v": "2", "type": "msg"}, plaintext))
}
