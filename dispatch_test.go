package wirechat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opd-ai/wirechat/wire"
)

func TestClassifyStanza(t *testing.T) {
	tests := []struct {
		name string
		node *wire.Node
		want stanzaKind
	}{
		{"Message", wire.NewNode("message", nil), stanzaMessage},
		{"Receipt", wire.NewNode("receipt", nil), stanzaReceipt},
		{"Notification", wire.NewNode("notification", nil), stanzaNotification},
		{"Call", wire.NewNode("call", nil), stanzaCall},
		{"MessageAck", wire.NewNode("ack", wire.Attrs{"class": "message"}), stanzaAck},
		{"NonMessageAck", wire.NewNode("ack", wire.Attrs{"class": "receipt"}), stanzaUnknown},
		{"UnknownTag", wire.NewNode("presence", nil), stanzaUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyStanza(tt.node))
		})
	}
}

func TestProcessNodeForwardCompatibility(t *testing.T) {
	client, sender := newTestClient(t, newFakeSessions())

	t.Run("UnknownStanzaIsIgnored", func(t *testing.T) {
		client.ProcessNode(context.Background(), wire.NewNode("stream:features", nil))
		assert.Empty(t, sender.nodes)
	})

	t.Run("MalformedStanzaDoesNotStopPipeline", func(t *testing.T) {
		// A message node with no attributes at all fails attribute
		// resolution; the error must stay inside the dispatch boundary.
		client.ProcessNode(context.Background(), wire.NewNode("message", nil))

		// The pipeline still processes the next stanza.
		node := inboundTextNode(t, "AFTER1", testFriendJID, "still alive", nil)
		client.ProcessNode(context.Background(), node)
		assert.Len(t, sender.byTag("ack"), 1)
	})
}

func TestProcessNodeAlwaysExactlyOneAck(t *testing.T) {
	tests := []struct {
		name string
		node func(t *testing.T) *wire.Node
	}{
		{"NormalMessage", func(t *testing.T) *wire.Node {
			return inboundTextNode(t, "M1", testFriendJID, "hi", nil)
		}},
		{"UnavailableMessage", func(t *testing.T) *wire.Node {
			return wire.NewNode("message", wire.Attrs{
				"id": "M2", "from": testFriendJID, "type": "unavailable",
			})
		}},
		{"UndecryptableMessage", func(t *testing.T) *wire.Node {
			return wire.NewNode("message", wire.Attrs{
				"id": "M3", "from": "stranger@s.whatsapp.net", "t": "1700000000",
			}, wire.NewDataNode("enc", wire.Attrs{"type": "msg"}, []byte("garbage")))
		}},
		{"Receipt", func(t *testing.T) *wire.Node {
			return wire.NewNode("receipt", wire.Attrs{"id": "M4", "from": testFriendJID})
		}},
		{"Notification", func(t *testing.T) *wire.Node {
			return wire.NewNode("notification", wire.Attrs{
				"id": "N1", "from": testFriendJID, "type": "status",
			})
		}},
		{"Call", func(t *testing.T) *wire.Node {
			return wire.NewNode("call", wire.Attrs{"id": "C1", "from": testFriendJID},
				wire.NewNode("offer", wire.Attrs{"call-id": "C1"}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, sender := newTestClient(t, newFakeSessions(testFriendJID))
			client.ProcessNode(context.Background(), tt.node(t))
			assert.Len(t, sender.byTag("ack"), 1, "every processed stanza produces exactly one ack")
		})
	}
}
