package wirechat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/wire"
)

func TestSendMessageAckAttributes(t *testing.T) {
	t.Run("CopiesParticipantAndRecipient", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		node := wire.NewNode("receipt", wire.Attrs{
			"id":          "A1",
			"from":        testGroupJID,
			"participant": "author@s.whatsapp.net",
			"recipient":   "dest@s.whatsapp.net",
		})
		require.NoError(t, client.sendMessageAck(context.Background(), node))

		require.Len(t, sender.nodes, 1)
		ack := sender.nodes[0]
		assert.Equal(t, "A1", ack.AttrOr("id", ""))
		assert.Equal(t, testGroupJID, ack.AttrOr("to", ""))
		assert.Equal(t, "receipt", ack.AttrOr("class", ""))
		assert.Equal(t, "author@s.whatsapp.net", ack.AttrOr("participant", ""))
		assert.Equal(t, "dest@s.whatsapp.net", ack.AttrOr("recipient", ""))
	})

	t.Run("TypeCopiedForNonMessageStanzas", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		node := wire.NewNode("receipt", wire.Attrs{
			"id":   "A2",
			"from": testFriendJID,
			"type": "read",
		})
		require.NoError(t, client.sendMessageAck(context.Background(), node))
		assert.Equal(t, "read", sender.nodes[0].AttrOr("type", ""))
	})

	t.Run("TypeDroppedForPlainMessages", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		node := wire.NewNode("message", wire.Attrs{
			"id":   "A3",
			"from": testFriendJID,
			"type": "text",
		})
		require.NoError(t, client.sendMessageAck(context.Background(), node))
		_, hasType := sender.nodes[0].Attr("type")
		assert.False(t, hasType)
		_, hasFrom := sender.nodes[0].Attr("from")
		assert.False(t, hasFrom)
	})

	t.Run("UnavailableMessageKeepsTypeAndOverridesFrom", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		node := wire.NewNode("message", wire.Attrs{
			"id":   "A4",
			"from": testFriendJID,
			"type": "unavailable",
		})
		require.NoError(t, client.sendMessageAck(context.Background(), node))

		ack := sender.nodes[0]
		assert.Equal(t, "unavailable", ack.AttrOr("type", ""))
		assert.Equal(t, testOwnJID, ack.AttrOr("from", ""),
			"the peer needs to know who is acking an unavailable message")
	})
}

func TestHandleAckPhashResend(t *testing.T) {
	t.Run("HeldMessageIsRerelayed", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions(testFriendJID, testOwnJID))

		sent := &message.Message{
			Key:     message.Key{RemoteJID: testFriendJID, FromMe: true, ID: "PH1"},
			Content: message.NewText("reach every device"),
		}
		require.NoError(t, client.messages.PutMessage(sent))

		node := wire.NewNode("ack", wire.Attrs{
			"id":    "PH1",
			"from":  testFriendJID,
			"class": "message",
			"phash": "2:abcdef",
		})
		client.ProcessNode(context.Background(), node)

		relayed := sender.byTag("message")
		require.Len(t, relayed, 1)
		assert.Equal(t, "PH1", relayed[0].AttrOr("id", ""))
		assert.Empty(t, sender.byTag("ack"), "acks are never acked")
	})

	t.Run("UnknownMessageIsIgnored", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		node := wire.NewNode("ack", wire.Attrs{
			"id":    "GONE",
			"from":  testFriendJID,
			"class": "message",
			"phash": "2:abcdef",
		})
		client.ProcessNode(context.Background(), node)
		assert.Empty(t, sender.nodes)
	})

	t.Run("PlainAckDoesNothing", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		node := wire.NewNode("ack", wire.Attrs{
			"id":    "OK1",
			"from":  testFriendJID,
			"class": "message",
		})
		client.ProcessNode(context.Background(), node)
		assert.Empty(t, sender.nodes)
	})

	t.Run("ErrorAckMarksMessageFailed", func(t *testing.T) {
		client, _ := newTestClient(t, newFakeSessions())

		key := message.Key{RemoteJID: testFriendJID, FromMe: true, ID: "ERR1"}
		require.NoError(t, client.messages.PutMessage(&message.Message{
			Key:     key,
			Status:  message.StatusPending,
			Content: message.NewText("rejected"),
		}))

		node := wire.NewNode("ack", wire.Attrs{
			"id":    "ERR1",
			"from":  testFriendJID,
			"class": "message",
			"error": "479",
		})
		client.ProcessNode(context.Background(), node)

		stored, err := client.messages.GetMessage(key)
		require.NoError(t, err)
		assert.Equal(t, message.StatusError, stored.Status)
	})
}

func TestHandleUnavailableMessage(t *testing.T) {
	t.Run("TypeAttribute", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		var events []MessageEvent
		client.OnMessage(func(event MessageEvent) {
			events = append(events, event)
		})

		node := wire.NewNode("message", wire.Attrs{
			"id":   "U1",
			"from": testFriendJID,
			"type": "unavailable",
		})
		client.ProcessNode(context.Background(), node)

		assert.Empty(t, events, "an unavailable placeholder emits nothing")
		assert.Len(t, sender.byTag("ack"), 1)
		assert.Empty(t, sender.receiptsOfType("retry"),
			"content arrives via later retry or resync, not a retry request")
	})

	t.Run("ChildNode", func(t *testing.T) {
		client, sender := newTestClient(t, newFakeSessions())

		var events []MessageEvent
		client.OnMessage(func(event MessageEvent) {
			events = append(events, event)
		})

		node := wire.NewNode("message", wire.Attrs{
			"id":   "U2",
			"from": testFriendJID,
		}, wire.NewNode("unavailable", nil))
		client.ProcessNode(context.Background(), node)

		assert.Empty(t, events)
		acks := sender.byTag("ack")
		require.Len(t, acks, 1)
		assert.Equal(t, testOwnJID, acks[0].AttrOr("from", ""),
			"the child marker triggers the same from override as the type attribute")
		assert.Empty(t, sender.receiptsOfType("retry"))
	})
}
