package wirechat

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/session"
	"github.com/opd-ai/wirechat/store"
	"github.com/opd-ai/wirechat/wire"
)

// envelope is the decoded routing of one inbound message node.
type envelope struct {
	Key    message.Key
	Author string
	Chat   string
}

// decodeMessageEnvelope resolves chat, author and message key from the
// node's routing attributes. Group messages carry the author in the
// participant attribute; self-sent echoes from another own device carry the
// true destination in recipient.
func (c *Client) decodeMessageEnvelope(node *wire.Node) (*envelope, error) {
	from, err := node.AttrString("from")
	if err != nil {
		return nil, err
	}
	id, err := node.AttrString("id")
	if err != nil {
		return nil, err
	}

	env := &envelope{Chat: from, Author: from}

	if wire.IsGroupJID(from) {
		participant, err := node.AttrString("participant")
		if err != nil {
			return nil, err
		}
		env.Author = participant
		env.Key = message.Key{
			RemoteJID:   from,
			FromMe:      wire.SameUser(participant, c.ownJID()),
			ID:          id,
			Participant: participant,
		}
		return env, nil
	}

	fromMe := wire.SameUser(from, c.ownJID())
	if fromMe {
		if recipient, ok := node.Attr("recipient"); ok {
			env.Chat = recipient
		}
	}
	env.Key = message.Key{
		RemoteJID: wire.NormalizeUserJID(env.Chat),
		FromMe:    fromMe,
		ID:        id,
	}
	env.Chat = env.Key.RemoteJID
	return env, nil
}

// receiptTypeFor classifies the delivery receipt for one successfully
// decrypted message. Precedence: peer-control messages, then self-sent
// echoes, then the inactive state, then the wire default (an absent type
// attribute means delivered).
//
// For a self-sent echo in an individual chat the receipt target participant
// is rewritten to the verified author so the receipt reaches the device
// that actually sent the echo.
func receiptTypeFor(isPeer, fromMe, authorIsIndividual, activeReceipts bool, participant, author string) (receiptType, receiptParticipant string) {
	switch {
	case isPeer:
		return "peer_msg", participant
	case fromMe:
		if authorIsIndividual {
			return "sender", author
		}
		return "sender", participant
	case !activeReceipts:
		return "inactive", participant
	default:
		return "", participant
	}
}

// handleMessage runs the receive pipeline for one inbound message node:
// acknowledge-only for unavailable placeholders, decrypt, classify the
// delivery receipt, store and emit, and always ack.
func (c *Client) handleMessage(ctx context.Context, node *wire.Node) error {
	enc := node.GetChild("enc")

	// An unavailable placeholder without an encrypted body carries nothing
	// to process; the content arrives later via retry or resync.
	if isUnavailable(node) && enc == nil {
		return c.sendMessageAck(ctx, node)
	}

	defer func() {
		if err := c.sendMessageAck(ctx, node); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleMessage",
				"error":    err.Error(),
			}).Warn("Failed to ack message")
		}
	}()

	env, err := c.decodeMessageEnvelope(node)
	if err != nil {
		return err
	}

	msg, err := c.decryptMessage(ctx, node, env, enc)
	if err != nil {
		cause, _ := session.DecryptCause(err)
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"id":       env.Key.ID,
			"author":   env.Author,
			"cause":    cause.String(),
		}).Warn("Failed to decrypt message, requesting retry")
		c.storeCiphertextStub(node, env)
		return c.sendRetryRequest(ctx, node, enc != nil)
	}
	c.clearRetry(env.Key.ID)

	receiptType, receiptParticipant := receiptTypeFor(
		msg.Category == "peer",
		env.Key.FromMe,
		wire.IsUserJID(env.Author),
		c.activeReceipts,
		node.AttrOr("participant", ""),
		env.Author,
	)

	if msg.HistorySync() != nil {
		if err := c.SendReceipt(ctx, wire.NormalizeUserJID(env.Key.RemoteJID), "", "hist_sync", env.Key.ID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleMessage",
				"id":       env.Key.ID,
				"error":    err.Error(),
			}).Warn("Failed to send history-sync receipt")
		}
	}

	msg.Clean(c.ownJID())

	if err := c.messages.PutMessage(msg); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	c.upsertChat(env.Chat, msg.Timestamp)

	eventType := MessageNotify
	if _, offline := node.Attr("offline"); offline {
		eventType = MessageAppend
	}
	c.events.emitMessages(eventType, []*message.Message{msg})

	if err := c.SendReceipt(ctx, env.Chat, receiptParticipant, receiptType, env.Key.ID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"id":       env.Key.ID,
			"error":    err.Error(),
		}).Warn("Failed to send delivery receipt")
	}
	return nil
}

// storeCiphertextStub records an undecryptable message as a ciphertext
// placeholder so the chat keeps its place in history while the retry
// protocol runs. The stored message carries routing and timing only, never
// payload, and is emitted like any other inbound message.
func (c *Client) storeCiphertextStub(node *wire.Node, env *envelope) {
	stub := &message.Message{
		Key:         env.Key,
		Participant: env.Author,
		Stub:        message.StubCiphertext,
	}
	if timestamp, err := node.AttrUint64("t"); err == nil {
		stub.Timestamp = timestamp
	}
	if pushName, ok := node.Attr("notify"); ok {
		stub.PushName = pushName
	}

	if err := c.messages.PutMessage(stub); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "storeCiphertextStub",
			"id":       env.Key.ID,
			"error":    err.Error(),
		}).Warn("Failed to store ciphertext placeholder")
		return
	}
	c.upsertChat(env.Chat, stub.Timestamp)

	eventType := MessageNotify
	if _, offline := node.Attr("offline"); offline {
		eventType = MessageAppend
	}
	c.events.emitMessages(eventType, []*message.Message{stub})
}

// decryptMessage decrypts the node's encrypted payload via the session
// orchestrator and decodes the envelope into a message.
func (c *Client) decryptMessage(ctx context.Context, node *wire.Node, env *envelope, enc *wire.Node) (*message.Message, error) {
	if enc == nil {
		return nil, &session.DecryptError{JID: env.Author, Cause: session.CauseUnknown,
			Err: fmt.Errorf("message node carries no encrypted payload")}
	}

	encType, err := enc.AttrString("type")
	if err != nil {
		return nil, err
	}

	plaintext, err := c.sessions.Decrypt(ctx, env.Author, &session.Ciphertext{
		Type: encType,
		Data: enc.Bytes(),
	})
	if err != nil {
		return nil, err
	}

	msg, err := message.Unmarshal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode decrypted envelope: %w", err)
	}

	msg.Key = env.Key
	msg.Participant = env.Author
	if timestamp, err := node.AttrUint64("t"); err == nil {
		msg.Timestamp = timestamp
	}
	if pushName, ok := node.Attr("notify"); ok {
		msg.PushName = pushName
	}
	return msg, nil
}

// upsertChat bumps the chat's conversation timestamp for one stored
// message, creating the chat if it is new, and emits the update in the same
// batch as the message.
func (c *Client) upsertChat(jid string, timestamp uint64) {
	chat, err := c.chats.GetChat(jid)
	if err != nil {
		chat = &store.Chat{ID: jid}
	}
	if timestamp > chat.ConversationTimestamp {
		chat.ConversationTimestamp = timestamp
	}
	if err := c.chats.PutChat(chat); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "upsertChat",
			"jid":      jid,
			"error":    err.Error(),
		}).Warn("Failed to upsert chat")
		return
	}
	c.events.emitChatUpdate(chat)
}
