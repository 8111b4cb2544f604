package wirechat

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/session"
	"github.com/opd-ai/wirechat/wire"
)

// relayOptions tunes one relay of a message node.
type relayOptions struct {
	// MessageID overrides the id attribute; empty uses the message key.
	MessageID string
	// Participant restricts the relay to a single device, used when
	// answering a retry receipt.
	Participant string
	// BypassDeviceCache forces a fresh device-list query, used on a phash
	// hint that the message missed some of the recipient's devices.
	BypassDeviceCache bool
}

// SendOptions tunes an outbound send.
type SendOptions struct {
	// Quoted embeds the given message as the quoted context.
	Quoted *message.Message
}

// SendMessage generates, stores and relays one outbound message to jid.
// The returned message carries the generated id and pending status; its
// delivery progress arrives through receipt events.
func (c *Client) SendMessage(ctx context.Context, jid string, content *message.Content, opts *SendOptions) (*message.Message, error) {
	if content == nil || content.Kind() == message.KindNone {
		return nil, fmt.Errorf("message content is empty")
	}

	if opts != nil && opts.Quoted != nil {
		quoted := opts.Quoted
		content.SetContext(&message.ContextInfo{
			StanzaID:      quoted.Key.ID,
			RemoteJID:     quoted.Key.RemoteJID,
			Participant:   quoted.Participant,
			QuotedContent: quoted.Content.Keep(),
		})
	}

	msg := &message.Message{
		Key: message.Key{
			RemoteJID: jid,
			FromMe:    true,
			ID:        message.NewID(),
		},
		Timestamp: uint64(time.Now().Unix()),
		PushName:  c.opts.PushName,
		Status:    message.StatusPending,
		Content:   content,
	}

	c.processing.Lock()
	defer c.processing.Unlock()

	c.events.buffer()
	defer c.events.flush()

	if err := c.messages.PutMessage(msg); err != nil {
		return nil, fmt.Errorf("failed to store outbound message: %w", err)
	}
	c.upsertChat(jid, msg.Timestamp)
	c.events.emitMessages(MessageAppend, []*message.Message{msg})

	if err := c.relayMessage(ctx, jid, msg, relayOptions{}); err != nil {
		return nil, err
	}
	return msg, nil
}

// relayMessage encrypts a message for every recipient device and sends the
// assembled message node. Individual device failures are logged and
// skipped; the relay fails only when no device could be encrypted for.
func (c *Client) relayMessage(ctx context.Context, jid string, msg *message.Message, opts relayOptions) error {
	plaintext, err := msg.Marshal()
	if err != nil {
		return err
	}
	if err := limits.ValidateMessagePayload(plaintext); err != nil {
		return fmt.Errorf("refusing to relay message: %w", err)
	}

	msgID := opts.MessageID
	if msgID == "" {
		msgID = msg.Key.ID
	}

	devices, err := c.resolveDevices(ctx, jid, opts)
	if err != nil {
		return err
	}

	if err := c.sessions.AssertSessions(ctx, devices, false); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "relayMessage",
			"id":       msgID,
			"error":    err.Error(),
		}).Warn("Some sessions could not be established")
	}

	encrypted, failed := c.sessions.EncryptForDevices(ctx, devices, plaintext)
	for _, failure := range failed {
		logrus.WithFields(logrus.Fields{
			"function": "relayMessage",
			"id":       msgID,
			"device":   failure.JID,
			"error":    failure.Err.Error(),
		}).Warn("Skipping device in relay")
	}
	if len(encrypted) == 0 {
		return fmt.Errorf("relay of %s: %w", msgID, ErrNoRecipientDevices)
	}

	node := c.assembleMessageNode(jid, msgID, msg, encrypted, opts)
	if err := c.sendNode(ctx, node); err != nil {
		return fmt.Errorf("failed to relay message %s: %w", msgID, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "relayMessage",
		"id":       msgID,
		"jid":      jid,
		"devices":  len(encrypted),
	}).Debug("Relayed message")
	return nil
}

// resolveDevices picks the destination device set for one relay.
func (c *Client) resolveDevices(ctx context.Context, jid string, opts relayOptions) ([]string, error) {
	if opts.Participant != "" {
		return []string{opts.Participant}, nil
	}

	targets := []string{jid, c.ownJID()}
	devices, err := c.sessions.UserDevices(ctx, targets, !opts.BypassDeviceCache)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve devices for %s: %w", jid, err)
	}
	if len(devices) == 0 {
		return nil, ErrNoRecipientDevices
	}
	return devices, nil
}

// assembleMessageNode builds the outbound message stanza. A single-device
// relay nests the enc child directly; a fan-out nests per-device to nodes
// under a participants child. Any session-establishing ciphertext in the
// set requires the device identity certificate to ride along.
func (c *Client) assembleMessageNode(jid, msgID string, msg *message.Message, encrypted []session.DeviceCiphertext, opts relayOptions) *wire.Node {
	msgType := "text"
	if attachment, _ := msg.Content.Media(); attachment != nil {
		msgType = "media"
	}

	attrs := wire.Attrs{
		"id":   msgID,
		"to":   jid,
		"type": msgType,
		"t":    strconv.FormatUint(msg.Timestamp, 10),
	}

	hasPreKeyMessage := false
	encNodes := func(ct *session.Ciphertext) *wire.Node {
		if ct.Type == session.CiphertextPreKey {
			hasPreKeyMessage = true
		}
		return wire.NewDataNode("enc", wire.Attrs{"v": "2", "type": ct.Type}, ct.Data)
	}

	var children []*wire.Node
	if opts.Participant != "" && len(encrypted) == 1 {
		children = append(children, encNodes(encrypted[0].Ciphertext))
	} else {
		tos := make([]*wire.Node, 0, len(encrypted))
		for _, device := range encrypted {
			tos = append(tos, wire.NewNode("to", wire.Attrs{"jid": device.JID},
				encNodes(device.Ciphertext)))
		}
		children = append(children, wire.NewNode("participants", nil, tos...))
	}

	if hasPreKeyMessage {
		children = append(children,
			wire.NewDataNode("device-identity", nil, c.creds.Credentials().DeviceIdentity))
	}

	return wire.NewNode("message", attrs, children...)
}
