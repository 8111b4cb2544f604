package wirechat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/store"
	"github.com/opd-ai/wirechat/wire"
)

// sendMessageAck acknowledges one inbound stanza back to the server. The
// attribute rules are a wire-compatibility requirement and must hold
// bit-for-bit: participant and recipient are copied through when present;
// type is copied only when the node is not a plain message or is a message
// explicitly marked unavailable; and an unavailable message additionally
// carries the local identity in from, since the normal routing source is
// implicit in that case.
func (c *Client) sendMessageAck(ctx context.Context, node *wire.Node) error {
	id, err := node.AttrString("id")
	if err != nil {
		return err
	}
	from, err := node.AttrString("from")
	if err != nil {
		return err
	}

	ack := wire.NewNode("ack", wire.Attrs{
		"id":    id,
		"to":    from,
		"class": node.Tag,
	})

	if participant, ok := node.Attr("participant"); ok {
		ack.SetAttr("participant", participant)
	}
	if recipient, ok := node.Attr("recipient"); ok {
		ack.SetAttr("recipient", recipient)
	}

	nodeType := node.AttrOr("type", "")
	unavailable := node.Tag == "message" && isUnavailable(node)
	if nodeType != "" && (node.Tag != "message" || unavailable) {
		ack.SetAttr("type", nodeType)
	}
	if unavailable {
		ack.SetAttr("from", c.ownJID())
	}

	if err := c.sendNode(ctx, ack); err != nil {
		return fmt.Errorf("failed to send ack for %s: %w", id, err)
	}
	return nil
}

// isUnavailable reports whether a message node is an unavailable
// placeholder. The marker appears either as a type attribute or as an empty
// unavailable child, depending on the sending server's framing.
func isUnavailable(node *wire.Node) bool {
	return node.AttrOr("type", "") == "unavailable" || node.GetChild("unavailable") != nil
}

// handleAck processes an inbound server ack for a message this client
// sent. An ack carrying a phash hint means the message has not reached all
// of the recipient's devices yet: the referenced message is re-relayed with
// the device cache bypassed so a fresh device list is fanned out. An ack
// carrying an error code marks the stored message as failed.
func (c *Client) handleAck(ctx context.Context, node *wire.Node) error {
	id, err := node.AttrString("id")
	if err != nil {
		return err
	}
	from, err := node.AttrString("from")
	if err != nil {
		return err
	}

	if errorCode, ok := node.Attr("error"); ok {
		logrus.WithFields(logrus.Fields{
			"function": "handleAck",
			"id":       id,
			"error":    errorCode,
		}).Warn("Server rejected message")
		c.markMessageFailed(from, id)
		return nil
	}

	phash, ok := node.Attr("phash")
	if !ok {
		return nil
	}

	key := message.Key{RemoteJID: from, FromMe: true, ID: id}
	msg, err := c.messages.GetMessage(key)
	if errors.Is(err, store.ErrNotFound) {
		logrus.WithFields(logrus.Fields{
			"function": "handleAck",
			"id":       id,
			"phash":    phash,
		}).Debug("Phash hint for a message no longer held")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load message for phash resend: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleAck",
		"id":       id,
		"jid":      from,
	}).Info("Re-relaying message after phash hint")

	return c.relayMessage(ctx, from, msg, relayOptions{
		MessageID:         id,
		BypassDeviceCache: true,
	})
}

// markMessageFailed records a server rejection on the stored copy.
func (c *Client) markMessageFailed(jid, id string) {
	key := message.Key{RemoteJID: jid, FromMe: true, ID: id}
	msg, err := c.messages.GetMessage(key)
	if err != nil {
		return
	}
	msg.Status = message.StatusError
	if err := c.messages.PutMessage(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "markMessageFailed",
			"id":       id,
			"error":    err.Error(),
		}).Warn("Failed to persist message failure")
		return
	}
	c.events.emitMessages(MessageNotify, []*message.Message{msg})
}
