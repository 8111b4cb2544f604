package wirechat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/store"
	"github.com/opd-ai/wirechat/wire"
)

// receiptApplier is an optional message-store extension for recording
// delivery status on stored messages.
type receiptApplier interface {
	ApplyReceipt(r message.Receipt) error
}

// SendReceipt builds and sends one outbound receipt stanza. The first id
// rides in the root id attribute; additional ids nest as a list of item
// children. Read receipts carry a timestamp. For sender receipts addressed
// to an individual jid the wire protocol swaps the addressing: the jid goes
// in recipient and the acking participant in to.
func (c *Client) SendReceipt(ctx context.Context, jid, participant, receiptType string, ids ...string) error {
	if len(ids) == 0 {
		return fmt.Errorf("receipt needs at least one message id")
	}

	receipt := wire.NewNode("receipt", wire.Attrs{"id": ids[0]})

	if receiptType == "read" || receiptType == "read-self" {
		receipt.SetAttr("t", strconv.FormatInt(time.Now().Unix(), 10))
	}
	if receiptType != "" {
		receipt.SetAttr("type", receiptType)
	}

	if receiptType == "sender" && wire.IsUserJID(jid) {
		receipt.SetAttr("recipient", jid)
		if participant != "" {
			receipt.SetAttr("to", participant)
		}
	} else {
		receipt.SetAttr("to", jid)
		if participant != "" {
			receipt.SetAttr("recipient", participant)
		}
	}

	if len(ids) > 1 {
		items := make([]*wire.Node, 0, len(ids)-1)
		for _, id := range ids[1:] {
			items = append(items, wire.NewNode("item", wire.Attrs{"id": id}))
		}
		list := wire.NewNode("list", nil, items...)
		return c.sendNode(ctx, wire.NewNode("receipt", receipt.Attrs, list))
	}
	return c.sendNode(ctx, receipt)
}

// handleReceipt processes one inbound receipt stanza. A retry receipt means
// the peer failed to decrypt a message this client sent, so the message is
// resent with its session re-established. Every other type maps to a
// delivery-status batch for the referenced ids. The node is always acked.
func (c *Client) handleReceipt(ctx context.Context, node *wire.Node) error {
	defer func() {
		if err := c.sendMessageAck(ctx, node); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleReceipt",
				"error":    err.Error(),
			}).Warn("Failed to ack receipt")
		}
	}()

	from, err := node.AttrString("from")
	if err != nil {
		return err
	}
	id, err := node.AttrString("id")
	if err != nil {
		return err
	}
	receiptType := node.AttrOr("type", "")

	if receiptType == "retry" {
		return c.sendMessageAgain(ctx, node, from, id)
	}

	ids := []string{id}
	if list := node.GetChild("list"); list != nil {
		for _, item := range list.GetChildren("item") {
			if itemID, ok := item.Attr("id"); ok {
				ids = append(ids, itemID)
			}
		}
	}

	timestamp, _ := node.AttrInt64("t")
	status := message.StatusFromReceiptType(receiptType)

	receipts := make([]message.Receipt, 0, len(ids))
	for _, msgID := range ids {
		r := message.Receipt{
			MessageID:   msgID,
			RemoteJID:   from,
			Participant: node.AttrOr("participant", ""),
			Status:      status,
			Timestamp:   timestamp,
		}
		receipts = append(receipts, r)

		if applier, ok := c.messages.(receiptApplier); ok {
			if err := applier.ApplyReceipt(r); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "handleReceipt",
					"id":       msgID,
					"error":    err.Error(),
				}).Warn("Failed to record receipt status")
			}
		}
	}
	c.events.emitReceipts(receipts)
	return nil
}

// sendMessageAgain answers a retry receipt: the referenced message is
// loaded, the failing device's session is re-established with force, and
// the message is relayed again to that device.
func (c *Client) sendMessageAgain(ctx context.Context, node *wire.Node, from, id string) error {
	participant := node.AttrOr("participant", from)

	key := message.Key{RemoteJID: from, FromMe: true, ID: id}
	msg, err := c.messages.GetMessage(key)
	if errors.Is(err, store.ErrNotFound) {
		logrus.WithFields(logrus.Fields{
			"function": "sendMessageAgain",
			"id":       id,
			"jid":      from,
		}).Warn("Retry receipt for a message no longer held")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load message for retry resend: %w", err)
	}

	if err := c.sessions.AssertSessions(ctx, []string{participant}, true); err != nil {
		return fmt.Errorf("failed to re-establish session with %s: %w", participant, err)
	}

	return c.relayMessage(ctx, from, msg, relayOptions{
		MessageID:   id,
		Participant: participant,
	})
}
