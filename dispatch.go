package wirechat

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wirechat/wire"
)

// stanzaKind is the closed enumeration of inbound stanza types the engine
// interprets. Anything else maps to stanzaUnknown and is ignored, so an
// unrecognized stanza can never crash the pipeline.
type stanzaKind int

const (
	stanzaUnknown stanzaKind = iota
	stanzaMessage
	stanzaReceipt
	stanzaNotification
	stanzaCall
	stanzaAck
)

func (k stanzaKind) String() string {
	switch k {
	case stanzaMessage:
		return "message"
	case stanzaReceipt:
		return "receipt"
	case stanzaNotification:
		return "notification"
	case stanzaCall:
		return "call"
	case stanzaAck:
		return "ack"
	default:
		return "unknown"
	}
}

// classifyStanza maps a node to its stanza kind. Ack stanzas are only
// interpreted when they reference a message, matching the wire protocol's
// class qualifier.
func classifyStanza(node *wire.Node) stanzaKind {
	switch node.Tag {
	case "message":
		return stanzaMessage
	case "receipt":
		return stanzaReceipt
	case "notification":
		return stanzaNotification
	case "call":
		return stanzaCall
	case "ack":
		if node.AttrOr("class", "") == "message" {
			return stanzaAck
		}
		return stanzaUnknown
	default:
		return stanzaUnknown
	}
}

// ProcessNode interprets one inbound stanza. All handler bodies run under
// the single processing lock and inside the batched-emission bracket, so
// handlers never interleave and subscribers observe each stanza's derived
// events as one atomic batch. A handler error is logged here and never
// propagates; the next stanza always proceeds.
func (c *Client) ProcessNode(ctx context.Context, node *wire.Node) {
	kind := classifyStanza(node)
	if kind == stanzaUnknown {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessNode",
			"tag":      node.Tag,
		}).Debug("Ignoring unrecognized stanza")
		return
	}

	c.processing.Lock()
	defer c.processing.Unlock()

	c.events.buffer()
	defer c.events.flush()

	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ProcessNode",
				"kind":     kind.String(),
				"panic":    r,
			}).Error("Stanza handler panicked")
		}
	}()

	var err error
	switch kind {
	case stanzaMessage:
		err = c.handleMessage(ctx, node)
	case stanzaReceipt:
		err = c.handleReceipt(ctx, node)
	case stanzaNotification:
		err = c.handleNotification(ctx, node)
	case stanzaCall:
		err = c.handleCall(ctx, node)
	case stanzaAck:
		err = c.handleAck(ctx, node)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessNode",
			"kind":     kind.String(),
			"error":    err.Error(),
		}).Error("Stanza handler failed")
	}
}
