package wirechat

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/store"
	"github.com/opd-ai/wirechat/wire"
)

// groupStubFor maps a group sub-notification tag to its stub kind. A
// remove affecting exactly one participant who is also the actor is a
// voluntary leave, not a removal.
func groupStubFor(tag, actor string, participants []string) (message.StubType, bool) {
	switch tag {
	case "create":
		return message.StubGroupCreate, true
	case "subject":
		return message.StubGroupChangeSubject, true
	case "picture":
		return message.StubGroupChangeIcon, true
	case "invite", "revoke_invite":
		return message.StubGroupChangeInviteLink, true
	case "announcement", "not_announcement":
		return message.StubGroupChangeAnnounce, true
	case "locked", "unlocked":
		return message.StubGroupChangeRestrict, true
	case "add":
		return message.StubGroupParticipantAdd, true
	case "remove":
		if len(participants) == 1 && wire.SameUser(participants[0], actor) {
			return message.StubGroupParticipantLeave, true
		}
		return message.StubGroupParticipantRemove, true
	case "promote":
		return message.StubGroupParticipantPromote, true
	case "demote":
		return message.StubGroupParticipantDemote, true
	case "member_add_mode":
		return message.StubGroupMemberAddMode, true
	case "membership_approval_mode":
		return message.StubGroupMembershipJoinApprovalMode, true
	default:
		return message.StubNone, false
	}
}

// handleNotification classifies one notification stanza by its declared
// type, producing at most one domain event plus store side effects.
// Unrecognized types are logged and dropped; a notification must never
// take down the processing loop. The node is always acked.
func (c *Client) handleNotification(ctx context.Context, node *wire.Node) error {
	defer func() {
		if err := c.sendMessageAck(ctx, node); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleNotification",
				"error":    err.Error(),
			}).Warn("Failed to ack notification")
		}
	}()

	notifyType, err := node.AttrString("type")
	if err != nil {
		return err
	}
	from := node.AttrOr("from", "")
	timestamp, _ := node.AttrInt64("t")

	switch notifyType {
	case "w:gp2":
		return c.handleGroupNotification(node, from, timestamp)
	case "privacy_token":
		return c.handlePrivacyToken(node, from)
	case "mediaretry":
		// The decoded result is delivered through the media retry waiter,
		// not the notification bus.
		return nil
	case "encrypt":
		return c.handleEncryptNotification(ctx, node, from)
	case "devices":
		c.events.emitNotification(NotificationEvent{
			Kind:      NotifyDeviceList,
			JID:       from,
			Timestamp: timestamp,
		})
		return nil
	case "server_sync":
		var collections []string
		for _, collection := range node.GetChildren("collection") {
			if name, ok := collection.Attr("name"); ok {
				collections = append(collections, name)
			}
		}
		c.events.emitNotification(NotificationEvent{
			Kind:        NotifyAppStateSyncRequest,
			JID:         from,
			Collections: collections,
			Timestamp:   timestamp,
		})
		return nil
	case "picture":
		return c.handlePictureNotification(node, from, timestamp)
	case "account_sync":
		return c.handleAccountSync(node, from)
	case "status":
		return c.handleStatusNotification(node, from, timestamp)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleNotification",
			"type":     notifyType,
			"from":     from,
		}).Warn("Dropping unhandled notification type")
		c.events.emitNotification(NotificationEvent{
			Kind:      NotifyUnhandled,
			JID:       from,
			Timestamp: timestamp,
		})
		return nil
	}
}

// handleGroupNotification maps a group change to its stub event.
func (c *Client) handleGroupNotification(node *wire.Node, from string, timestamp int64) error {
	actor := node.AttrOr("participant", "")

	for _, child := range node.Children() {
		var participants []string
		for _, p := range child.GetChildren("participant") {
			if jid, ok := p.Attr("jid"); ok {
				participants = append(participants, jid)
			}
		}

		stub, ok := groupStubFor(child.Tag, actor, participants)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "handleGroupNotification",
				"tag":      child.Tag,
				"group":    from,
			}).Warn("Dropping unhandled group sub-notification")
			continue
		}

		params := participants
		if len(params) == 0 {
			if text, isText := child.Text(); isText && text != "" {
				params = []string{text}
			}
		}

		c.events.emitNotification(NotificationEvent{
			Kind:        NotifyGroupChange,
			JID:         from,
			Participant: actor,
			Stub:        stub,
			StubParams:  params,
			Timestamp:   timestamp,
		})
	}
	return nil
}

// handlePrivacyToken records the chat's privacy token.
func (c *Client) handlePrivacyToken(node *wire.Node, from string) error {
	tokens := node.GetChild("tokens")
	if tokens == nil {
		return nil
	}
	token := tokens.ChildBytes("token")
	if token == nil {
		return nil
	}

	chat, err := c.chats.GetChat(from)
	if err != nil {
		chat = &store.Chat{ID: from}
	}
	chat.TCToken = token
	if err := c.chats.PutChat(chat); err != nil {
		return err
	}
	c.events.emitChatUpdate(chat)
	return nil
}

// handleEncryptNotification reacts to server key-state changes: an
// identity child signals the peer rotated its identity key; a count child
// from the server below the low-water mark triggers a pre-key
// replenishment upload.
func (c *Client) handleEncryptNotification(ctx context.Context, node *wire.Node, from string) error {
	if node.HasChild("identity") {
		c.events.emitNotification(NotificationEvent{
			Kind: NotifyIdentityChange,
			JID:  from,
		})
		return nil
	}

	if !wire.SameUser(from, wire.ServerJID) && from != wire.ServerJID {
		return nil
	}
	countNode := node.GetChild("count")
	if countNode == nil {
		return nil
	}
	count, err := countNode.AttrUint32("value")
	if err != nil {
		return err
	}
	if count >= limits.MinPreKeyCount {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleEncryptNotification",
		"count":    count,
		"floor":    limits.MinPreKeyCount,
	}).Info("Server pre-key count below low-water mark")

	c.events.emitNotification(NotificationEvent{Kind: NotifyPreKeyReplenish, JID: from})
	return c.uploadPreKeys(ctx)
}

// handlePictureNotification marks the contact or group picture changed or
// deleted. The store keeps a marker; the actual image is re-fetched lazily
// by the application.
func (c *Client) handlePictureNotification(node *wire.Node, from string, timestamp int64) error {
	imgURL := "changed"
	if node.HasChild("delete") {
		imgURL = ""
	}

	contact, err := c.contacts.GetContact(from)
	if err != nil {
		contact = &store.Contact{JID: from}
	}
	contact.ImgURL = imgURL
	if err := c.contacts.PutContact(contact); err != nil {
		return err
	}
	c.events.emitContactUpdate(contact)
	c.events.emitNotification(NotificationEvent{
		Kind:      NotifyPictureChange,
		JID:       from,
		Timestamp: timestamp,
	})
	return nil
}

// handleAccountSync applies server-synchronized account settings: the
// default disappearing-message duration and the blocklist snapshot.
func (c *Client) handleAccountSync(node *wire.Node, from string) error {
	if disappearing := node.GetChild("disappearing_mode"); disappearing != nil {
		duration, err := disappearing.AttrUint32("duration")
		if err != nil {
			return err
		}
		setAt, _ := disappearing.AttrInt64("t")

		creds := c.creds.Credentials()
		creds.AccountSettings.DefaultDisappearing = &store.DisappearingMode{
			Duration: duration,
			SetAt:    setAt,
		}
		c.events.emitCredentialsUpdate(creds)
	}

	if blocklist := node.GetChild("blocklist"); blocklist != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleAccountSync",
			"from":     from,
			"entries":  len(blocklist.GetChildren("item")),
		}).Debug("Received blocklist snapshot")
	}
	return nil
}

// handleStatusNotification records a contact's new status text.
func (c *Client) handleStatusNotification(node *wire.Node, from string, timestamp int64) error {
	status, ok := node.ChildText("set")
	if !ok {
		return nil
	}

	contact, err := c.contacts.GetContact(from)
	if err != nil {
		contact = &store.Contact{JID: from}
	}
	contact.Status = status
	if err := c.contacts.PutContact(contact); err != nil {
		return err
	}
	c.events.emitContactUpdate(contact)
	c.events.emitNotification(NotificationEvent{
		Kind:      NotifyContactStatus,
		JID:       from,
		Timestamp: timestamp,
	})
	return nil
}

// handleCall surfaces one inbound call signal and acks it. Call media is
// out of scope; only the signaling event reaches the application.
func (c *Client) handleCall(ctx context.Context, node *wire.Node) error {
	defer func() {
		if err := c.sendMessageAck(ctx, node); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleCall",
				"error":    err.Error(),
			}).Warn("Failed to ack call stanza")
		}
	}()

	from, err := node.AttrString("from")
	if err != nil {
		return err
	}
	timestamp, _ := node.AttrInt64("t")
	_, offline := node.Attr("offline")

	children := node.Children()
	if len(children) == 0 {
		return nil
	}
	signal := children[0]

	c.events.emitCall(CallEvent{
		ID:        signal.AttrOr("call-id", node.AttrOr("id", "")),
		From:      from,
		Status:    signal.Tag,
		Timestamp: timestamp,
		Offline:   offline,
	})
	return nil
}
