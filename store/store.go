package store

import (
	"errors"

	"github.com/opd-ai/wirechat/message"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Contact is a known peer user.
type Contact struct {
	JID    string
	Name   string
	Status string
	// ImgURL is "changed" after a picture notification until the profile
	// picture is re-fetched, empty after a deletion.
	ImgURL string
}

// Chat is one conversation, individual or group.
type Chat struct {
	ID                    string
	Name                  string
	ConversationTimestamp uint64
	// TCToken is the privacy token attached to the chat by the server.
	TCToken []byte
}

// MessageStore holds messages for retrieval by key. The engine reads it on
// retry requests and phash resend hints, and writes every generated
// outbound message.
type MessageStore interface {
	GetMessage(key message.Key) (*message.Message, error)
	PutMessage(msg *message.Message) error
}

// ContactStore holds known contacts.
type ContactStore interface {
	GetContact(jid string) (*Contact, error)
	PutContact(contact *Contact) error
}

// ChatStore holds conversations.
type ChatStore interface {
	GetChat(jid string) (*Chat, error)
	PutChat(chat *Chat) error
}
