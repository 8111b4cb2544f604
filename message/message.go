package message

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key identifies a message for retrieval and retry. Participant is set only
// for group-authored messages.
type Key struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

// Status is the delivery state of a message as reported by receipts.
type Status int

const (
	StatusError Status = iota
	StatusPending
	StatusServerAck
	StatusDeliveryAck
	StatusRead
	StatusPlayed
)

// StatusFromReceiptType maps a wire receipt type attribute to a Status. An
// absent type attribute means "delivered" on the wire.
func StatusFromReceiptType(receiptType string) Status {
	switch receiptType {
	case "read", "read-self":
		return StatusRead
	case "played":
		return StatusPlayed
	default:
		return StatusDeliveryAck
	}
}

// StubType classifies a non-text event carried inside a message envelope.
type StubType int

const (
	StubNone StubType = iota
	// StubCiphertext marks a message whose payload could not be decrypted;
	// it is stored and emitted as a placeholder while the retry protocol
	// runs.
	StubCiphertext
	StubGroupCreate
	StubGroupChangeSubject
	StubGroupChangeIcon
	StubGroupChangeInviteLink
	StubGroupChangeAnnounce
	StubGroupChangeRestrict
	StubGroupParticipantAdd
	StubGroupParticipantRemove
	StubGroupParticipantPromote
	StubGroupParticipantDemote
	StubGroupParticipantLeave
	StubGroupMemberAddMode
	StubGroupMembershipJoinApprovalMode
)

var stubNames = map[StubType]string{
	StubNone:                            "none",
	StubCiphertext:                      "ciphertext",
	StubGroupCreate:                     "group-create",
	StubGroupChangeSubject:              "group-change-subject",
	StubGroupChangeIcon:                 "group-change-icon",
	StubGroupChangeInviteLink:           "group-change-invite-link",
	StubGroupChangeAnnounce:             "group-change-announce",
	StubGroupChangeRestrict:             "group-change-restrict",
	StubGroupParticipantAdd:             "group-participant-add",
	StubGroupParticipantRemove:          "group-participant-remove",
	StubGroupParticipantPromote:         "group-participant-promote",
	StubGroupParticipantDemote:          "group-participant-demote",
	StubGroupParticipantLeave:           "group-participant-leave",
	StubGroupMemberAddMode:              "group-member-add-mode",
	StubGroupMembershipJoinApprovalMode: "group-membership-approval-mode",
}

func (s StubType) String() string {
	if name, ok := stubNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stub(%d)", int(s))
}

// Receipt records one delivered/read/played event for an outbound update
// batch.
type Receipt struct {
	MessageID   string `json:"messageId"`
	RemoteJID   string `json:"remoteJid"`
	Participant string `json:"participant,omitempty"`
	Status      Status `json:"status"`
	Timestamp   int64  `json:"timestamp"`
}

// Message is one chat message, inbound or outbound.
type Message struct {
	Key         Key      `json:"key"`
	Timestamp   uint64   `json:"messageTimestamp,omitempty"`
	PushName    string   `json:"pushName,omitempty"`
	Participant string   `json:"participant,omitempty"`
	Status      Status   `json:"status,omitempty"`
	Stub        StubType `json:"stubType,omitempty"`
	StubParams  []string `json:"stubParameters,omitempty"`
	// Category is "peer" for peer-control messages exchanged between a
	// user's own devices.
	Category string   `json:"category,omitempty"`
	Content  *Content `json:"message,omitempty"`
}

// Marshal serializes the message envelope for session encryption.
func (m *Message) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes a decrypted message envelope.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &m, nil
}

// HistorySync returns the history-sync payload if the normalized content
// carries one, nil otherwise.
func (m *Message) HistorySync() *HistorySyncContent {
	content := m.Content.Normalize()
	if content == nil {
		return nil
	}
	return content.HistorySync
}

// Clean strips protocol-only sub-messages not meant for display and
// normalizes the participant on self-sent keys. It is applied before a
// message is handed to the event emitter.
func (m *Message) Clean(ownJID string) {
	if m.Content != nil {
		m.Content.SenderKeyDistribution = nil
		if m.Content.Kind() == KindNone && m.Stub == StubNone {
			m.Content = nil
		}
	}
	if m.Key.FromMe && m.Key.Participant == "" && m.Participant != "" {
		m.Key.Participant = m.Participant
	}
}

// NewID generates a fresh outbound message id in wire form: uppercase hex
// with no separators.
func NewID() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))
}
