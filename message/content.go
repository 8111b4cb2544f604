package message

import "github.com/opd-ai/wirechat/limits"

// ContentKind enumerates the active variant of a Content union.
type ContentKind int

const (
	KindNone ContentKind = iota
	KindText
	KindContact
	KindLocation
	KindReaction
	KindImage
	KindVideo
	KindAudio
	KindDocument
	KindProtocol
	KindHistorySync
)

// IsMedia reports whether the kind is an attachment a downloader can fetch.
func (k ContentKind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument:
		return true
	default:
		return false
	}
}

// ContextInfo carries quoting and mention metadata attached to a content
// variant.
type ContextInfo struct {
	Participant   string   `json:"participant,omitempty"`
	StanzaID      string   `json:"stanzaId,omitempty"`
	RemoteJID     string   `json:"remoteJid,omitempty"`
	QuotedContent *Content `json:"quotedMessage,omitempty"`
	MentionedJIDs []string `json:"mentionedJid,omitempty"`
}

// TextContent is a plain or extended text message.
type TextContent struct {
	Body    string       `json:"text"`
	Context *ContextInfo `json:"contextInfo,omitempty"`
}

// ContactContent is a shared contact card.
type ContactContent struct {
	DisplayName string       `json:"displayName"`
	VCard       string       `json:"vcard"`
	Context     *ContextInfo `json:"contextInfo,omitempty"`
}

// LocationContent is a shared geographic position.
type LocationContent struct {
	Latitude  float64      `json:"degreesLatitude"`
	Longitude float64      `json:"degreesLongitude"`
	Name      string       `json:"name,omitempty"`
	Address   string       `json:"address,omitempty"`
	Context   *ContextInfo `json:"contextInfo,omitempty"`
}

// ReactionContent is an emoji reaction to an earlier message.
type ReactionContent struct {
	Key         Key    `json:"key"`
	Text        string `json:"text"`
	TimestampMS int64  `json:"senderTimestampMs"`
}

// MediaContent describes an encrypted attachment stored on a media host.
// The integrity fields mirror the authenticated media codec's output; all
// of them are required by a recipient to fetch and decrypt the blob.
type MediaContent struct {
	URL           string       `json:"url,omitempty"`
	DirectPath    string       `json:"directPath,omitempty"`
	MediaKey      []byte       `json:"mediaKey"`
	FileEncSHA256 []byte       `json:"fileEncSha256"`
	FileSHA256    []byte       `json:"fileSha256"`
	FileLength    uint64       `json:"fileLength"`
	MimeType      string       `json:"mimetype,omitempty"`
	Caption       string       `json:"caption,omitempty"`
	FileName      string       `json:"fileName,omitempty"`
	Seconds       uint32       `json:"seconds,omitempty"`
	PTT           bool         `json:"ptt,omitempty"`
	Width         uint32       `json:"width,omitempty"`
	Height        uint32       `json:"height,omitempty"`
	JPEGThumbnail []byte       `json:"jpegThumbnail,omitempty"`
	Context       *ContextInfo `json:"contextInfo,omitempty"`
}

// ProtocolType enumerates protocol-control payloads.
type ProtocolType int

const (
	ProtocolRevoke ProtocolType = iota
	ProtocolEphemeralSetting
)

// ProtocolContent is a protocol-control message (revoke, disappearing-mode
// setting change).
type ProtocolContent struct {
	Type                ProtocolType `json:"type"`
	Key                 *Key         `json:"key,omitempty"`
	EphemeralExpiration uint32       `json:"ephemeralExpiration,omitempty"`
}

// HistorySyncContent is a history-sync envelope delivered during multi-device
// pairing or offline catch-up.
type HistorySyncContent struct {
	SyncType string `json:"syncType,omitempty"`
	Progress uint32 `json:"progress,omitempty"`
}

// SenderKeyDistribution is a protocol-only sub-message distributing group
// sender keys. It is stripped before a message reaches subscribers.
type SenderKeyDistribution struct {
	GroupJID string `json:"groupId"`
	Data     []byte `json:"axolotlSenderKeyDistributionMessage"`
}

// Content is the tagged union over message content kinds. Exactly one
// variant field is set; Kind reports which. The wrapper fields (Ephemeral,
// ViewOnce, Edited) are future-proof envelopes unwrapped by Normalize.
type Content struct {
	Text        *TextContent        `json:"extendedTextMessage,omitempty"`
	Contact     *ContactContent     `json:"contactMessage,omitempty"`
	Location    *LocationContent    `json:"locationMessage,omitempty"`
	Reaction    *ReactionContent    `json:"reactionMessage,omitempty"`
	Image       *MediaContent       `json:"imageMessage,omitempty"`
	Video       *MediaContent       `json:"videoMessage,omitempty"`
	Audio       *MediaContent       `json:"audioMessage,omitempty"`
	Document    *MediaContent       `json:"documentMessage,omitempty"`
	Protocol    *ProtocolContent    `json:"protocolMessage,omitempty"`
	HistorySync *HistorySyncContent `json:"historySyncNotification,omitempty"`

	SenderKeyDistribution *SenderKeyDistribution `json:"senderKeyDistributionMessage,omitempty"`

	Ephemeral *Content `json:"ephemeralMessage,omitempty"`
	ViewOnce  *Content `json:"viewOnceMessage,omitempty"`
	Edited    *Content `json:"editedMessage,omitempty"`
}

// Kind returns the active variant. Wrapper envelopes report the kind of
// their normalized inner content.
func (c *Content) Kind() ContentKind {
	inner := c.Normalize()
	switch {
	case inner == nil:
		return KindNone
	case inner.Text != nil:
		return KindText
	case inner.Contact != nil:
		return KindContact
	case inner.Location != nil:
		return KindLocation
	case inner.Reaction != nil:
		return KindReaction
	case inner.Image != nil:
		return KindImage
	case inner.Video != nil:
		return KindVideo
	case inner.Audio != nil:
		return KindAudio
	case inner.Document != nil:
		return KindDocument
	case inner.Protocol != nil:
		return KindProtocol
	case inner.HistorySync != nil:
		return KindHistorySync
	default:
		return KindNone
	}
}

// Normalize unwraps future-proof envelopes (ephemeral, view-once, edited)
// down to the real content. Unwrapping is bounded to prevent an infinite
// loop on a self-referencing envelope.
func (c *Content) Normalize() *Content {
	for i := 0; c != nil && i < limits.MaxEnvelopeDepth; i++ {
		inner := c.wrapped()
		if inner == nil {
			break
		}
		c = inner
	}
	return c
}

func (c *Content) wrapped() *Content {
	switch {
	case c.Ephemeral != nil:
		return c.Ephemeral
	case c.ViewOnce != nil:
		return c.ViewOnce
	case c.Edited != nil:
		return c.Edited
	default:
		return nil
	}
}

// Media returns the attachment of the normalized content along with its
// kind, or nil when the content carries no attachment.
func (c *Content) Media() (*MediaContent, ContentKind) {
	inner := c.Normalize()
	if inner == nil {
		return nil, KindNone
	}
	switch {
	case inner.Image != nil:
		return inner.Image, KindImage
	case inner.Video != nil:
		return inner.Video, KindVideo
	case inner.Audio != nil:
		return inner.Audio, KindAudio
	case inner.Document != nil:
		return inner.Document, KindDocument
	default:
		return nil, KindNone
	}
}

// SetContext attaches quoting/mention metadata to the active variant.
// Variants that cannot carry context (reactions, protocol control) are left
// untouched.
func (c *Content) SetContext(info *ContextInfo) {
	inner := c.Normalize()
	if inner == nil {
		return
	}
	switch {
	case inner.Text != nil:
		inner.Text.Context = info
	case inner.Contact != nil:
		inner.Contact.Context = info
	case inner.Location != nil:
		inner.Location.Context = info
	case inner.Image != nil:
		inner.Image.Context = info
	case inner.Video != nil:
		inner.Video.Context = info
	case inner.Audio != nil:
		inner.Audio.Context = info
	case inner.Document != nil:
		inner.Document.Context = info
	}
}

// Keep reduces the content to only its active variant, dropping every other
// field. Used when embedding a quoted message.
func (c *Content) Keep() *Content {
	inner := c.Normalize()
	if inner == nil {
		return nil
	}
	kept := Content{
		Text:        inner.Text,
		Contact:     inner.Contact,
		Location:    inner.Location,
		Reaction:    inner.Reaction,
		Image:       inner.Image,
		Video:       inner.Video,
		Audio:       inner.Audio,
		Document:    inner.Document,
		Protocol:    inner.Protocol,
		HistorySync: inner.HistorySync,
	}
	return &kept
}
