package message

import "time"

// NewText builds a plain text content.
func NewText(body string) *Content {
	return &Content{Text: &TextContent{Body: body}}
}

// NewContact builds a shared contact card content.
func NewContact(displayName, vcard string) *Content {
	return &Content{Contact: &ContactContent{DisplayName: displayName, VCard: vcard}}
}

// NewLocation builds a shared location content.
func NewLocation(latitude, longitude float64, name string) *Content {
	return &Content{Location: &LocationContent{
		Latitude:  latitude,
		Longitude: longitude,
		Name:      name,
	}}
}

// NewReaction builds an emoji reaction to the message identified by key.
// An empty text removes a previous reaction.
func NewReaction(key Key, text string) *Content {
	return &Content{Reaction: &ReactionContent{
		Key:         key,
		Text:        text,
		TimestampMS: time.Now().UnixMilli(),
	}}
}
