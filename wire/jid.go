package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Known servers in jid addresses.
const (
	// DefaultUserServer hosts individual user jids.
	DefaultUserServer = "s.whatsapp.net"
	// GroupServer hosts group jids.
	GroupServer = "g.us"
	// HiddenUserServer hosts the lid alias of a user.
	HiddenUserServer = "lid"
	// BroadcastServer hosts broadcast lists and status.
	BroadcastServer = "broadcast"
	// ServerJID is the protocol server's own address.
	ServerJID = DefaultUserServer
)

// JID is a decoded jid address of the form user[.agent][:device]@server.
type JID struct {
	User   string
	Agent  uint8
	Device uint16
	Server string
}

// ParseJID decodes a raw jid string. A raw value without an @ is treated as
// a bare server address.
func ParseJID(raw string) (JID, error) {
	at := strings.IndexByte(raw, '@')
	if at < 0 {
		return JID{Server: raw}, nil
	}

	jid := JID{Server: raw[at+1:]}
	user := raw[:at]

	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		device, err := strconv.ParseUint(user[colon+1:], 10, 16)
		if err != nil {
			return JID{}, fmt.Errorf("invalid device in jid %q: %w", raw, err)
		}
		jid.Device = uint16(device)
		user = user[:colon]
	}

	if dot := strings.IndexByte(user, '.'); dot >= 0 {
		agent, err := strconv.ParseUint(user[dot+1:], 10, 8)
		if err != nil {
			return JID{}, fmt.Errorf("invalid agent in jid %q: %w", raw, err)
		}
		jid.Agent = uint8(agent)
		user = user[:dot]
	}

	jid.User = user
	return jid, nil
}

// String re-encodes the jid in wire form.
func (j JID) String() string {
	var sb strings.Builder
	sb.WriteString(j.User)
	if j.Agent > 0 {
		sb.WriteByte('.')
		sb.WriteString(strconv.FormatUint(uint64(j.Agent), 10))
	}
	if j.Device > 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(j.Device), 10))
	}
	if j.User != "" {
		sb.WriteByte('@')
	}
	sb.WriteString(j.Server)
	return sb.String()
}

// IsGroupJID reports whether the raw jid addresses a group.
func IsGroupJID(raw string) bool {
	return strings.HasSuffix(raw, "@"+GroupServer)
}

// IsUserJID reports whether the raw jid addresses an individual user.
func IsUserJID(raw string) bool {
	return strings.HasSuffix(raw, "@"+DefaultUserServer)
}

// IsHiddenUserJID reports whether the raw jid is a lid alias.
func IsHiddenUserJID(raw string) bool {
	return strings.HasSuffix(raw, "@"+HiddenUserServer)
}

// NormalizeUserJID strips the agent and device parts from a raw jid,
// yielding the canonical address of the owning user.
func NormalizeUserJID(raw string) string {
	jid, err := ParseJID(raw)
	if err != nil {
		return raw
	}
	jid.Agent = 0
	jid.Device = 0
	return jid.String()
}

// SameUser reports whether two raw jids address the same user, ignoring
// agent and device parts. Empty inputs never match.
func SameUser(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ja, err := ParseJID(a)
	if err != nil {
		return false
	}
	jb, err := ParseJID(b)
	if err != nil {
		return false
	}
	return ja.User == jb.User && ja.User != ""
}
