// Package wirechat implements the message plane of a multi-device chat
// protocol client. It turns inbound binary protocol nodes into decrypted,
// deduplicated application events and turns outbound application intents
// into correctly encrypted, correctly acknowledged protocol nodes.
//
// The Client is the central object. It dispatches inbound stanzas to
// handlers for messages, receipts, notifications, calls and acks, drives
// the retry protocol for failed decryptions, and emits derived events in
// per-stanza batches through registered callbacks.
//
// Transport, persistence and the session-cryptography capability are
// collaborators injected through interfaces; see the session and store
// packages for their contracts.
package wirechat
