package wirechat

import (
	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/store"
)

// MessageEventType distinguishes offline-delivered history from live
// messages.
type MessageEventType int

const (
	// MessageAppend is an offline-delivered message caught up after
	// connect; subscribers append it without alerting.
	MessageAppend MessageEventType = iota
	// MessageNotify is a live message.
	MessageNotify
)

// MessageEvent is one batch of upserted messages.
type MessageEvent struct {
	Type     MessageEventType
	Messages []*message.Message
}

// NotificationKind tags a NotificationEvent variant.
type NotificationKind int

const (
	// NotifyUnhandled is a subtype the engine recognizes but does not
	// interpret; it is surfaced for logging and dropped from side effects.
	NotifyUnhandled NotificationKind = iota
	NotifyGroupChange
	NotifyPictureChange
	NotifyContactStatus
	NotifyAppStateSyncRequest
	NotifyDeviceList
	NotifyPreKeyReplenish
	NotifyIdentityChange
)

// NotificationEvent is the classified form of one notification stanza.
// The populated fields depend on Kind.
type NotificationEvent struct {
	Kind        NotificationKind
	JID         string
	Participant string
	Stub        message.StubType
	StubParams  []string
	// Collections names the app-state collections the server asked the
	// client to resync.
	Collections []string
	Timestamp   int64
}

// CallEvent is one inbound call signal (offer, accept, terminate).
type CallEvent struct {
	ID        string
	From      string
	Status    string
	Timestamp int64
	Offline   bool
}

// handlers holds the application callbacks. Registration happens through
// the Client's On* methods; fields are read only while the processing lock
// is held.
type handlers struct {
	message     func(MessageEvent)
	receipt     func([]message.Receipt)
	contact     func(*store.Contact)
	chat        func(*store.Chat)
	credentials func(*store.Credentials)
	notify      func(NotificationEvent)
	call        func(CallEvent)
}

// emitter batches derived events while a stanza handler runs. buffer and
// flush bracket every dispatched handler so subscribers observe all events
// from one stanza as a single atomic batch. All emitter state is accessed
// only under the Client's processing lock.
type emitter struct {
	handlers handlers
	depth    int
	pending  []func()
}

// buffer opens an emission bracket. Brackets nest; events are delivered
// when the outermost bracket flushes.
func (e *emitter) buffer() {
	e.depth++
}

// flush closes one bracket and, at the outermost level, delivers every
// buffered event in emission order.
func (e *emitter) flush() {
	if e.depth > 0 {
		e.depth--
	}
	if e.depth > 0 {
		return
	}
	pending := e.pending
	e.pending = nil
	for _, deliver := range pending {
		deliver()
	}
}

func (e *emitter) emit(deliver func()) {
	if e.depth > 0 {
		e.pending = append(e.pending, deliver)
		return
	}
	deliver()
}

func (e *emitter) emitMessages(eventType MessageEventType, msgs []*message.Message) {
	if len(msgs) == 0 || e.handlers.message == nil {
		return
	}
	e.emit(func() { e.handlers.message(MessageEvent{Type: eventType, Messages: msgs}) })
}

func (e *emitter) emitReceipts(receipts []message.Receipt) {
	if len(receipts) == 0 || e.handlers.receipt == nil {
		return
	}
	e.emit(func() { e.handlers.receipt(receipts) })
}

func (e *emitter) emitContactUpdate(contact *store.Contact) {
	if e.handlers.contact == nil {
		return
	}
	e.emit(func() { e.handlers.contact(contact) })
}

func (e *emitter) emitChatUpdate(chat *store.Chat) {
	if e.handlers.chat == nil {
		return
	}
	e.emit(func() { e.handlers.chat(chat) })
}

func (e *emitter) emitCredentialsUpdate(creds *store.Credentials) {
	if e.handlers.credentials == nil {
		return
	}
	e.emit(func() { e.handlers.credentials(creds) })
}

func (e *emitter) emitNotification(event NotificationEvent) {
	if e.handlers.notify == nil {
		return
	}
	e.emit(func() { e.handlers.notify(event) })
}

func (e *emitter) emitCall(event CallEvent) {
	if e.handlers.call == nil {
		return
	}
	e.emit(func() { e.handlers.call(event) })
}
