package wirechat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/wirechat/message"
	"github.com/opd-ai/wirechat/session"
	"github.com/opd-ai/wirechat/store"
	"github.com/opd-ai/wirechat/wire"
)

// NodeSender is the outbound half of the transport collaborator. The engine
// hands it fully assembled stanzas; framing, encoding and socket management
// are the transport's concern.
type NodeSender interface {
	SendNode(ctx context.Context, node *wire.Node) error
}

// NodeSenderFunc is a function type that implements NodeSender.
type NodeSenderFunc func(ctx context.Context, node *wire.Node) error

// SendNode implements NodeSender for NodeSenderFunc.
func (f NodeSenderFunc) SendNode(ctx context.Context, node *wire.Node) error {
	return f(ctx, node)
}

// Deps are the collaborators a Client is wired with. Sessions is required;
// nil stores fall back to in-memory implementations, and a nil Sender
// makes every outbound operation fail with ErrNotConnected.
type Deps struct {
	Sender      NodeSender
	Sessions    *session.Orchestrator
	Credentials store.CredentialsStore
	Messages    store.MessageStore
	Contacts    store.ContactStore
	Chats       store.ChatStore
	Uploader    Uploader
	Downloader  Downloader
}

// Client is the message-plane engine. One Client owns one connection's
// processing state: the retry counters, the device-session cache inside the
// orchestrator, and the active-receipts flag. Running two connections means
// running two Clients.
type Client struct {
	opts     *Options
	sender   NodeSender
	sessions *session.Orchestrator

	creds    store.CredentialsStore
	messages store.MessageStore
	contacts store.ContactStore
	chats    store.ChatStore

	uploader   Uploader
	downloader Downloader

	// processing serializes all stanza handler bodies. At most one stanza
	// is being interpreted at any instant; retry counters, the device
	// cache and the emitter are only touched while it is held.
	processing sync.Mutex

	events  emitter
	retries map[string]int

	activeReceipts bool
	prekeyUploads  *rate.Limiter
}

// New creates a Client. Logging level is applied from the options.
func New(opts *Options, deps Deps) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session orchestrator is required")
	}

	if level, err := logrus.ParseLevel(opts.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	creds := deps.Credentials
	if creds == nil {
		fresh, err := store.InitCredentials()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credentials: %w", err)
		}
		creds = store.NewMemoryStore(fresh)
	}

	messages := deps.Messages
	if messages == nil {
		if opts.MessageDBPath != "" {
			sqliteStore, err := store.NewSQLiteMessageStore(opts.MessageDBPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open message database: %w", err)
			}
			messages = sqliteStore
		} else {
			messages = store.NewMemoryStore(nil)
		}
	}

	contacts := deps.Contacts
	if contacts == nil {
		contacts = store.NewMemoryStore(nil)
	}
	chats := deps.Chats
	if chats == nil {
		chats = store.NewMemoryStore(nil)
	}

	return &Client{
		opts:          opts,
		sender:        deps.Sender,
		sessions:      deps.Sessions,
		creds:         creds,
		messages:      messages,
		contacts:      contacts,
		chats:         chats,
		uploader:      deps.Uploader,
		downloader:    deps.Downloader,
		retries:       make(map[string]int),
		prekeyUploads: rate.NewLimiter(rate.Every(time.Duration(opts.PreKeyUploadInterval)), 1),
	}, nil
}

// OnMessage registers the message batch callback.
func (c *Client) OnMessage(fn func(MessageEvent)) {
	c.events.handlers.message = fn
}

// OnReceipt registers the receipt batch callback.
func (c *Client) OnReceipt(fn func([]message.Receipt)) {
	c.events.handlers.receipt = fn
}

// OnContactUpdate registers the contact upsert callback.
func (c *Client) OnContactUpdate(fn func(*store.Contact)) {
	c.events.handlers.contact = fn
}

// OnChatUpdate registers the chat upsert callback.
func (c *Client) OnChatUpdate(fn func(*store.Chat)) {
	c.events.handlers.chat = fn
}

// OnCredentialsUpdate registers the callback fired whenever the local
// credentials mutate and need re-persisting, for example after a pre-key
// is consumed by a retry receipt.
func (c *Client) OnCredentialsUpdate(fn func(*store.Credentials)) {
	c.events.handlers.credentials = fn
}

// OnNotification registers the classified notification callback.
func (c *Client) OnNotification(fn func(NotificationEvent)) {
	c.events.handlers.notify = fn
}

// OnCall registers the inbound call signal callback.
func (c *Client) OnCall(fn func(CallEvent)) {
	c.events.handlers.call = fn
}

// HandleConnectionUpdate tells the engine the transport came up or went
// down. Coming up enables active delivery receipts when the options say to
// mark online on connect; going down disables them.
func (c *Client) HandleConnectionUpdate(online bool) {
	c.processing.Lock()
	defer c.processing.Unlock()
	c.activeReceipts = online && c.opts.MarkOnlineOnConnect

	logrus.WithFields(logrus.Fields{
		"function":       "HandleConnectionUpdate",
		"online":         online,
		"activeReceipts": c.activeReceipts,
	}).Debug("Connection state changed")
}

// SendActiveReceipts toggles active delivery receipts directly, the
// presence-driven override of the connection default.
func (c *Client) SendActiveReceipts(active bool) {
	c.processing.Lock()
	defer c.processing.Unlock()
	c.activeReceipts = active
}

// ownJID returns the local account's canonical user jid.
func (c *Client) ownJID() string {
	return c.creds.Credentials().Me.ID
}

// sendNode hands one assembled stanza to the transport.
func (c *Client) sendNode(ctx context.Context, node *wire.Node) error {
	if c.sender == nil {
		return ErrNotConnected
	}
	return c.sender.SendNode(ctx, node)
}
