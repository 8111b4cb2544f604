package store

import (
	"sync"

	"github.com/opd-ai/wirechat/message"
)

// MemoryStore is an in-memory implementation of every store contract. It is
// suitable for tests and short-lived sessions; nothing survives the
// process.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[message.Key]*message.Message
	contacts map[string]*Contact
	chats    map[string]*Chat
	creds    *Credentials
	usedKeys map[uint32]bool
}

// NewMemoryStore creates an empty store around the given credentials.
func NewMemoryStore(creds *Credentials) *MemoryStore {
	return &MemoryStore{
		messages: make(map[message.Key]*message.Message),
		contacts: make(map[string]*Contact),
		chats:    make(map[string]*Chat),
		creds:    creds,
		usedKeys: make(map[uint32]bool),
	}
}

// GetMessage implements MessageStore.
func (s *MemoryStore) GetMessage(key message.Key) (*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[key]
	if !ok {
		return nil, ErrNotFound
	}
	return msg, nil
}

// PutMessage implements MessageStore.
func (s *MemoryStore) PutMessage(msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.Key] = msg
	return nil
}

// GetContact implements ContactStore.
func (s *MemoryStore) GetContact(jid string) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contact, ok := s.contacts[jid]
	if !ok {
		return nil, ErrNotFound
	}
	return contact, nil
}

// PutContact implements ContactStore.
func (s *MemoryStore) PutContact(contact *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.JID] = contact
	return nil
}

// GetChat implements ChatStore.
func (s *MemoryStore) GetChat(jid string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[jid]
	if !ok {
		return nil, ErrNotFound
	}
	return chat, nil
}

// PutChat implements ChatStore.
func (s *MemoryStore) PutChat(chat *Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat
	return nil
}

// Credentials implements CredentialsStore.
func (s *MemoryStore) Credentials() *Credentials {
	return s.creds
}

// NextPreKeys implements CredentialsStore. Allocated key ids are recorded
// so a pre-key can never be issued twice, even across interleaved callers.
func (s *MemoryStore) NextPreKeys(count int) ([]PreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]PreKey, 0, count)
	for len(keys) < count {
		id := s.creds.NextPreKeyID
		s.creds.NextPreKeyID++
		if s.usedKeys[id] {
			continue
		}
		s.usedKeys[id] = true

		pair, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		keys = append(keys, PreKey{KeyPair: pair, KeyID: id})
	}
	return keys, nil
}
