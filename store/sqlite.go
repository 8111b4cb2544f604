package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opd-ai/wirechat/message"
)

// SQLiteMessageStore is a durable MessageStore backed by SQLite. Message
// envelopes are stored as JSON blobs keyed by the full message key, which is
// exactly the lookup the retry and phash-resend paths need.
type SQLiteMessageStore struct {
	db *sql.DB
}

// NewSQLiteMessageStore opens (and if necessary initializes) a message
// database at dbPath.
func NewSQLiteMessageStore(dbPath string) (*SQLiteMessageStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency between the engine and readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		remote_jid  TEXT NOT NULL,
		from_me     INTEGER NOT NULL,
		message_id  TEXT NOT NULL,
		participant TEXT NOT NULL DEFAULT '',
		timestamp   INTEGER NOT NULL DEFAULT 0,
		status      INTEGER NOT NULL DEFAULT 0,
		envelope    BLOB NOT NULL,
		PRIMARY KEY (remote_jid, from_me, message_id, participant)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_time
		ON messages (remote_jid, timestamp);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteMessageStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteMessageStore) Close() error {
	return s.db.Close()
}

// GetMessage implements MessageStore.
func (s *SQLiteMessageStore) GetMessage(key message.Key) (*message.Message, error) {
	var envelope []byte
	err := s.db.QueryRow(
		`SELECT envelope FROM messages
		 WHERE remote_jid = ? AND from_me = ? AND message_id = ? AND participant = ?`,
		key.RemoteJID, boolToInt(key.FromMe), key.ID, key.Participant,
	).Scan(&envelope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}

	var msg message.Message
	if err := json.Unmarshal(envelope, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode stored envelope: %w", err)
	}
	return &msg, nil
}

// PutMessage implements MessageStore as an upsert.
func (s *SQLiteMessageStore) PutMessage(msg *message.Message) error {
	envelope, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO messages (remote_jid, from_me, message_id, participant, timestamp, status, envelope)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (remote_jid, from_me, message_id, participant)
		 DO UPDATE SET timestamp = excluded.timestamp, status = excluded.status, envelope = excluded.envelope`,
		msg.Key.RemoteJID, boolToInt(msg.Key.FromMe), msg.Key.ID, msg.Key.Participant,
		msg.Timestamp, int(msg.Status), envelope,
	)
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

// ApplyReceipt updates the stored delivery status for one receipt, keeping
// the envelope untouched. Receipts for unknown messages are ignored.
func (s *SQLiteMessageStore) ApplyReceipt(r message.Receipt) error {
	_, err := s.db.Exec(
		`UPDATE messages SET status = ?
		 WHERE remote_jid = ? AND from_me = 1 AND message_id = ? AND status < ?`,
		int(r.Status), r.RemoteJID, r.MessageID, int(r.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to apply receipt: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
