package domain

import (
	"fmt"
	"time"
)

// MessageType enumerates the kinds of message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
)

func (t MessageType) IsValid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo:
		return true
	}
	return false
}

// User represents an application user. Accounts are provisioned by the
// identity provider webhook; TokenIdentifier is the provider's subject and
// links a bearer token to the record.
type User struct {
	ID              int64     `db:"id" json:"id"`
	TokenIdentifier string    `db:"token_identifier" json:"-"`
	Email           string    `db:"email" json:"email"`
	Name            string    `db:"name" json:"name"`
	Image           string    `db:"image" json:"image"`
	IsOnline        bool      `db:"is_online" json:"is_online"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// LastMessage is the denormalized snapshot of the most recent message,
// stored on the conversation row so listing conversations needs no join.
type LastMessage struct {
	ID             int64       `json:"id"`
	Content        string      `json:"content"`
	SenderID       int64       `json:"sender_id"`
	Type           MessageType `json:"message_type"`
	ConversationID int64       `json:"conversation_id"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Conversation represents a direct or group conversation. Membership lives
// in a separate participants table; for direct conversations DirectKey holds
// the canonical order-independent pair key that backs deduplication.
type Conversation struct {
	ID         int64        `db:"id" json:"id"`
	IsGroup    bool         `db:"is_group" json:"is_group"`
	Name       *string      `db:"name" json:"name,omitempty"`
	GroupName  *string      `db:"group_name" json:"group_name,omitempty"`
	GroupImage *string      `db:"group_image" json:"group_image,omitempty"`
	AdminID    *int64       `db:"admin_id" json:"admin_id,omitempty"`
	DirectKey  *string      `db:"direct_key" json:"-"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
	LastMessage *LastMessage `json:"last_message"`
}

// Message represents a single chat message. Messages are append-only: they
// are never edited or deleted.
type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID int64       `db:"conversation_id" json:"conversation_id"`
	SenderID       int64       `db:"sender_id" json:"sender_id"`
	Content        string      `db:"content" json:"content"`
	Type           MessageType `db:"message_type" json:"message_type"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// Snapshot returns the message's denormalized summary for the conversation row.
func (m *Message) Snapshot() LastMessage {
	return LastMessage{
		ID:             m.ID,
		Content:        m.Content,
		SenderID:       m.SenderID,
		Type:           m.Type,
		ConversationID: m.ConversationID,
		CreatedAt:      m.CreatedAt,
	}
}

// DirectKey builds the canonical key for a two-party conversation. The key
// is identical regardless of participant order, so a UNIQUE index on it
// enforces at-most-one direct conversation per pair.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
