package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByTokenIdentifier(ctx context.Context, tokenIdentifier string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateImage(ctx context.Context, id int64, image string) error
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error
}

// ConversationRepository defines persistence operations for conversations.
// Create returns ErrConflict when a direct conversation with the same pair
// key already exists; callers are expected to re-read the winner.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation, participantIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	FindDirectByKey(ctx context.Context, key string) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	SetLastMessage(ctx context.Context, conversationID int64, lm LastMessage) error
	SetAdmin(ctx context.Context, conversationID, adminID int64) error
	Delete(ctx context.Context, id int64) error
}

// ParticipantRepository defines operations around conversation membership.
type ParticipantRepository interface {
	ListParticipants(ctx context.Context, conversationID int64) ([]*User, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	Remove(ctx context.Context, conversationID, userID int64) error
	Count(ctx context.Context, conversationID int64) (int, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListForConversation(ctx context.Context, conversationID int64) ([]*Message, error)
}
