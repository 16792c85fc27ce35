package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chatserver/internal/domain"
	"chatserver/internal/storage"
)

const maxContentRunes = 5000

type MessageService struct {
	messages      domain.MessageRepository
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	users         domain.UserRepository
	objects       storage.ObjectStore
	notifier      Notifier
	log           *zap.Logger
}

func NewMessageService(
	messages domain.MessageRepository,
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	users domain.UserRepository,
	objects storage.ObjectStore,
	notifier Notifier,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		participants:  participants,
		users:         users,
		objects:       objects,
		notifier:      notifier,
		log:           log,
	}
}

// MessageView is a message with its sender resolved to a full profile.
type MessageView struct {
	*domain.Message
	Sender *domain.User `json:"sender"`
}

// SendText appends a text message to a conversation.
func (s *MessageService) SendText(
	ctx context.Context,
	caller *domain.User,
	senderID, conversationID int64,
	content string,
) (*domain.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > maxContentRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, maxContentRunes)
	}

	if err := s.sendGuard(ctx, caller, senderID, conversationID); err != nil {
		return nil, err
	}
	return s.append(ctx, conversationID, senderID, content, domain.MessageText)
}

// SendImage appends an image message referencing an uploaded object.
func (s *MessageService) SendImage(
	ctx context.Context,
	caller *domain.User,
	senderID, conversationID int64,
	objectID string,
) (*domain.Message, error) {
	return s.sendMedia(ctx, caller, senderID, conversationID, objectID, domain.MessageImage)
}

// SendVideo appends a video message referencing an uploaded object.
func (s *MessageService) SendVideo(
	ctx context.Context,
	caller *domain.User,
	senderID, conversationID int64,
	objectID string,
) (*domain.Message, error) {
	return s.sendMedia(ctx, caller, senderID, conversationID, objectID, domain.MessageVideo)
}

func (s *MessageService) sendMedia(
	ctx context.Context,
	caller *domain.User,
	senderID, conversationID int64,
	objectID string,
	msgType domain.MessageType,
) (*domain.Message, error) {
	if objectID == "" {
		return nil, fmt.Errorf("%w: object id is required", domain.ErrInvalidInput)
	}

	if err := s.sendGuard(ctx, caller, senderID, conversationID); err != nil {
		return nil, err
	}

	url, err := s.objects.ResolveURL(ctx, objectID)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: upload not found", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve upload: %w", err)
	}

	return s.append(ctx, conversationID, senderID, url, msgType)
}

// sendGuard is the single authorization check shared by all send paths:
// the authenticated caller must be the declared sender, the conversation
// must exist, and the sender must be a participant.
func (s *MessageService) sendGuard(ctx context.Context, caller *domain.User, senderID, conversationID int64) error {
	if caller.ID != senderID {
		return fmt.Errorf("%w: caller does not match declared sender", domain.ErrForbidden)
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return domain.ErrNotFound
	}

	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return fmt.Errorf("%w: not a participant in this conversation", domain.ErrForbidden)
	}
	return nil
}

func (s *MessageService) append(
	ctx context.Context,
	conversationID, senderID int64,
	content string,
	msgType domain.MessageType,
) (*domain.Message, error) {
	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.conversations.SetLastMessage(ctx, conversationID, msg.Snapshot()); err != nil {
		return nil, fmt.Errorf("set last message: %w", err)
	}

	// Delivery is best-effort, but a skipped fan-out must be diagnosable.
	ids, err := s.participantIDs(ctx, conversationID)
	if err != nil {
		s.log.Warn("message fan-out skipped",
			zap.Int64("conversation_id", conversationID),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	} else {
		s.notifier.Notify(ids, EventMessageCreated, msg)
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in insertion order, each
// with its sender resolved. Sender lookups are memoized per call.
func (s *MessageService) ListMessages(ctx context.Context, conversationID int64, caller *domain.User) ([]*MessageView, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}

	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return nil, fmt.Errorf("%w: not a participant in this conversation", domain.ErrForbidden)
	}

	msgs, err := s.messages.ListForConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	senderCache := make(map[int64]*domain.User)
	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := senderCache[m.SenderID]
		if !ok {
			sender, err = s.users.GetByID(ctx, m.SenderID)
			if err != nil {
				return nil, fmt.Errorf("resolve sender: %w", err)
			}
			if sender == nil {
				return nil, fmt.Errorf("%w: sender %d of message %d", domain.ErrNotFound, m.SenderID, m.ID)
			}
			senderCache[m.SenderID] = sender
		}
		views = append(views, &MessageView{Message: m, Sender: sender})
	}
	return views, nil
}

// GetParticipantIDs returns user ids of all conversation participants (for
// WebSocket broadcasts).
func (s *MessageService) GetParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	return s.participantIDs(ctx, conversationID)
}

func (s *MessageService) participantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	members, err := s.participants.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids, nil
}
