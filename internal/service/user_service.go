package service

import (
	"context"
	"fmt"

	"chatserver/internal/domain"
)

// UserService provides user-related operations. Accounts are created and
// updated by the identity provider webhook, never by end users directly.
type UserService struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	notifier      Notifier
}

func NewUserService(
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	notifier Notifier,
) *UserService {
	return &UserService{
		users:         users,
		conversations: conversations,
		participants:  participants,
		notifier:      notifier,
	}
}

type CreateUserInput struct {
	TokenIdentifier string
	Email           string
	Name            string
	Image           string
}

// Create provisions a user record on first successful authentication.
// New users start online: the webhook fires during an active session.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	if in.TokenIdentifier == "" || in.Email == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: token identifier, email and name are required", domain.ErrInvalidInput)
	}

	existing, err := s.users.GetByTokenIdentifier(ctx, in.TokenIdentifier)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict
	}

	u := &domain.User{
		TokenIdentifier: in.TokenIdentifier,
		Email:           in.Email,
		Name:            in.Name,
		Image:           in.Image,
		IsOnline:        true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateImage patches the profile image after an identity-provider profile
// change.
func (s *UserService) UpdateImage(ctx context.Context, tokenIdentifier, image string) error {
	user, err := s.users.GetByTokenIdentifier(ctx, tokenIdentifier)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return domain.ErrNotFound
	}
	return s.users.UpdateImage(ctx, user.ID, image)
}

// SetOnlineByToken toggles presence for a session keyed by token identifier
// (the webhook's session.created / session.ended events).
func (s *UserService) SetOnlineByToken(ctx context.Context, tokenIdentifier string, online bool) error {
	user, err := s.users.GetByTokenIdentifier(ctx, tokenIdentifier)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return domain.ErrNotFound
	}
	return s.setOnline(ctx, user, online)
}

// SetOnlineByID toggles presence for an already-resolved user (WebSocket
// connection lifecycle).
func (s *UserService) SetOnlineByID(ctx context.Context, id int64, online bool) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return domain.ErrNotFound
	}
	return s.setOnline(ctx, user, online)
}

func (s *UserService) setOnline(ctx context.Context, user *domain.User, online bool) error {
	if err := s.users.SetOnlineStatus(ctx, user.ID, online); err != nil {
		return err
	}
	user.IsOnline = online
	s.notifier.NotifyAll(EventUserPresence, user)
	return nil
}

// List returns every user record, self included.
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

// GetByTokenIdentifier resolves a caller's own record. Returns nil when the
// identity has no matching record yet (webhook delivery lag).
func (s *UserService) GetByTokenIdentifier(ctx context.Context, tokenIdentifier string) (*domain.User, error) {
	return s.users.GetByTokenIdentifier(ctx, tokenIdentifier)
}

// GroupMembers resolves each participant of a conversation to a full user
// record. Unresolved ids simply do not appear: membership is a join against
// the users table.
func (s *UserService) GroupMembers(ctx context.Context, conversationID int64) ([]*domain.User, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	return s.participants.ListParticipants(ctx, conversationID)
}
