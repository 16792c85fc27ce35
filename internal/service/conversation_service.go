package service

import (
	"context"
	"errors"
	"fmt"

	"chatserver/internal/domain"
	"chatserver/internal/storage"
)

type ConversationService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	users         domain.UserRepository
	objects       storage.ObjectStore
	notifier      Notifier
}

func NewConversationService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	users domain.UserRepository,
	objects storage.ObjectStore,
	notifier Notifier,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		participants:  participants,
		users:         users,
		objects:       objects,
		notifier:      notifier,
	}
}

type ConversationCreateInput struct {
	ParticipantIDs []int64
	IsGroup        bool
	Name           *string
	GroupName      *string
	// GroupImageID references an uploaded storage object; it is resolved to
	// a servable URL before persisting.
	GroupImageID *string
	AdminID      *int64
}

// ConversationView is a conversation enriched for display: direct
// conversations carry the other participant's profile.
type ConversationView struct {
	*domain.Conversation
	OtherUser *domain.User `json:"other_user,omitempty"`
}

// ExitStatus reports the outcome of leaving a conversation.
type ExitStatus struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

// CreateConversation creates a direct or group conversation. The caller is
// always included in the participant set. Direct conversations are
// deduplicated by their canonical pair key: if the pair already has one, its
// id is returned and nothing is inserted. The key's unique index also
// settles concurrent creations, so at-most-one-per-pair holds under races.
func (s *ConversationService) CreateConversation(
	ctx context.Context,
	in ConversationCreateInput,
	caller *domain.User,
) (*domain.Conversation, error) {
	if len(in.ParticipantIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", domain.ErrInvalidInput)
	}

	// Include caller, dedupe.
	uniqueIDs := make([]int64, 0, len(in.ParticipantIDs)+1)
	seen := map[int64]struct{}{caller.ID: {}}
	uniqueIDs = append(uniqueIDs, caller.ID)
	for _, id := range in.ParticipantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniqueIDs = append(uniqueIDs, id)
	}

	for _, id := range uniqueIDs {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup participant: %w", err)
		}
		if u == nil {
			return nil, fmt.Errorf("%w: participant %d", domain.ErrNotFound, id)
		}
	}

	conv := &domain.Conversation{
		IsGroup:   in.IsGroup,
		Name:      in.Name,
		GroupName: in.GroupName,
	}

	if in.IsGroup {
		admin := caller.ID
		if in.AdminID != nil {
			admin = *in.AdminID
		}
		conv.AdminID = &admin

		if in.GroupImageID != nil && *in.GroupImageID != "" {
			url, err := s.objects.ResolveURL(ctx, *in.GroupImageID)
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, fmt.Errorf("%w: group image upload not found", domain.ErrInvalidInput)
			}
			if err != nil {
				return nil, fmt.Errorf("resolve group image: %w", err)
			}
			conv.GroupImage = &url
		}
	} else {
		if len(uniqueIDs) != 2 {
			return nil, fmt.Errorf("%w: a direct conversation has exactly two participants", domain.ErrInvalidInput)
		}
		key := domain.DirectKey(uniqueIDs[0], uniqueIDs[1])
		existing, err := s.conversations.FindDirectByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("find direct conversation: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
		conv.DirectKey = &key
	}

	err := s.conversations.Create(ctx, conv, uniqueIDs)
	if errors.Is(err, domain.ErrConflict) && conv.DirectKey != nil {
		// A concurrent creation won the unique index; return the winner.
		existing, ferr := s.conversations.FindDirectByKey(ctx, *conv.DirectKey)
		if ferr != nil {
			return nil, fmt.Errorf("find direct conversation: %w", ferr)
		}
		if existing != nil {
			return existing, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(uniqueIDs, EventConversationUpdated, conv)
	return conv, nil
}

// ListForUser returns the caller's conversations, most recently active
// first, each with its denormalized last message and, for direct
// conversations, the other participant's profile.
func (s *ConversationService) ListForUser(ctx context.Context, user *domain.User) ([]*ConversationView, error) {
	convs, err := s.conversations.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, conv := range convs {
		view := &ConversationView{Conversation: conv}
		if !conv.IsGroup {
			members, err := s.participants.ListParticipants(ctx, conv.ID)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				if m.ID != user.ID {
					view.OtherUser = m
					break
				}
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// KickUser removes a participant from a group conversation. Only the group
// admin may kick.
func (s *ConversationService) KickUser(ctx context.Context, conversationID, userID int64, caller *domain.User) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return domain.ErrNotFound
	}
	if conv.AdminID == nil || *conv.AdminID != caller.ID {
		return domain.ErrForbidden
	}

	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return fmt.Errorf("%w: user is not a participant", domain.ErrNotFound)
	}

	if err := s.participants.Remove(ctx, conversationID, userID); err != nil {
		return err
	}

	ids, err := s.participantIDs(ctx, conversationID)
	if err != nil {
		return err
	}
	s.notifier.Notify(append(ids, userID), EventConversationUpdated, conv)
	return nil
}

// ExitConversation removes the caller from a conversation. An emptied
// conversation is deleted regardless of kind; a departing group admin hands
// the role to the lowest-id remaining participant.
func (s *ConversationService) ExitConversation(ctx context.Context, conversationID int64, caller *domain.User) (*ExitStatus, error) {
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

	if err := s.participants.Remove(ctx, conversationID, caller.ID); err != nil {
		return nil, err
	}

	remaining, err := s.participants.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if len(remaining) == 0 {
		if err := s.conversations.Delete(ctx, conversationID); err != nil {
			return nil, err
		}
		// Only the departing caller can still hold a subscription.
		s.notifier.Notify([]int64{caller.ID}, EventConversationDeleted, conv)
		return &ExitStatus{Deleted: true, Message: "conversation deleted as no participants remain"}, nil
	}

	if conv.AdminID != nil && *conv.AdminID == caller.ID {
		// ListParticipants orders by id, so the first entry is the lowest.
		if err := s.conversations.SetAdmin(ctx, conversationID, remaining[0].ID); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, len(remaining))
	for i, u := range remaining {
		ids[i] = u.ID
	}
	s.notifier.Notify(ids, EventConversationUpdated, conv)

	return &ExitStatus{Deleted: false, Message: "you have exited the conversation"}, nil
}

func (s *ConversationService) participantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
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
