package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/domain"
	"chatserver/internal/service"
	"chatserver/internal/testutil"
)

func TestUserCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("Provisioning", func(t *testing.T) {
		u, err := env.userSvc.Create(ctx, service.CreateUserInput{
			TokenIdentifier: "oauth|alice",
			Email:           "alice@example.com",
			Name:            "alice",
			Image:           "https://example.com/alice.png",
		})
		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.True(t, u.IsOnline, "new users start online")
	})

	t.Run("Redelivery", func(t *testing.T) {
		_, err := env.userSvc.Create(ctx, service.CreateUserInput{
			TokenIdentifier: "oauth|alice",
			Email:           "alice@example.com",
			Name:            "alice",
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("MissingFields", func(t *testing.T) {
		_, err := env.userSvc.Create(ctx, service.CreateUserInput{Email: "x@example.com"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestUserUpdateImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, env.users, "oauth|alice", "alice")

	require.NoError(t, env.userSvc.UpdateImage(ctx, "oauth|alice", "https://example.com/updated.png"))
	got, err := env.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/updated.png", got.Image)

	err = env.userSvc.UpdateImage(ctx, "oauth|nobody", "https://example.com/x.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserPresenceToggles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, env.users, "oauth|alice", "alice")

	t.Run("ByToken", func(t *testing.T) {
		require.NoError(t, env.userSvc.SetOnlineByToken(ctx, "oauth|alice", false))
		got, err := env.users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.False(t, got.IsOnline)

		assert.ErrorIs(t, env.userSvc.SetOnlineByToken(ctx, "oauth|nobody", true), domain.ErrNotFound)
	})

	t.Run("ByID", func(t *testing.T) {
		require.NoError(t, env.userSvc.SetOnlineByID(ctx, alice.ID, true))
		got, err := env.users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.True(t, got.IsOnline)

		assert.ErrorIs(t, env.userSvc.SetOnlineByID(ctx, 9999, true), domain.ErrNotFound)
	})

	t.Run("BroadcastsToEveryone", func(t *testing.T) {
		pushes := env.notifier.byEvent(service.EventUserPresence)
		require.NotEmpty(t, pushes)
		assert.Nil(t, pushes[len(pushes)-1].userIDs, "presence changes go to all connected users")
	})
}

func TestUserListAndLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	testutil.CreateUser(t, env.users, "oauth|alice", "alice")
	testutil.CreateUser(t, env.users, "oauth|bob", "bob")

	users, err := env.userSvc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	got, err := env.userSvc.GetByTokenIdentifier(ctx, "oauth|bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.Name)

	got, err = env.userSvc.GetByTokenIdentifier(ctx, "oauth|nobody")
	require.NoError(t, err)
	assert.Nil(t, got, "unprovisioned identities resolve to nil, not an error")
}

func TestGroupMembersMissingConversation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.userSvc.GroupMembers(context.Background(), 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
