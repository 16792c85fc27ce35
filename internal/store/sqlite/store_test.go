package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/domain"
	"chatserver/internal/store/sqlite"
	"chatserver/internal/testutil"
)

func TestUserRepo(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := sqlite.NewUserRepo(db)
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		u := testutil.CreateUser(t, repo, "oauth|alice", "alice")
		assert.NotZero(t, u.ID)

		got, err := repo.GetByTokenIdentifier(ctx, "oauth|alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "alice", got.Name)
		assert.True(t, got.IsOnline)

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, "oauth|alice", byID.TokenIdentifier)
	})

	t.Run("DuplicateTokenIdentifier", func(t *testing.T) {
		err := repo.Create(ctx, &domain.User{
			TokenIdentifier: "oauth|alice",
			Email:           "other@example.com",
			Name:            "other",
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.GetByTokenIdentifier(ctx, "oauth|nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("UpdateImage", func(t *testing.T) {
		u := testutil.CreateUser(t, repo, "oauth|bob", "bob")
		require.NoError(t, repo.UpdateImage(ctx, u.ID, "https://example.com/new.png"))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/new.png", got.Image)
	})

	t.Run("SetOnlineStatus", func(t *testing.T) {
		u := testutil.CreateUser(t, repo, "oauth|carol", "carol")
		require.NoError(t, repo.SetOnlineStatus(ctx, u.ID, false))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, got.IsOnline)
	})

	t.Run("List", func(t *testing.T) {
		users, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 3)
	})
}

func TestConversationRepo(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	parts := sqlite.NewParticipantRepo(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, users, "oauth|alice", "alice")
	bob := testutil.CreateUser(t, users, "oauth|bob", "bob")
	carol := testutil.CreateUser(t, users, "oauth|carol", "carol")

	t.Run("CreateDirect", func(t *testing.T) {
		key := domain.DirectKey(alice.ID, bob.ID)
		c := &domain.Conversation{DirectKey: &key}
		require.NoError(t, convs.Create(ctx, c, []int64{alice.ID, bob.ID}))
		assert.NotZero(t, c.ID)

		found, err := convs.FindDirectByKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, c.ID, found.ID)
		assert.Nil(t, found.LastMessage)

		ok, err := parts.IsParticipant(ctx, c.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("DirectKeyConflict", func(t *testing.T) {
		key := domain.DirectKey(bob.ID, alice.ID)
		c := &domain.Conversation{DirectKey: &key}
		err := convs.Create(ctx, c, []int64{alice.ID, bob.ID})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("CreateGroup", func(t *testing.T) {
		name := "weekend plans"
		c := &domain.Conversation{IsGroup: true, GroupName: &name, AdminID: &alice.ID}
		require.NoError(t, convs.Create(ctx, c, []int64{alice.ID, bob.ID, carol.ID}))

		got, err := convs.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.IsGroup)
		require.NotNil(t, got.GroupName)
		assert.Equal(t, "weekend plans", *got.GroupName)
		require.NotNil(t, got.AdminID)
		assert.Equal(t, alice.ID, *got.AdminID)

		count, err := parts.Count(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("ListForUser", func(t *testing.T) {
		list, err := convs.ListForUser(ctx, carol.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = convs.ListForUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("SetLastMessage", func(t *testing.T) {
		key := domain.DirectKey(alice.ID, bob.ID)
		c, err := convs.FindDirectByKey(ctx, key)
		require.NoError(t, err)

		msgs := sqlite.NewMessageRepo(db)
		m := &domain.Message{ConversationID: c.ID, SenderID: alice.ID, Content: "hello", Type: domain.MessageText}
		require.NoError(t, msgs.Create(ctx, m))
		require.NoError(t, convs.SetLastMessage(ctx, c.ID, m.Snapshot()))

		got, err := convs.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastMessage)
		assert.Equal(t, m.ID, got.LastMessage.ID)
		assert.Equal(t, "hello", got.LastMessage.Content)
		assert.Equal(t, alice.ID, got.LastMessage.SenderID)
		assert.Equal(t, domain.MessageText, got.LastMessage.Type)
	})

	t.Run("RemoveAndDelete", func(t *testing.T) {
		key := domain.DirectKey(alice.ID, bob.ID)
		c, err := convs.FindDirectByKey(ctx, key)
		require.NoError(t, err)

		require.NoError(t, parts.Remove(ctx, c.ID, bob.ID))
		count, err := parts.Count(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		require.NoError(t, convs.Delete(ctx, c.ID))
		got, err := convs.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		// Membership rows go with the conversation.
		count, err = parts.Count(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestConversationIDsNotReused(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, users, "oauth|alice", "alice")
	bob := testutil.CreateUser(t, users, "oauth|bob", "bob")

	key := domain.DirectKey(alice.ID, bob.ID)
	first := &domain.Conversation{DirectKey: &key}
	require.NoError(t, convs.Create(ctx, first, []int64{alice.ID, bob.ID}))
	require.NoError(t, convs.Delete(ctx, first.ID))

	// A recreated conversation is a distinct entity; clients hold ids, so a
	// deleted id must never come back.
	second := &domain.Conversation{DirectKey: &key}
	require.NoError(t, convs.Create(ctx, second, []int64{alice.ID, bob.ID}))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.ID, first.ID)
}

func TestOpenEnforcesForeignKeysPerConnection(t *testing.T) {
	// File-backed database with a real pool: enforcement must come from the
	// DSN, not from a pragma run on a single connection.
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(4)
	require.NoError(t, sqlite.Migrate(db))

	for i := 0; i < 8; i++ {
		_, err := db.Exec(`
			INSERT INTO messages (conversation_id, sender_id, content, message_type)
			VALUES (9999, 9999, 'orphan', 'text')
		`)
		require.Error(t, err)
	}
}

func TestMessageRepoInsertionOrder(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	msgs := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, users, "oauth|alice", "alice")
	bob := testutil.CreateUser(t, users, "oauth|bob", "bob")

	key := domain.DirectKey(alice.ID, bob.ID)
	c := &domain.Conversation{DirectKey: &key}
	require.NoError(t, convs.Create(ctx, c, []int64{alice.ID, bob.ID}))

	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		m := &domain.Message{ConversationID: c.ID, SenderID: alice.ID, Content: content, Type: domain.MessageText}
		require.NoError(t, msgs.Create(ctx, m))
		assert.NotZero(t, m.ID)
		assert.False(t, m.CreatedAt.IsZero())
	}

	list, err := msgs.ListForConversation(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, m := range list {
		assert.Equal(t, contents[i], m.Content)
	}
}
