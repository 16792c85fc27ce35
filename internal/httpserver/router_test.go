package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatserver/internal/config"
	"chatserver/internal/httpserver"
	"chatserver/internal/presence"
	"chatserver/internal/security"
	"chatserver/internal/storage"
	"chatserver/internal/store/sqlite"
	"chatserver/internal/testutil"
	"chatserver/internal/ws"
)

type fakeObjectStore struct {
	objects map[string]string
	uploads int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string]string)}
}

func (f *fakeObjectStore) put(objectID string) string {
	url := "https://storage.example.com/" + objectID
	f.objects[objectID] = url
	return url
}

func (f *fakeObjectStore) PresignUpload(ctx context.Context) (*storage.UploadTarget, error) {
	f.uploads++
	id := fmt.Sprintf("object-%d", f.uploads)
	return &storage.UploadTarget{ObjectID: id, URL: "https://storage.example.com/upload/" + id}, nil
}

func (f *fakeObjectStore) ResolveURL(ctx context.Context, objectID string) (string, error) {
	url, ok := f.objects[objectID]
	if !ok {
		return "", storage.ErrObjectNotFound
	}
	return url, nil
}

type apiServer struct {
	router   http.Handler
	tokens   *security.TokenService
	webhooks *security.WebhookVerifier
	users    *sqlite.UserRepo
	objects  *fakeObjectStore
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	s := &apiServer{
		tokens:   security.NewTokenService("test-jwt-secret", time.Hour),
		webhooks: security.NewWebhookVerifier("test-webhook-secret"),
		users:    sqlite.NewUserRepo(db),
		objects:  newFakeObjectStore(),
	}

	cfg := &config.Config{
		Env:         "local",
		CORSOrigins: []string{"http://localhost:3000"},
	}
	s.router = httpserver.NewRouter(cfg, httpserver.Deps{
		Users:         s.users,
		Conversations: sqlite.NewConversationRepo(db),
		Participants:  sqlite.NewParticipantRepo(db),
		Messages:      sqlite.NewMessageRepo(db),
		Objects:       s.objects,
		Presence:      presence.NewMemoryRegistry(),
		Tokens:        s.tokens,
		Webhooks:      s.webhooks,
		Hub:           ws.NewHub(),
		Log:           zap.NewNop(),
	})
	return s
}

// do performs a request against the router. A non-empty token becomes the
// bearer credential; a non-nil body is sent as JSON.
func (s *apiServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// deliverWebhook posts a signed identity event.
func (s *apiServer) deliverWebhook(t *testing.T, eventType string, data map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", s.webhooks.Sign(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// provision registers a user through the webhook and returns a bearer token
// for it.
func (s *apiServer) provision(t *testing.T, tokenIdentifier, name string) string {
	t.Helper()

	rec := s.deliverWebhook(t, "user.created", map[string]any{
		"token_identifier": tokenIdentifier,
		"email":            name + "@example.com",
		"name":             name,
		"image":            "https://example.com/" + name + ".png",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	token, err := s.tokens.CreateForSubject(tokenIdentifier)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newAPIServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestAuth(t *testing.T) {
	s := newAPIServer(t)

	t.Run("MissingHeader", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/users", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/users", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		token, err := s.tokens.CreateWithTTL("oauth|alice", -time.Minute)
		require.NoError(t, err)
		rec := s.do(t, http.MethodGet, "/api/users", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("WrongSigningKey", func(t *testing.T) {
		other := security.NewTokenService("other-secret", time.Hour)
		token, err := other.CreateForSubject("oauth|alice")
		require.NoError(t, err)
		rec := s.do(t, http.MethodGet, "/api/users", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUnprovisionedIdentity(t *testing.T) {
	s := newAPIServer(t)

	// Valid token whose webhook has not arrived yet.
	token, err := s.tokens.CreateForSubject("oauth|ghost")
	require.NoError(t, err)

	t.Run("MeNotFound", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/users/me", token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("ConversationsEmpty", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/conversations", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]json.RawMessage](t, rec))
	})

	t.Run("WriteEndpointsNotFound", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/conversations", token, map[string]any{
			"participant_ids": []int64{1},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestIdentityWebhook(t *testing.T) {
	s := newAPIServer(t)

	t.Run("BadSignature", func(t *testing.T) {
		payload := []byte(`{"type":"user.created","data":{}}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))
		req.Header.Set("X-Webhook-Signature", "deadbeef")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("UserCreated", func(t *testing.T) {
		rec := s.deliverWebhook(t, "user.created", map[string]any{
			"token_identifier": "oauth|alice",
			"email":            "alice@example.com",
			"name":             "alice",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotZero(t, decode[map[string]any](t, rec)["user_id"])
	})

	t.Run("Redelivery", func(t *testing.T) {
		rec := s.deliverWebhook(t, "user.created", map[string]any{
			"token_identifier": "oauth|alice",
			"email":            "alice@example.com",
			"name":             "alice",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("UserUpdated", func(t *testing.T) {
		rec := s.deliverWebhook(t, "user.updated", map[string]any{
			"token_identifier": "oauth|alice",
			"image":            "https://example.com/new.png",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		u, err := s.users.GetByTokenIdentifier(context.Background(), "oauth|alice")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/new.png", u.Image)
	})

	t.Run("SessionEnded", func(t *testing.T) {
		rec := s.deliverWebhook(t, "session.ended", map[string]any{
			"token_identifier": "oauth|alice",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		u, err := s.users.GetByTokenIdentifier(context.Background(), "oauth|alice")
		require.NoError(t, err)
		assert.False(t, u.IsOnline)
	})

	t.Run("UnknownEventIgnored", func(t *testing.T) {
		rec := s.deliverWebhook(t, "organization.created", map[string]any{})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ignored", decode[map[string]string](t, rec)["status"])
	})
}

func TestConversationAndMessageFlow(t *testing.T) {
	s := newAPIServer(t)
	ctx := context.Background()

	aliceToken := s.provision(t, "oauth|alice", "alice")
	bobToken := s.provision(t, "oauth|bob", "bob")

	alice, err := s.users.GetByTokenIdentifier(ctx, "oauth|alice")
	require.NoError(t, err)
	bob, err := s.users.GetByTokenIdentifier(ctx, "oauth|bob")
	require.NoError(t, err)

	t.Run("Me", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/users/me", aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", decode[map[string]any](t, rec)["name"])
	})

	t.Run("ListUsers", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/users", aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]json.RawMessage](t, rec), 2)
	})

	var convID int64
	t.Run("CreateDirect", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/conversations", aliceToken, map[string]any{
			"participant_ids": []int64{bob.ID},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		created := decode[map[string]any](t, rec)
		convID = int64(created["id"].(float64))
		require.NotZero(t, convID)
	})

	t.Run("SendText", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", convID), aliceToken, map[string]any{
			"sender_id":    alice.ID,
			"message_type": "text",
			"content":      "hello bob",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("SpoofedSenderForbidden", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", convID), aliceToken, map[string]any{
			"sender_id":    bob.ID,
			"message_type": "text",
			"content":      "pretending to be bob",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("InvalidMessageType", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", convID), aliceToken, map[string]any{
			"sender_id":    alice.ID,
			"message_type": "audio",
			"content":      "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("SendImage", func(t *testing.T) {
		url := s.objects.put("img-1")
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", convID), bobToken, map[string]any{
			"sender_id":    bob.ID,
			"message_type": "image",
			"object_id":    "img-1",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, url, decode[map[string]any](t, rec)["content"])
	})

	t.Run("ListMessages", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", convID), bobToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		msgs := decode[[]map[string]any](t, rec)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hello bob", msgs[0]["content"])
		sender, ok := msgs[0]["sender"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice", sender["name"])
	})

	t.Run("ListConversations", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/conversations", aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		convs := decode[[]map[string]any](t, rec)
		require.Len(t, convs, 1)
		last, ok := convs[0]["last_message"].(map[string]any)
		require.True(t, ok, "listing carries the denormalized last message")
		assert.NotEmpty(t, last["content"])
		other, ok := convs[0]["other_user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "bob", other["name"])
	})

	t.Run("Members", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/members", convID), aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]json.RawMessage](t, rec), 2)
	})

	t.Run("Upload", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/uploads", aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		target := decode[map[string]string](t, rec)
		assert.NotEmpty(t, target["object_id"])
		assert.NotEmpty(t, target["upload_url"])
	})

	t.Run("Exit", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/exit", convID), aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decode[map[string]any](t, rec)["deleted"])

		rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/exit", convID), bobToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decode[map[string]any](t, rec)["deleted"])
	})

	t.Run("BadConversationID", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/conversations/abc/messages", aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGroupKickOverHTTP(t *testing.T) {
	s := newAPIServer(t)
	ctx := context.Background()

	aliceToken := s.provision(t, "oauth|alice", "alice")
	bobToken := s.provision(t, "oauth|bob", "bob")
	s.provision(t, "oauth|carol", "carol")

	bob, err := s.users.GetByTokenIdentifier(ctx, "oauth|bob")
	require.NoError(t, err)
	carol, err := s.users.GetByTokenIdentifier(ctx, "oauth|carol")
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/conversations", aliceToken, map[string]any{
		"participant_ids": []int64{bob.ID, carol.ID},
		"is_group":        true,
		"group_name":      "team",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	convID := int64(decode[map[string]any](t, rec)["id"].(float64))

	t.Run("NonAdminForbidden", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/kick", convID), bobToken, map[string]any{
			"user_id": carol.ID,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("AdminKicks", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/kick", convID), aliceToken, map[string]any{
			"user_id": carol.ID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/members", convID), aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]json.RawMessage](t, rec), 2)
	})
}
