package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"chatserver/internal/service"
	"chatserver/internal/storage"
	"chatserver/internal/store/sqlite"
	"chatserver/internal/testutil"
)

// fakeObjectStore serves uploads from a map so tests can exercise media
// messages without a running object store.
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

// recordingNotifier captures every push so tests can assert fan-out.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	userIDs []int64
	event   string
	payload any
}

func (n *recordingNotifier) Notify(userIDs []int64, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{userIDs: userIDs, event: event, payload: payload})
}

func (n *recordingNotifier) NotifyAll(event string, payload any) {
	n.Notify(nil, event, payload)
}

func (n *recordingNotifier) byEvent(event string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// testEnv wires the full service stack over an in-memory database.
type testEnv struct {
	db       *sql.DB
	users    *sqlite.UserRepo
	convs    *sqlite.ConversationRepo
	parts    *sqlite.ParticipantRepo
	msgs     *sqlite.MessageRepo
	objects  *fakeObjectStore
	notifier *recordingNotifier

	userSvc *service.UserService
	convSvc *service.ConversationService
	msgSvc  *service.MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	env := &testEnv{
		db:       db,
		users:    sqlite.NewUserRepo(db),
		convs:    sqlite.NewConversationRepo(db),
		parts:    sqlite.NewParticipantRepo(db),
		msgs:     sqlite.NewMessageRepo(db),
		objects:  newFakeObjectStore(),
		notifier: &recordingNotifier{},
	}
	env.userSvc = service.NewUserService(env.users, env.convs, env.parts, env.notifier)
	env.convSvc = service.NewConversationService(env.convs, env.parts, env.users, env.objects, env.notifier)
	env.msgSvc = service.NewMessageService(env.msgs, env.convs, env.parts, env.users, env.objects, env.notifier, zap.NewNop())
	return env
}
