package rest

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"chat-relay/services"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.NewIdentity(domain.KindUser, "alice")
	acme  = domain.NewIdentity(domain.KindEmployer, "acme")
)

type fixture struct {
	server        *httptest.Server
	authenticator *auth.Authenticator
	store         *storage.Store
}

func setup(t *testing.T) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(storage.Options(t.TempDir(), log))
	require.NoError(t, err)
	store := storage.NewStore(db, log)
	paging := domain.Paging{DefaultLimit: 2, MaxLimit: 10}
	authenticator := auth.NewAuthenticator([]byte("secret"), "")

	mux := http.NewServeMux()
	NewHandler(services.NewChatService(store, paging, log), services.NewNotificationService(store, paging), nil, log).
		Register(mux, authenticator)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})
	return fixture{server: server, authenticator: authenticator, store: store}
}

func (f fixture) call(t *testing.T, identity domain.Identity, method, path string, body string, target any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	r, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if !identity.IsZero() {
		token, err := f.authenticator.GenerateToken(identity, time.Minute)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if target != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestREST_Requires_Bearer_Token(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	req.Equal(http.StatusUnauthorized, f.call(t, domain.Identity{}, http.MethodGet, "/api/conversations", "", nil))
	req.Equal(http.StatusOK, f.call(t, domain.Identity{}, http.MethodGet, "/healthz", "", nil))
}

func TestREST_Conversation_History_And_Read_State(t *testing.T) {
	req := require.New(t)
	f := setup(t)

	// Start a conversation from the user side
	var conversation domain.Conversation
	status := f.call(t, alice, http.MethodPost, "/api/conversations", `{"participant_id":"acme","participant_type":"employer"}`, &conversation)
	req.Equal(http.StatusOK, status)
	req.Equal([2]domain.Identity{alice, acme}, conversation.Participants)

	// Two users can't talk to each other
	status = f.call(t, alice, http.MethodPost, "/api/conversations", `{"participant_id":"bob","participant_type":"user"}`, nil)
	req.Equal(http.StatusBadRequest, status)

	for i := range 3 {
		_, err := f.store.CreateMessage(conversation.ID, alice, acme, fmt.Sprintf("message %d", i+1))
		req.NoError(err)
	}

	var page services.MessagePage
	status = f.call(t, acme, http.MethodGet, "/api/conversations/"+conversation.ID+"/messages?page=2", "", &page)
	req.Equal(http.StatusOK, status)
	req.Equal(3, page.Total)
	req.Equal(2, page.Limit)
	req.Len(page.Messages, 1)
	req.Equal(int64(1), page.Messages[0].ID)

	outsider := domain.NewIdentity(domain.KindEmployer, "globex")
	req.Equal(http.StatusForbidden, f.call(t, outsider, http.MethodGet, "/api/conversations/"+conversation.ID+"/messages", "", nil))
	req.Equal(http.StatusNotFound, f.call(t, acme, http.MethodGet, "/api/conversations/missing/messages", "", nil))
	req.Equal(http.StatusBadRequest, f.call(t, acme, http.MethodGet, "/api/conversations/"+conversation.ID+"/messages?limit=ten", "", nil))

	req.Equal(http.StatusNoContent, f.call(t, acme, http.MethodPost, "/api/conversations/"+conversation.ID+"/read", "", nil))
	var conversations map[string][]domain.Conversation
	req.Equal(http.StatusOK, f.call(t, acme, http.MethodGet, "/api/conversations", "", &conversations))
	req.Len(conversations["conversations"], 1)
	req.Zero(conversations["conversations"][0].UnreadFor(acme))
}

func TestREST_Notifications(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	first, err := f.store.CreateNotification(alice, "Application viewed", nil)
	req.NoError(err)
	_, err = f.store.CreateNotification(alice, "Interview scheduled", nil)
	req.NoError(err)

	var page services.NotificationPage
	req.Equal(http.StatusOK, f.call(t, alice, http.MethodGet, "/api/notifications", "", &page))
	req.Equal(2, page.Total)
	req.Equal(2, page.Unread)

	body := fmt.Sprintf(`{"ids":["%s"]}`, first.ID)
	req.Equal(http.StatusNoContent, f.call(t, alice, http.MethodPost, "/api/notifications/read", body, nil))
	req.Equal(http.StatusNoContent, f.call(t, alice, http.MethodPost, "/api/notifications/read", body, nil))
	req.Equal(http.StatusOK, f.call(t, alice, http.MethodGet, "/api/notifications", "", &page))
	req.Equal(1, page.Unread)

	req.Equal(http.StatusBadRequest, f.call(t, alice, http.MethodPost, "/api/notifications/read", `{"ids":["nope"]}`, nil))

	req.Equal(http.StatusNoContent, f.call(t, alice, http.MethodPost, "/api/notifications/read-all", "", nil))
	req.Equal(http.StatusOK, f.call(t, alice, http.MethodGet, "/api/notifications", "", &page))
	req.Zero(page.Unread)
}
