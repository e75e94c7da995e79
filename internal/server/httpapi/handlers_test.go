package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/dbx"
	"github.com/okarpov/lingohist/internal/logging"
	"github.com/okarpov/lingohist/internal/server/config"
	"github.com/okarpov/lingohist/internal/server/models"
	"github.com/okarpov/lingohist/internal/server/repositories/history"
	"github.com/okarpov/lingohist/internal/server/repositories/users"
	"github.com/okarpov/lingohist/internal/server/services"
)

type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]models.User
}

func (f *memUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[user.Email]; ok {
		return nil, common.ErrEmailAlreadyExists
	}
	f.byEmail[user.Email] = *user
	return user, nil
}

func (f *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &user, nil
}

type memHistory struct {
	mu   sync.Mutex
	docs map[string]map[string]models.HistoryDocument
	rev  int64
}

func (f *memHistory) Upsert(_ context.Context, doc *models.HistoryDocument, expected int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID, ok := f.docs[doc.UserID]
	if !ok {
		byID = make(map[string]models.HistoryDocument)
		f.docs[doc.UserID] = byID
	}
	existing, exists := byID[doc.ID]
	if (exists && existing.ServerTimestamp != expected) || (!exists && expected != 0) {
		return 0, common.ErrPreconditionFailed
	}
	f.rev++
	doc.ServerTimestamp = f.rev
	byID[doc.ID] = *doc
	return f.rev, nil
}

func (f *memHistory) Get(_ context.Context, userID, id string) (*models.HistoryDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[userID][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &doc, nil
}

func (f *memHistory) SelectUpdated(_ context.Context, userID string, after int64) ([]models.HistoryDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []models.HistoryDocument
	for _, doc := range f.docs[userID] {
		if doc.ServerTimestamp > after {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (f *memHistory) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs[userID], id)
	return nil
}

type memManager struct {
	users   *memUsers
	history *memHistory
}

func (m *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memManager) Users(dbx.DBTX) users.Repository              { return m.users }
func (m *memManager) History(dbx.DBTX) history.Repository          { return m.history }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mgr := &memManager{
		users:   &memUsers{byEmail: make(map[string]models.User)},
		history: &memHistory{docs: make(map[string]map[string]models.HistoryDocument)},
	}
	cfg := &config.Config{}
	cfg.LoadDefaults()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	userService := services.NewUserService(nil, mgr, cfg)
	historyService := services.NewHistoryService(nil, mgr)
	handler := NewHandler(userService, historyService, log)

	srv := httptest.NewServer(NewRouter(handler, userService))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func signUpAndIn(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "",
		map[string]string{"email": email, "password": "s3cret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "",
		map[string]string{"email": email, "password": "s3cret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/ping", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "",
		map[string]string{"email": "user@example.com", "password": "pw"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "",
		map[string]string{"email": "user@example.com", "password": "pw"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "",
		map[string]string{"email": "user2@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv := newTestServer(t)
	signUpAndIn(t, srv, "user@example.com")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "",
		map[string]string{"email": "user@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistory_RequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/history", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistory_DocumentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := signUpAndIn(t, srv, "user@example.com")

	record := map[string]any{"id": "doc-1", "sentence": "hello"}

	// Insert.
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/history/doc-1", token,
		map[string]any{"record": record})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var upserted struct {
		Timestamp int64 `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&upserted))
	require.NotZero(t, upserted.Timestamp)

	// Stale write is rejected.
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/history/doc-1", token,
		map[string]any{"record": record, "expectedTimestamp": upserted.Timestamp + 5})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Conditional update succeeds.
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/history/doc-1", token,
		map[string]any{"record": record, "expectedTimestamp": upserted.Timestamp})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Read back.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/history/doc-1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc struct {
		Record    json.RawMessage `json:"record"`
		Timestamp int64           `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Greater(t, doc.Timestamp, upserted.Timestamp)

	// Incremental query.
	resp = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/history?modified_after=%d", srv.URL, upserted.Timestamp), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var query struct {
		Documents []json.RawMessage `json:"documents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&query))
	assert.Len(t, query.Documents, 1)

	// Delete.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/history/doc-1", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/history/doc-1", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistory_PutRejectsMismatchedID(t *testing.T) {
	srv := newTestServer(t)
	token := signUpAndIn(t, srv, "user@example.com")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/history/doc-1", token,
		map[string]any{"record": map[string]any{"id": "other"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistory_ScopedToUser(t *testing.T) {
	srv := newTestServer(t)
	first := signUpAndIn(t, srv, "first@example.com")
	second := signUpAndIn(t, srv, "second@example.com")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/history/doc-1", first,
		map[string]any{"record": map[string]any{"id": "doc-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/history/doc-1", second, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
