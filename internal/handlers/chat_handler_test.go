package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hbl306/phongtro57-chat/internal/app"
	"github.com/hbl306/phongtro57-chat/internal/auth"
	"github.com/hbl306/phongtro57-chat/internal/config"
	"github.com/hbl306/phongtro57-chat/internal/models"
	modelChat "github.com/hbl306/phongtro57-chat/internal/models/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "handler-test-secret"

var phoneSeq int64

func newTestServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&modelChat.Conversation{},
		&modelChat.Participant{},
		&modelChat.Message{},
	))

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.JWT.Secret = testSecret

	server := httptest.NewServer(app.SetupRouter(cfg, db))
	t.Cleanup(server.Close)
	return server, db
}

func seedUser(t *testing.T, db *gorm.DB, name string, role models.Role) (*models.User, string) {
	t.Helper()
	u := &models.User{
		BaseModel:    models.BaseModel{ID: uuid.New().String()},
		Phone:        fmt.Sprintf("08%08d", atomic.AddInt64(&phoneSeq, 1)),
		Name:         name,
		PasswordHash: "x",
		Role:         role,
		Status:       models.UserStatusActive,
	}
	require.NoError(t, db.Create(u).Error)

	token, err := auth.GenerateToken(testSecret, u.ID, time.Hour)
	require.NoError(t, err)
	return u, token
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestChatAPI_RequiresCredential(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, server, http.MethodGet, "/api/v1/chat/unread-summary", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/chat/support/conversation", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatAPI_SupportConversationIdempotent(t *testing.T) {
	server, db := newTestServer(t)
	user, token := seedUser(t, db, "Linh", models.RoleUser)

	resp, first := doJSON(t, server, http.MethodPost, "/api/v1/chat/support/conversation", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "support", first["kind"])
	assert.Equal(t, user.ID, first["owner_user_id"])
	require.NotEmpty(t, first["id"])

	resp, second := doJSON(t, server, http.MethodPost, "/api/v1/chat/support/conversation", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first["id"], second["id"])
}

func TestChatAPI_SupportListIsAgentOnly(t *testing.T) {
	server, db := newTestServer(t)
	_, userToken := seedUser(t, db, "Linh", models.RoleUser)
	_, agentToken := seedUser(t, db, "Support", models.RoleAgent)

	resp, _ := doJSON(t, server, http.MethodGet, "/api/v1/chat/support/conversations", userToken, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out := doJSON(t, server, http.MethodGet, "/api/v1/chat/support/conversations", agentToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok := out["conversations"]
	assert.True(t, ok)
}

func TestChatAPI_DmCreateValidation(t *testing.T) {
	server, db := newTestServer(t)
	user, token := seedUser(t, db, "Linh", models.RoleUser)

	resp, _ := doJSON(t, server, http.MethodPost, "/api/v1/chat/dm/conversations", token, `{"peer_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// self-chat is rejected
	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/chat/dm/conversations", token,
		fmt.Sprintf(`{"peer_id":%q}`, user.ID))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unknown peer
	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/chat/dm/conversations", token,
		fmt.Sprintf(`{"peer_id":%q}`, uuid.New().String()))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatAPI_DmCreateAndHistory(t *testing.T) {
	server, db := newTestServer(t)
	u1, token1 := seedUser(t, db, "Linh", models.RoleUser)
	u2, token2 := seedUser(t, db, "Minh", models.RoleUser)
	_, token3 := seedUser(t, db, "Khanh", models.RoleUser)

	resp, conv := doJSON(t, server, http.MethodPost, "/api/v1/chat/dm/conversations", token1,
		fmt.Sprintf(`{"peer_id":%q}`, u2.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	convID := conv["id"].(string)

	// the peer opening the same pair lands on the same thread
	resp, mirror := doJSON(t, server, http.MethodPost, "/api/v1/chat/dm/conversations", token2,
		fmt.Sprintf(`{"peer_id":%q}`, u1.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, convID, mirror["id"])

	// both participants may read the (empty) history, outsiders may not
	resp, out := doJSON(t, server, http.MethodGet, "/api/v1/chat/conversations/"+convID+"/messages", token2, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, out["messages"])

	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/chat/conversations/"+convID+"/messages", token3, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/chat/conversations/"+uuid.New().String()+"/messages", token1, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatAPI_UnreadSummary(t *testing.T) {
	server, db := newTestServer(t)
	_, token := seedUser(t, db, "Linh", models.RoleUser)

	resp, out := doJSON(t, server, http.MethodGet, "/api/v1/chat/unread-summary", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, out["total"])
	assert.EqualValues(t, 0, out["support"])
	assert.EqualValues(t, 0, out["dm"])
}
