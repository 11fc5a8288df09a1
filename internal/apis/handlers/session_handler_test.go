package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/config"
	"querypilot/internal/apis/dtos"
	"querypilot/pkg/dbmanager"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Env.IdleTimeout = 10 * time.Minute
	config.Env.KeepAliveInterval = 5 * time.Minute
	config.Env.QueryTimeout = time.Minute
	config.Env.MaxJoins = 10
	os.Exit(m.Run())
}

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT, price REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO products (name, price) VALUES ('widget', 9.99), ('gadget', 19.99)`)
	require.NoError(t, err)
	return path
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	registry := dbmanager.NewRegistry()
	t.Cleanup(registry.Close)
	manager := dbmanager.NewManager(registry, dbmanager.NewSessionStore(), nil, nil)
	executor := dbmanager.NewExecutor(registry)

	sessionHandler := NewSessionHandler(manager)
	queryHandler := NewQueryHandler(manager, executor)
	chatHandler := NewChatHandler(manager)

	router := gin.New()
	sessions := router.Group("/api/sessions")
	{
		sessions.POST("", sessionHandler.Create)
		sessions.POST("/test", sessionHandler.Test)
		sessions.GET("/:token", sessionHandler.Status)
		sessions.DELETE("/:token", sessionHandler.Delete)
		sessions.GET("/:token/schema", sessionHandler.Schema)
		sessions.POST("/:token/query", queryHandler.Execute)
		sessions.POST("/:token/chats", chatHandler.Create)
	}
	chats := router.Group("/api/chats")
	{
		chats.GET("/:chatToken/messages", chatHandler.History)
		chats.POST("/:chatToken/messages", chatHandler.AppendMessage)
		chats.DELETE("/:chatToken/messages", chatHandler.ClearHistory)
		chats.POST("/:chatToken/reset", chatHandler.Reset)
	}
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func createSession(t *testing.T, router *gin.Engine, path string) string {
	t.Helper()
	recorder := doJSON(t, router, http.MethodPost, "/api/sessions", dtos.CreateSessionRequest{
		ConnectionID: "c1",
		EngineKind:   "sqlite",
		Config:       dtos.ConnectionConfigRequest{FilePath: path},
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var envelope struct {
		Success bool                       `json:"success"`
		Data    dtos.CreateSessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.NotEmpty(t, envelope.Data.SessionToken)
	return envelope.Data.SessionToken
}

func TestSessionEndpoints(t *testing.T) {
	router := newTestRouter(t)
	path := seedSQLite(t)

	token := createSession(t, router, path)

	status := doJSON(t, router, http.MethodGet, "/api/sessions/"+token, nil)
	assert.Equal(t, http.StatusOK, status.Code)

	missing := doJSON(t, router, http.MethodGet, "/api/sessions/bogus", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)

	deleted := doJSON(t, router, http.MethodDelete, "/api/sessions/"+token, nil)
	assert.Equal(t, http.StatusOK, deleted.Code)

	gone := doJSON(t, router, http.MethodGet, "/api/sessions/"+token, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestSessionCreateRejectsBadDescriptor(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/api/sessions", dtos.CreateSessionRequest{
		ConnectionID: "c1",
		EngineKind:   "oracle",
		Config:       dtos.ConnectionConfigRequest{FilePath: "/nope"},
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSchemaEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := createSession(t, router, seedSQLite(t))

	recorder := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sessions/%s/schema", token), nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "products")
}

func TestQueryEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := createSession(t, router, seedSQLite(t))

	ok := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/query", token),
		dtos.ExecuteQueryRequest{SQL: "SELECT name, price FROM products ORDER BY id"})
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Contains(t, ok.Body.String(), "widget")
	assert.Contains(t, ok.Body.String(), "visualization")

	// A mutation comes back as a structured validation failure, not a 4xx.
	rejected := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/query", token),
		dtos.ExecuteQueryRequest{SQL: "DROP TABLE products"})
	require.Equal(t, http.StatusOK, rejected.Code)

	var envelope struct {
		Success bool                      `json:"success"`
		Data    dtos.ExecuteQueryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rejected.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Data.Error)
	assert.Equal(t, "NOT_SELECT", envelope.Data.Error.Code)
	assert.NotEmpty(t, envelope.Data.Error.Message)
}

func TestChatEndpoints(t *testing.T) {
	router := newTestRouter(t)
	token := createSession(t, router, seedSQLite(t))

	created := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/chats", token), nil)
	require.Equal(t, http.StatusOK, created.Code)

	var envelope struct {
		Data dtos.CreateChatResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &envelope))
	chatToken := envelope.Data.ChatToken
	require.NotEmpty(t, chatToken)

	appended := doJSON(t, router, http.MethodPost, "/api/chats/"+chatToken+"/messages",
		dtos.AppendMessageRequest{Role: "user", Content: "top products by price"})
	assert.Equal(t, http.StatusOK, appended.Code)

	history := doJSON(t, router, http.MethodGet, "/api/chats/"+chatToken+"/messages", nil)
	require.Equal(t, http.StatusOK, history.Code)
	assert.Contains(t, history.Body.String(), "top products by price")

	cleared := doJSON(t, router, http.MethodDelete, "/api/chats/"+chatToken+"/messages", nil)
	assert.Equal(t, http.StatusOK, cleared.Code)

	reset := doJSON(t, router, http.MethodPost, "/api/chats/"+chatToken+"/reset", nil)
	assert.Equal(t, http.StatusOK, reset.Code)
	assert.NotContains(t, reset.Body.String(), chatToken)
}
