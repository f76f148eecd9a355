package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/kanban-backend/internal/auth"
	"github.com/Tomlord1122/kanban-backend/internal/config"
	"github.com/Tomlord1122/kanban-backend/internal/database"
	"github.com/Tomlord1122/kanban-backend/internal/domain"
	"github.com/Tomlord1122/kanban-backend/internal/repository"
	"github.com/Tomlord1122/kanban-backend/internal/service"
)

type testServer struct {
	handler  http.Handler
	resolver *auth.Resolver
}

func newTestServer(t *testing.T, board service.BoardService) *testServer {
	t.Helper()
	db, err := database.New(config.DBConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "server.db"),
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	if board == nil {
		repo := repository.NewGormRepository(db.GetDB(), repository.DefaultRetryPolicy())
		board = service.NewBoardService(repo, service.Options{
			MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond,
		})
	}
	resolver := auth.NewResolver("test-secret")
	s := &Server{boardService: board, db: db, auth: resolver}
	return &testServer{handler: s.RegisterRoutes(), resolver: resolver}
}

func (ts *testServer) do(t *testing.T, owner, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		tok, err := ts.resolver.Issue(owner, time.Hour)
		require.NoError(t, err)
		req.Header.Set(auth.HeaderToken, tok)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHelloAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "", http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", decode[map[string]string](t, rec)["status"])
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "", http.MethodGet, "/api/board", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token is not valid", decode[map[string]string](t, rec)["error"])
}

func TestBoardFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "alice", http.MethodPost, "/api/onboard", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	board := decode[service.BoardResponse](t, rec)
	require.Len(t, board.Lists, 4)
	inbox, todo := board.Lists[0].ID, board.Lists[1].ID

	rec = ts.do(t, "alice", http.MethodPost, "/api/cards", map[string]string{"title": "C", "listId": inbox})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[service.CardResponse](t, rec)
	rec = ts.do(t, "alice", http.MethodPost, "/api/cards", map[string]string{"title": "D", "listId": inbox})
	require.Equal(t, http.StatusCreated, rec.Code)
	d := decode[service.CardResponse](t, rec)

	rec = ts.do(t, "alice", http.MethodPut, "/api/move", map[string]interface{}{
		"cardId": c.ID, "sourceListId": inbox, "destListId": todo, "newIndex": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, "alice", http.MethodGet, "/api/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board = decode[service.BoardResponse](t, rec)
	require.Len(t, board.Lists[0].Cards, 1)
	assert.Equal(t, d.ID, board.Lists[0].Cards[0].ID)
	require.Len(t, board.Lists[1].Cards, 1)
	assert.Equal(t, c.ID, board.Lists[1].Cards[0].ID)

	rec = ts.do(t, "alice", http.MethodDelete, fmt.Sprintf("/api/lists/%s/cards/%s", todo, c.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, "alice", http.MethodDelete, fmt.Sprintf("/api/lists/%s/cards/%s", todo, c.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Someone else's view of alice's lists.
	rec = ts.do(t, "bob", http.MethodGet, "/api/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[service.BoardResponse](t, rec).Lists)

	rec = ts.do(t, "bob", http.MethodPost, "/api/cards", map[string]string{"title": "X", "listId": inbox})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, "bob", http.MethodPut, "/api/move", map[string]interface{}{
		"cardId": d.ID, "sourceListId": inbox, "destListId": todo, "newIndex": 0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, "alice", http.MethodPost, "/api/onboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decode[service.BoardResponse](t, rec).Lists[0].ID

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
		msg    string
	}{
		{"empty body", http.MethodPost, "/api/cards", nil, http.StatusBadRequest, "must not be empty"},
		{"bad json", http.MethodPost, "/api/cards", `{"title":`, http.StatusBadRequest, "badly-formed"},
		{"unknown field", http.MethodPost, "/api/cards", `{"title":"x","listId":"y","color":"red"}`, http.StatusBadRequest, "unknown field"},
		{"wrong type", http.MethodPut, "/api/move", `{"newIndex":"zero"}`, http.StatusBadRequest, "newIndex"},
		{"missing title", http.MethodPost, "/api/cards", map[string]string{"listId": inbox}, http.StatusBadRequest, "title"},
		{"missing list", http.MethodPost, "/api/cards", map[string]string{"title": "x"}, http.StatusBadRequest, "listId"},
		{"missing index", http.MethodPut, "/api/move", map[string]string{"cardId": "c", "sourceListId": inbox, "destListId": inbox}, http.StatusBadRequest, "newIndex"},
		{"unknown list", http.MethodPost, "/api/cards", map[string]string{"title": "x", "listId": "nope"}, http.StatusNotFound, "not found"},
		{"card not in list", http.MethodPut, "/api/move", map[string]interface{}{"cardId": "c", "sourceListId": inbox, "destListId": inbox, "newIndex": 0}, http.StatusConflict, "not in the source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "alice", tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, strings.ToLower(decode[map[string]string](t, rec)["error"]), strings.ToLower(tt.msg))
		})
	}
}

func TestMoveClampsIndexBeyondIntRange(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, "alice", http.MethodPost, "/api/onboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[service.BoardResponse](t, rec)
	inbox, todo := board.Lists[0].ID, board.Lists[1].ID

	var cards []string
	for _, title := range []string{"C", "D", "E"} {
		rec = ts.do(t, "alice", http.MethodPost, "/api/cards", map[string]string{"title": title, "listId": inbox})
		require.Equal(t, http.StatusCreated, rec.Code)
		cards = append(cards, decode[service.CardResponse](t, rec).ID)
	}

	body := fmt.Sprintf(`{"cardId":%q,"sourceListId":%q,"destListId":%q,"newIndex":99999999999999999999}`, cards[0], inbox, inbox)
	rec = ts.do(t, "alice", http.MethodPut, "/api/move", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body = fmt.Sprintf(`{"cardId":%q,"sourceListId":%q,"destListId":%q,"newIndex":-99999999999999999999}`, cards[2], inbox, todo)
	rec = ts.do(t, "alice", http.MethodPut, "/api/move", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, "alice", http.MethodGet, "/api/board", nil)
	board = decode[service.BoardResponse](t, rec)
	got := []string{}
	for _, c := range board.Lists[0].Cards {
		got = append(got, c.ID)
	}
	assert.Equal(t, []string{cards[1], cards[0]}, got)
	require.Len(t, board.Lists[1].Cards, 1)
	assert.Equal(t, cards[2], board.Lists[1].Cards[0].ID)

	rec = ts.do(t, "alice", http.MethodPut, "/api/move", fmt.Sprintf(`{"cardId":%q,"sourceListId":%q,"destListId":%q,"newIndex":1.5}`, cards[1], inbox, inbox))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// stubBoard returns err from every method.
type stubBoard struct{ err error }

func (s stubBoard) GetBoard(context.Context, string) (*service.BoardResponse, error) {
	return nil, s.err
}
func (s stubBoard) Onboard(context.Context, string) (*service.BoardResponse, error) {
	return nil, s.err
}
func (s stubBoard) CreateCard(context.Context, string, service.CreateCardRequest) (*service.CardResponse, error) {
	return nil, s.err
}
func (s stubBoard) DeleteCard(context.Context, string, string, string) error { return s.err }
func (s stubBoard) MoveCard(context.Context, string, service.MoveCardRequest) error {
	return s.err
}

func TestServiceErrorMapping(t *testing.T) {
	moveFailed := &domain.MoveFailedError{
		CardID: "c", SourceListID: "a", DestListID: "b",
		Cause: errors.Join(domain.ErrConflict, domain.ErrStore),
	}
	tests := []struct {
		err  error
		want int
	}{
		{domain.Validationf("cardId is required"), http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrNotMember, http.StatusConflict},
		{domain.ErrDuplicateReference, http.StatusConflict},
		{domain.ErrConflict, http.StatusConflict},
		{moveFailed, http.StatusInternalServerError},
		{fmt.Errorf("%w: save list: boom", domain.ErrStore), http.StatusInternalServerError},
	}
	move := map[string]interface{}{"cardId": "c", "sourceListId": "a", "destListId": "b", "newIndex": 0}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			ts := newTestServer(t, stubBoard{err: tt.err})
			rec := ts.do(t, "alice", http.MethodPut, "/api/move", move)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	ts := newTestServer(t, stubBoard{err: moveFailed})
	rec := ts.do(t, "alice", http.MethodPut, "/api/move", move)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "not rolled back")
}
