package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
	"github.com/totegamma/castline/internal/infra/cache"
	"github.com/totegamma/castline/internal/infra/memory"
	"github.com/totegamma/castline/internal/usecase"
)

// --- mocks ---

type rejectingModerator struct{}

func (rejectingModerator) Moderate(ctx context.Context, mediaURL string) (usecase.ModerationVerdict, error) {
	if strings.Contains(mediaURL, "bad") {
		return usecase.ModerationVerdict{Accepted: false, Categories: []string{"violence"}}, nil
	}
	return usecase.ModerationVerdict{Accepted: true}, nil
}

type failingStore struct {
	*memory.DocumentStore
	collection string
}

func (s failingStore) SetDocument(ctx context.Context, collection, key string, doc castline.Document, merge bool) error {
	if collection == s.collection {
		return errors.New("store offline")
	}
	return s.DocumentStore.SetDocument(ctx, collection, key, doc, merge)
}

type stubSubscriber struct {
	events []castline.Event
}

func (s stubSubscriber) Subscribe(ctx context.Context, channel string) (<-chan castline.Event, func() error) {
	out := make(chan castline.Event, len(s.events))
	for _, e := range s.events {
		out <- e
	}
	return out, func() error { return nil }
}

// --- helpers ---

func newTestEcho(store usecase.DocumentStore, screener usecase.MediaScreener, signals Subscriber) *echo.Echo {
	logger := zerolog.Nop()
	clock := usecase.SystemClock{}
	localCache := cache.NewMemoryCache()

	consolidation := usecase.NewConsolidationUsecase(store, localCache, nil, "test", clock, logger)
	backup := usecase.NewBackupUsecase(store, localCache, clock, logger)
	profile := usecase.NewProfileUsecase(store, localCache, consolidation, screener, clock, logger)
	session := usecase.NewSessionUsecase(store, localCache, consolidation, backup, clock, logger)
	browse := usecase.NewBrowseUsecase(localCache, clock, logger)

	h := NewHandler(profile, consolidation, backup, session, browse, signals, "test", logger)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &v), res.Body.String())
	return v
}

var proFields = map[string]any{
	"fields": map[string]any{
		"email":        " A@B@Test.com ",
		"name":         "Ana",
		"profilePhoto": "https://cdn.example/ana.jpg",
		"category":     "model",
	},
	"activateHighlight": true,
}

// --- tests ---

func TestHandleSaveProfileAndBrowse(t *testing.T) {
	e := newTestEcho(memory.NewDocumentStore(), nil, nil)

	res := do(t, e, http.MethodPut, "/api/v1/profile/pro", proFields)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	saved := decode[map[string]any](t, res)
	assert.Equal(t, "a.b@test.com", saved["email"])
	assert.Equal(t, true, saved["isHighlighted"])

	res = do(t, e, http.MethodGet, "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, decode[[]map[string]any](t, res), 1)

	res = do(t, e, http.MethodGet, "/api/v1/profiles?tier=free", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, decode[[]map[string]any](t, res), 0)

	res = do(t, e, http.MethodGet, "/api/v1/profiles?highlighted=true&category=MODEL", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, decode[[]map[string]any](t, res), 1)

	res = do(t, e, http.MethodGet, "/api/v1/profiles/elite", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, decode[[]map[string]any](t, res), 0)
}

func TestHandleListRejectsBadQuery(t *testing.T) {
	e := newTestEcho(memory.NewDocumentStore(), nil, nil)

	for _, q := range []string{"tier=gold", "kind=robot", "highlighted=maybe"} {
		res := do(t, e, http.MethodGet, "/api/v1/profiles?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, res.Code, q)
	}
}

func TestHandleSaveProfileErrors(t *testing.T) {
	tests := []struct {
		name   string
		store  usecase.DocumentStore
		screen bool
		path   string
		body   any
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "unknown tier",
			store:  memory.NewDocumentStore(),
			path:   "/api/v1/profile/gold",
			body:   proFields,
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid identity",
			store:  memory.NewDocumentStore(),
			path:   "/api/v1/profile/free",
			body:   map[string]any{"fields": map[string]any{"email": "not-an-email"}},
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "email", body["field"])
			},
		},
		{
			name:   "moderation rejection",
			store:  memory.NewDocumentStore(),
			screen: true,
			path:   "/api/v1/profile/free",
			body: map[string]any{"fields": map[string]any{
				"email": "a@x.com", "name": "A", "profilePhoto": "https://cdn.example/bad.jpg",
			}},
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, []any{"profilePhoto"}, body["fields"])
				assert.Equal(t, []any{"violence"}, body["categories"])
			},
		},
		{
			name:   "persistence failure",
			store:  failingStore{DocumentStore: memory.NewDocumentStore(), collection: domain.CollectionPro},
			path:   "/api/v1/profile/pro",
			body:   proFields,
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "remote", body["stage"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var screener usecase.MediaScreener
			if tt.screen {
				screener = usecase.NewModerationUsecase(rejectingModerator{}, zerolog.Nop())
			}
			e := newTestEcho(tt.store, screener, nil)

			res := do(t, e, http.MethodPut, tt.path, tt.body)
			require.Equal(t, tt.status, res.Code, res.Body.String())
			if tt.check != nil {
				tt.check(t, decode[map[string]any](t, res))
			}
		})
	}
}

func TestHandleSessionBackupRestore(t *testing.T) {
	store := memory.NewDocumentStore()
	e := newTestEcho(store, nil, nil)

	res := do(t, e, http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, string(domain.StateNoSession), decode[map[string]any](t, res)["state"])

	res = do(t, e, http.MethodPost, "/api/v1/restore", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)

	res = do(t, e, http.MethodPut, "/api/v1/profile/pro", proFields)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = do(t, e, http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, res.Code)
	session := decode[map[string]any](t, res)
	assert.Equal(t, string(domain.StateProfileIncomplete), session["state"])
	assert.Contains(t, session["missing"], "profileVideo")

	res = do(t, e, http.MethodPost, "/api/v1/backup", nil)
	require.Equal(t, http.StatusOK, res.Code)

	// A fresh process over the same store recovers the aggregate from the backup.
	restored := newTestEcho(store, nil, nil)
	res = do(t, restored, http.MethodPost, "/api/v1/restore", nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = do(t, restored, http.MethodGet, "/api/v1/profiles", nil)
	assert.Len(t, decode[[]map[string]any](t, res), 1)

	res = do(t, restored, http.MethodPost, "/api/v1/profiles/rebuild", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, res)["count"])
}

func TestHandleEvents(t *testing.T) {
	sent := castline.Event{Type: castline.EventAggregateChanged, Fingerprint: "f00d", Count: 2, At: time.Now().UTC()}
	e := newTestEcho(memory.NewDocumentStore(), nil, stubSubscriber{events: []castline.Event{sent}})
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got castline.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sent.Fingerprint, got.Fingerprint)
	assert.Equal(t, sent.Count, got.Count)
}

func TestEventsRouteNeedsSignals(t *testing.T) {
	e := newTestEcho(memory.NewDocumentStore(), nil, nil)
	res := do(t, e, http.MethodGet, "/api/v1/events", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}
