package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/event_processor"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/middleware"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/normalizer"
)

const commentPayload = `{"object":"instagram","entry":[{"id":"ig-1","changes":[
	{"field":"comments","value":{"id":"c-1","text":"free details?","from":{"id":"u-1","username":"alice"},"media":{"id":"m-1"}}}
]}]}`

type recordingSubmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingSubmitter) Submit(events []models.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return len(events)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRouter(submitter EventSubmitter, appSecret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(normalizer.New(zap.NewNop()), submitter, "verify-me", appSecret, zap.NewNop())
	r := gin.New()
	r.GET("/webhooks/instagram", h.Verify)
	r.POST("/webhooks/instagram", h.Receive)
	return r
}

func TestWebhook_Verify(t *testing.T) {
	router := webhookRouter(&recordingSubmitter{}, "")

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{name: "valid", query: "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", status: http.StatusOK, body: "12345"},
		{name: "wrong token", query: "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", status: http.StatusForbidden},
		{name: "wrong mode", query: "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/instagram?"+tt.query, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestWebhook_Receive(t *testing.T) {
	const secret = "app-secret"

	tests := []struct {
		name      string
		body      string
		signature string
		status    int
		received  int
	}{
		{name: "signed payload", body: commentPayload, signature: sign(secret, commentPayload), status: http.StatusOK, received: 1},
		{name: "bad signature", body: commentPayload, signature: sign("other", commentPayload), status: http.StatusForbidden},
		{name: "missing signature", body: commentPayload, status: http.StatusForbidden},
		{name: "garbage signature", body: commentPayload, signature: "sha256=zz", status: http.StatusForbidden},
		{name: "unparseable body is still acknowledged", body: "{not json", signature: sign(secret, "{not json"), status: http.StatusOK},
		{name: "unsupported object", body: `{"object":"user","entry":[]}`, signature: sign(secret, `{"object":"user","entry":[]}`), status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &recordingSubmitter{}
			router := webhookRouter(submitter, secret)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/instagram", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set(signatureHeader, tt.signature)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			assert.Len(t, submitter.events, tt.received)
			if tt.status == http.StatusOK {
				var resp struct{ Received int }
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.received, resp.Received)
			}
		})
	}
}

func TestWebhook_ReceiveWithoutSecretSkipsVerification(t *testing.T) {
	submitter := &recordingSubmitter{}
	router := webhookRouter(submitter, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/instagram", strings.NewReader(commentPayload)))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, submitter.events, 1)
	assert.Equal(t, "c-1", submitter.events[0].EventID)
}

func TestWebhook_ReceiveRejectsOversizedBody(t *testing.T) {
	submitter := &recordingSubmitter{}
	router := webhookRouter(submitter, "")

	body := strings.Repeat("a", maxWebhookBody+1)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/instagram", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, submitter.events)
}

type fakeConversations struct {
	convs []*models.ConversationContext
	err   error
}

func (f *fakeConversations) GetConversation(_ context.Context, workspaceID int64, id string, _ int) (*models.ConversationContext, error) {
	for _, c := range f.convs {
		if c.WorkspaceID == workspaceID && c.ConversationID == id {
			return c, nil
		}
	}
	return nil, f.err
}

func (f *fakeConversations) ListConversations(_ context.Context, workspaceID int64, _ int) ([]*models.ConversationContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.ConversationContext
	for _, c := range f.convs {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeEvents struct {
	rows       []*models.ProcessedEvent
	lastStatus models.EventStatus
	lastLimit  int
	replayErr  error
}

func (f *fakeEvents) List(_ context.Context, _ int64, status models.EventStatus, _ int) ([]*models.ProcessedEvent, error) {
	f.lastStatus = status
	return f.rows, nil
}

func (f *fakeEvents) Replay(_ context.Context, _ int64, eventID string) (event_processor.Result, error) {
	if f.replayErr != nil {
		return event_processor.Result{}, f.replayErr
	}
	return event_processor.Result{EventID: eventID, Outcome: event_processor.OutcomeSucceeded}, nil
}

func (f *fakeEvents) ReplayFailed(ctx context.Context, workspaceID int64, limit int) ([]event_processor.Result, error) {
	f.lastLimit = limit
	if f.replayErr != nil {
		return nil, f.replayErr
	}
	var out []event_processor.Result
	for _, row := range f.rows {
		if row.WorkspaceID == workspaceID && row.Status == models.EventStatusFailed {
			res, _ := f.Replay(ctx, workspaceID, row.EventID)
			out = append(out, res)
		}
	}
	return out, nil
}

// apiRouter stands in for the auth middleware by scoping every request to workspace 1.
func apiRouter(conversations ConversationReader, events *fakeEvents) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextWorkspaceID, int64(1)) })
	ch := NewConversationHandler(conversations, 20, zap.NewNop())
	eh := NewEventHandler(events, events, zap.NewNop())
	r.GET("/api/conversations", ch.ListConversations)
	r.GET("/api/conversations/:id", ch.GetConversation)
	r.GET("/api/events", eh.ListEvents)
	r.POST("/api/events/replay", eh.ReplayFailed)
	r.POST("/api/events/:id/replay", eh.ReplayEvent)
	return r
}

func serve(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestConversationHandler(t *testing.T) {
	convs := &fakeConversations{convs: []*models.ConversationContext{
		{ConversationID: "conv-1", WorkspaceID: 1, ParticipantExternalID: "u-1", ExtractedTopics: []string{"free"}},
		{ConversationID: "conv-2", WorkspaceID: 2, ParticipantExternalID: "u-2"},
	}}
	router := apiRouter(convs, &fakeEvents{})

	rec := serve(router, http.MethodGet, "/api/conversations")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Conversations []models.ConversationContext `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "conv-1", list.Conversations[0].ConversationID)

	rec = serve(router, http.MethodGet, "/api/conversations/conv-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"extracted_topics":["free"]`)

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/conversations/conv-2").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/api/conversations?limit=-1").Code)

	failing := apiRouter(&fakeConversations{err: errors.New("db down")}, &fakeEvents{})
	assert.Equal(t, http.StatusInternalServerError, serve(failing, http.MethodGet, "/api/conversations").Code)
}

func TestEventHandler_List(t *testing.T) {
	events := &fakeEvents{rows: []*models.ProcessedEvent{{EventID: "e-1", WorkspaceID: 1, Status: models.EventStatusFailed}}}
	router := apiRouter(&fakeConversations{}, events)

	rec := serve(router, http.MethodGet, "/api/events?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EventStatusFailed, events.lastStatus)
	assert.Contains(t, rec.Body.String(), `"event_id":"e-1"`)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/api/events?status=weird").Code)
}

func TestEventHandler_Replay(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "replayed", status: http.StatusOK},
		{name: "unknown", err: event_processor.ErrEventNotFound, status: http.StatusNotFound},
		{name: "not failed", err: event_processor.ErrNotReplayable, status: http.StatusConflict},
		{name: "store error", err: errors.New("db down"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := apiRouter(&fakeConversations{}, &fakeEvents{replayErr: tt.err})
			rec := serve(router, http.MethodPost, "/api/events/e-1/replay")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestEventHandler_ReplayFailed(t *testing.T) {
	events := &fakeEvents{rows: []*models.ProcessedEvent{
		{EventID: "e-1", WorkspaceID: 1, Status: models.EventStatusFailed},
		{EventID: "e-2", WorkspaceID: 1, Status: models.EventStatusSucceeded},
		{EventID: "e-3", WorkspaceID: 2, Status: models.EventStatusFailed},
	}}
	router := apiRouter(&fakeConversations{}, events)

	rec := serve(router, http.MethodPost, "/api/events/replay?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []event_processor.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "e-1", body.Results[0].EventID)
	assert.Equal(t, event_processor.OutcomeSucceeded, body.Results[0].Outcome)
	assert.Equal(t, 10, events.lastLimit)

	rec = serve(apiRouter(&fakeConversations{}, &fakeEvents{}), http.MethodPost, "/api/events/replay")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/api/events/replay?limit=zero").Code)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "shutting down", err: event_processor.ErrShuttingDown, status: http.StatusServiceUnavailable},
		{name: "store failure", err: errors.New("db down"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := apiRouter(&fakeConversations{}, &fakeEvents{replayErr: tt.err})
			assert.Equal(t, tt.status, serve(router, http.MethodPost, "/api/events/replay").Code)
		})
	}
}
