package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/kubelease/internal/api/response"
	"github.com/edvin/kubelease/internal/model"
)

type fakeBot struct {
	mu      sync.Mutex
	texts   []string
	intents []model.Intent
}

func (b *fakeBot) Handle(_ context.Context, text string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts = append(b.texts, text)
	if text == "silent" {
		return nil
	}
	return []string{"got: " + text, "ok."}
}

func (b *fakeBot) Dispatch(_ context.Context, in model.Intent) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intents = append(b.intents, in)
	return []string{"dispatched " + string(in.Op)}
}

type fakeLeases struct {
	now      time.Time
	clusters []model.Cluster
}

func (l fakeLeases) List() []model.Cluster { return l.clusters }
func (l fakeLeases) Now() time.Time        { return l.now }

var t0 = time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)

func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeReplies(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body response.Replies
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Replies
}

// ---------- Message ----------

func TestChat_Message(t *testing.T) {
	bot := &fakeBot{}
	h := NewChat(bot, fakeLeases{}, nil)

	rec := httptest.NewRecorder()
	h.Message(rec, newRequest(http.MethodPost, "/v1/messages", map[string]string{"text": "list"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"got: list", "ok."}, decodeReplies(t, rec))
	assert.Equal(t, []string{"list"}, bot.texts)
}

func TestChat_Message_EmptyText(t *testing.T) {
	bot := &fakeBot{}
	h := NewChat(bot, fakeLeases{}, nil)

	rec := httptest.NewRecorder()
	h.Message(rec, newRequestRaw(http.MethodPost, "/v1/messages", `{"text":""}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, bot.texts)
}

func TestChat_Message_NoReplies(t *testing.T) {
	h := NewChat(&fakeBot{}, fakeLeases{}, nil)

	rec := httptest.NewRecorder()
	h.Message(rec, newRequest(http.MethodPost, "/v1/messages", map[string]string{"text": "silent"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"replies":[]}`, rec.Body.String())
}

// ---------- Intent ----------

func TestChat_Intent(t *testing.T) {
	bot := &fakeBot{}
	h := NewChat(bot, fakeLeases{}, nil)

	rec := httptest.NewRecorder()
	h.Intent(rec, newRequestRaw(http.MethodPost, "/v1/intents", `{"op":"deploy","cluster":"demo","size":"2","life":"4h"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"dispatched deploy"}, decodeReplies(t, rec))
	require.Len(t, bot.intents, 1)
	assert.Equal(t, model.Intent{Op: model.OpDeploy, Cluster: "demo", Size: "2", Life: "4h"}, bot.intents[0])
}

func TestChat_Intent_Invalid(t *testing.T) {
	bot := &fakeBot{}
	h := NewChat(bot, fakeLeases{}, nil)

	rec := httptest.NewRecorder()
	h.Intent(rec, newRequestRaw(http.MethodPost, "/v1/intents", `{"op":"deploy","cluster":"NOT OK"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "validation error")
	assert.Empty(t, bot.intents)
}

// ---------- Clusters ----------

func TestChat_Clusters(t *testing.T) {
	spec := model.ClusterSpec{Region: "us-east", Instance: "g6-standard-2", Size: 2, Version: "1.22", Life: 8}
	live := model.NewCluster("alpha", model.StatusLive, spec, t0)
	live.UpstreamID = "11"
	stale := model.NewCluster("beta", model.StatusLive, spec, t0.Add(-9*time.Hour))

	h := NewChat(&fakeBot{}, fakeLeases{now: t0, clusters: []model.Cluster{live, stale}}, nil)

	rec := httptest.NewRecorder()
	h.Clusters(rec, newRequest(http.MethodGet, "/v1/clusters", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Clusters []struct {
			Name       string `json:"name"`
			UpstreamID string `json:"upstream_id"`
			Status     string `json:"status"`
			Expired    bool   `json:"expired"`
			Summary    string `json:"summary"`
		} `json:"clusters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Clusters, 2)

	assert.Equal(t, "alpha", body.Clusters[0].Name)
	assert.Equal(t, "11", body.Clusters[0].UpstreamID)
	assert.Equal(t, "live", body.Clusters[0].Status)
	assert.False(t, body.Clusters[0].Expired)
	assert.Equal(t, "alpha [2-node] _8h left_", body.Clusters[0].Summary)

	assert.True(t, body.Clusters[1].Expired)
	assert.Equal(t, "beta [2-node] _EXPIRED_", body.Clusters[1].Summary)
}

func TestChat_Clusters_Empty(t *testing.T) {
	h := NewChat(&fakeBot{}, fakeLeases{now: t0}, nil)

	rec := httptest.NewRecorder()
	h.Clusters(rec, newRequest(http.MethodGet, "/v1/clusters", nil))

	assert.JSONEq(t, `{"clusters":[]}`, rec.Body.String())
}

// ---------- Connect ----------

func TestChat_Connect(t *testing.T) {
	bot := &fakeBot{}
	r := chi.NewRouter()
	r.Get("/v1/chat", NewChat(bot, fakeLeases{}, nil).Connect)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, strings.Replace(srv.URL, "http", "ws", 1)+"/v1/chat", nil)
	require.NoError(t, err)
	defer ws.CloseNow()

	require.NoError(t, ws.Write(ctx, websocket.MessageText, []byte("help")))

	for _, want := range []string{"got: help", "ok."} {
		typ, data, err := ws.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)
		assert.Equal(t, want, string(data))
	}

	require.NoError(t, ws.Close(websocket.StatusNormalClosure, ""))
}

func TestChat_Connect_RejectsBinary(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/v1/chat", NewChat(&fakeBot{}, fakeLeases{}, nil).Connect)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, strings.Replace(srv.URL, "http", "ws", 1)+"/v1/chat", nil)
	require.NoError(t, err)
	defer ws.CloseNow()

	require.NoError(t, ws.Write(ctx, websocket.MessageBinary, []byte{0x01}))

	_, _, err = ws.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusUnsupportedData, websocket.CloseStatus(err))
}
