package webhook

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagate/pkg/bus"
	"wagate/pkg/inbound"
	"wagate/pkg/whatsapp"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, opts Options, queue int) (*Server, *bus.MessageBus) {
	t.Helper()

	messages := bus.NewMessageBus(queue)
	t.Cleanup(messages.Close)

	server, err := NewServer(opts, messages, nil)
	require.NoError(t, err)
	return server, messages
}

func post(t *testing.T, handler http.Handler, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestWebhookProbe(t *testing.T) {
	server, _ := newTestServer(t, Options{}, 0)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"webhook_active"}`, rec.Body.String())
}

func TestWebhookEnqueuesNormalizedMessage(t *testing.T) {
	server, messages := newTestServer(t, Options{Session: "main"}, 0)

	rec, body := post(t, server.Handler(), "/webhook",
		`{"event":"onmessage","id":"m1","type":"chat","from":"111@c.us","body":"hi","fromMe":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	delivery, ok := messages.ConsumeInbound(ctx)
	require.True(t, ok)

	assert.Equal(t, body["id"], delivery.ID)
	assert.Equal(t, "main", delivery.Session)
	assert.Equal(t, whatsapp.BackendWPPConnect, delivery.Backend)
	assert.Equal(t, inbound.KindChat, delivery.Message.Kind)
	assert.Equal(t, "111", delivery.Message.Sender)
	assert.Equal(t, "hi", delivery.Message.Chat.Body)
	assert.Equal(t, uint64(1), server.Stats().Accepted)
}

func TestWebhookSkipsOwnMessagesUnlessConfigured(t *testing.T) {
	payload := `{"event":"onmessage","id":"m2","type":"chat","from":"111@c.us","body":"echo","fromMe":true}`

	server, messages := newTestServer(t, Options{}, 0)
	_, body := post(t, server.Handler(), "/webhook", payload)
	assert.Equal(t, "ignored", body["status"])
	assert.Equal(t, 0, messages.Pending())
	assert.Equal(t, uint64(1), server.Stats().Ignored)

	withOwn, ownMessages := newTestServer(t, Options{IncludeFromMe: true}, 0)
	_, body = post(t, withOwn.Handler(), "/webhook", payload)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 1, ownMessages.Pending())
}

func TestWebhookDeduplicatesRedeliveries(t *testing.T) {
	server, messages := newTestServer(t, Options{}, 0)
	payload := `{"event":"onmessage","id":"dup","type":"chat","from":"1@c.us","body":"x"}`

	_, first := post(t, server.Handler(), "/webhook", payload)
	_, second := post(t, server.Handler(), "/webhook", payload)

	assert.Equal(t, "ok", first["status"])
	assert.Equal(t, "duplicate", second["status"])
	assert.Equal(t, 1, messages.Pending())

	ack := `{"event":"onack","id":"dup","type":"chat","from":"1@c.us","ack":2}`
	_, third := post(t, server.Handler(), "/webhook", ack)
	assert.Equal(t, "ok", third["status"], "an ack is a distinct event")
}

func TestWebhookIgnoresUnrecognizedPayloads(t *testing.T) {
	server, messages := newTestServer(t, Options{}, 0)

	rec, body := post(t, server.Handler(), "/webhook", `{"event":"unknown_event"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", body["status"])

	rec, _ = post(t, server.Handler(), "/webhook", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, messages.Pending())
	assert.Equal(t, uint64(2), server.Stats().Malformed)
	assert.Equal(t, uint64(2), server.Stats().Received)
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	server, _ := newTestServer(t, Options{MaxBodyBytes: 32}, 0)

	rec, _ := post(t, server.Handler(), "/webhook",
		`{"event":"onmessage","id":"m","type":"chat","body":"`+strings.Repeat("a", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhookDropsWhenQueueFull(t *testing.T) {
	server, messages := newTestServer(t, Options{}, 1)

	_, first := post(t, server.Handler(), "/webhook", `{"event":"onmessage","id":"a","type":"chat","body":"1"}`)
	_, second := post(t, server.Handler(), "/webhook", `{"event":"onmessage","id":"b","type":"chat","body":"2"}`)

	assert.Equal(t, "ok", first["status"])
	assert.Equal(t, "dropped", second["status"])
	assert.Equal(t, uint64(1), messages.Dropped())
	assert.Equal(t, uint64(1), server.Stats().Dropped)
}

func TestWebhookSessionUpdatePublishesEvent(t *testing.T) {
	server, messages := newTestServer(t, Options{Backend: whatsapp.BackendWWebJS, Session: "s1"}, 0)

	events, unsubscribe := messages.SubscribeEvents(context.Background(), 4)
	defer unsubscribe()

	rec, _ := post(t, server.Handler(), "/webhook", `{"sessionId":"s1","dataType":"ready","data":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case event := <-events:
		assert.Equal(t, bus.EventSessionState, event.Type)
		assert.Equal(t, string(whatsapp.StateConnected), event.Payload["state"])
	case <-time.After(time.Second):
		t.Fatal("no session event published")
	}
	assert.Equal(t, 0, messages.Pending())
}

func TestWebhookWWebJSEnvelope(t *testing.T) {
	server, messages := newTestServer(t, Options{Backend: whatsapp.BackendWWebJS}, 0)

	_, body := post(t, server.Handler(), "/webhook", `{"sessionId":"s1","dataType":"message","data":{"message":{
		"id":{"_serialized":"false_2@c.us_ID"},"type":"chat","body":"from wwebjs","from":"2@c.us","fromMe":false}}}`)
	require.Equal(t, "ok", body["status"])

	delivery, ok := messages.ConsumeInbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "from wwebjs", delivery.Message.Chat.Body)
	assert.Equal(t, "2", delivery.Message.Sender)
}

func TestHealthAndReadiness(t *testing.T) {
	server, _ := newTestServer(t, Options{}, 0)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/readyz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestDedupExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	dedup := NewDedup(time.Minute)
	dedup.now = func() time.Time { return now }

	assert.False(t, dedup.IsDuplicate("k"))
	assert.True(t, dedup.IsDuplicate("k"))

	now = now.Add(2 * time.Minute)
	assert.False(t, dedup.IsDuplicate("k"), "expired key is accepted again")
	assert.False(t, dedup.IsDuplicate(""))
	assert.Equal(t, 1, dedup.Len())

	disabled := NewDedup(-1)
	assert.False(t, disabled.IsDuplicate("k"))
	assert.False(t, disabled.IsDuplicate("k"))
}
