package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/dispatcher"
	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/service/gateway"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

type fakeVendor struct {
	provider.Base
	n int
}

func (f *fakeVendor) Name() string { return "eTXT" }

func (f *fakeVendor) Send(_ context.Context, req model.SendRequest, id model.BridgeID) (model.ProviderID, error) {
	if err := provider.CheckRequest(req); err != nil {
		return "", err
	}
	f.n++
	pid := model.ProviderID("e-" + req.To)
	if err := f.Acknowledge(id, pid); err != nil {
		return "", err
	}
	return pid, nil
}

func (f *fakeVendor) HandleCallback(_ context.Context, event string, body []byte) error {
	var cb struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &cb); err != nil {
		return provider.ErrInvalidRequest
	}
	f.Tracker.Apply(status.Event{ProviderID: model.ProviderID(cb.MessageID), Status: provider.MapVendorStatus(cb.Status)})
	return nil
}

type env struct {
	srv    *Server
	queue  *dispatcher.Dispatcher
	box    *inbox.Store
	vendor *fakeVendor
}

func newEnv(t *testing.T, mutate func(*config.Config)) *env {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.SMS.Provider = "etxt"
	cfg.HTTP.APIKey = "k"
	cfg.ETxt.CallbackKey = "cb"
	if mutate != nil {
		mutate(&cfg)
	}

	tr := status.NewTracker(status.Config{Timeout: time.Hour}, nil)
	t.Cleanup(tr.Close)
	box := inbox.New(filepath.Join(t.TempDir(), "in.json"), nil)
	v := &fakeVendor{Base: provider.Base{Tracker: tr, Inbox: box}}
	q := dispatcher.New(v, dispatcher.Config{BatchSize: 10}, nil)
	t.Cleanup(q.Close)

	svc := gateway.New(v, q, gateway.Config{}, nil)
	return &env{srv: NewServer(Deps{Config: cfg, Gateway: svc}), queue: q, box: box, vendor: v}
}

func (e *env) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

var auth = map[string]string{"X-API-Key": "k"}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSendStatusFlow(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodPost, "/smsgateway/send-sms", `{"to":"+6421","body":"hi"}`, auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	id := out["sms_bridge_id"].(string)
	require.NotEmpty(t, id)

	rec = e.do(http.MethodGet, "/smsgateway/provider-id/"+id, "", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = e.do(http.MethodGet, "/smsgateway/sms-status/"+id, "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode(t, rec)["status"])

	e.queue.Drain(context.Background())

	rec = e.do(http.MethodGet, "/smsgateway/provider-id/"+id, "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "e-+6421", decode(t, rec)["provider_id"])

	rec = e.do(http.MethodPost, "/smsgateway/webhooks/etxt/status", `{"message_id":"e-+6421","status":"delivered"}`,
		map[string]string{"X-etxt-Callback-Key": "cb"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/smsgateway/sms-status/"+id, "", auth)
	assert.Equal(t, "delivered", decode(t, rec)["status"])

	rec = e.do(http.MethodGet, "/smsgateway/recent-statuses?window=2h", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []model.StatusRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusDelivered, recs[0].Status)
}

func TestSend_Errors(t *testing.T) {
	e := newEnv(t, nil)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/smsgateway/send-sms", `{"to":"+1","body":"x"}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/smsgateway/send-sms", `{"to":"+1,+2","body":"x"}`, auth).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/smsgateway/send-sms", `{"to":"+1"}`, auth).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/smsgateway/sms-status/not-an-id", "", auth).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/smsgateway/sms-status/"+model.NewBridgeID().String(), "", auth).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/smsgateway/recent-statuses?window=soon", "", auth).Code)

	e.queue.Close()
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodPost, "/smsgateway/send-sms", `{"to":"+1","body":"x"}`, auth).Code)
}

func TestWebhook_Auth(t *testing.T) {
	e := newEnv(t, nil)
	body := `{"message_id":"x","status":"delivered"}`

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/smsgateway/webhooks/etxt/status", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/smsgateway/webhooks/etxt/status", body,
		map[string]string{"X-etxt-Callback-Key": "nope"}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/smsgateway/webhooks/diafaan/status", body,
		map[string]string{"X-diafaan-Callback-Key": "cb"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/smsgateway/webhooks/etxt/status", "{",
		map[string]string{"X-etxt-Callback-Key": "cb"}).Code)
}

func TestReceived_ListAndDelete(t *testing.T) {
	e := newEnv(t, nil)
	msg := e.box.Add(inbox.Inbound{From: "+64999", Text: "hello"})
	other := e.box.Add(inbox.Inbound{From: "+64888", Text: "again"})

	rec := e.do(http.MethodGet, "/smsgateway/received-sms", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []model.ReceivedMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	assert.Len(t, msgs, 2)

	rec = e.do(http.MethodDelete, "/smsgateway/received-sms/"+msg.BridgeID.String(), "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["deleted"])

	rec = e.do(http.MethodDelete, "/smsgateway/received-sms/"+msg.BridgeID.String(), "", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["deleted"])

	// legacy route
	rec = e.do(http.MethodGet, "/smsgateway/delete-received-sms/"+other.BridgeID.String(), "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, e.box.Len())
}

func TestGatewayAndArchiveStatus(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(http.MethodGet, "/smsgateway/gateway-status", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "up", out["gateway"])
	assert.Equal(t, "eTXT", out["provider"])

	assert.Equal(t, http.StatusNotImplemented, e.do(http.MethodGet, "/smsgateway/status-archive", "", auth).Code)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestTestingEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/smsgateway/test/send-sms", "", auth).Code)

	e = newEnv(t, func(c *config.Config) {
		c.Testing.Debug = true
		c.Testing.PhoneNumber = "+6421000"
		c.Testing.AllowedNumbers = []string{"+6421000"}
	})

	rec := e.do(http.MethodGet, "/smsgateway/test/send-sms", "", auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, e.queue.Len())

	rec = e.do(http.MethodGet, "/smsgateway/test/debug-status", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["debug"])
	assert.Equal(t, []any{"+6421000"}, out["allowed_numbers"])

	// debug mode only sends to allowed numbers
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/smsgateway/send-sms", `{"to":"+1","body":"x"}`, auth).Code)
	assert.Equal(t, http.StatusAccepted, e.do(http.MethodPost, "/smsgateway/send-sms", `{"to":"+6421000","body":"x"}`, auth).Code)
}
