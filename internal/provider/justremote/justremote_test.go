package justremote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

type fakePhone struct {
	mu           sync.Mutex
	failConnects int
	connects     int
	closes       int
	sent         [][]string
	events       chan PhoneEvent
}

func newFakePhone(failConnects int) *fakePhone {
	return &fakePhone{failConnects: failConnects, events: make(chan PhoneEvent, 16)}
}

func (f *fakePhone) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failConnects < 0 || f.connects <= f.failConnects {
		return errors.New("phone offline")
	}
	return nil
}

func (f *fakePhone) SendSMS(_ context.Context, numbers []string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, numbers)
	return "req-" + numbers[0], nil
}

func (f *fakePhone) Events() <-chan PhoneEvent { return f.events }

func (f *fakePhone) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakePhone) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func TestSession_RetriesWithinWindow(t *testing.T) {
	phone := newFakePhone(2)
	s := NewSession(phone, time.Second, 5*time.Millisecond, nil)

	require.True(t, s.EnsureConnected(context.Background()))
	assert.Equal(t, 3, phone.connectCount())
	assert.True(t, s.Connected())
	assert.Equal(t, uint64(1), s.Generation())

	// already connected: no dial
	require.True(t, s.EnsureConnected(context.Background()))
	assert.Equal(t, 3, phone.connectCount())
}

func TestSession_GivesUpAfterWindow(t *testing.T) {
	phone := newFakePhone(-1)
	s := NewSession(phone, 40*time.Millisecond, 10*time.Millisecond, nil)

	start := time.Now()
	assert.False(t, s.EnsureConnected(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, phone.connectCount(), 2)
	assert.False(t, s.Connected())
	assert.Equal(t, uint64(0), s.Generation())
}

func TestSession_Reconnect(t *testing.T) {
	phone := newFakePhone(0)
	s := NewSession(phone, time.Second, time.Millisecond, nil)
	require.True(t, s.EnsureConnected(context.Background()))

	require.True(t, s.Reconnect(context.Background()))
	assert.Equal(t, 2, phone.connectCount())
	assert.Equal(t, uint64(3), s.Generation())
	assert.Equal(t, 1, phone.closes)
}

func newTestProvider(t *testing.T, phone *fakePhone) (*Provider, *status.Tracker, *inbox.Store) {
	t.Helper()
	tr := status.NewTracker(status.Config{Timeout: time.Hour}, nil)
	t.Cleanup(tr.Close)
	box := inbox.New(filepath.Join(t.TempDir(), "phone_received_sms.json"), nil)
	s := NewSession(phone, 30*time.Millisecond, 5*time.Millisecond, nil)
	return New(phone, s, tr, box, nil), tr, box
}

func TestSend_PhoneUnreachable(t *testing.T) {
	phone := newFakePhone(-1)
	p, tr, _ := newTestProvider(t, phone)

	_, err := p.Send(context.Background(), model.SendRequest{To: "+64211", Body: "x"}, model.NewBridgeID())
	assert.ErrorIs(t, err, provider.ErrUnavailable)
	assert.Empty(t, phone.sent)
	assert.Equal(t, 0, tr.Len())
}

func TestSend_ResultAndInbound(t *testing.T) {
	phone := newFakePhone(0)
	p, tr, _ := newTestProvider(t, phone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tr.Run(ctx) }()
	go func() { _ = p.Run(ctx) }()

	id := model.NewBridgeID()
	pid, err := p.Send(ctx, model.SendRequest{To: "+64211", Body: "hello"}, id)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderID("req-+64211"), pid)

	phone.events <- PhoneEvent{Kind: EventSendResult, RequestID: pid.String(), Results: map[string]string{"+64211": "Ok"}}
	phone.events <- PhoneEvent{Kind: EventReceived, From: "+64999", Label: "Bob", Text: "hey"}

	assert.Eventually(t, func() bool {
		st, _ := p.Status(ctx, id)
		return st == model.StatusDelivered
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		msgs, _ := p.ReceivedMessages(ctx)
		return len(msgs) == 1
	}, time.Second, 5*time.Millisecond)

	msgs, _ := p.ReceivedMessages(ctx)
	assert.True(t, msgs[0].ProviderID.Synthesized())
	assert.Equal(t, "+64999", msgs[0].FromNumber)
}

func TestResultStatus(t *testing.T) {
	assert.Equal(t, model.StatusDelivered, resultStatus(map[string]string{"a": "OK", "b": "ok"}))
	assert.Equal(t, model.StatusFailed, resultStatus(map[string]string{"a": "ok", "b": "NoService"}))
	assert.Equal(t, model.StatusFailed, resultStatus(nil))
}

// phoneServer plays the phone app: it answers every send_sms with an ok
// result and then pushes one inbound text.
func phoneServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		var hello frame
		if err := wsjson.Read(ctx, c, &hello); err != nil {
			return
		}
		assert.Equal(t, frameHello, hello.Type)
		assert.Equal(t, "sms-bridge", hello.App)

		var send frame
		if err := wsjson.Read(ctx, c, &send); err != nil {
			return
		}
		assert.Equal(t, frameSendSMS, send.Type)
		_ = wsjson.Write(ctx, c, frame{Type: frameSendResult, RequestID: send.RequestID, Results: map[string]string{send.Numbers[0]: "ok"}})
		_ = wsjson.Write(ctx, c, frame{Type: frameReceived, Number: "+64999", Label: "Ann", Text: "pong"})
	}))
}

func TestWSPhone(t *testing.T) {
	server := phoneServer(t)
	defer server.Close()

	phone := NewWSPhone("ws"+strings.TrimPrefix(server.URL, "http"), "sms-bridge", nil)
	defer phone.Close()

	_, err := phone.SendSMS(context.Background(), []string{"+1"}, "x")
	assert.ErrorIs(t, err, ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, phone.Connect(ctx))

	rid, err := phone.SendSMS(ctx, []string{"+6421"}, "ping")
	require.NoError(t, err)
	require.NotEmpty(t, rid)

	next := func() PhoneEvent {
		select {
		case ev := <-phone.Events():
			return ev
		case <-ctx.Done():
			t.Fatal("no event from phone")
			return PhoneEvent{}
		}
	}

	ev := next()
	assert.Equal(t, EventSendResult, ev.Kind)
	assert.Equal(t, rid, ev.RequestID)
	assert.Equal(t, "ok", ev.Results["+6421"])

	ev = next()
	assert.Equal(t, EventReceived, ev.Kind)
	assert.Equal(t, "+64999", ev.From)
	assert.Equal(t, "pong", ev.Text)

	// server hangs up after its script
	ev = next()
	assert.Equal(t, EventStateChanged, ev.Kind)
	assert.False(t, ev.Connected)
}
