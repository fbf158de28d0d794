package justremote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/logger"
)

var ErrNotConnected = errors.New("phone not connected")

const (
	DefaultReconnectWindow  = 10 * time.Second
	DefaultReconnectBackoff = 2 * time.Second
)

type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventSendResult
	EventReceived
)

// PhoneEvent is something the phone reported. Which fields are set depends
// on Kind.
type PhoneEvent struct {
	Kind      EventKind
	Connected bool
	RequestID string
	Results   map[string]string // number -> result
	From      string
	Label     string
	Text      string
	At        time.Time
}

// Phone is the remote handset. Connect is synchronous; state changes that
// happen later (the phone going away) arrive on Events.
type Phone interface {
	Connect(ctx context.Context) error
	SendSMS(ctx context.Context, numbers []string, text string) (requestID string, err error)
	Events() <-chan PhoneEvent
	Close() error
}

// Session owns the phone connection. Connected is a flag plus a generation
// counter that increments on every transition, so callers can tell a
// reconnect happened between two reads.
type Session struct {
	phone   Phone
	window  time.Duration
	backoff time.Duration
	log     *logger.Events

	connected  atomic.Bool
	generation atomic.Uint64

	connectMu sync.Mutex
}

func NewSession(phone Phone, window, backoff time.Duration, log *logger.Events) *Session {
	if window <= 0 {
		window = DefaultReconnectWindow
	}
	if backoff <= 0 {
		backoff = DefaultReconnectBackoff
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Session{phone: phone, window: window, backoff: backoff, log: log}
}

func (s *Session) Connected() bool { return s.connected.Load() }

func (s *Session) Generation() uint64 { return s.generation.Load() }

// SetConnected records a state change reported by the phone.
func (s *Session) SetConnected(v bool) {
	if s.connected.Swap(v) == v {
		return
	}
	s.generation.Add(1)
	state := "disconnected"
	if v {
		state = "connected"
	}
	s.log.Info("ApplicationStateChanged", logger.Fields{}, "phone "+state)
}

// EnsureConnected returns true when the phone is connected, dialling it
// until the reconnect window runs out. Concurrent callers share one
// connect loop.
func (s *Session) EnsureConnected(ctx context.Context) bool {
	if s.connected.Load() {
		return true
	}

	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if s.connected.Load() {
		return true
	}

	deadline := time.Now().Add(s.window)
	for attempt := 1; ; attempt++ {
		err := s.phone.Connect(ctx)
		if err == nil {
			s.SetConnected(true)
			return true
		}
		s.log.Warning("ConnectAttemptFailed", logger.Fields{}, fmt.Sprintf("attempt %d: %v", attempt, err))

		if time.Now().Add(s.backoff).After(deadline) {
			break
		}
		t := time.NewTimer(s.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Error("ConnectionTimeout", logger.Fields{}, ctx.Err().Error())
			return false
		case <-t.C:
		}
	}

	s.log.Error("ConnectionTimeout", logger.Fields{}, fmt.Sprintf("phone unreachable after %s", s.window))
	return false
}

// Reconnect drops the current connection and dials again.
func (s *Session) Reconnect(ctx context.Context) bool {
	_ = s.phone.Close()
	s.SetConnected(false)
	return s.EnsureConnected(ctx)
}
