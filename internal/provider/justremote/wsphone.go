package justremote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jmehdipour/sms-bridge/internal/logger"
)

const eventBuffer = 256

// frame is the JSON message exchanged with the phone app.
type frame struct {
	Type      string            `json:"type"`
	App       string            `json:"app,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Numbers   []string          `json:"numbers,omitempty"`
	Text      string            `json:"text,omitempty"`
	Results   map[string]string `json:"results,omitempty"`
	Number    string            `json:"number,omitempty"`
	Label     string            `json:"contact_label,omitempty"`
	State     string            `json:"state,omitempty"`
}

const (
	frameHello      = "hello"
	frameSendSMS    = "send_sms"
	frameSendResult = "sms_send_result"
	frameReceived   = "sms_received"
	frameState      = "state"
)

// WSPhone reaches the phone app over a websocket.
type WSPhone struct {
	url string
	app string
	log *logger.Events

	mu   sync.Mutex
	conn *websocket.Conn

	events chan PhoneEvent
}

func NewWSPhone(url, app string, log *logger.Events) *WSPhone {
	if log == nil {
		log = logger.Nop()
	}
	return &WSPhone{url: url, app: app, log: log, events: make(chan PhoneEvent, eventBuffer)}
}

func (p *WSPhone) Events() <-chan PhoneEvent { return p.events }

func (p *WSPhone) Connect(ctx context.Context) error {
	c, _, err := websocket.Dial(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.url, err)
	}
	if err := wsjson.Write(ctx, c, frame{Type: frameHello, App: p.app}); err != nil {
		_ = c.Close(websocket.StatusInternalError, "hello failed")
		return fmt.Errorf("hello: %w", err)
	}

	p.mu.Lock()
	old := p.conn
	p.conn = c
	p.mu.Unlock()
	if old != nil {
		_ = old.Close(websocket.StatusNormalClosure, "replaced")
	}

	go p.readLoop(c)
	return nil
}

func (p *WSPhone) SendSMS(ctx context.Context, numbers []string, text string) (string, error) {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return "", ErrNotConnected
	}

	rid := uuid.NewString()
	if err := wsjson.Write(ctx, c, frame{Type: frameSendSMS, RequestID: rid, Numbers: numbers, Text: text}); err != nil {
		return "", fmt.Errorf("send_sms: %w", err)
	}
	return rid, nil
}

func (p *WSPhone) Close() error {
	p.mu.Lock()
	c := p.conn
	p.conn = nil
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close(websocket.StatusNormalClosure, "closing")
}

func (p *WSPhone) readLoop(c *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(context.Background(), c, &f); err != nil {
			p.mu.Lock()
			current := p.conn == c
			if current {
				p.conn = nil
			}
			p.mu.Unlock()
			if current {
				p.log.Warning("PhoneDisconnected", logger.Fields{}, err.Error())
				p.emit(PhoneEvent{Kind: EventStateChanged, Connected: false, At: time.Now()})
			}
			return
		}

		switch f.Type {
		case frameSendResult:
			p.emit(PhoneEvent{Kind: EventSendResult, RequestID: f.RequestID, Results: f.Results, At: time.Now()})
		case frameReceived:
			p.emit(PhoneEvent{Kind: EventReceived, From: f.Number, Label: f.Label, Text: f.Text, At: time.Now()})
		case frameState:
			p.emit(PhoneEvent{Kind: EventStateChanged, Connected: strings.EqualFold(f.State, "connected"), At: time.Now()})
		default:
			p.log.Warning("UnknownFrame", logger.Fields{}, "ignored frame type "+f.Type)
		}
	}
}

func (p *WSPhone) emit(ev PhoneEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Error("PhoneEventDropped", logger.Fields{ProviderID: ev.RequestID}, "event buffer full")
	}
}
