// Package etxt sends through the eTXT REST API. Delivery reports and
// inbound messages arrive as webhooks, which eTXT manages through the same
// API.
package etxt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

const Name = "eTXT"

// Callback event names, as they appear in the webhook route.
const (
	EventStatus  = "status"
	EventDLR     = "dlr"
	EventInbound = "inbound"
)

type Opts struct {
	HTTP     provider.HTTPClientOpts
	SenderID string
}

type Provider struct {
	provider.Base
	http     *provider.HTTPClient
	senderID string
	log      *logger.Events
}

func New(o Opts, tracker *status.Tracker, box *inbox.Store, log *logger.Events) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	o.HTTP.Name = Name
	return &Provider{
		Base:     provider.Base{Tracker: tracker, Inbox: box, Log: log},
		http:     provider.NewHTTPClient(o.HTTP),
		senderID: o.SenderID,
		log:      log,
	}
}

func (p *Provider) Name() string { return Name }

type sendReq struct {
	To      string `json:"to"`
	Content string `json:"content"`
	From    string `json:"from,omitempty"`
}

type sendResp struct {
	MessageID string `json:"message_id"`
}

func (p *Provider) Send(ctx context.Context, req model.SendRequest, id model.BridgeID) (model.ProviderID, error) {
	if err := provider.CheckRequest(req); err != nil {
		return "", err
	}

	from := req.SenderID
	if from == "" {
		from = p.senderID
	}

	var res sendResp
	if err := p.http.Do(ctx, "send", http.MethodPost, "/messages", sendReq{To: req.To, Content: req.Body, From: from}, &res); err != nil {
		p.log.Error("SendFailure", logger.Fields{BridgeID: id.String()}, err.Error())
		return "", provider.SendError(err)
	}
	if res.MessageID == "" {
		// callbacks are keyed by the vendor id; without it nothing correlates
		p.log.Error("SendFailure", logger.Fields{BridgeID: id.String()}, "send accepted without a message id")
		return "", fmt.Errorf("%w: etxt returned no message id", provider.ErrUnavailable)
	}

	pid := model.ProviderID(res.MessageID)
	if err := p.Acknowledge(id, pid); err != nil {
		return "", err
	}
	p.log.Info("SendSuccess", logger.Fields{BridgeID: id.String(), ProviderID: pid.String()}, "accepted by etxt")
	return pid, nil
}

type statusCallback struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type inboundCallback struct {
	MessageID  string    `json:"message_id"`
	From       string    `json:"from"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
}

// HandleCallback implements provider.CallbackReceiver. Status reports are
// queued for the tracker; inbound messages go straight to the mailbox. A
// single webhook carries every subscribed event, so a "type" field in the
// payload wins over the event named in the route.
func (p *Provider) HandleCallback(_ context.Context, event string, body []byte) error {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: callback: %v", provider.ErrInvalidRequest, err)
	}
	if env.Type != "" {
		event = env.Type
	}

	switch strings.ToLower(event) {
	case EventStatus, EventDLR:
		var cb statusCallback
		if err := json.Unmarshal(body, &cb); err != nil {
			return fmt.Errorf("%w: status callback: %v", provider.ErrInvalidRequest, err)
		}
		if cb.MessageID == "" {
			return fmt.Errorf("%w: status callback without message_id", provider.ErrInvalidRequest)
		}
		ev := status.Event{
			ProviderID: model.ProviderID(cb.MessageID),
			Status:     provider.MapVendorStatus(cb.Status),
			At:         cb.Timestamp,
		}
		if !ev.Status.Terminal() {
			p.log.Info("StatusUpdate", logger.Fields{ProviderID: cb.MessageID}, "non-final status "+cb.Status)
			return nil
		}
		if !p.Tracker.Notify(ev) {
			return fmt.Errorf("%w: status queue full", provider.ErrUnavailable)
		}
		return nil

	case EventInbound:
		if p.Inbox == nil {
			return provider.ErrNotImplemented
		}
		var cb inboundCallback
		if err := json.Unmarshal(body, &cb); err != nil {
			return fmt.Errorf("%w: inbound callback: %v", provider.ErrInvalidRequest, err)
		}
		p.Inbox.Add(inbox.Inbound{
			ProviderID: model.ProviderID(cb.MessageID),
			From:       cb.From,
			Text:       cb.Content,
			ReceivedAt: cb.ReceivedAt,
		})
		return nil
	}
	return fmt.Errorf("%w: unknown callback event %q", provider.ErrInvalidRequest, event)
}

func escape(id string) string { return url.PathEscape(id) }

func (p *Provider) Healthy() (bool, string) { return p.http.Healthy() }
