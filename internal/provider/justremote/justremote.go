// Package justremote drives an Android phone running the JustRemotePhone
// app. Sends go out over the phone's session; send results and inbound
// texts come back on the same session and are handled by Run.
package justremote

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

const Name = "JustRemotePhone"

const resultOK = "ok"

type Provider struct {
	provider.Base
	phone   Phone
	session *Session
	log     *logger.Events
}

func New(phone Phone, session *Session, tracker *status.Tracker, box *inbox.Store, log *logger.Events) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &Provider{
		Base:    provider.Base{Tracker: tracker, Inbox: box, Log: log},
		phone:   phone,
		session: session,
		log:     log,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Session() *Session { return p.session }

func (p *Provider) Send(ctx context.Context, req model.SendRequest, id model.BridgeID) (model.ProviderID, error) {
	if err := provider.CheckRequest(req); err != nil {
		return "", err
	}

	if !p.session.EnsureConnected(ctx) {
		p.log.Error("SendFailure", logger.Fields{BridgeID: id.String()}, "phone not connected")
		return "", fmt.Errorf("%w: %v", provider.ErrUnavailable, ErrNotConnected)
	}

	rid, err := p.phone.SendSMS(ctx, []string{req.To}, req.Body)
	if err != nil {
		p.log.Error("SendFailure", logger.Fields{BridgeID: id.String()}, err.Error())
		return "", fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}

	pid := model.ProviderID(rid)
	if err := p.Acknowledge(id, pid); err != nil {
		return "", err
	}
	p.log.Info("SendSuccess", logger.Fields{BridgeID: id.String(), ProviderID: rid}, "handed to phone")
	return pid, nil
}

// Run connects the phone and consumes its events until ctx is done.
func (p *Provider) Run(ctx context.Context) error {
	go p.session.EnsureConnected(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = p.phone.Close()
			p.session.SetConnected(false)
			return nil
		case ev := <-p.phone.Events():
			p.handle(ev)
		}
	}
}

func (p *Provider) handle(ev PhoneEvent) {
	switch ev.Kind {
	case EventStateChanged:
		p.session.SetConnected(ev.Connected)

	case EventSendResult:
		st := resultStatus(ev.Results)
		for number, res := range ev.Results {
			p.log.Info("SMSSendResult", logger.Fields{ProviderID: ev.RequestID}, fmt.Sprintf("%s: %s", number, res))
		}
		p.Tracker.Notify(status.Event{ProviderID: model.ProviderID(ev.RequestID), Status: st, At: ev.At})

	case EventReceived:
		if p.Inbox == nil {
			p.log.Warning("SMSReceived", logger.Fields{}, "no mailbox configured, inbound message dropped")
			return
		}
		// the phone never supplies a message id
		p.Inbox.Add(inbox.Inbound{From: ev.From, Label: ev.Label, Text: ev.Text, ReceivedAt: ev.At})
	}
}

// resultStatus is Delivered only when every recipient reported ok.
func resultStatus(results map[string]string) model.MessageStatus {
	if len(results) == 0 {
		return model.StatusFailed
	}
	for _, r := range results {
		if !strings.EqualFold(r, resultOK) {
			return model.StatusFailed
		}
	}
	return model.StatusDelivered
}

func (p *Provider) Healthy() (bool, string) {
	if p.session.Connected() {
		return true, "phone connected"
	}
	return false, "phone disconnected"
}
