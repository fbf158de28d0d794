// Package diafaan talks to a Diafaan SMS server over its HTTP API. The
// server never pushes delivery reports, so status is polled on demand.
package diafaan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

const Name = "Diafaan"

var errNoVendorID = errors.New("message has no diafaan id")

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

func New(o Opts, tracker *status.Tracker, log *logger.Events) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	o.HTTP.Name = Name
	p := &Provider{
		http:     provider.NewHTTPClient(o.HTTP),
		senderID: o.SenderID,
		log:      log,
	}
	p.Base = provider.Base{Tracker: tracker, Log: log}
	p.Base.Poller = p
	return p
}

func (p *Provider) Name() string { return Name }

type sendReq struct {
	To      string `json:"to"`
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
}

type sendResp struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type statusResp struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
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
	err := p.http.Do(ctx, "send", http.MethodPost, "/api/messages", sendReq{To: req.To, Message: req.Body, From: from}, &res)
	if err != nil {
		p.log.Error("SendFailure", logger.Fields{BridgeID: id.String()}, err.Error())
		return "", provider.SendError(err)
	}

	pid := model.ProviderID(res.MessageID)
	if pid.IsZero() {
		pid = model.SynthesizeProviderID()
		p.log.Warning("MissingProviderID", logger.Fields{BridgeID: id.String(), ProviderID: pid.String()},
			"send accepted without a message id, status polling will not resolve it")
	}
	if err := p.Acknowledge(id, pid); err != nil {
		return "", err
	}
	p.log.Info("SendSuccess", logger.Fields{BridgeID: id.String(), ProviderID: pid.String()}, "accepted by diafaan")
	return pid, nil
}

// PollStatus implements status.Poller.
func (p *Provider) PollStatus(ctx context.Context, pid model.ProviderID) (model.MessageStatus, error) {
	if pid.Synthesized() {
		return model.StatusPending, errNoVendorID
	}
	var res statusResp
	if err := p.http.Do(ctx, "status", http.MethodGet, "/api/messages/"+url.PathEscape(pid.String()), nil, &res); err != nil {
		return model.StatusPending, fmt.Errorf("poll %s: %w", pid, err)
	}
	return provider.MapVendorStatus(res.Status), nil
}

func (p *Provider) Healthy() (bool, string) { return p.http.Healthy() }
