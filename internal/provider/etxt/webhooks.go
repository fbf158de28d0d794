package etxt

import (
	"context"
	"net/http"

	"github.com/jmehdipour/sms-bridge/internal/model"
)

type wireTimeouts struct {
	Connect int `json:"connect"`
	Read    int `json:"read"`
}

type wireWebhook struct {
	ID       string            `json:"id,omitempty"`
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Encoding string            `json:"encoding"`
	Events   []string          `json:"events"`
	Headers  map[string]string `json:"headers,omitempty"`
	Template string            `json:"template,omitempty"`
	Timeouts wireTimeouts      `json:"timeouts"`
	Retries  int               `json:"retries"`
}

func toWire(d model.WebhookDescriptor) wireWebhook {
	return wireWebhook{
		ID:       d.ID,
		URL:      d.URL,
		Method:   d.Method,
		Encoding: d.Encoding,
		Events:   d.Events,
		Headers:  d.Headers,
		Template: d.Template,
		Timeouts: wireTimeouts{Connect: d.ConnectTimeout, Read: d.ReadTimeout},
		Retries:  d.RetryCount,
	}
}

func (w wireWebhook) descriptor() model.WebhookDescriptor {
	return model.WebhookDescriptor{
		ID:             w.ID,
		URL:            w.URL,
		Method:         w.Method,
		Encoding:       w.Encoding,
		Events:         w.Events,
		Headers:        w.Headers,
		Template:       w.Template,
		ConnectTimeout: w.Timeouts.Connect,
		ReadTimeout:    w.Timeouts.Read,
		RetryCount:     w.Retries,
	}
}

// ListWebhooks returns every webhook registered on the account.
func (p *Provider) ListWebhooks(ctx context.Context) ([]model.WebhookDescriptor, error) {
	var res struct {
		Webhooks []wireWebhook `json:"webhooks"`
	}
	if err := p.http.Do(ctx, "webhook_list", http.MethodGet, "/webhooks", nil, &res); err != nil {
		return nil, err
	}
	out := make([]model.WebhookDescriptor, 0, len(res.Webhooks))
	for _, w := range res.Webhooks {
		out = append(out, w.descriptor())
	}
	return out, nil
}

func (p *Provider) CreateWebhook(ctx context.Context, d model.WebhookDescriptor) (model.WebhookDescriptor, error) {
	in := toWire(d)
	in.ID = ""
	var res wireWebhook
	if err := p.http.Do(ctx, "webhook_create", http.MethodPost, "/webhooks", in, &res); err != nil {
		return model.WebhookDescriptor{}, err
	}
	return res.descriptor(), nil
}

func (p *Provider) UpdateWebhook(ctx context.Context, d model.WebhookDescriptor) (model.WebhookDescriptor, error) {
	var res wireWebhook
	if err := p.http.Do(ctx, "webhook_update", http.MethodPut, "/webhooks/"+escape(d.ID), toWire(d), &res); err != nil {
		return model.WebhookDescriptor{}, err
	}
	return res.descriptor(), nil
}
