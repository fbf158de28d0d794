// Package webhook keeps the vendor's push subscription in line with config.
package webhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmehdipour/sms-bridge/internal/config"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/metrics"
	"github.com/jmehdipour/sms-bridge/internal/model"
)

// RoutePrefix is where the HTTP server mounts vendor callbacks.
const RoutePrefix = "/smsgateway/webhooks"

type Action string

const (
	Created   Action = "created"
	Updated   Action = "updated"
	Unchanged Action = "unchanged"
	Failed    Action = "failed"
)

// API is the vendor's webhook management surface.
type API interface {
	ListWebhooks(ctx context.Context) ([]model.WebhookDescriptor, error)
	CreateWebhook(ctx context.Context, d model.WebhookDescriptor) (model.WebhookDescriptor, error)
	UpdateWebhook(ctx context.Context, d model.WebhookDescriptor) (model.WebhookDescriptor, error)
}

type Reconciler struct {
	api API
	log *logger.Events
}

func NewReconciler(api API, log *logger.Events) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{api: api, log: log}
}

// Ensure makes the vendor hold exactly one webhook matching desired,
// matched by URL. Vendor errors are logged and reported as Failed; they
// never abort the caller.
func (r *Reconciler) Ensure(ctx context.Context, desired model.WebhookDescriptor) Action {
	a := r.ensure(ctx, desired)
	metrics.WebhookReconciles.WithLabelValues(string(a)).Inc()
	return a
}

func (r *Reconciler) ensure(ctx context.Context, desired model.WebhookDescriptor) Action {
	hooks, err := r.api.ListWebhooks(ctx)
	if err != nil {
		r.log.Error("WebhookListFailed", logger.Fields{}, err.Error())
		return Failed
	}

	var existing *model.WebhookDescriptor
	for i := range hooks {
		if hooks[i].URL != desired.URL {
			continue
		}
		if existing != nil {
			r.log.Warning("WebhookDuplicate", logger.Fields{}, fmt.Sprintf("extra webhook %s for %s left alone", hooks[i].ID, desired.URL))
			continue
		}
		existing = &hooks[i]
	}

	if existing == nil {
		created, err := r.api.CreateWebhook(ctx, desired)
		if err != nil {
			r.log.Error("WebhookCreateFailed", logger.Fields{}, err.Error())
			return Failed
		}
		r.log.Info("WebhookCreated", logger.Fields{}, fmt.Sprintf("id=%s url=%s", created.ID, desired.URL))
		return Created
	}

	if existing.Equal(desired) {
		r.log.Info("WebhookUnchanged", logger.Fields{}, fmt.Sprintf("id=%s", existing.ID))
		return Unchanged
	}

	desired.ID = existing.ID
	if _, err := r.api.UpdateWebhook(ctx, desired); err != nil {
		r.log.Error("WebhookUpdateFailed", logger.Fields{}, err.Error())
		return Failed
	}
	r.log.Info("WebhookUpdated", logger.Fields{}, fmt.Sprintf("id=%s url=%s", existing.ID, desired.URL))
	return Updated
}

// HeaderName is the header carrying the callback key for provider.
func HeaderName(provider string) string {
	return "X-" + provider + "-Callback-Key"
}

// CallbackURL is the absolute URL the vendor should call for event.
func CallbackURL(base, provider, event string) string {
	return strings.TrimRight(base, "/") + RoutePrefix + "/" + provider + "/" + event
}

// Desired builds the subscription config asks for.
func Desired(cfg config.Config, callbackKey string) model.WebhookDescriptor {
	w := cfg.Webhook
	headers := make(map[string]string, len(w.Headers)+1)
	for k, v := range w.Headers {
		headers[k] = v
	}
	if callbackKey != "" {
		headers[HeaderName(cfg.SMS.Provider)] = callbackKey
	}

	return model.WebhookDescriptor{
		URL:            CallbackURL(cfg.SMS.CallbackBaseURL, cfg.SMS.Provider, "inbound"),
		Method:         w.Method,
		Encoding:       w.Encoding,
		Events:         w.Events,
		Headers:        headers,
		Template:       w.Template,
		ConnectTimeout: w.ConnectTimeout,
		ReadTimeout:    w.ReadTimeout,
		RetryCount:     w.RetryCount,
	}
}
