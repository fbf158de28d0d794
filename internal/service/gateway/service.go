// Package gateway is what callers talk to: sends go through the dispatcher
// queue, everything else through the configured provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/dispatcher"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/provider"
	"github.com/jmehdipour/sms-bridge/internal/util"
)

// Notification sources for sends that never reached the vendor.
const (
	SourceSendFailed = "send_failed"
	SourceCancelled  = "cancelled"
)

type Config struct {
	CountryCode   string        // for phone normalisation
	NotifyTimeout time.Duration // caller callback POSTs
}

// Health is the gateway-status payload.
type Health struct {
	Provider string `json:"provider"`
	Healthy  bool   `json:"healthy"`
	Detail   string `json:"detail,omitempty"`
	Queued   int    `json:"queued"`
}

type Service struct {
	p           provider.Provider
	q           *dispatcher.Dispatcher
	log         *logger.Events
	countryCode string
	notify      *notifier
}

func New(p provider.Provider, q *dispatcher.Dispatcher, cfg Config, log *logger.Events) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		p:           p,
		q:           q,
		log:         log,
		countryCode: cfg.CountryCode,
		notify:      newNotifier(cfg.NotifyTimeout, log),
	}
}

func (s *Service) ProviderName() string { return s.p.Name() }

// Send validates and queues req. The returned id is usable immediately;
// the vendor is contacted on the next drain.
func (s *Service) Send(_ context.Context, req model.SendRequest) (model.BridgeID, error) {
	// validate before normalising, which would strip list separators
	if err := provider.CheckRequest(req); err != nil {
		return model.BridgeID{}, err
	}
	req.To = util.NormalizePhone(req.To, s.countryCode)

	id, err := s.q.Enqueue(req)
	if err != nil {
		return model.BridgeID{}, err
	}
	if req.CallbackURL != "" {
		s.notify.watch(id, req.CallbackURL)
		// a drain may have finished the item before the watch was set
		if st, ok := s.q.State(id); ok && st != dispatcher.Acknowledged && st.Terminal() {
			s.OnQueueFinal(id, st)
		}
	}
	return id, nil
}

// Status answers from the local queue until the vendor has acknowledged
// the send, then from the provider.
func (s *Service) Status(ctx context.Context, id model.BridgeID) (model.MessageStatus, error) {
	if st, ok := s.q.State(id); ok {
		switch st {
		case dispatcher.Queued, dispatcher.InFlight:
			return model.StatusPending, nil
		case dispatcher.SendFailed, dispatcher.Cancelled:
			return model.StatusFailed, nil
		}
	}
	return s.p.Status(ctx, id)
}

func (s *Service) ProviderID(ctx context.Context, id model.BridgeID) (model.ProviderID, error) {
	if st, ok := s.q.State(id); ok && !st.Terminal() {
		return "", fmt.Errorf("%w: %s not sent yet", provider.ErrNotFound, id)
	}
	return s.p.ProviderID(ctx, id)
}

func (s *Service) ReceivedMessages(ctx context.Context) ([]model.ReceivedMessage, error) {
	return s.p.ReceivedMessages(ctx)
}

func (s *Service) DeleteReceivedMessage(ctx context.Context, id model.BridgeID) error {
	return s.p.DeleteReceivedMessage(ctx, id)
}

func (s *Service) RecentStatuses(ctx context.Context, window time.Duration) ([]model.StatusRecord, error) {
	return s.p.RecentStatuses(ctx, window)
}

// HandleCallback hands a vendor push to the provider.
func (s *Service) HandleCallback(ctx context.Context, event string, body []byte) error {
	cr, ok := s.p.(provider.CallbackReceiver)
	if !ok {
		return fmt.Errorf("%w: %s does not accept callbacks", provider.ErrNotImplemented, s.p.Name())
	}
	return cr.HandleCallback(ctx, event, body)
}

func (s *Service) Provider() provider.Provider { return s.p }

func (s *Service) Health() Health {
	h := Health{Provider: s.p.Name(), Healthy: true, Queued: s.q.Len()}
	if hr, ok := s.p.(provider.HealthReporter); ok {
		h.Healthy, h.Detail = hr.Healthy()
	}
	return h
}

// OnResolve is the tracker hook: it tells the caller, when they asked.
func (s *Service) OnResolve(rec model.StatusRecord, source string) {
	s.notify.resolved(rec, source)
}

// OnQueueFinal is the dispatcher hook. Items that never reached the vendor
// have no tracker record, so their caller is told "failed" from here.
func (s *Service) OnQueueFinal(id model.BridgeID, st dispatcher.ItemState) {
	var source string
	switch st {
	case dispatcher.SendFailed:
		source = SourceSendFailed
	case dispatcher.Cancelled:
		source = SourceCancelled
	default:
		return
	}
	s.notify.resolved(model.StatusRecord{
		BridgeID: id,
		Status:   model.StatusFailed,
		StatusAt: time.Now(),
	}, source)
}

// Prune forgets finished queue items and unanswered callback URLs older
// than before.
func (s *Service) Prune(before time.Time) int {
	n := s.q.Prune(before)
	s.notify.prune(before)
	return n
}

// Wait blocks until caller notifications already started have finished.
func (s *Service) Wait() { s.notify.wait() }

// IsClosed reports whether err means the queue no longer accepts sends.
func IsClosed(err error) bool { return errors.Is(err, dispatcher.ErrClosed) }
