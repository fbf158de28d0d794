package provider

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/model"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnavailable    = errors.New("sms service unavailable")
	ErrNotImplemented = errors.New("not implemented for this provider")
	ErrNotFound       = errors.New("not found")
	ErrRejected       = errors.New("rejected by vendor")
)

// Provider is the uniform surface every vendor backend presents. Send only
// reports protocol-level acceptance; delivery is tracked separately and
// read back through Status.
type Provider interface {
	Name() string
	Send(ctx context.Context, req model.SendRequest, id model.BridgeID) (model.ProviderID, error)
	Status(ctx context.Context, id model.BridgeID) (model.MessageStatus, error)
	ProviderID(ctx context.Context, id model.BridgeID) (model.ProviderID, error)
	ReceivedMessages(ctx context.Context) ([]model.ReceivedMessage, error)
	DeleteReceivedMessage(ctx context.Context, id model.BridgeID) error
	RecentStatuses(ctx context.Context, window time.Duration) ([]model.StatusRecord, error)
}

// CallbackReceiver is implemented by vendors that push events (delivery
// reports, inbound messages) over HTTP webhooks or the kafka callback topic.
type CallbackReceiver interface {
	HandleCallback(ctx context.Context, event string, body []byte) error
}

// Runner is implemented by vendors that hold a background session.
type Runner interface {
	Run(ctx context.Context) error
}

// HealthReporter is implemented by vendors that can tell whether a send
// would reach them right now.
type HealthReporter interface {
	Healthy() (ok bool, detail string)
}
