package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/inbox"
	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/status"
)

// Base implements the read side of Provider on top of the shared status
// tracker and mailbox. Vendors embed it and add Send.
type Base struct {
	Tracker *status.Tracker
	Inbox   *inbox.Store  // nil when the vendor cannot receive
	Poller  status.Poller // set for vendors that never push delivery reports
	Log     *logger.Events
}

func (b *Base) events() *logger.Events {
	if b.Log == nil {
		return logger.Nop()
	}
	return b.Log
}

func (b *Base) Status(ctx context.Context, id model.BridgeID) (model.MessageStatus, error) {
	var (
		st  model.MessageStatus
		err error
	)
	if b.Poller != nil {
		st, err = b.Tracker.Poll(ctx, id, b.Poller)
	} else {
		st, err = b.Tracker.Status(id)
	}
	if errors.Is(err, status.ErrNotFound) {
		b.events().Warning("UnknownMessageStatus", logger.Fields{BridgeID: id.String()}, "status check for unknown message id")
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st, err
}

func (b *Base) ProviderID(_ context.Context, id model.BridgeID) (model.ProviderID, error) {
	pid, err := b.Tracker.ProviderID(id)
	if errors.Is(err, status.ErrNotFound) {
		b.events().Warning("UnknownProviderID", logger.Fields{BridgeID: id.String()}, "no acknowledged send for this id")
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return pid, err
}

func (b *Base) ReceivedMessages(_ context.Context) ([]model.ReceivedMessage, error) {
	if b.Inbox == nil {
		b.events().Warning("NotImplemented", logger.Fields{}, "receive messages attempted but provider cannot receive")
		return []model.ReceivedMessage{}, nil
	}
	return b.Inbox.List(), nil
}

func (b *Base) DeleteReceivedMessage(_ context.Context, id model.BridgeID) error {
	if b.Inbox == nil {
		b.events().Warning("NotImplemented", logger.Fields{BridgeID: id.String()}, "delete message attempted but provider cannot receive")
		return ErrNotImplemented
	}
	if err := b.Inbox.Delete(id); err != nil {
		if errors.Is(err, inbox.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	return nil
}

func (b *Base) RecentStatuses(_ context.Context, window time.Duration) ([]model.StatusRecord, error) {
	return b.Tracker.Recent(window), nil
}

// Acknowledge records an accepted send with the tracker. A send that
// cannot be tracked (the vendor id already belongs to another message)
// must be reported as failed, since its status could never be read back.
func (b *Base) Acknowledge(id model.BridgeID, pid model.ProviderID) error {
	if err := b.Tracker.Track(id, pid); err != nil {
		b.events().Critical("TrackFailed", logger.Fields{BridgeID: id.String(), ProviderID: pid.String()}, err.Error())
		return fmt.Errorf("track %s: %w", pid, err)
	}
	return nil
}

// CheckRequest validates a request before any vendor I/O.
func CheckRequest(req model.SendRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
