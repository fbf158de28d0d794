package model

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyDestination = errors.New("destination number is required")
	ErrEmptyBody        = errors.New("message body is required")
	ErrMultiRecipient   = errors.New("only single destination numbers are supported")
)

// SendRequest is one outbound message to exactly one destination.
type SendRequest struct {
	To          string `json:"to"`
	Body        string `json:"body"`
	SenderID    string `json:"sender_id,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// Validate rejects requests that must never reach a vendor.
func (r SendRequest) Validate() error {
	to := strings.TrimSpace(r.To)
	if to == "" {
		return ErrEmptyDestination
	}
	if strings.ContainsAny(to, ",;") {
		return ErrMultiRecipient
	}
	if strings.TrimSpace(r.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// ReceivedMessage is an inbound SMS held in the mailbox until deleted.
type ReceivedMessage struct {
	BridgeID   BridgeID   `json:"sms_bridge_id"`
	ProviderID ProviderID `json:"provider_message_id"`
	FromNumber string     `json:"from_number"`
	Text       string     `json:"message_text"`
	ReceivedAt time.Time  `json:"received_at"`
}
