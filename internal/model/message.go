package model

import "time"

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
	StatusUnknown   MessageStatus = "unknown"
	StatusTimedOut  MessageStatus = "timed_out"
)

func (s MessageStatus) String() string {
	return string(s)
}

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed, StatusUnknown, StatusTimedOut:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s MessageStatus) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// StatusRecord is the correlation state of one sent message.
// StatusAt is zero while the status is pending.
type StatusRecord struct {
	BridgeID   BridgeID      `json:"sms_bridge_id"`
	ProviderID ProviderID    `json:"provider_id"`
	Status     MessageStatus `json:"status"`
	SentAt     time.Time     `json:"sent_at"`
	StatusAt   time.Time     `json:"status_at"`
}
