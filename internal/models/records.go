package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the state of one delivery attempt.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeExhausted Outcome = "exhausted"
)

// Terminal reports whether the attempt chain for its pair is finished.
func (o Outcome) Terminal() bool {
	return o == OutcomeSent || o == OutcomeExhausted
}

// DeliveryAttempt records one send of an alert to one recipient over one
// channel. Channel is the pair identity; ViaChannel is the channel actually
// used, which differs only when the retry channel override applies.
type DeliveryAttempt struct {
	AlertID     uuid.UUID `json:"alert_id"`
	RecipientID string    `json:"recipient_id"`
	Channel     Channel   `json:"channel"`
	ViaChannel  Channel   `json:"via_channel,omitempty"`
	Attempt     int       `json:"attempt"`
	Timestamp   time.Time `json:"timestamp"`
	Outcome     Outcome   `json:"outcome"`
	Error       string    `json:"error,omitempty"`
}

// Acknowledgment is a recipient's confirmation of an alert. At most one exists
// per (alert, recipient) pair.
type Acknowledgment struct {
	AlertID        uuid.UUID `json:"alert_id"`
	RecipientID    string    `json:"recipient_id"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
	Notes          string    `json:"notes,omitempty"`
	ActionsTaken   []string  `json:"actions_taken,omitempty"`
}

// EscalationRecord is one append-only audit entry for a fired escalation.
type EscalationRecord struct {
	AlertID        uuid.UUID  `json:"alert_id"`
	Level          int        `json:"level"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	Target         TargetSpec `json:"target"`
	Channels       []Channel  `json:"channels"`
	RecipientCount int        `json:"recipient_count"`
	Reason         string     `json:"reason,omitempty"`
	TriggeredBy    string     `json:"triggered_by,omitempty"`
}
