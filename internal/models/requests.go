package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	maxTitleLen        = 200
	maxMessageLen      = 2000
	maxEscalationSteps = 3

	defaultExpiryWindow    = 24 * time.Hour
	defaultMaxRetries      = 3
	defaultRetryInterval   = 15
	defaultMaxEscalations  = 3
	minTriggerDelayMinutes = 5
	maxTriggerDelayMinutes = 1440
)

// AlertCreate is the inbound payload for creating an alert, from the admin API
// or the authoring surface's Kafka events.
type AlertCreate struct {
	AlertType      AlertType         `json:"alert_type" binding:"required"`
	Title          string            `json:"title" binding:"required"`
	Message        string            `json:"message_content" binding:"required"`
	AlertLevel     AlertLevel        `json:"alert_level"`
	Priority       Priority          `json:"priority"`
	PriorityReason string            `json:"priority_reason,omitempty"`
	Detail         AlertDetail       `json:"detail,omitempty"`
	Delivery       DeliveryPolicy    `json:"delivery"`
	Recipients     TargetSpec        `json:"recipients"`
	AutoEscalation *EscalationPolicy `json:"auto_escalation,omitempty"`
	RetrySettings  *RetryPolicy      `json:"retry_settings,omitempty"`
	Status         Status            `json:"status,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty"`
}

// StatusUpdate changes an alert's lifecycle status.
type StatusUpdate struct {
	Status    Status `json:"status" binding:"required"`
	Reason    string `json:"reason,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// AckRequest records a recipient acknowledgment.
type AckRequest struct {
	Acknowledged   bool     `json:"acknowledged" binding:"required"`
	AcknowledgedBy string   `json:"acknowledged_by" binding:"required"`
	Notes          string   `json:"acknowledgment_notes,omitempty"`
	ActionsTaken   []string `json:"actions_taken,omitempty"`
}

// ManualEscalation triggers an escalation outside the configured ladder.
type ManualEscalation struct {
	EscalationLevel   int        `json:"escalation_level" binding:"required"`
	EscalateTo        TargetSpec `json:"escalate_to"`
	EscalationReason  string     `json:"escalation_reason" binding:"required"`
	AdditionalMessage string     `json:"additional_message,omitempty"`
	UrgencyIncrease   bool       `json:"urgency_increase,omitempty"`
}

// BulkCreate carries up to 100 alert payloads plus batch options.
type BulkCreate struct {
	Alerts  []AlertCreate `json:"alerts" binding:"required"`
	Options BulkOptions   `json:"options,omitempty"`
}

// BulkOptions controls batch pacing and failure behavior.
type BulkOptions struct {
	DelayBetweenAlertsMs int  `json:"delay_between_alerts_ms,omitempty"`
	StopOnFirstFailure   bool `json:"stop_on_first_failure,omitempty"`
	NotifyOnCompletion   bool `json:"notify_on_completion,omitempty"`
}

// BulkResult summarizes one bulk create run.
type BulkResult struct {
	Created []uuid.UUID `json:"created"`
	Failed  int         `json:"failed"`
	Errors  []string    `json:"errors,omitempty"`
}

func validChannel(ch Channel) bool {
	switch ch {
	case ChannelSMS, ChannelEmail, ChannelPush, ChannelWhatsApp, ChannelVoice, ChannelInApp:
		return true
	}
	return false
}

func validAlertType(t AlertType) bool {
	switch t {
	case TypeHealthEmergency, TypeDiseaseOutbreak, TypeWaterContamination,
		TypeVaccinationRemind, TypeAppointment, TypeSystem, TypeAdministrative:
		return true
	}
	return false
}

// validateDetail checks that the detail variant matches the alert type and
// that the type's required payload is present.
func validateDetail(t AlertType, d AlertDetail) error {
	populated := 0
	if d.HealthEmergency != nil {
		populated++
	}
	if d.DiseaseOutbreak != nil {
		populated++
	}
	if d.Vaccination != nil {
		populated++
	}
	if d.Appointment != nil {
		populated++
	}
	if populated > 1 {
		return fmt.Errorf("detail must populate at most one variant, got %d", populated)
	}

	switch t {
	case TypeHealthEmergency:
		de := d.HealthEmergency
		if de == nil {
			return fmt.Errorf("alert type %q requires the health_emergency detail", t)
		}
		if de.EmergencyType == "" || de.Severity == "" || len(de.ImmediateActions) == 0 {
			return fmt.Errorf("health_emergency detail requires emergency_type, severity and immediate_actions")
		}
	case TypeDiseaseOutbreak, TypeWaterContamination:
		de := d.DiseaseOutbreak
		if de == nil {
			return fmt.Errorf("alert type %q requires the disease_outbreak detail", t)
		}
		if de.DiseaseType == "" || len(de.AffectedAreas) == 0 || len(de.PreventiveMeasures) == 0 {
			return fmt.Errorf("disease_outbreak detail requires disease_type, affected_areas and preventive_measures")
		}
		if de.CaseCount < 0 {
			return fmt.Errorf("disease_outbreak case_count cannot be negative")
		}
	case TypeVaccinationRemind:
		de := d.Vaccination
		if de == nil {
			return fmt.Errorf("alert type %q requires the vaccination detail", t)
		}
		if de.VaccineType == "" || de.TargetAgeGroup == "" || de.ScheduledDate.IsZero() || de.Venue == "" || de.Timings == "" {
			return fmt.Errorf("vaccination detail requires vaccine_type, target_age_group, scheduled_date, venue and timings")
		}
	case TypeAppointment:
		de := d.Appointment
		if de == nil {
			return fmt.Errorf("alert type %q requires the appointment detail", t)
		}
		if de.AppointmentType == "" || de.AppointmentDate.IsZero() || de.Provider == "" || de.Location == "" {
			return fmt.Errorf("appointment detail requires appointment_type, appointment_date, provider and location")
		}
	case TypeSystem, TypeAdministrative:
		if populated != 0 {
			return fmt.Errorf("alert type %q does not carry a detail payload", t)
		}
	}
	return nil
}

// Validate checks the payload against the creation-time invariants. Alerts
// failing validation never enter the active lifecycle.
func (p AlertCreate) Validate(now time.Time) error {
	if !validAlertType(p.AlertType) {
		return fmt.Errorf("unknown alert type %q", p.AlertType)
	}
	if p.Title == "" || len(p.Title) > maxTitleLen {
		return fmt.Errorf("title is required and must be at most %d characters", maxTitleLen)
	}
	if p.Message == "" || len(p.Message) > maxMessageLen {
		return fmt.Errorf("message_content is required and must be at most %d characters", maxMessageLen)
	}
	switch p.AlertLevel {
	case LevelInfo, LevelWarning, LevelUrgent, LevelEmergency:
	default:
		return fmt.Errorf("unknown alert level %q", p.AlertLevel)
	}
	switch p.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent, PriorityEmergency:
	default:
		return fmt.Errorf("unknown priority %q", p.Priority)
	}
	if err := validateDetail(p.AlertType, p.Detail); err != nil {
		return err
	}
	if err := p.Recipients.Validate(); err != nil {
		return fmt.Errorf("invalid targeting spec: %w", err)
	}

	d := p.Delivery
	if len(d.Channels) == 0 {
		return fmt.Errorf("at least one delivery channel is required")
	}
	for _, ch := range d.Channels {
		if !validChannel(ch) {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	if d.ScheduledFor != nil && d.ScheduledFor.Before(now) {
		return fmt.Errorf("scheduled_for must not be in the past")
	}
	if !d.ExpiresAt.IsZero() {
		start := now
		if d.ScheduledFor != nil {
			start = *d.ScheduledFor
		}
		if !d.ExpiresAt.After(start) {
			return fmt.Errorf("expires_at must be after scheduled_for")
		}
	}
	if d.RequiresAcknowledgment {
		if d.AcknowledgmentDeadline == nil {
			return fmt.Errorf("acknowledgment_deadline is required when acknowledgment is required")
		}
		if !d.AcknowledgmentDeadline.After(now) {
			return fmt.Errorf("acknowledgment_deadline must be in the future")
		}
	} else if d.AcknowledgmentDeadline != nil {
		return fmt.Errorf("acknowledgment_deadline set but acknowledgment is not required")
	}

	if p.AutoEscalation != nil {
		e := p.AutoEscalation
		if len(e.Levels) > maxEscalationSteps {
			return fmt.Errorf("at most %d escalation levels are allowed", maxEscalationSteps)
		}
		for i, lvl := range e.Levels {
			if lvl.Level != i+1 {
				return fmt.Errorf("escalation levels must be strictly increasing from 1, got %d at position %d", lvl.Level, i)
			}
			if lvl.TriggerAfterMinutes < minTriggerDelayMinutes || lvl.TriggerAfterMinutes > maxTriggerDelayMinutes {
				return fmt.Errorf("escalation level %d trigger delay must be between %d and %d minutes",
					lvl.Level, minTriggerDelayMinutes, maxTriggerDelayMinutes)
			}
			if err := lvl.EscalateTo.Validate(); err != nil {
				return fmt.Errorf("escalation level %d target: %w", lvl.Level, err)
			}
			for _, ch := range lvl.AdditionalChannels {
				if !validChannel(ch) {
					return fmt.Errorf("escalation level %d: unknown channel %q", lvl.Level, ch)
				}
			}
		}
		if e.MaxEscalations != nil && (*e.MaxEscalations < 0 || *e.MaxEscalations > maxEscalationSteps) {
			return fmt.Errorf("max_escalations must be between 0 and %d", maxEscalationSteps)
		}
	}

	if p.RetrySettings != nil {
		r := p.RetrySettings
		if r.MaxRetries < 0 || r.MaxRetries > 5 {
			return fmt.Errorf("max_retries must be between 0 and 5")
		}
		if r.IntervalMinutes != 0 && (r.IntervalMinutes < 5 || r.IntervalMinutes > 60) {
			return fmt.Errorf("retry_interval_minutes must be between 5 and 60")
		}
		if r.ChannelOverride != nil && !validChannel(*r.ChannelOverride) {
			return fmt.Errorf("unknown retry channel override %q", *r.ChannelOverride)
		}
	}

	switch p.Status {
	case "", StatusDraft, StatusActive:
	default:
		return fmt.Errorf("alerts may only be created as draft or active, got %q", p.Status)
	}
	return nil
}

// Build validates the payload and materializes an Alert with defaults applied.
func (p AlertCreate) Build(now time.Time) (Alert, error) {
	if err := p.Validate(now); err != nil {
		return Alert{}, err
	}

	a := Alert{
		ID:             uuid.New(),
		Type:           p.AlertType,
		Title:          p.Title,
		Message:        p.Message,
		Level:          p.AlertLevel,
		Priority:       p.Priority,
		PriorityReason: p.PriorityReason,
		Detail:         p.Detail,
		Delivery:       p.Delivery,
		Target:         p.Recipients,
		Status:         StatusActive,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Status == StatusDraft {
		a.Status = StatusDraft
	}
	if a.Delivery.ExpiresAt.IsZero() {
		start := now
		if a.Delivery.ScheduledFor != nil {
			start = *a.Delivery.ScheduledFor
		}
		a.Delivery.ExpiresAt = start.Add(defaultExpiryWindow)
	}
	if p.AutoEscalation != nil {
		a.Escalation = *p.AutoEscalation
	}
	if a.Escalation.MaxEscalations == nil {
		n := defaultMaxEscalations
		a.Escalation.MaxEscalations = &n
	}
	if p.RetrySettings != nil {
		a.Retry = *p.RetrySettings
	} else {
		a.Retry.MaxRetries = defaultMaxRetries
	}
	if a.Retry.IntervalMinutes == 0 {
		a.Retry.IntervalMinutes = defaultRetryInterval
	}
	return a, nil
}
