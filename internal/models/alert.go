package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType identifies the kind of health alert being distributed.
type AlertType string

const (
	TypeHealthEmergency    AlertType = "health_emergency"
	TypeDiseaseOutbreak    AlertType = "disease_outbreak_notification"
	TypeWaterContamination AlertType = "water_contamination_warning"
	TypeVaccinationRemind  AlertType = "vaccination_reminder"
	TypeAppointment        AlertType = "appointment_notification"
	TypeSystem             AlertType = "system_alert"
	TypeAdministrative     AlertType = "administrative_notification"
)

// AlertLevel grades how serious the alert content is.
type AlertLevel string

const (
	LevelInfo      AlertLevel = "info"
	LevelWarning   AlertLevel = "warning"
	LevelUrgent    AlertLevel = "urgent"
	LevelEmergency AlertLevel = "emergency"
)

// Priority orders alerts for delivery and review.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// Channel is a delivery channel for one outbound message.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelPush     Channel = "push"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
	ChannelInApp    Channel = "in_app"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusResolved  Status = "resolved"
)

// Terminal reports whether no further lifecycle transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired || s == StatusResolved
}

// CanTransition reports whether the lifecycle allows moving from one status to
// another. Transitions are monotonic except the active/paused hold.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusDraft:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		return to == StatusPaused || to == StatusDelivered || to == StatusResolved ||
			to == StatusExpired || to == StatusCancelled
	case StatusPaused:
		return to == StatusActive || to == StatusResolved || to == StatusExpired || to == StatusCancelled
	case StatusDelivered:
		return to == StatusResolved || to == StatusExpired || to == StatusCancelled
	default:
		return false
	}
}

// HealthEmergencyDetail is the payload for health_emergency alerts.
type HealthEmergencyDetail struct {
	EmergencyType    string   `json:"emergency_type" binding:"required"`
	Severity         string   `json:"severity" binding:"required"`
	ImmediateActions []string `json:"immediate_actions" binding:"required"`
}

// DiseaseOutbreakDetail is the payload for outbreak and contamination alerts.
type DiseaseOutbreakDetail struct {
	DiseaseType        string   `json:"disease_type" binding:"required"`
	AffectedAreas      []string `json:"affected_areas" binding:"required"`
	CaseCount          int      `json:"case_count"`
	PreventiveMeasures []string `json:"preventive_measures" binding:"required"`
}

// VaccinationDetail is the payload for vaccination_reminder alerts.
type VaccinationDetail struct {
	VaccineType    string    `json:"vaccine_type" binding:"required"`
	TargetAgeGroup string    `json:"target_age_group" binding:"required"`
	ScheduledDate  time.Time `json:"scheduled_date" binding:"required"`
	Venue          string    `json:"venue" binding:"required"`
	Timings        string    `json:"timings" binding:"required"`
}

// AppointmentDetail is the payload for appointment_notification alerts.
type AppointmentDetail struct {
	AppointmentType string    `json:"appointment_type" binding:"required"`
	AppointmentDate time.Time `json:"appointment_date" binding:"required"`
	Provider        string    `json:"provider" binding:"required"`
	Location        string    `json:"location" binding:"required"`
}

// AlertDetail is a tagged variant over the type-specific payloads. Exactly one
// member may be set, and it must match the alert's type. System and
// administrative alerts carry no detail.
type AlertDetail struct {
	HealthEmergency *HealthEmergencyDetail `json:"health_emergency,omitempty"`
	DiseaseOutbreak *DiseaseOutbreakDetail `json:"disease_outbreak,omitempty"`
	Vaccination     *VaccinationDetail     `json:"vaccination,omitempty"`
	Appointment     *AppointmentDetail     `json:"appointment,omitempty"`
}

// DeliveryPolicy controls when and over which channels an alert goes out.
type DeliveryPolicy struct {
	Channels               []Channel  `json:"channels" binding:"required"`
	ScheduledFor           *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt              time.Time  `json:"expires_at,omitempty"`
	RequiresAcknowledgment bool       `json:"requires_acknowledgment"`
	AcknowledgmentDeadline *time.Time `json:"acknowledgment_deadline,omitempty"`
}

// EscalationLevel is one configured escalation step.
type EscalationLevel struct {
	Level                  int        `json:"level"`
	TriggerAfterMinutes    int        `json:"trigger_after_minutes"`
	EscalateTo             TargetSpec `json:"escalate_to"`
	AdditionalChannels     []Channel  `json:"additional_channels,omitempty"`
	RequiresAcknowledgment bool       `json:"requires_acknowledgment"`
}

// EscalationPolicy holds the ordered escalation ladder for an alert. A nil
// MaxEscalations means the default cap; an explicit zero disables the ladder.
type EscalationPolicy struct {
	Levels         []EscalationLevel `json:"escalation_levels,omitempty"`
	MaxEscalations *int              `json:"max_escalations,omitempty"`
}

// Cap returns the effective escalation cap.
func (p EscalationPolicy) Cap() int {
	if p.MaxEscalations == nil {
		return defaultMaxEscalations
	}
	return *p.MaxEscalations
}

// RetryPolicy bounds redelivery of failed sends.
type RetryPolicy struct {
	MaxRetries      int      `json:"max_retries"`
	IntervalMinutes int      `json:"retry_interval_minutes"`
	ChannelOverride *Channel `json:"channel_override,omitempty"`
}

// Alert is the unit of work: content, targeting, delivery and escalation
// policy plus lifecycle state.
type Alert struct {
	ID             uuid.UUID        `json:"id"`
	Type           AlertType        `json:"alert_type"`
	Title          string           `json:"title"`
	Message        string           `json:"message_content"`
	Level          AlertLevel       `json:"alert_level"`
	Priority       Priority         `json:"priority"`
	PriorityReason string           `json:"priority_reason,omitempty"`
	Detail         AlertDetail      `json:"detail,omitempty"`
	Delivery       DeliveryPolicy   `json:"delivery"`
	Target         TargetSpec       `json:"recipients"`
	Escalation     EscalationPolicy `json:"auto_escalation,omitempty"`
	Retry          RetryPolicy      `json:"retry_settings,omitempty"`
	Status         Status           `json:"status"`
	Unresolvable   bool             `json:"unresolvable,omitempty"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
