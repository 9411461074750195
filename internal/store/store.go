package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"alert-engine/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AlertFilter selects alerts for the query endpoint and for timer-queue
// repopulation after restart.
type AlertFilter struct {
	Types        []models.AlertType
	Statuses     []models.Status
	Levels       []models.AlertLevel
	Priorities   []models.Priority
	RecipientID  string
	Role         models.Role
	AreaID       string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Acknowledged *bool
	Escalated    *bool
	Search       string
	Limit        int
	Offset       int
	SortBy       string
	SortDesc     bool
}

// Store persists the engine's owned state: alerts, delivery attempts,
// acknowledgments, escalation records and the per-alert target membership.
type Store interface {
	CreateAlert(ctx context.Context, a models.Alert) error
	GetAlert(ctx context.Context, id uuid.UUID) (models.Alert, error)
	UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.Status, reason, updatedBy string) error
	// UpdateAlertContent persists the priority bump and message addition
	// applied by a manual escalation.
	UpdateAlertContent(ctx context.Context, id uuid.UUID, priority models.Priority, message string) error
	MarkUnresolvable(ctx context.Context, id uuid.UUID) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, int, error)

	CreateAttempt(ctx context.Context, at models.DeliveryAttempt) error
	UpdateAttemptOutcome(ctx context.Context, alertID uuid.UUID, recipientID string, ch models.Channel, attempt int, outcome models.Outcome, errMsg string) error
	AttemptsByAlert(ctx context.Context, alertID uuid.UUID) ([]models.DeliveryAttempt, error)

	// UpsertAck stores an acknowledgment; duplicates overwrite notes and
	// actions without creating a second record. It reports whether a new
	// record was created.
	UpsertAck(ctx context.Context, ack models.Acknowledgment) (bool, error)
	AcksByAlert(ctx context.Context, alertID uuid.UUID) ([]models.Acknowledgment, error)

	AppendEscalation(ctx context.Context, rec models.EscalationRecord) error
	EscalationsByAlert(ctx context.Context, alertID uuid.UUID) ([]models.EscalationRecord, error)

	// AddTargets accumulates the union of resolved recipient ids across the
	// initial dispatch and every escalation level.
	AddTargets(ctx context.Context, alertID uuid.UUID, recipientIDs []string) error
	TargetsByAlert(ctx context.Context, alertID uuid.UUID) ([]string, error)
}
