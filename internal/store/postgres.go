package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alert-engine/internal/models"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres creates a pool for the given DSN.
func NewPostgres(dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.Pool.Close()
}

// alertBlob carries the structured policy fields stored as JSONB.
type alertBlob struct {
	Detail     models.AlertDetail      `json:"detail"`
	Target     models.TargetSpec       `json:"target"`
	Escalation models.EscalationPolicy `json:"escalation"`
	Retry      models.RetryPolicy      `json:"retry"`
}

func (p *Postgres) CreateAlert(ctx context.Context, a models.Alert) error {
	blob, err := json.Marshal(alertBlob{Detail: a.Detail, Target: a.Target, Escalation: a.Escalation, Retry: a.Retry})
	if err != nil {
		return fmt.Errorf("failed to encode alert policies: %w", err)
	}
	channels := make([]string, 0, len(a.Delivery.Channels))
	for _, ch := range a.Delivery.Channels {
		channels = append(channels, string(ch))
	}
	query := `
        INSERT INTO alerts (
            id, alert_type, title, message, alert_level, priority, priority_reason,
            channels, scheduled_for, expires_at, requires_ack, ack_deadline,
            policies, status, unresolvable, created_by, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = p.Pool.Exec(ctx, query,
		a.ID, a.Type, a.Title, a.Message, a.Level, a.Priority, a.PriorityReason,
		channels, a.Delivery.ScheduledFor, a.Delivery.ExpiresAt,
		a.Delivery.RequiresAcknowledgment, a.Delivery.AcknowledgmentDeadline,
		blob, a.Status, a.Unresolvable, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

const alertColumns = `
        id, alert_type, title, message, alert_level, priority, priority_reason,
        channels, scheduled_for, expires_at, requires_ack, ack_deadline,
        policies, status, unresolvable, created_by, created_at, updated_at`

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	var channels []string
	var blob []byte
	err := row.Scan(
		&a.ID, &a.Type, &a.Title, &a.Message, &a.Level, &a.Priority, &a.PriorityReason,
		&channels, &a.Delivery.ScheduledFor, &a.Delivery.ExpiresAt,
		&a.Delivery.RequiresAcknowledgment, &a.Delivery.AcknowledgmentDeadline,
		&blob, &a.Status, &a.Unresolvable, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Alert{}, err
	}
	for _, ch := range channels {
		a.Delivery.Channels = append(a.Delivery.Channels, models.Channel(ch))
	}
	var b alertBlob
	if err := json.Unmarshal(blob, &b); err != nil {
		return models.Alert{}, fmt.Errorf("failed to decode alert policies: %w", err)
	}
	a.Detail = b.Detail
	a.Target = b.Target
	a.Escalation = b.Escalation
	a.Retry = b.Retry
	return a, nil
}

func (p *Postgres) GetAlert(ctx context.Context, id uuid.UUID) (models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(p.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return models.Alert{}, ErrNotFound
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return a, nil
}

func (p *Postgres) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.Status, reason, updatedBy string) error {
	query := `
        UPDATE alerts
        SET status = $1, status_reason = $2, updated_by = $3, updated_at = $4
        WHERE id = $5`
	result, err := p.Pool.Exec(ctx, query, status, reason, updatedBy, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateAlertContent(ctx context.Context, id uuid.UUID, priority models.Priority, message string) error {
	result, err := p.Pool.Exec(ctx,
		`UPDATE alerts SET priority = $1, message = $2, updated_at = $3 WHERE id = $4`,
		priority, message, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update alert content: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkUnresolvable(ctx context.Context, id uuid.UUID) error {
	result, err := p.Pool.Exec(ctx, `UPDATE alerts SET unresolvable = TRUE, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark alert unresolvable: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, int, error) {
	where := " WHERE TRUE"
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Types) > 0 {
		where += fmt.Sprintf(" AND alert_type = ANY(%s)", arg(stringsOf(f.Types)))
	}
	if len(f.Statuses) > 0 {
		where += fmt.Sprintf(" AND status = ANY(%s)", arg(stringsOf(f.Statuses)))
	}
	if len(f.Levels) > 0 {
		where += fmt.Sprintf(" AND alert_level = ANY(%s)", arg(stringsOf(f.Levels)))
	}
	if len(f.Priorities) > 0 {
		where += fmt.Sprintf(" AND priority = ANY(%s)", arg(stringsOf(f.Priorities)))
	}
	if f.RecipientID != "" {
		where += fmt.Sprintf(" AND id IN (SELECT alert_id FROM alert_targets WHERE recipient_id = %s)", arg(f.RecipientID))
	}
	if f.Role != "" {
		where += fmt.Sprintf(" AND policies->'target' @> %s::jsonb", arg(fmt.Sprintf(`{"role_based":{"roles":[%q]}}`, f.Role)))
	}
	if f.AreaID != "" {
		where += fmt.Sprintf(" AND policies->'target' @> %s::jsonb", arg(fmt.Sprintf(`{"geographic":{"area_ids":[%q]}}`, f.AreaID)))
	}
	if f.CreatedFrom != nil {
		where += fmt.Sprintf(" AND created_at >= %s", arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where += fmt.Sprintf(" AND created_at <= %s", arg(*f.CreatedTo))
	}
	if f.Acknowledged != nil {
		op := "IN"
		if !*f.Acknowledged {
			op = "NOT IN"
		}
		where += fmt.Sprintf(" AND id %s (SELECT alert_id FROM acknowledgments)", op)
	}
	if f.Escalated != nil {
		op := "IN"
		if !*f.Escalated {
			op = "NOT IN"
		}
		where += fmt.Sprintf(" AND id %s (SELECT alert_id FROM escalation_records)", op)
	}
	if f.Search != "" {
		ph := arg("%" + f.Search + "%")
		where += fmt.Sprintf(" AND (title ILIKE %s OR message ILIKE %s)", ph, ph)
	}

	var total int
	if err := p.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	sortCol := "created_at"
	if f.SortBy == "updated_at" {
		sortCol = "updated_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	query := "SELECT" + alertColumns + " FROM alerts" + where + fmt.Sprintf(" ORDER BY %s %s", sortCol, dir)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", arg(f.Limit))
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %s", arg(f.Offset))
	}

	rows, err := p.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, total, rows.Err()
}

func (p *Postgres) CreateAttempt(ctx context.Context, at models.DeliveryAttempt) error {
	query := `
        INSERT INTO delivery_attempts (alert_id, recipient_id, channel, via_channel, attempt, timestamp, outcome, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (alert_id, recipient_id, channel, attempt) DO NOTHING`
	_, err := p.Pool.Exec(ctx, query,
		at.AlertID, at.RecipientID, at.Channel, at.ViaChannel, at.Attempt, at.Timestamp, at.Outcome, at.Error)
	if err != nil {
		return fmt.Errorf("failed to create delivery attempt: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateAttemptOutcome(ctx context.Context, alertID uuid.UUID, recipientID string, ch models.Channel, attempt int, outcome models.Outcome, errMsg string) error {
	query := `
        UPDATE delivery_attempts
        SET outcome = $1, error = $2
        WHERE alert_id = $3 AND recipient_id = $4 AND channel = $5 AND attempt = $6`
	result, err := p.Pool.Exec(ctx, query, outcome, errMsg, alertID, recipientID, ch, attempt)
	if err != nil {
		return fmt.Errorf("failed to update attempt outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AttemptsByAlert(ctx context.Context, alertID uuid.UUID) ([]models.DeliveryAttempt, error) {
	rows, err := p.Pool.Query(ctx, `
        SELECT alert_id, recipient_id, channel, via_channel, attempt, timestamp, outcome, error
        FROM delivery_attempts
        WHERE alert_id = $1
        ORDER BY recipient_id, channel, attempt`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var at models.DeliveryAttempt
		if err := rows.Scan(&at.AlertID, &at.RecipientID, &at.Channel, &at.ViaChannel, &at.Attempt, &at.Timestamp, &at.Outcome, &at.Error); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, at)
	}
	return attempts, rows.Err()
}

func (p *Postgres) UpsertAck(ctx context.Context, ack models.Acknowledgment) (bool, error) {
	query := `
        INSERT INTO acknowledgments (alert_id, recipient_id, acknowledged_at, notes, actions_taken)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (alert_id, recipient_id)
        DO UPDATE SET notes = EXCLUDED.notes, actions_taken = EXCLUDED.actions_taken
        RETURNING (xmax = 0)`
	var created bool
	err := p.Pool.QueryRow(ctx, query,
		ack.AlertID, ack.RecipientID, ack.AcknowledgedAt, ack.Notes, ack.ActionsTaken).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert acknowledgment: %w", err)
	}
	return created, nil
}

func (p *Postgres) AcksByAlert(ctx context.Context, alertID uuid.UUID) ([]models.Acknowledgment, error) {
	rows, err := p.Pool.Query(ctx, `
        SELECT alert_id, recipient_id, acknowledged_at, notes, actions_taken
        FROM acknowledgments
        WHERE alert_id = $1
        ORDER BY recipient_id`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get acknowledgments for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var acks []models.Acknowledgment
	for rows.Next() {
		var ack models.Acknowledgment
		if err := rows.Scan(&ack.AlertID, &ack.RecipientID, &ack.AcknowledgedAt, &ack.Notes, &ack.ActionsTaken); err != nil {
			return nil, fmt.Errorf("failed to scan acknowledgment: %w", err)
		}
		acks = append(acks, ack)
	}
	return acks, rows.Err()
}

func (p *Postgres) AppendEscalation(ctx context.Context, rec models.EscalationRecord) error {
	target, err := json.Marshal(rec.Target)
	if err != nil {
		return fmt.Errorf("failed to encode escalation target: %w", err)
	}
	channels := make([]string, 0, len(rec.Channels))
	for _, ch := range rec.Channels {
		channels = append(channels, string(ch))
	}
	query := `
        INSERT INTO escalation_records (alert_id, level, triggered_at, target, channels, recipient_count, reason, triggered_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = p.Pool.Exec(ctx, query,
		rec.AlertID, rec.Level, rec.TriggeredAt, target, channels, rec.RecipientCount, rec.Reason, rec.TriggeredBy)
	if err != nil {
		return fmt.Errorf("failed to append escalation record: %w", err)
	}
	return nil
}

func (p *Postgres) EscalationsByAlert(ctx context.Context, alertID uuid.UUID) ([]models.EscalationRecord, error) {
	rows, err := p.Pool.Query(ctx, `
        SELECT alert_id, level, triggered_at, target, channels, recipient_count, reason, triggered_by
        FROM escalation_records
        WHERE alert_id = $1
        ORDER BY level, triggered_at`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation records for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var records []models.EscalationRecord
	for rows.Next() {
		var rec models.EscalationRecord
		var target []byte
		var channels []string
		if err := rows.Scan(&rec.AlertID, &rec.Level, &rec.TriggeredAt, &target, &channels, &rec.RecipientCount, &rec.Reason, &rec.TriggeredBy); err != nil {
			return nil, fmt.Errorf("failed to scan escalation record: %w", err)
		}
		if err := json.Unmarshal(target, &rec.Target); err != nil {
			return nil, fmt.Errorf("failed to decode escalation target: %w", err)
		}
		for _, ch := range channels {
			rec.Channels = append(rec.Channels, models.Channel(ch))
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *Postgres) AddTargets(ctx context.Context, alertID uuid.UUID, recipientIDs []string) error {
	for _, id := range recipientIDs {
		_, err := p.Pool.Exec(ctx, `
            INSERT INTO alert_targets (alert_id, recipient_id)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, alertID, id)
		if err != nil {
			return fmt.Errorf("failed to add target %s: %w", id, err)
		}
	}
	return nil
}

func (p *Postgres) TargetsByAlert(ctx context.Context, alertID uuid.UUID) ([]string, error) {
	rows, err := p.Pool.Query(ctx, `
        SELECT recipient_id FROM alert_targets WHERE alert_id = $1 ORDER BY recipient_id`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get targets for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func stringsOf[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, string(v))
	}
	return out
}
