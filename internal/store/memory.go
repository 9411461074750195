package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alert-engine/internal/models"
)

// Memory is an in-memory Store for tests and local runs.
type Memory struct {
	mu          sync.Mutex
	alerts      map[uuid.UUID]models.Alert
	attempts    map[uuid.UUID][]models.DeliveryAttempt
	acks        map[uuid.UUID]map[string]models.Acknowledgment
	escalations map[uuid.UUID][]models.EscalationRecord
	targets     map[uuid.UUID]map[string]bool
	reasons     map[uuid.UUID]string
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		alerts:      make(map[uuid.UUID]models.Alert),
		attempts:    make(map[uuid.UUID][]models.DeliveryAttempt),
		acks:        make(map[uuid.UUID]map[string]models.Acknowledgment),
		escalations: make(map[uuid.UUID][]models.EscalationRecord),
		targets:     make(map[uuid.UUID]map[string]bool),
		reasons:     make(map[uuid.UUID]string),
	}
}

func (m *Memory) CreateAlert(_ context.Context, a models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id uuid.UUID) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) UpdateAlertStatus(_ context.Context, id uuid.UUID, status models.Status, reason, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	m.alerts[id] = a
	if reason != "" {
		m.reasons[id] = reason
	}
	return nil
}

func (m *Memory) UpdateAlertContent(_ context.Context, id uuid.UUID, priority models.Priority, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Priority = priority
	a.Message = message
	a.UpdatedAt = time.Now()
	m.alerts[id] = a
	return nil
}

func (m *Memory) MarkUnresolvable(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Unresolvable = true
	m.alerts[id] = a
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, f AlertFilter) ([]models.Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Alert
	for _, a := range m.alerts {
		if !m.matches(a, f) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		less := out[i].CreatedAt.Before(out[j].CreatedAt)
		if f.SortBy == "updated_at" {
			less = out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		if f.SortDesc {
			return !less
		}
		return less
	})

	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			out = nil
		} else {
			out = out[f.Offset:]
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *Memory) matches(a models.Alert, f AlertFilter) bool {
	if len(f.Types) > 0 && !containsType(f.Types, a.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	if len(f.Levels) > 0 && !containsLevel(f.Levels, a.Level) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, a.Priority) {
		return false
	}
	if f.RecipientID != "" && !m.targets[a.ID][f.RecipientID] {
		return false
	}
	if f.Role != "" {
		if a.Target.RoleBased == nil || !containsRole(a.Target.RoleBased.Roles, f.Role) {
			return false
		}
	}
	if f.AreaID != "" {
		if a.Target.Geographic == nil || !containsString(a.Target.Geographic.AreaIDs, f.AreaID) {
			return false
		}
	}
	if f.CreatedFrom != nil && a.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && a.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.Acknowledged != nil {
		acked := len(m.acks[a.ID]) > 0
		if acked != *f.Acknowledged {
			return false
		}
	}
	if f.Escalated != nil {
		escalated := len(m.escalations[a.ID]) > 0
		if escalated != *f.Escalated {
			return false
		}
	}
	if f.Search != "" {
		s := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.Title), s) && !strings.Contains(strings.ToLower(a.Message), s) {
			return false
		}
	}
	return true
}

func (m *Memory) CreateAttempt(_ context.Context, at models.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[at.AlertID] = append(m.attempts[at.AlertID], at)
	return nil
}

func (m *Memory) UpdateAttemptOutcome(_ context.Context, alertID uuid.UUID, recipientID string, ch models.Channel, attempt int, outcome models.Outcome, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempts := m.attempts[alertID]
	for i := range attempts {
		at := &attempts[i]
		if at.RecipientID == recipientID && at.Channel == ch && at.Attempt == attempt {
			at.Outcome = outcome
			at.Error = errMsg
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) AttemptsByAlert(_ context.Context, alertID uuid.UUID) ([]models.DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DeliveryAttempt{}, m.attempts[alertID]...), nil
}

func (m *Memory) UpsertAck(_ context.Context, ack models.Acknowledgment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byRecipient, ok := m.acks[ack.AlertID]
	if !ok {
		byRecipient = make(map[string]models.Acknowledgment)
		m.acks[ack.AlertID] = byRecipient
	}
	if existing, dup := byRecipient[ack.RecipientID]; dup {
		existing.Notes = ack.Notes
		existing.ActionsTaken = ack.ActionsTaken
		byRecipient[ack.RecipientID] = existing
		return false, nil
	}
	byRecipient[ack.RecipientID] = ack
	return true, nil
}

func (m *Memory) AcksByAlert(_ context.Context, alertID uuid.UUID) ([]models.Acknowledgment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Acknowledgment
	for _, ack := range m.acks[alertID] {
		out = append(out, ack)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out, nil
}

func (m *Memory) AppendEscalation(_ context.Context, rec models.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[rec.AlertID] = append(m.escalations[rec.AlertID], rec)
	return nil
}

func (m *Memory) EscalationsByAlert(_ context.Context, alertID uuid.UUID) ([]models.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EscalationRecord{}, m.escalations[alertID]...), nil
}

func (m *Memory) AddTargets(_ context.Context, alertID uuid.UUID, recipientIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.targets[alertID]
	if !ok {
		set = make(map[string]bool)
		m.targets[alertID] = set
	}
	for _, id := range recipientIDs {
		set[id] = true
	}
	return nil
}

func (m *Memory) TargetsByAlert(_ context.Context, alertID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.targets[alertID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func containsRole(list []models.Role, v models.Role) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsType(list []models.AlertType, v models.AlertType) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(list []models.Status, v models.Status) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsLevel(list []models.AlertLevel, v models.AlertLevel) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsPriority(list []models.Priority, v models.Priority) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
