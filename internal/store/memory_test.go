package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-engine/internal/models"
)

func seedAlert(t *testing.T, m *Memory, typ models.AlertType, status models.Status, createdAt time.Time) models.Alert {
	t.Helper()
	a := models.Alert{
		ID:        uuid.New(),
		Type:      typ,
		Title:     "Seed " + string(typ),
		Message:   "seeded alert",
		Level:     models.LevelWarning,
		Priority:  models.PriorityMedium,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, m.CreateAlert(context.Background(), a))
	return a
}

func TestGetAlertNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetAlert(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAlertsFiltersAndPaginates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	seedAlert(t, m, models.TypeSystem, models.StatusActive, base)
	seedAlert(t, m, models.TypeWaterContamination, models.StatusActive, base.Add(time.Minute))
	seedAlert(t, m, models.TypeWaterContamination, models.StatusResolved, base.Add(2*time.Minute))

	got, total, err := m.ListAlerts(ctx, AlertFilter{Types: []models.AlertType{models.TypeWaterContamination}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, got, 2)

	got, total, err = m.ListAlerts(ctx, AlertFilter{
		Types:    []models.AlertType{models.TypeWaterContamination},
		Statuses: []models.Status{models.StatusActive},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusActive, got[0].Status)

	// Total counts all matches; limit and offset only window the page.
	got, total, err = m.ListAlerts(ctx, AlertFilter{Limit: 2, Offset: 1, SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}

func TestListAlertsByRecipientAndFlags(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	targeted := seedAlert(t, m, models.TypeSystem, models.StatusActive, base)
	other := seedAlert(t, m, models.TypeSystem, models.StatusActive, base)
	require.NoError(t, m.AddTargets(ctx, targeted.ID, []string{"v1", "v2"}))

	got, _, err := m.ListAlerts(ctx, AlertFilter{RecipientID: "v1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, targeted.ID, got[0].ID)

	_, err = m.UpsertAck(ctx, models.Acknowledgment{AlertID: other.ID, RecipientID: "v9"})
	require.NoError(t, err)
	acked := true
	got, _, err = m.ListAlerts(ctx, AlertFilter{Acknowledged: &acked})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)
}

func TestListAlertsFiltersByTargetRoleAndArea(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	roleBased := seedAlert(t, m, models.TypeSystem, models.StatusActive, base)
	roleBased.Target = models.TargetSpec{
		Type:      models.TargetRoleBased,
		RoleBased: &models.RoleTarget{Roles: []models.Role{models.RoleVolunteer}},
	}
	require.NoError(t, m.CreateAlert(ctx, roleBased))

	geographic := seedAlert(t, m, models.TypeSystem, models.StatusActive, base)
	geographic.Target = models.TargetSpec{
		Type:       models.TargetGeographic,
		Geographic: &models.GeoTarget{AreaType: models.AreaVillage, AreaIDs: []string{"V1"}},
	}
	require.NoError(t, m.CreateAlert(ctx, geographic))

	got, total, err := m.ListAlerts(ctx, AlertFilter{Role: models.RoleVolunteer})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, roleBased.ID, got[0].ID)

	_, total, err = m.ListAlerts(ctx, AlertFilter{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Zero(t, total)

	got, total, err = m.ListAlerts(ctx, AlertFilter{AreaID: "V1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, geographic.ID, got[0].ID)

	_, total, err = m.ListAlerts(ctx, AlertFilter{AreaID: "V9"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpsertAckOverwritesWithoutDuplicating(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	alertID := uuid.New()

	created, err := m.UpsertAck(ctx, models.Acknowledgment{AlertID: alertID, RecipientID: "v1", Notes: "first"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.UpsertAck(ctx, models.Acknowledgment{AlertID: alertID, RecipientID: "v1", Notes: "second"})
	require.NoError(t, err)
	assert.False(t, created)

	acks, err := m.AcksByAlert(ctx, alertID)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	assert.Equal(t, "second", acks[0].Notes)
}

func TestUpdateAttemptOutcomeKeysOnPairAndAttempt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	alertID := uuid.New()

	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, m.CreateAttempt(ctx, models.DeliveryAttempt{
			AlertID: alertID, RecipientID: "v1", Channel: models.ChannelSMS,
			Attempt: attempt, Outcome: models.OutcomePending,
		}))
	}

	require.NoError(t, m.UpdateAttemptOutcome(ctx, alertID, "v1", models.ChannelSMS, 2, models.OutcomeSent, ""))

	attempts, err := m.AttemptsByAlert(ctx, alertID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, models.OutcomePending, attempts[0].Outcome)
	assert.Equal(t, models.OutcomeSent, attempts[1].Outcome)

	err = m.UpdateAttemptOutcome(ctx, alertID, "v1", models.ChannelEmail, 1, models.OutcomeSent, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddTargetsAccumulatesUnion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	alertID := uuid.New()

	require.NoError(t, m.AddTargets(ctx, alertID, []string{"v1", "v2"}))
	require.NoError(t, m.AddTargets(ctx, alertID, []string{"v2", "a1"}))

	targets, err := m.TargetsByAlert(ctx, alertID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "v1", "v2"}, targets)
}
