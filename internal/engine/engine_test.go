package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-engine/internal/config"
	"alert-engine/internal/directory"
	"alert-engine/internal/logging"
	"alert-engine/internal/models"
	"alert-engine/internal/resolver"
	"alert-engine/internal/store"
	"alert-engine/internal/transport"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeSender records every message and fails according to errFn.
type fakeSender struct {
	ch    models.Channel
	errFn func(transport.Message) error

	mu   sync.Mutex
	sent []transport.Message
}

func (s *fakeSender) Send(_ context.Context, msg transport.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	if s.errFn != nil {
		return s.errFn(msg)
	}
	return nil
}

func (s *fakeSender) Channel() models.Channel { return s.ch }

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.sent {
		out = append(out, m.Recipient.ID)
	}
	return out
}

func alwaysFail(transport.Message) error { return fmt.Errorf("gateway timeout") }

func testDirectory() *directory.Memory {
	return directory.NewMemory(
		directory.Recipient{
			ID: "v1", Name: "Villager One", Roles: []models.Role{models.RoleVolunteer},
			VillageID: "V1", BlockID: "B1",
			Channels: []models.Channel{models.ChannelSMS},
		},
		directory.Recipient{
			ID: "v2", Name: "Villager Two", Roles: []models.Role{models.RoleVolunteer},
			VillageID: "V1", BlockID: "B1",
			Channels: []models.Channel{models.ChannelSMS},
		},
		directory.Recipient{
			ID: "a1", Name: "Asha One", Roles: []models.Role{models.RoleAshaWorker},
			VillageID: "V1", BlockID: "B1",
			Channels: []models.Channel{models.ChannelSMS},
		},
		directory.Recipient{
			ID: "o1", Name: "Official One", Roles: []models.Role{models.RoleHealthOfficial},
			DistrictID: "D1",
			Channels:   []models.Channel{models.ChannelEmail},
		},
	)
}

func newTestEngine(senders map[models.Channel]transport.Sender) (*Engine, *fakeClock) {
	var cfg config.Config
	cfg.Engine.QueueSize = 100
	cfg.Engine.MaxWorkers = 1

	nop := logging.NewNop()
	e := New(store.NewMemory(), resolver.New(testDirectory(), nop), senders, nop, cfg)
	clk := &fakeClock{t: t0}
	e.now = clk.Now
	return e, clk
}

// villageAlert targets village V1 over SMS.
func villageAlert(clk *fakeClock, requiresAck bool) models.AlertCreate {
	p := models.AlertCreate{
		AlertType:  models.TypeWaterContamination,
		Title:      "Water contamination warning",
		Message:    "Boil water before drinking until further notice.",
		AlertLevel: models.LevelUrgent,
		Priority:   models.PriorityHigh,
		Detail: models.AlertDetail{
			DiseaseOutbreak: &models.DiseaseOutbreakDetail{
				DiseaseType:        "cholera",
				AffectedAreas:      []string{"V1"},
				CaseCount:          3,
				PreventiveMeasures: []string{"boil water"},
			},
		},
		Delivery: models.DeliveryPolicy{
			Channels: []models.Channel{models.ChannelSMS},
		},
		Recipients: models.TargetSpec{
			Type:       models.TargetGeographic,
			Geographic: &models.GeoTarget{AreaType: models.AreaVillage, AreaIDs: []string{"V1"}},
		},
	}
	if requiresAck {
		deadline := clk.Now().Add(2 * time.Hour)
		p.Delivery.RequiresAcknowledgment = true
		p.Delivery.AcknowledgmentDeadline = &deadline
	}
	return p
}

func individualAlert(ids ...string) models.AlertCreate {
	return models.AlertCreate{
		AlertType:  models.TypeSystem,
		Title:      "Maintenance window",
		Message:    "The portal is down tonight between 2 and 4.",
		AlertLevel: models.LevelInfo,
		Priority:   models.PriorityLow,
		Delivery: models.DeliveryPolicy{
			Channels: []models.Channel{models.ChannelSMS},
		},
		Recipients: models.TargetSpec{
			Type:       models.TargetIndividual,
			Individual: &models.IndividualTarget{RecipientIDs: ids},
		},
	}
}

func TestDispatchSendsToResolvedRecipients(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, villageAlert(clk, false))
	require.NoError(t, err)
	e.runDue()

	assert.ElementsMatch(t, []string{"a1", "v1", "v2"}, sms.recipients())

	attempts, err := e.store.AttemptsByAlert(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for _, at := range attempts {
		assert.Equal(t, models.OutcomeSent, at.Outcome)
		assert.Equal(t, 1, at.Attempt)
	}

	got, err := e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
}

func TestScheduledDispatchDefers(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})

	p := villageAlert(clk, false)
	sched := t0.Add(2 * time.Hour)
	p.Delivery.ScheduledFor = &sched

	_, err := e.CreateAlert(context.Background(), p)
	require.NoError(t, err)

	e.runDue()
	assert.Zero(t, sms.count(), "nothing may go out before scheduled_for")

	clk.Advance(2 * time.Hour)
	e.runDue()
	assert.Equal(t, 3, sms.count())
}

func TestDispatchPastExpiryExpiresInsteadOfSending(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	p := villageAlert(clk, false)
	p.Delivery.ExpiresAt = t0.Add(30 * time.Minute)
	a, err := e.CreateAlert(ctx, p)
	require.NoError(t, err)

	// Clock jumps past expiry before the dispatch timer gets to run.
	clk.Advance(time.Hour)
	e.runDue()

	assert.Zero(t, sms.count())
	got, err := e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
}

func TestRetryExhaustsAfterMaxRetries(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS, errFn: alwaysFail}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	p := individualAlert("v1")
	p.RetrySettings = &models.RetryPolicy{MaxRetries: 2, IntervalMinutes: 5}
	a, err := e.CreateAlert(ctx, p)
	require.NoError(t, err)

	e.runDue()
	clk.Advance(5 * time.Minute)
	e.runDue()
	clk.Advance(5 * time.Minute)
	e.runDue()

	// max_retries bounds total sends at max_retries+1.
	assert.Equal(t, 3, sms.count())

	attempts, err := e.store.AttemptsByAlert(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	outcomes := make(map[int]models.Outcome)
	for _, at := range attempts {
		outcomes[at.Attempt] = at.Outcome
	}
	assert.Equal(t, models.OutcomeFailed, outcomes[1])
	assert.Equal(t, models.OutcomeFailed, outcomes[2])
	assert.Equal(t, models.OutcomeExhausted, outcomes[3])

	// No further retry is queued.
	clk.Advance(5 * time.Minute)
	e.runDue()
	assert.Equal(t, 3, sms.count())

	got, err := e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS, errFn: func(transport.Message) error {
		return transport.Permanentf("recipient has no phone number")
	}}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, individualAlert("v1"))
	require.NoError(t, err)
	e.runDue()

	clk.Advance(time.Hour)
	e.runDue()

	assert.Equal(t, 1, sms.count())
	attempts, err := e.store.AttemptsByAlert(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.OutcomeExhausted, attempts[0].Outcome)
}

func TestRetryUsesChannelOverride(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS, errFn: alwaysFail}
	email := &fakeSender{ch: models.ChannelEmail}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{
		models.ChannelSMS:   sms,
		models.ChannelEmail: email,
	})
	ctx := context.Background()

	override := models.ChannelEmail
	p := individualAlert("v1")
	p.RetrySettings = &models.RetryPolicy{MaxRetries: 2, IntervalMinutes: 5, ChannelOverride: &override}
	a, err := e.CreateAlert(ctx, p)
	require.NoError(t, err)

	e.runDue()
	clk.Advance(5 * time.Minute)
	e.runDue()

	assert.Equal(t, 1, sms.count())
	assert.Equal(t, 1, email.count())

	attempts, err := e.store.AttemptsByAlert(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	for _, at := range attempts {
		// The pair identity stays sms even when the retry goes out via email.
		assert.Equal(t, models.ChannelSMS, at.Channel)
		if at.Attempt == 2 {
			assert.Equal(t, models.ChannelEmail, at.ViaChannel)
			assert.Equal(t, models.OutcomeSent, at.Outcome)
		}
	}
}

func TestEmptyResolutionMarksUnresolvable(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, _ := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, individualAlert("nobody-home"))
	require.NoError(t, err)
	e.runDue()

	assert.Zero(t, sms.count())
	got, err := e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Unresolvable)
	assert.Equal(t, models.StatusDelivered, got.Status)
}

func TestDraftDispatchesOnlyOnActivation(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	p := villageAlert(clk, false)
	p.Status = models.StatusDraft
	a, err := e.CreateAlert(ctx, p)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	e.runDue()
	assert.Zero(t, sms.count(), "drafts have no timers")

	_, err = e.UpdateStatus(ctx, a.ID, models.StatusUpdate{Status: models.StatusActive, UpdatedBy: "admin"})
	require.NoError(t, err)
	e.runDue()
	assert.Equal(t, 3, sms.count())
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, villageAlert(clk, false))
	require.NoError(t, err)

	_, err = e.UpdateStatus(ctx, a.ID, models.StatusUpdate{Status: models.StatusResolved, UpdatedBy: "admin"})
	require.NoError(t, err)

	_, err = e.UpdateStatus(ctx, a.ID, models.StatusUpdate{Status: models.StatusActive, UpdatedBy: "admin"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelledAlertTimersAreNoops(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	p := villageAlert(clk, false)
	sched := t0.Add(time.Hour)
	p.Delivery.ScheduledFor = &sched
	a, err := e.CreateAlert(ctx, p)
	require.NoError(t, err)

	_, err = e.UpdateStatus(ctx, a.ID, models.StatusUpdate{Status: models.StatusCancelled, UpdatedBy: "admin"})
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	e.runDue()

	assert.Zero(t, sms.count())
	got, err := e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestTerminalStatusPrunesAlertLock(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, villageAlert(clk, false))
	require.NoError(t, err)
	e.runDue()

	e.lockMu.Lock()
	_, held := e.locks[a.ID]
	e.lockMu.Unlock()
	require.True(t, held, "live alerts keep their lock entry")

	_, err = e.UpdateStatus(ctx, a.ID, models.StatusUpdate{Status: models.StatusResolved, UpdatedBy: "admin"})
	require.NoError(t, err)

	e.lockMu.Lock()
	_, held = e.locks[a.ID]
	e.lockMu.Unlock()
	assert.False(t, held, "terminal alerts release their lock entry")
}

func TestAcknowledgeResolvesWhenAllTargetsAck(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, villageAlert(clk, true))
	require.NoError(t, err)
	e.runDue()

	// Acknowledgment required: the alert stays active after the sends.
	got, err := e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)

	for _, id := range []string{"v1", "v2"} {
		require.NoError(t, e.Acknowledge(ctx, a.ID, models.AckRequest{Acknowledged: true, AcknowledgedBy: id}))
	}
	got, err = e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status, "a1 has not acknowledged yet")

	require.NoError(t, e.Acknowledge(ctx, a.ID, models.AckRequest{Acknowledged: true, AcknowledgedBy: "a1"}))
	got, err = e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
}

func TestDuplicateAcknowledgmentIsIdempotent(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, villageAlert(clk, true))
	require.NoError(t, err)
	e.runDue()

	require.NoError(t, e.Acknowledge(ctx, a.ID, models.AckRequest{Acknowledged: true, AcknowledgedBy: "v1", Notes: "first"}))
	require.NoError(t, e.Acknowledge(ctx, a.ID, models.AckRequest{Acknowledged: true, AcknowledgedBy: "v1", Notes: "second"}))

	acks, err := e.store.AcksByAlert(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	assert.Equal(t, "second", acks[0].Notes)
}

func TestLateAcknowledgmentAfterExpiryIsAuditOnly(t *testing.T) {
	sms := &fakeSender{ch: models.ChannelSMS}
	e, clk := newTestEngine(map[models.Channel]transport.Sender{models.ChannelSMS: sms})
	ctx := context.Background()

	p := villageAlert(clk, true)
	p.Delivery.ExpiresAt = t0.Add(30 * time.Minute)
	a, err := e.CreateAlert(ctx, p)
	require.NoError(t, err)
	e.runDue()

	clk.Advance(time.Hour)
	e.runDue()
	got, err := e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExpired, got.Status)

	for _, id := range []string{"v1", "v2", "a1"} {
		require.NoError(t, e.Acknowledge(ctx, a.ID, models.AckRequest{Acknowledged: true, AcknowledgedBy: id}))
	}

	got, err = e.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
	acks, err := e.store.AcksByAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, acks, 3)
}
