package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alert-engine/internal/metrics"
	"alert-engine/internal/models"
)

// scheduleEscalation queues the evaluation of escalation level k, k's trigger
// delay after the dispatch that just completed. Level k+1 is only ever queued
// from level k's execution, so levels stay strictly ordered.
func (e *Engine) scheduleEscalation(a models.Alert, level int, dispatchedAt time.Time) {
	if !a.Delivery.RequiresAcknowledgment {
		return
	}
	if level > len(a.Escalation.Levels) || level > a.Escalation.Cap() {
		return
	}
	cfg := a.Escalation.Levels[level-1]
	e.schedule(&timerItem{
		due:     dispatchedAt.Add(time.Duration(cfg.TriggerAfterMinutes) * time.Minute),
		kind:    timerEscalation,
		alertID: a.ID,
		level:   level,
	})
}

// runEscalation evaluates one escalation level: if the alert still requires
// acknowledgment and is not fully acknowledged, it re-resolves the level's
// target set, dispatches over the level's channels and appends an audit
// record. Expiry takes precedence when both are due.
func (e *Engine) runEscalation(item *timerItem) {
	unlock := e.lockAlert(item.alertID)
	defer unlock()

	ctx := e.ctx
	now := e.now()

	a, err := e.store.GetAlert(ctx, item.alertID)
	if err != nil {
		e.logger.Errorf("Escalation: failed to load alert %s: %v", item.alertID, err)
		return
	}
	if a.Status.Terminal() || a.Status == models.StatusDraft {
		return
	}
	if a.Status == models.StatusPaused {
		item.due = now.Add(pauseRecheck)
		e.schedule(item)
		return
	}
	if now.After(a.Delivery.ExpiresAt) {
		e.expire(ctx, a)
		return
	}
	if !a.Delivery.RequiresAcknowledgment {
		return
	}

	done, err := e.fullyAcknowledged(ctx, a.ID)
	if err != nil {
		e.logger.Errorf("Escalation: failed to check acknowledgments for alert %s: %v", a.ID, err)
		item.due = now.Add(resolveRetry)
		e.schedule(item)
		return
	}
	if done {
		// The acknowledgment won the race; make sure the resolution landed.
		if err := e.resolveIfFullyAcked(ctx, a); err != nil {
			e.logger.Errorf("Escalation: failed to resolve alert %s: %v", a.ID, err)
		}
		return
	}
	if item.level > len(a.Escalation.Levels) || item.level > a.Escalation.Cap() {
		return
	}

	cfg := a.Escalation.Levels[item.level-1]
	channels := unionChannels(a.Delivery.Channels, cfg.AdditionalChannels)

	res, err := e.resolver.Resolve(ctx, cfg.EscalateTo, channels, now)
	if err != nil {
		e.logger.Errorf("Escalation: failed to resolve level %d targets for alert %s: %v", item.level, a.ID, err)
		item.due = now.Add(resolveRetry)
		e.schedule(item)
		return
	}
	if err := e.store.AddTargets(ctx, a.ID, res.IDs()); err != nil {
		e.logger.Errorf("Escalation: failed to record targets for alert %s: %v", a.ID, err)
	}

	rec := models.EscalationRecord{
		AlertID:        a.ID,
		Level:          item.level,
		TriggeredAt:    now,
		Target:         cfg.EscalateTo,
		Channels:       channels,
		RecipientCount: len(res.Recipients),
		TriggeredBy:    "engine",
	}
	if err := e.store.AppendEscalation(ctx, rec); err != nil {
		e.logger.Errorf("Escalation: failed to append record for alert %s: %v", a.ID, err)
		return
	}
	metrics.Escalations.Inc()
	e.logger.Infof("Alert %s escalated to level %d (%d recipients)", a.ID, item.level, len(res.Recipients))

	// A level that resolves to nobody is recorded with a zero count and does
	// not block the next level from firing on schedule.
	if !res.Empty() {
		e.dispatchPass(ctx, a, res)
	}

	e.scheduleEscalation(a, item.level+1, now)
}

// EscalateManually fires an out-of-band escalation requested by an operator.
func (e *Engine) EscalateManually(ctx context.Context, id uuid.UUID, req models.ManualEscalation) (models.EscalationRecord, error) {
	if err := req.EscalateTo.Validate(); err != nil {
		return models.EscalationRecord{}, fmt.Errorf("invalid escalation target: %w", err)
	}

	unlock := e.lockAlert(id)
	defer unlock()

	a, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return models.EscalationRecord{}, err
	}
	if a.Status.Terminal() || a.Status == models.StatusDraft {
		return models.EscalationRecord{}, ErrInvalidTransition
	}

	now := e.now()
	if req.UrgencyIncrease {
		a.Priority = models.PriorityEmergency
	}
	if req.AdditionalMessage != "" {
		a.Message = a.Message + "\n" + req.AdditionalMessage
	}
	if req.UrgencyIncrease || req.AdditionalMessage != "" {
		if err := e.store.UpdateAlertContent(ctx, id, a.Priority, a.Message); err != nil {
			return models.EscalationRecord{}, err
		}
	}

	res, err := e.resolver.Resolve(ctx, req.EscalateTo, a.Delivery.Channels, now)
	if err != nil {
		return models.EscalationRecord{}, err
	}
	if err := e.store.AddTargets(ctx, id, res.IDs()); err != nil {
		return models.EscalationRecord{}, err
	}

	rec := models.EscalationRecord{
		AlertID:        id,
		Level:          req.EscalationLevel,
		TriggeredAt:    now,
		Target:         req.EscalateTo,
		Channels:       a.Delivery.Channels,
		RecipientCount: len(res.Recipients),
		Reason:         req.EscalationReason,
		TriggeredBy:    "manual",
	}
	if err := e.store.AppendEscalation(ctx, rec); err != nil {
		return models.EscalationRecord{}, err
	}
	metrics.Escalations.Inc()
	e.logger.Infof("Alert %s manually escalated to level %d (%d recipients)", id, req.EscalationLevel, len(res.Recipients))

	if !res.Empty() {
		e.dispatchPass(ctx, a, res)
	}
	return rec, nil
}

func unionChannels(a, b []models.Channel) []models.Channel {
	out := append([]models.Channel{}, a...)
	for _, ch := range b {
		seen := false
		for _, have := range out {
			if have == ch {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, ch)
		}
	}
	return out
}
