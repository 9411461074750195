package engine

import (
	"context"
	"time"

	"alert-engine/internal/directory"
	"alert-engine/internal/metrics"
	"alert-engine/internal/models"
	"alert-engine/internal/resolver"
	"alert-engine/internal/transport"
)

// runDispatch performs the initial delivery pass for an alert. It defers
// until the scheduled send time, rejects dispatch past expiry, resolves the
// target set and fans out one attempt per (recipient, channel) pair.
func (e *Engine) runDispatch(item *timerItem) {
	unlock := e.lockAlert(item.alertID)
	defer unlock()

	ctx := e.ctx
	now := e.now()

	a, err := e.store.GetAlert(ctx, item.alertID)
	if err != nil {
		e.logger.Errorf("Dispatch: failed to load alert %s: %v", item.alertID, err)
		return
	}
	if a.Status.Terminal() || a.Status == models.StatusDelivered || a.Status == models.StatusDraft {
		return
	}
	if a.Status == models.StatusPaused {
		item.due = now.Add(pauseRecheck)
		e.schedule(item)
		return
	}
	if a.Delivery.ScheduledFor != nil && now.Before(*a.Delivery.ScheduledFor) {
		item.due = *a.Delivery.ScheduledFor
		e.schedule(item)
		return
	}
	if now.After(a.Delivery.ExpiresAt) {
		e.expire(ctx, a)
		return
	}

	res, err := e.resolver.Resolve(ctx, a.Target, a.Delivery.Channels, now)
	if err != nil {
		e.logger.Errorf("Dispatch: failed to resolve targets for alert %s: %v", a.ID, err)
		item.due = now.Add(resolveRetry)
		e.schedule(item)
		return
	}
	if err := e.store.AddTargets(ctx, a.ID, res.IDs()); err != nil {
		e.logger.Errorf("Dispatch: failed to record targets for alert %s: %v", a.ID, err)
	}
	for range res.Unresolved {
		metrics.DispatchAttempts.WithLabelValues("none", "unresolved").Inc()
	}

	if res.Empty() {
		// Empty membership is legitimate (roles or areas can be vacant);
		// the alert completes with an empty delivery set and is flagged.
		e.logger.Warnf("Alert %s resolved to zero recipients", a.ID)
		if err := e.store.MarkUnresolvable(ctx, a.ID); err != nil {
			e.logger.Errorf("Failed to flag alert %s unresolvable: %v", a.ID, err)
		}
		if models.CanTransition(a.Status, models.StatusDelivered) {
			if err := e.store.UpdateAlertStatus(ctx, a.ID, models.StatusDelivered, "empty delivery set", "engine"); err != nil {
				e.logger.Errorf("Failed to mark alert %s delivered: %v", a.ID, err)
			}
		}
	} else {
		e.dispatchPass(ctx, a, res)
		e.maybeMarkDelivered(ctx, a)
	}

	e.scheduleEscalation(a, 1, now)
}

// dispatchPass creates and executes one delivery attempt per (recipient,
// channel) pair in the resolved set. Pairs never duplicate within a pass; the
// attempt number continues the pair's chain across passes.
func (e *Engine) dispatchPass(ctx context.Context, a models.Alert, res *resolver.Result) {
	existing, err := e.store.AttemptsByAlert(ctx, a.ID)
	if err != nil {
		e.logger.Errorf("Dispatch: failed to load attempts for alert %s: %v", a.ID, err)
		return
	}
	lastAttempt := make(map[string]int, len(existing))
	for _, at := range existing {
		key := at.RecipientID + "/" + string(at.Channel)
		if at.Attempt > lastAttempt[key] {
			lastAttempt[key] = at.Attempt
		}
	}

	for _, rec := range res.Ordered() {
		for _, ch := range rec.Channels {
			key := rec.Recipient.ID + "/" + string(ch)
			attempt := lastAttempt[key] + 1
			lastAttempt[key] = attempt
			e.deliver(ctx, a, rec.Recipient, ch, ch, attempt, 0)
		}
	}
}

// deliver records one attempt, hands it to the channel adapter and applies
// the outcome. Retryable failures schedule a bounded retry; structurally
// fatal failures exhaust the pair immediately.
func (e *Engine) deliver(ctx context.Context, a models.Alert, rec directory.Recipient, pairCh, viaCh models.Channel, attempt, retryCount int) {
	now := e.now()
	at := models.DeliveryAttempt{
		AlertID:     a.ID,
		RecipientID: rec.ID,
		Channel:     pairCh,
		ViaChannel:  viaCh,
		Attempt:     attempt,
		Timestamp:   now,
		Outcome:     models.OutcomePending,
	}
	if err := e.store.CreateAttempt(ctx, at); err != nil {
		e.logger.Errorf("Failed to record attempt %s/%s/%s#%d: %v", a.ID, rec.ID, pairCh, attempt, err)
		return
	}

	var sendErr error
	sender, ok := e.senders[viaCh]
	if !ok {
		sendErr = transport.Permanentf("no adapter configured for channel %s", viaCh)
	} else {
		sendErr = sender.Send(ctx, transport.Message{Alert: a, Recipient: rec, Channel: viaCh, Attempt: attempt})
	}

	outcome := models.OutcomeSent
	errMsg := ""
	switch {
	case sendErr == nil:
	case transport.IsPermanent(sendErr):
		outcome = models.OutcomeExhausted
		errMsg = sendErr.Error()
		e.logger.Warnf("Alert %s to %s via %s failed permanently: %v", a.ID, rec.ID, viaCh, sendErr)
	case retryCount >= a.Retry.MaxRetries:
		outcome = models.OutcomeExhausted
		errMsg = sendErr.Error()
		e.logger.Warnf("Alert %s to %s via %s exhausted after %d attempts: %v", a.ID, rec.ID, viaCh, attempt, sendErr)
	default:
		outcome = models.OutcomeFailed
		errMsg = sendErr.Error()
		next := viaCh
		if a.Retry.ChannelOverride != nil {
			next = *a.Retry.ChannelOverride
		}
		e.schedule(&timerItem{
			due:         now.Add(time.Duration(a.Retry.IntervalMinutes) * time.Minute),
			kind:        timerRetry,
			alertID:     a.ID,
			recipient:   rec,
			pairChannel: pairCh,
			viaChannel:  next,
			attempt:     attempt + 1,
			retryCount:  retryCount + 1,
		})
		metrics.Retries.Inc()
		e.logger.Infof("Alert %s to %s via %s failed, retry %d/%d scheduled: %v",
			a.ID, rec.ID, viaCh, retryCount+1, a.Retry.MaxRetries, sendErr)
	}

	if err := e.store.UpdateAttemptOutcome(ctx, a.ID, rec.ID, pairCh, attempt, outcome, errMsg); err != nil {
		e.logger.Errorf("Failed to update attempt outcome %s/%s/%s#%d: %v", a.ID, rec.ID, pairCh, attempt, err)
	}
	metrics.DispatchAttempts.WithLabelValues(string(viaCh), string(outcome)).Inc()
}

// runRetry re-attempts one failed (recipient, channel) pair. A retry for a
// finished, paused or expired alert is a no-op or is pushed back.
func (e *Engine) runRetry(item *timerItem) {
	unlock := e.lockAlert(item.alertID)
	defer unlock()

	ctx := e.ctx
	now := e.now()

	a, err := e.store.GetAlert(ctx, item.alertID)
	if err != nil {
		e.logger.Errorf("Retry: failed to load alert %s: %v", item.alertID, err)
		return
	}
	if a.Status.Terminal() {
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

	e.deliver(ctx, a, item.recipient, item.pairChannel, item.viaChannel, item.attempt, item.retryCount)
	e.maybeMarkDelivered(ctx, a)
}

// maybeMarkDelivered transitions an alert whose every (recipient, channel)
// pair has reached a terminal outcome. Alerts that require acknowledgment
// stay active so their escalation and acknowledgment tracking keep running;
// delivery completion for them is observable through the attempt records.
func (e *Engine) maybeMarkDelivered(ctx context.Context, a models.Alert) {
	if a.Status != models.StatusActive || a.Delivery.RequiresAcknowledgment {
		return
	}
	attempts, err := e.store.AttemptsByAlert(ctx, a.ID)
	if err != nil {
		e.logger.Errorf("Failed to load attempts for alert %s: %v", a.ID, err)
		return
	}
	latest := make(map[string]models.Outcome)
	for _, at := range attempts {
		key := at.RecipientID + "/" + string(at.Channel)
		latest[key] = at.Outcome
	}
	if len(latest) == 0 {
		return
	}
	for _, outcome := range latest {
		if !outcome.Terminal() {
			return
		}
	}
	if err := e.store.UpdateAlertStatus(ctx, a.ID, models.StatusDelivered, "all sends completed", "engine"); err != nil {
		e.logger.Errorf("Failed to mark alert %s delivered: %v", a.ID, err)
		return
	}
	e.logger.Infof("Alert %s delivered", a.ID)
}
