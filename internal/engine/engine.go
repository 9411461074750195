package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"alert-engine/internal/config"
	"alert-engine/internal/logging"
	"alert-engine/internal/metrics"
	"alert-engine/internal/models"
	"alert-engine/internal/resolver"
	"alert-engine/internal/store"
	"alert-engine/internal/transport"
)

// ErrInvalidTransition is returned for lifecycle updates the state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// pauseRecheck is how long a timer item is pushed back when its alert is
// paused; pausing suspends timers without discarding them.
const pauseRecheck = time.Minute

// resolveRetry is the backoff before re-running a timer whose directory or
// store call failed transiently.
const resolveRetry = time.Minute

// Engine runs alert targeting, delivery, acknowledgment tracking, escalation
// and retry on a shared timer queue processed by a worker pool.
type Engine struct {
	store    store.Store
	resolver *resolver.Resolver
	senders  map[models.Channel]transport.Sender
	logger   *logging.Logger
	cfg      config.Config

	// now is replaceable so tests can drive the timer queue.
	now func() time.Time

	mu   sync.Mutex
	heap timerHeap
	seq  uint64
	wake chan struct{}

	tasks chan *timerItem

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// New constructs an Engine.
func New(st store.Store, res *resolver.Resolver, senders map[models.Channel]transport.Sender, logger *logging.Logger, cfg config.Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    st,
		resolver: res,
		senders:  senders,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		tasks:    make(chan *timerItem, cfg.Engine.QueueSize),
		locks:    make(map[uuid.UUID]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the scheduler and the worker pool.
func (e *Engine) Start(wg *sync.WaitGroup) {
	e.wg = wg
	e.wg.Add(1)
	go e.scheduler()
	for i := 0; i < e.cfg.Engine.MaxWorkers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// Stop cancels the scheduler and workers.
func (e *Engine) Stop() {
	e.cancel()
}

// lockAlert serializes all state mutations for one alert. Operations on
// different alerts never contend.
func (e *Engine) lockAlert(id uuid.UUID) func() {
	e.lockMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.lockMu.Unlock()
	l.Lock()
	return l.Unlock
}

// dropLock prunes the lock entry for an alert that reached a terminal status.
// Terminal alerts never transition again and every timer executor re-checks
// status first, so a late caller recreating the entry is harmless.
func (e *Engine) dropLock(id uuid.UUID) {
	e.lockMu.Lock()
	delete(e.locks, id)
	e.lockMu.Unlock()
}

// execute dispatches one due timer item. Every executor re-checks the alert's
// current status first, so stale items for resolved or cancelled alerts
// become no-ops.
func (e *Engine) execute(item *timerItem) {
	switch item.kind {
	case timerDispatch:
		e.runDispatch(item)
	case timerEscalation:
		e.runEscalation(item)
	case timerRetry:
		e.runRetry(item)
	case timerExpiry:
		e.runExpiry(item)
	}
}

// CreateAlert validates, persists and schedules a new alert. Validation
// errors are returned synchronously; the alert never enters the lifecycle.
func (e *Engine) CreateAlert(ctx context.Context, p models.AlertCreate) (models.Alert, error) {
	now := e.now()
	a, err := p.Build(now)
	if err != nil {
		return models.Alert{}, err
	}
	if err := e.store.CreateAlert(ctx, a); err != nil {
		return models.Alert{}, err
	}
	metrics.AlertsCreated.WithLabelValues(string(a.Type)).Inc()
	e.logger.Infof("Created alert %s type=%s status=%s", a.ID, a.Type, a.Status)

	if a.Status == models.StatusActive {
		e.scheduleAlert(a)
	}
	return a, nil
}

// scheduleAlert queues the initial dispatch and the expiry watchdog.
func (e *Engine) scheduleAlert(a models.Alert) {
	dispatchAt := e.now()
	if a.Delivery.ScheduledFor != nil && a.Delivery.ScheduledFor.After(dispatchAt) {
		dispatchAt = *a.Delivery.ScheduledFor
	}
	e.schedule(&timerItem{due: dispatchAt, kind: timerDispatch, alertID: a.ID})
	e.schedule(&timerItem{due: a.Delivery.ExpiresAt, kind: timerExpiry, alertID: a.ID})
}

// UpdateStatus applies a lifecycle transition requested by a caller.
func (e *Engine) UpdateStatus(ctx context.Context, id uuid.UUID, upd models.StatusUpdate) (models.Alert, error) {
	unlock := e.lockAlert(id)
	defer unlock()

	a, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if !models.CanTransition(a.Status, upd.Status) {
		return models.Alert{}, ErrInvalidTransition
	}
	if err := e.store.UpdateAlertStatus(ctx, id, upd.Status, upd.Reason, upd.UpdatedBy); err != nil {
		return models.Alert{}, err
	}
	e.logger.Infof("Alert %s status %s -> %s by %s", id, a.Status, upd.Status, upd.UpdatedBy)

	// Activating a draft starts its timers; everything else is picked up by
	// the status checks inside the executors.
	if a.Status == models.StatusDraft && upd.Status == models.StatusActive {
		a.Status = models.StatusActive
		e.scheduleAlert(a)
	}
	if upd.Status.Terminal() {
		e.dropLock(id)
	}
	return e.store.GetAlert(ctx, id)
}

// Acknowledge records a recipient acknowledgment and resolves the alert once
// every targeted recipient has acknowledged. Duplicate acknowledgments
// overwrite notes and actions without re-triggering downstream effects.
func (e *Engine) Acknowledge(ctx context.Context, id uuid.UUID, req models.AckRequest) error {
	unlock := e.lockAlert(id)
	defer unlock()

	a, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return err
	}

	created, err := e.store.UpsertAck(ctx, models.Acknowledgment{
		AlertID:        id,
		RecipientID:    req.AcknowledgedBy,
		AcknowledgedAt: e.now(),
		Notes:          req.Notes,
		ActionsTaken:   req.ActionsTaken,
	})
	if err != nil {
		return err
	}
	if !created {
		e.logger.Debugf("Duplicate acknowledgment for alert %s by %s", id, req.AcknowledgedBy)
		return nil
	}
	metrics.Acknowledgments.Inc()
	e.logger.Infof("Alert %s acknowledged by %s", id, req.AcknowledgedBy)

	// A late acknowledgment after expiry or cancellation is kept for audit
	// but cannot move the alert anymore.
	if a.Status.Terminal() {
		e.dropLock(id)
		return nil
	}
	return e.resolveIfFullyAcked(ctx, a)
}

// resolveIfFullyAcked transitions to resolved when every targeted recipient
// has acknowledged. Caller must hold the alert lock.
func (e *Engine) resolveIfFullyAcked(ctx context.Context, a models.Alert) error {
	done, err := e.fullyAcknowledged(ctx, a.ID)
	if err != nil {
		return err
	}
	if !done || !models.CanTransition(a.Status, models.StatusResolved) {
		return nil
	}
	if err := e.store.UpdateAlertStatus(ctx, a.ID, models.StatusResolved, "fully acknowledged", "engine"); err != nil {
		return err
	}
	e.logger.Infof("Alert %s fully acknowledged, resolved", a.ID)
	e.dropLock(a.ID)
	return nil
}

// fullyAcknowledged reports whether every recipient in the union of all
// resolved target sets so far has acknowledged. An alert that never resolved
// any recipients is not considered acknowledged.
func (e *Engine) fullyAcknowledged(ctx context.Context, id uuid.UUID) (bool, error) {
	targets, err := e.store.TargetsByAlert(ctx, id)
	if err != nil {
		return false, err
	}
	if len(targets) == 0 {
		return false, nil
	}
	acks, err := e.store.AcksByAlert(ctx, id)
	if err != nil {
		return false, err
	}
	acked := make(map[string]bool, len(acks))
	for _, ack := range acks {
		acked[ack.RecipientID] = true
	}
	for _, id := range targets {
		if !acked[id] {
			return false, nil
		}
	}
	return true, nil
}

// expire transitions the alert to expired if its lifecycle still allows it.
// Caller must hold the alert lock.
func (e *Engine) expire(ctx context.Context, a models.Alert) {
	if !models.CanTransition(a.Status, models.StatusExpired) {
		return
	}
	if err := e.store.UpdateAlertStatus(ctx, a.ID, models.StatusExpired, "expiry passed", "engine"); err != nil {
		e.logger.Errorf("Failed to expire alert %s: %v", a.ID, err)
		return
	}
	e.logger.Infof("Alert %s expired", a.ID)
	e.dropLock(a.ID)
}

// runExpiry handles the expiry watchdog timer.
func (e *Engine) runExpiry(item *timerItem) {
	unlock := e.lockAlert(item.alertID)
	defer unlock()

	ctx := e.ctx
	a, err := e.store.GetAlert(ctx, item.alertID)
	if err != nil {
		e.logger.Errorf("Expiry check: failed to load alert %s: %v", item.alertID, err)
		return
	}
	if a.Status.Terminal() {
		return
	}
	// A delivered alert with no acknowledgment requirement finished its work;
	// there is nothing left to expire.
	if a.Status == models.StatusDelivered && !a.Delivery.RequiresAcknowledgment {
		return
	}
	e.expire(ctx, a)
}
