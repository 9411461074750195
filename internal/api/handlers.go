package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"alert-engine/internal/engine"
	"alert-engine/internal/logging"
	"alert-engine/internal/models"
	"alert-engine/internal/store"
	"alert-engine/internal/transport"
)

const maxBulkAlerts = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves the admin API. Mutations go through the engine; queries read
// the store directly.
type Handler struct {
	engine    *engine.Engine
	store     store.Store
	wsManager *transport.WebSocketManager
	logger    *logging.Logger
}

func NewHandler(eng *engine.Engine, st store.Store, ws *transport.WebSocketManager, logger *logging.Logger) *Handler {
	return &Handler{engine: eng, store: st, wsManager: ws, logger: logger}
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var payload models.AlertCreate
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Errorf("Invalid alert payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	alert, err := h.engine.CreateAlert(c.Request.Context(), payload)
	if err != nil {
		h.logger.Errorf("Failed to create alert: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Infof("Created alert: %s", alert.ID)
	c.JSON(http.StatusCreated, alert)
}

func (h *Handler) BulkCreateAlerts(c *gin.Context) {
	var bulk models.BulkCreate
	if err := c.ShouldBindJSON(&bulk); err != nil {
		h.logger.Errorf("Invalid bulk payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(bulk.Alerts) == 0 || len(bulk.Alerts) > maxBulkAlerts {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bulk create accepts between 1 and 100 alerts"})
		return
	}

	var result models.BulkResult
	for i, payload := range bulk.Alerts {
		if i > 0 && bulk.Options.DelayBetweenAlertsMs > 0 {
			time.Sleep(time.Duration(bulk.Options.DelayBetweenAlertsMs) * time.Millisecond)
		}
		alert, err := h.engine.CreateAlert(c.Request.Context(), payload)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			if bulk.Options.StopOnFirstFailure {
				break
			}
			continue
		}
		result.Created = append(result.Created, alert.ID)
	}

	if bulk.Options.NotifyOnCompletion {
		h.logger.Infof("Bulk create completed: %d created, %d failed", len(result.Created), result.Failed)
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	alert, err := h.store.GetAlert(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err)
		return
	}

	attempts, _ := h.store.AttemptsByAlert(c.Request.Context(), id)
	acks, _ := h.store.AcksByAlert(c.Request.Context(), id)
	escalations, _ := h.store.EscalationsByAlert(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{
		"alert":           alert,
		"attempts":        attempts,
		"acknowledgments": acks,
		"escalations":     escalations,
	})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	var upd models.StatusUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	alert, err := h.engine.UpdateStatus(c.Request.Context(), id, upd)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.notFoundOrError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) Acknowledge(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	var req models.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !req.Acknowledged {
		c.JSON(http.StatusBadRequest, gin.H{"error": "acknowledged must be true"})
		return
	}

	if err := h.engine.Acknowledge(c.Request.Context(), id, req); err != nil {
		h.notFoundOrError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Acknowledgment recorded"})
}

func (h *Handler) Escalate(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	var req models.ManualEscalation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rec, err := h.engine.EscalateManually(c.Request.Context(), id, req)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": "alert cannot be escalated in its current status"})
			return
		}
		h.notFoundOrError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) QueryAlerts(c *gin.Context) {
	f := store.AlertFilter{
		RecipientID: c.Query("recipient_id"),
		Role:        models.Role(c.Query("role")),
		AreaID:      c.Query("area_id"),
		Search:      c.Query("search"),
		SortBy:      c.Query("sort_by"),
		SortDesc:    c.Query("sort_dir") == "desc",
		Limit:       intQuery(c, "limit", 50),
		Offset:      intQuery(c, "offset", 0),
	}
	for _, v := range splitQuery(c, "type") {
		f.Types = append(f.Types, models.AlertType(v))
	}
	for _, v := range splitQuery(c, "status") {
		f.Statuses = append(f.Statuses, models.Status(v))
	}
	for _, v := range splitQuery(c, "level") {
		f.Levels = append(f.Levels, models.AlertLevel(v))
	}
	for _, v := range splitQuery(c, "priority") {
		f.Priorities = append(f.Priorities, models.Priority(v))
	}
	if t, ok := timeQuery(c, "created_from"); ok {
		f.CreatedFrom = &t
	}
	if t, ok := timeQuery(c, "created_to"); ok {
		f.CreatedTo = &t
	}
	if v, ok := boolQuery(c, "acknowledged"); ok {
		f.Acknowledged = &v
	}
	if v, ok := boolQuery(c, "escalated"); ok {
		f.Escalated = &v
	}

	alerts, total, err := h.store.ListAlerts(c.Request.Context(), f)
	if err != nil {
		h.logger.Errorf("Failed to query alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (h *Handler) GetAttempts(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	attempts, err := h.store.AttemptsByAlert(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

func (h *Handler) GetAcknowledgments(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	acks, err := h.store.AcksByAlert(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, acks)
}

func (h *Handler) GetEscalations(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	records, err := h.store.EscalationsByAlert(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// WebSocket attaches a recipient connection for the in_app channel.
func (h *Handler) WebSocket(c *gin.Context) {
	recipientID := c.Param("recipient_id")
	if recipientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed for recipient %s: %v", recipientID, err)
		return
	}
	h.wsManager.AddConnection(recipientID, conn)

	go func() {
		defer func() {
			h.wsManager.RemoveConnection(recipientID, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Handler) alertID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(c *gin.Context, id uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	h.logger.Errorf("Alert %s request failed: %v", id, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func splitQuery(c *gin.Context, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func boolQuery(c *gin.Context, key string) (bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func timeQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
