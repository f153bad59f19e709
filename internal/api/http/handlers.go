package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/supervisor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers serves the REST view of the session manager.
type Handlers struct {
	manager   *supervisor.Manager
	metrics   *monitoring.Metrics
	log       *zap.Logger
	startedAt time.Time
}

// NewHandlers creates the REST handlers.
func NewHandlers(manager *supervisor.Manager, metrics *monitoring.Metrics, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		manager:   manager,
		metrics:   metrics,
		log:       log.Named("http"),
		startedAt: time.Now(),
	}
}

// Health reports liveness and the number of sessions.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": h.manager.Len(),
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// ListSessions returns a snapshot of every session.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.manager.List()
	if sessions == nil {
		sessions = []supervisor.Info{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": sessions,
	})
}

// GetSession returns one session.
func (h *Handlers) GetSession(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": sess.Info(),
	})
}

// AbortSession tears the session's current run down and reports each
// teardown step. The session stays registered.
func (h *Handlers) AbortSession(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	steps := sess.Abort()
	if steps == nil {
		steps = []supervisor.StepResult{}
	}
	h.log.Info("Session aborted over HTTP", zap.String("session", sess.ID().String()))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"steps":   steps,
		"session": sess.Info(),
	})
}

// RemoveSession tears the session down and forgets it.
func (h *Handlers) RemoveSession(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	h.manager.Remove(sess.ID(), supervisor.ReasonAbort)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      sess.ID().String(),
	})
}

// Metrics serves the Prometheus registry.
func (h *Handlers) Metrics() gin.HandlerFunc {
	return gin.WrapH(h.metrics.Handler())
}

func (h *Handlers) lookup(c *gin.Context) (*supervisor.Session, bool) {
	sid := id.SessionID(c.Param("id"))
	if !id.IsValid(string(sid), id.SessionPrefix) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid session id",
		})
		return nil, false
	}
	sess, err := h.manager.Get(sid)
	if errors.Is(err, supervisor.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return nil, false
	}
	return sess, true
}
