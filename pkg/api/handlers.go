package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/orchestrator"
	"github.com/transparencia-br/fiscal/pkg/queue"
	"github.com/transparencia-br/fiscal/pkg/storage"
)

type submitRequest struct {
	Query     string `json:"query" binding:"required"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ic := models.Context{
		InvestigationID: orchestrator.NewInvestigationID(),
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		Query:           req.Query,
		ReferenceTime:   time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.CreatePending(c.Request.Context(), ic); err != nil {
			s.logger.Error("persist submission failed", "investigation_id", ic.InvestigationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not persist investigation"})
			return
		}
	}

	sink := s.newSink(ic.InvestigationID)
	go s.hub.Bridge(ic.InvestigationID, sink)

	if err := s.pool.Submit(queue.Job{Context: ic, Sink: sink}); err != nil {
		sink.Close()
		status := http.StatusServiceUnavailable
		if errors.Is(err, queue.ErrStopped) {
			status = http.StatusGone
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"investigation_id": ic.InvestigationID,
		"status":           string(models.InvestigationPending),
	})
}

func (s *Server) handleGet(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence disabled"})
		return
	}
	id := c.Param("id")

	summary, err := s.store.GetSummary(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown investigation"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"investigation": summary}
	if summary.Status.Terminal() {
		result, err := s.store.GetResult(c.Request.Context(), id)
		if err == nil {
			resp["result"] = result
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleList(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence disabled"})
		return
	}
	list, err := s.store.List(c.Request.Context(), c.Query("session_id"), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []storage.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"investigations": list})
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if !s.pool.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "investigation not active"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"investigation_id": id, "cancelling": true})
}

// handleEvents streams an investigation's progress as server-sent events.
func (s *Server) handleEvents(c *gin.Context) {
	id := c.Param("id")
	events, cancel := s.hub.Subscribe(id)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("event marshal failed", "investigation_id", id, "error", err)
				return true
			}
			c.SSEvent(ev.EventType(), string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type classifyRequest struct {
	Query string `json:"query" binding:"required"`
}

// handleClassify runs classification and extraction without executing.
func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref := time.Now().UTC()
	c.JSON(http.StatusOK, gin.H{
		"classification": s.orch.Classify(req.Query),
		"entities":       s.orch.Extract(req.Query, ref),
	})
}

// handlePlan builds the execution plan without executing it.
func (s *Server) handlePlan(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.orch.Plan(req.Query, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}
