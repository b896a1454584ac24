package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/proposals"
	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/runs"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// EvaluationRequest is a proposal submission.
type EvaluationRequest struct {
	Vendor       string  `json:"vendor" binding:"required"`
	Summary      string  `json:"summary" binding:"required"`
	PriceEUR     float64 `json:"price_eur"`
	LeadTimeDays int     `json:"lead_time_days"`
}

// EvaluationResponse acknowledges a submission.
type EvaluationResponse struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ErrorResponse wraps API errors.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code and message.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSubmitEvaluation(c *gin.Context) {
	var req EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid evaluation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}

	runID, err := s.evaluations.Evaluate(c.Request.Context(), proposals.Proposal{
		Vendor:       req.Vendor,
		Summary:      req.Summary,
		PriceEUR:     req.PriceEUR,
		LeadTimeDays: req.LeadTimeDays,
	})
	if err != nil {
		s.logger.Error("failed to submit evaluation", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{Code: "SUBMISSION_FAILED", Message: err.Error()},
		})
		return
	}

	c.JSON(http.StatusCreated, EvaluationResponse{
		RunID:       runID,
		Status:      string(domain.RunStatusSubmitted),
		SubmittedAt: time.Now().UTC(),
	})
}

// DeliberationRequest is an open-ended task submission for the advisory
// team's round-bounded deliberation.
type DeliberationRequest struct {
	Task string `json:"task" binding:"required"`
}

func (s *Server) handleSubmitDeliberation(c *gin.Context) {
	if s.deliberations == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_CONFIGURED", Message: "deliberations are not configured"},
		})
		return
	}

	var req DeliberationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid deliberation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}

	runID, err := s.deliberations.Deliberate(c.Request.Context(), req.Task)
	if err != nil {
		s.logger.Error("failed to submit deliberation", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{Code: "SUBMISSION_FAILED", Message: err.Error()},
		})
		return
	}

	c.JSON(http.StatusCreated, EvaluationResponse{
		RunID:       runID,
		Status:      string(domain.RunStatusSubmitted),
		SubmittedAt: time.Now().UTC(),
	})
}

func (s *Server) handleListEvaluations(c *gin.Context) {
	runIDs, err := s.runs.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: "LIST_FAILED", Message: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_ids": runIDs,
		"total":   len(runIDs),
	})
}

func (s *Server) handleGetEvaluation(c *gin.Context) {
	record, err := s.runs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_FOUND", Message: "run not found"},
		})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleGetStatus(c *gin.Context) {
	record, err := s.runs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_FOUND", Message: "run not found"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       record.RunID,
		"workflow":     record.Workflow,
		"status":       record.Status,
		"submitted_at": record.SubmittedAt,
		"completed_at": record.CompletedAt,
	})
}

func (s *Server) handleGetResult(c *gin.Context) {
	record, err := s.runs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_FOUND", Message: "run not found"},
		})
		return
	}
	if !record.Status.Terminal() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_COMPLETED", Message: "run not yet completed"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       record.RunID,
		"status":       record.Status,
		"result":       record.Result,
		"result_from":  record.ResultFrom,
		"error":        record.Error,
		"completed_at": record.CompletedAt,
	})
}

func (s *Server) handleCancel(c *gin.Context) {
	runID := c.Param("id")
	if err := s.runs.Cancel(c.Request.Context(), runID); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{Code: "CANCELLATION_FAILED", Message: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       string(domain.RunStatusCancelled),
		"cancelled_at": time.Now().UTC(),
	})
}

// handleStreamEvents streams a run's events as server-sent events until the
// run terminates or the client disconnects.
func (s *Server) handleStreamEvents(c *gin.Context) {
	runID := c.Param("id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan domain.Event, 64)
	err := s.bus.Subscribe(ctx, runs.Topic, func(_ context.Context, ev domain.Event) error {
		if ev.RunID != runID {
			return nil
		}
		select {
		case events <- ev:
		default:
			s.logger.Warn("sse channel full, dropping event",
				zap.String("run_id", runID),
				zap.String("event_type", string(ev.Type)))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to subscribe to run events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: "SUBSCRIBE_FAILED", Message: err.Error()},
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(string(ev.Type), ev)
			return !ev.Terminal()
		}
	})
}
