package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZayedOfficial/truthshield/internal/apperr"
	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/discrepancy"
	"github.com/ZayedOfficial/truthshield/internal/fhir"
	"github.com/ZayedOfficial/truthshield/internal/intake"
)

type storyRequest struct {
	Story string `json:"story"`
}

type finalRequest struct {
	Story   string    `json:"story"`
	Answers []*string `json:"answers"`
}

type analyzeResponse struct {
	*discrepancy.Result
	ElapsedMS int64  `json:"elapsedMs"`
	Time      string `json:"time"`
}

// respondError maps domain errors onto status codes.
func respondError(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "field": ve.Field, "message": ve.Message})
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, intake.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "message": err.Error()})
	case errors.Is(err, clinical.ErrScenarioNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.As(err, &maxErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(c, err)
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

func (h *handler) readyz(c *gin.Context) {
	mode := "simulation"
	if h.Engine != nil && !h.Engine.Status().Simulation {
		mode = "live"
	}

	if h.DB == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled", "engine": mode})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"db":     fmt.Sprintf("unhealthy: %v", err),
			"engine": mode,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok", "engine": mode})
}

func (h *handler) engineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Status())
}

func (h *handler) engineSync(c *gin.Context) {
	if err := h.Engine.Load(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  h.Engine.Status(),
			"message": "⚠️ MedGemma load failed: " + err.Error(),
		})
		return
	}
	st := h.Engine.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":  st,
		"message": "✅ MedGemma Initialized: " + st.ModelName,
	})
}

func (h *handler) listScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scenarios": h.Catalog.Scenarios()})
}

func (h *handler) getScenario(c *gin.Context) {
	s, err := h.Catalog.Scenario(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenario": s, "questions": s.Questions()})
}

func (h *handler) listQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": h.Catalog.Bank()})
}

func (h *handler) getSession(c *gin.Context) {
	s, err := h.Intake.Session(c.Request.Context(), c.Param("session"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) clearSession(c *gin.Context) {
	if err := h.Intake.Clear(c.Request.Context(), c.Param("session")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *handler) submitStory(c *gin.Context) {
	var req storyRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Intake.SubmitStory(c.Request.Context(), c.Param("session"), req.Story)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) loadScenario(c *gin.Context) {
	res, err := h.Intake.LoadScenario(c.Request.Context(), c.Param("session"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":   res.Session,
		"scenario":  res.Scenario,
		"questions": res.Session.Questions,
		"message":   res.Message,
	})
}

func (h *handler) submitFinal(c *gin.Context) {
	var req finalRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Intake.SubmitFinal(c.Request.Context(), c.Param("session"), req.Story, req.Answers)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) analyze(c *gin.Context) {
	var req discrepancy.Request
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Analyzer.Analyze(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{
		Result:    res,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Time:      res.GeneratedAt.Local().Format("15:04:05"),
	})
}

func (h *handler) ehrSync(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, err)
		return
	}
	if strings.TrimSpace(string(raw)) == "" {
		respondError(c, apperr.Validation("bundle", "Run analysis first before syncing to EHR."))
		return
	}
	id, err := fhir.ID(raw)
	if err != nil {
		respondError(c, apperr.Validation("bundle", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "transmitted",
		"bundleId": id,
		"message":  "✅ HL7 FHIR Bundle transmitted to Hospital EHR.",
	})
}
