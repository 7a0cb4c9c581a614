package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateRequest, requestedBy *string) (*dto.GenerationResponse, error)
	EnqueueGenerate(ctx context.Context, req dto.GenerateRequest, requestedBy *string) (*models.TimetableRun, error)
	Preview(ctx context.Context, req dto.PreviewRequest, requestedBy *string) (*dto.GenerationResponse, error)
	Commit(ctx context.Context, proposalID string, requestedBy *string) (*models.TimetableRun, error)
	GetRun(ctx context.Context, id string) (*models.TimetableRun, error)
	ListRuns(ctx context.Context, query dto.RunQuery) ([]models.TimetableRun, error)
	Schedule(ctx context.Context, query dto.ScheduleQuery) ([]models.ScheduleSlot, error)
	ClearSchedule(ctx context.Context) (int64, error)
}

type timetableExporter interface {
	Export(ctx context.Context, query dto.ExportQuery) (*service.ExportResult, error)
}

// TimetableHandler exposes timetable generation endpoints.
type TimetableHandler struct {
	service  timetableService
	exporter timetableExporter
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService, exporter *service.ExportService) *TimetableHandler {
	return &TimetableHandler{service: svc, exporter: exporter}
}

// Generate godoc
// @Summary Generate the weekly timetable from stored entities
// @Description Runs the engine over the stored catalog and replaces the stored schedule on success. Partial results return 200 with placed/failed counts. With async=true the run is queued and 202 is returned.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param async query bool false "Queue the run instead of waiting"
// @Param payload body dto.GenerateRequest false "Generation options"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
			return
		}
	}

	async, err := parseBoolQuery(c, "async")
	if err != nil {
		response.Error(c, err)
		return
	}
	if async {
		run, err := h.service.EnqueueGenerate(c.Request.Context(), req, requesterID(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, run)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req, requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, generationMeta(result))
}

// Preview godoc
// @Summary Preview a timetable for an inline dataset
// @Description Runs the engine without touching stored data. The result is kept as a proposal that can be committed until it expires.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.PreviewRequest true "Dataset and options"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetable/preview [post]
func (h *TimetableHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preview payload"))
		return
	}
	result, err := h.service.Preview(c.Request.Context(), req, requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, generationMeta(result))
}

// Commit godoc
// @Summary Persist a previewed proposal
// @Tags Timetable
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/proposals/{id}/commit [post]
func (h *TimetableHandler) Commit(c *gin.Context) {
	run, err := h.service.Commit(c.Request.Context(), c.Param("id"), requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, run)
}

// ListRuns godoc
// @Summary List recent generation runs
// @Tags Timetable
// @Produce json
// @Param limit query int false "Maximum runs (default 20, max 100)"
// @Success 200 {object} response.Envelope
// @Router /timetable/runs [get]
func (h *TimetableHandler) ListRuns(c *gin.Context) {
	var query dto.RunQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	runs, err := h.service.ListRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs)
}

// GetRun godoc
// @Summary Get one generation run with its audit
// @Tags Timetable
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/runs/{id} [get]
func (h *TimetableHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// Schedule godoc
// @Summary List stored timetable slots
// @Tags Timetable
// @Produce json
// @Param groupId query string false "Class group ID"
// @Param teacherId query string false "Teacher ID"
// @Param classroomId query string false "Classroom ID"
// @Param day query string false "Day name"
// @Success 200 {object} response.Envelope
// @Router /timetable/schedule [get]
func (h *TimetableHandler) Schedule(c *gin.Context) {
	var query dto.ScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	slots, err := h.service.Schedule(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, map[string]interface{}{"total": len(slots)})
}

// ClearSchedule godoc
// @Summary Delete every stored timetable slot
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/schedule [delete]
func (h *TimetableHandler) ClearSchedule(c *gin.Context) {
	deleted, err := h.service.ClearSchedule(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted})
}

// Export godoc
// @Summary Download the stored timetable
// @Tags Timetable
// @Produce octet-stream
// @Param format query string false "csv, pdf or xlsx"
// @Param groupId query string false "Class group ID"
// @Param teacherId query string false "Teacher ID"
// @Param classroomId query string false "Classroom ID"
// @Param day query string false "Day name"
// @Success 200 {file} binary
// @Router /timetable/schedule/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}

func generationMeta(result *dto.GenerationResponse) map[string]interface{} {
	return map[string]interface{}{
		"complete": result.Complete,
		"expected": result.Expected,
		"placed":   result.Placed,
		"failed":   result.Failed,
	}
}

func parseBoolQuery(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrValidation, key+" must be a boolean")
	}
	return value, nil
}
