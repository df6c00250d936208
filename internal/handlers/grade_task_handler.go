package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/altius-academy/activity-service/internal/gateway"
	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
	"github.com/altius-academy/activity-service/internal/services"
	"github.com/altius-academy/activity-service/internal/utils"
)

const maxIdempotencyKeyLength = 64

type GradeTaskHandler struct {
	BaseHandler
	gradeTaskService services.GradeTaskService
}

func NewGradeTaskHandler(gradeTaskService services.GradeTaskService, logger utils.Logger) *GradeTaskHandler {
	return &GradeTaskHandler{
		BaseHandler:      NewBaseHandler(logger),
		gradeTaskService: gradeTaskService,
	}
}

// GetTask returns a task assigned to the current student with any existing
// submission
// @Summary Get grade task
// @Tags grade-tasks
// @Produce json
// @Param taskId path uint true "Task ID"
// @Success 200 {object} models.GradeTaskView
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /student/grade-tasks/{taskId} [get]
func (h *GradeTaskHandler) GetTask(c *gin.Context) {
	taskID := h.parseIDParam(c, "taskId")
	if taskID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	view, err := h.gradeTaskService.GetTask(c.Request.Context(), taskID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SubmitTask stores the student's submission. A repeated Idempotency-Key
// returns the stored submission with 200 instead of writing again.
// @Summary Submit grade task
// @Tags grade-tasks
// @Accept json
// @Produce json
// @Param taskId path uint true "Task ID"
// @Param Idempotency-Key header string false "Replay key"
// @Param request body models.SubmitTaskRequest true "Submission"
// @Success 201 {object} services.SubmitTaskResponse
// @Success 200 {object} services.SubmitTaskResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /student/grade-tasks/{taskId}/submit [post]
func (h *GradeTaskHandler) SubmitTask(c *gin.Context) {
	taskID := h.parseIDParam(c, "taskId")
	if taskID == 0 {
		return
	}

	key := strings.TrimSpace(c.GetHeader(gateway.IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLength {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid Idempotency-Key",
			Details: "must be at most 64 characters",
			Code:    CodeValidation,
		})
		return
	}

	var req models.SubmitTaskRequest
	if !h.bindJSON(c, &req) {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting grade task", "task_id", taskID, "idempotent", key != "")

	resp, err := h.gradeTaskService.Submit(c.Request.Context(), taskID, userID, &req, key)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// CreateTask assigns a new task to a student
// @Summary Create grade task
// @Tags grade-tasks
// @Accept json
// @Produce json
// @Param request body models.CreateGradeTaskRequest true "Task"
// @Success 201 {object} models.GradeTask
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /teacher/grade-tasks [post]
func (h *GradeTaskHandler) CreateTask(c *gin.Context) {
	var req models.CreateGradeTaskRequest
	if !h.bindJSON(c, &req) {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating grade task", "task_type", req.TaskType, "student_id", req.StudentID)

	task, err := h.gradeTaskService.CreateTask(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// ListSubmissions lists the submissions of a task
// @Summary List task submissions
// @Tags grade-tasks
// @Produce json
// @Param taskId path uint true "Task ID"
// @Param status query string false "Submission status"
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Success 200 {object} services.SubmissionListResponse
// @Failure 403 {object} ErrorResponse
// @Router /teacher/grade-tasks/{taskId}/submissions [get]
func (h *GradeTaskHandler) ListSubmissions(c *gin.Context) {
	taskID := h.parseIDParam(c, "taskId")
	if taskID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	filters, ok := h.parseSubmissionFilters(c)
	if !ok {
		return
	}

	resp, err := h.gradeTaskService.ListSubmissions(c.Request.Context(), taskID, userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *GradeTaskHandler) parseSubmissionFilters(c *gin.Context) (repositories.SubmissionFilters, bool) {
	page := parseIntQuery(c, "page", 1)
	size := parseIntQuery(c, "size", 20)
	if page < 1 {
		page = 1
	}

	filters := repositories.SubmissionFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if status := c.Query("status"); status != "" {
		submissionStatus := models.SubmissionStatus(status)
		filters.Status = &submissionStatus
	}

	for param, dest := range map[string]**time.Time{
		"date_from": &filters.DateFrom,
		"date_to":   &filters.DateTo,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid " + param,
				Details: "must be an RFC3339 timestamp",
				Code:    CodeValidation,
			})
			return filters, false
		}
		*dest = &t
	}

	return filters, true
}

func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	if value := c.Query(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
