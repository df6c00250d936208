package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/services"
	"github.com/altius-academy/activity-service/internal/utils"
)

// SessionHandler serves the live activity session endpoints a student plays
// through
type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
}

func NewSessionHandler(sessionService services.SessionService, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
	}
}

// StartSession starts or resumes a session for an interactive task
// @Summary Start activity session
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body models.StartSessionRequest true "Task to play"
// @Success 201 {object} models.SessionView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req models.StartSessionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting activity session", "task_id", req.TaskID)

	view, err := h.sessionService.Start(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

// GetSession returns the current state of a session
// @Summary Get activity session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionView
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := h.parseSessionID(c)
	if !ok {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	view, err := h.sessionService.Get(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SubmitAnswer records the answer for the current activity. When the answer
// completes the session the write result is reported in the returned view.
// @Summary Submit answer
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.SessionAnswerRequest true "Answer"
// @Success 200 {object} models.AnswerOutcome
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers [post]
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	id, ok := h.parseSessionID(c)
	if !ok {
		return
	}

	var req models.SessionAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	outcome, err := h.sessionService.SubmitAnswer(c.Request.Context(), id, userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ReviewAnswer returns an answered activity with the recorded answer
// @Summary Review answered activity
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Activity index"
// @Success 200 {object} models.ReviewItem
// @Failure 400 {object} ErrorResponse
// @Router /sessions/{id}/review/{index} [get]
func (h *SessionHandler) ReviewAnswer(c *gin.Context) {
	id, ok := h.parseSessionID(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid index",
			Details: "must be a non-negative integer",
			Code:    CodeInvalidSession,
		})
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	item, err := h.sessionService.Review(c.Request.Context(), id, userID, index)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// RetrySubmit repeats the submission write for a completed session whose
// earlier write failed
// @Summary Retry submission write
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionView
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) RetrySubmit(c *gin.Context) {
	id, ok := h.parseSessionID(c)
	if !ok {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Retrying session submission", "session_id", id)

	view, err := h.sessionService.RetrySubmit(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// AbandonSession drops a running session without writing a submission
// @Summary Abandon activity session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	id, ok := h.parseSessionID(c)
	if !ok {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Abandoning activity session", "session_id", id)

	if err := h.sessionService.Abandon(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid session id",
			Details: err.Error(),
			Code:    CodeInvalidSession,
		})
		return uuid.Nil, false
	}
	return id, true
}
