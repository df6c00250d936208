package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/altius-academy/activity-service/internal/errors"
	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
	"github.com/altius-academy/activity-service/internal/services"
)

func TestGradeTaskHandler_GetTask(t *testing.T) {
	sm := NewMockServiceManager()
	router := newTestRouter(t, sm)

	sm.gradeTasks.On("GetTask", mock.Anything, uint(7), "student-1").Return(&models.GradeTaskView{
		GradeTask: models.GradeTask{ID: 7, Title: "Quiz", TaskType: models.TaskTypeInteractive, MaxGrade: 5},
	}, nil).Once()
	sm.gradeTasks.On("GetTask", mock.Anything, uint(8), "student-1").
		Return(nil, services.NewPermissionError("student-1", 8, "grade_task", "read", "task is assigned to another student")).Once()
	sm.gradeTasks.On("GetTask", mock.Anything, uint(9), "student-1").
		Return(nil, fmt.Errorf("%w: 9", services.ErrTaskNotFound)).Once()

	w := doRequest(t, router, http.MethodGet, "/api/v1/student/grade-tasks/7", "student-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view models.GradeTaskView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Quiz", view.Title)
	assert.Nil(t, view.Submission)

	w = doRequest(t, router, http.MethodGet, "/api/v1/student/grade-tasks/8", "student-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/student/grade-tasks/9", "student-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/student/grade-tasks/abc", "student-token", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sm.gradeTasks.AssertExpectations(t)
}

func TestGradeTaskHandler_SubmitTask(t *testing.T) {
	sm := NewMockServiceManager()
	router := newTestRouter(t, sm)
	path := "/api/v1/student/grade-tasks/7/submit"
	body := `{"submissionText":"{\"totalQuestions\":5}","submissionFileUrl":null}`
	key := "2c1e4f0a-4a1b-4c9e-9a55-5d0f4f1f7b11"

	matchReq := mock.MatchedBy(func(req *services.SubmitTaskRequest) bool {
		return req.SubmissionText == `{"totalQuestions":5}` && req.SubmissionFileURL == nil
	})

	sm.gradeTasks.On("Submit", mock.Anything, uint(7), "student-1", matchReq, key).
		Return(&services.SubmitTaskResponse{Submission: &models.TaskSubmission{ID: 31, TaskID: 7}}, nil).Once()
	sm.gradeTasks.On("Submit", mock.Anything, uint(7), "student-1", matchReq, key).
		Return(&services.SubmitTaskResponse{Submission: &models.TaskSubmission{ID: 31, TaskID: 7}, Replayed: true}, nil).Once()

	w := doRequest(t, router, http.MethodPost, path, "student-token", body, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, w.Code)

	// The same key again is a replay, not a second write
	w = doRequest(t, router, http.MethodPost, path, "student-token", body, "Idempotency-Key", key)
	require.Equal(t, http.StatusOK, w.Code)
	var resp services.SubmitTaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Replayed)
	assert.Equal(t, uint(31), resp.Submission.ID)

	sm.gradeTasks.On("Submit", mock.Anything, uint(7), "student-1", mock.Anything, "").
		Return(nil, services.ErrSubmissionExists).Once()
	w = doRequest(t, router, http.MethodPost, path, "student-token", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeSubmissionExists, decodeError(t, w).Code)

	w = doRequest(t, router, http.MethodPost, path, "student-token", body, "Idempotency-Key", strings.Repeat("k", 65))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sm.gradeTasks.AssertExpectations(t)
}

func TestGradeTaskHandler_CreateTask(t *testing.T) {
	sm := NewMockServiceManager()
	router := newTestRouter(t, sm)

	sm.gradeTasks.On("CreateTask", mock.Anything, mock.MatchedBy(func(req *services.CreateGradeTaskRequest) bool {
		return req.Title == "Fracciones" && req.TaskType == models.TaskTypeInteractive
	}), "teacher-1").Return(&models.GradeTask{ID: 12, Title: "Fracciones", TeacherID: "teacher-1"}, nil).Once()

	w := doRequest(t, router, http.MethodPost, "/api/v1/teacher/grade-tasks", "teacher-token", map[string]interface{}{
		"title":          "Fracciones",
		"taskType":       "interactive",
		"studentId":      "student-1",
		"activityConfig": []map[string]interface{}{{"type": "true-false", "question": "1/2 > 1/3", "correctAnswer": true}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var task models.GradeTask
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, uint(12), task.ID)

	sm.gradeTasks.On("CreateTask", mock.Anything, mock.Anything, "teacher-1").
		Return(nil, apperrors.ValidationErrors{{Field: "activityConfig", Message: "must contain at least one activity"}}).Once()
	w = doRequest(t, router, http.MethodPost, "/api/v1/teacher/grade-tasks", "teacher-token", map[string]interface{}{
		"title":     "Vacía",
		"taskType":  "interactive",
		"studentId": "student-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, decodeError(t, w).Code)

	sm.gradeTasks.AssertExpectations(t)
}

func TestGradeTaskHandler_ListSubmissions(t *testing.T) {
	sm := NewMockServiceManager()
	router := newTestRouter(t, sm)

	graded := models.SubmissionGraded
	sm.gradeTasks.On("ListSubmissions", mock.Anything, uint(7), "teacher-1", mock.MatchedBy(func(f repositories.SubmissionFilters) bool {
		return f.Limit == 10 && f.Offset == 10 && f.Status != nil && *f.Status == graded && f.DateFrom != nil
	})).Return(&services.SubmissionListResponse{Total: 11, Limit: 10, Offset: 10}, nil).Once()

	w := doRequest(t, router, http.MethodGet,
		"/api/v1/teacher/grade-tasks/7/submissions?page=2&size=10&status=graded&date_from=2026-01-01T00:00:00Z",
		"teacher-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp services.SubmissionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(11), resp.Total)

	w = doRequest(t, router, http.MethodGet, "/api/v1/teacher/grade-tasks/7/submissions?date_to=yesterday", "teacher-token", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sm.gradeTasks.AssertExpectations(t)
}
