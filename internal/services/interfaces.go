package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
)

// ===== REQUEST/RESPONSE DTOs =====

type CreateGradeTaskRequest = models.CreateGradeTaskRequest
type SubmitTaskRequest = models.SubmitTaskRequest

type SubmissionListResponse struct {
	Submissions []*models.TaskSubmission `json:"submissions"`
	Total       int64                    `json:"total"`
	Limit       int                      `json:"limit"`
	Offset      int                      `json:"offset"`
}

// SubmitTaskResponse carries the stored submission and whether the request
// was a replay of an earlier write
type SubmitTaskResponse struct {
	Submission *models.TaskSubmission `json:"submission"`
	Replayed   bool                   `json:"replayed"`
}

// ===== SERVICE INTERFACES =====

// GradingService evaluates answers and aggregates scores. It holds no state.
type GradingService interface {
	Grade(activity models.Activity, raw json.RawMessage) (models.Answer, models.AnswerRecord, error)
	Aggregate(answers []models.AnswerRecord, totalCount int, maxGrade float64) (ScoreSummary, error)
}

// SessionService hosts live activity sessions
type SessionService interface {
	Start(ctx context.Context, studentID string, req *models.StartSessionRequest) (*models.SessionView, error)
	Get(ctx context.Context, id uuid.UUID, studentID string) (*models.SessionView, error)
	SubmitAnswer(ctx context.Context, id uuid.UUID, studentID string, req *models.SessionAnswerRequest) (*models.AnswerOutcome, error)
	Review(ctx context.Context, id uuid.UUID, studentID string, index int) (*models.ReviewItem, error)
	RetrySubmit(ctx context.Context, id uuid.UUID, studentID string) (*models.SessionView, error)
	Abandon(ctx context.Context, id uuid.UUID, studentID string) error

	// TickAll advances every live session by one second and returns how many
	// sessions finished on this tick
	TickAll(ctx context.Context) int
	ActiveCount() int
	Shutdown(ctx context.Context) error
}

// GradeTaskService is the backend side of the grade task endpoints
type GradeTaskService interface {
	GetTask(ctx context.Context, taskID uint, studentID string) (*models.GradeTaskView, error)
	Submit(ctx context.Context, taskID uint, studentID string, req *SubmitTaskRequest, idempotencyKey string) (*SubmitTaskResponse, error)
	CreateTask(ctx context.Context, req *CreateGradeTaskRequest, teacherID string) (*models.GradeTask, error)
	ListSubmissions(ctx context.Context, taskID uint, teacherID string, filters repositories.SubmissionFilters) (*SubmissionListResponse, error)
}

// SubmissionPersister writes a finished session to the grade task backend.
// Persist must be called at most once per successful write; callers retry
// with the same payload so the idempotency key stays stable.
type SubmissionPersister interface {
	Persist(ctx context.Context, taskID uint, payload SubmissionPayload) (*SubmissionReceipt, error)
}

// TaskSource loads the task a session is played from
type TaskSource interface {
	FetchTask(ctx context.Context, taskID uint, studentID string) (*models.GradeTaskView, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Grading() GradingService
	Session() SessionService
	GradeTask() GradeTaskService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
