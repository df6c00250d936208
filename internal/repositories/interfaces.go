package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/altius-academy/activity-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type SubmissionFilters struct {
	Status    *models.SubmissionStatus `json:"status"`
	DateFrom  *time.Time               `json:"date_from"`
	DateTo    *time.Time               `json:"date_to"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`    // "submitted_at", "score"
	SortOrder string                   `json:"sort_order"` // "asc", "desc"
}

// ===== REPOSITORY INTERFACES =====

// TaskRepository interface for grade task operations
type TaskRepository interface {
	Create(ctx context.Context, tx *gorm.DB, task *models.GradeTask) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.GradeTask, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TaskStatus) error
}

// SubmissionRepository interface for task submission operations
type SubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *models.TaskSubmission) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TaskSubmission, error)
	Update(ctx context.Context, tx *gorm.DB, submission *models.TaskSubmission) error

	// Lookups used for replay detection and review
	GetByTaskAndStudent(ctx context.Context, tx *gorm.DB, taskID uint, studentID string) (*models.TaskSubmission, error)
	GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*models.TaskSubmission, error)

	ListByTask(ctx context.Context, tx *gorm.DB, taskID uint, filters SubmissionFilters) ([]*models.TaskSubmission, int64, error)
}

// SessionRepository keeps snapshots of live sessions so they survive a
// restart and can be claimed by one instance per student and task.
type SessionRepository interface {
	Save(ctx context.Context, state *models.SessionState) error
	Get(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// ClaimActive registers id as the in-progress session for the pair. When
	// another session already holds the claim its id is returned with false.
	ClaimActive(ctx context.Context, studentID string, taskID uint, id uuid.UUID) (uuid.UUID, bool, error)
	ReleaseActive(ctx context.Context, studentID string, taskID uint) error
}
