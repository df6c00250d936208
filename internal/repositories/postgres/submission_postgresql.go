package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
)

type SubmissionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.TaskSubmission) error {
	db := s.getDB(tx)
	return translateError(db.WithContext(ctx).Create(submission).Error, "failed to create submission")
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TaskSubmission, error) {
	db := s.getDB(tx)
	var submission models.TaskSubmission
	if err := db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return nil, translateError(err, "failed to get submission %d", id)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, submission *models.TaskSubmission) error {
	db := s.getDB(tx)
	return translateError(db.WithContext(ctx).Save(submission).Error, "failed to update submission %d", submission.ID)
}

// GetByTaskAndStudent returns the most recent submission of a student for a task
func (s *SubmissionPostgreSQL) GetByTaskAndStudent(ctx context.Context, tx *gorm.DB, taskID uint, studentID string) (*models.TaskSubmission, error) {
	db := s.getDB(tx)
	var submission models.TaskSubmission
	err := db.WithContext(ctx).
		Where("task_id = ? AND student_id = ?", taskID, studentID).
		Order("submitted_at DESC").
		First(&submission).Error
	if err != nil {
		return nil, translateError(err, "failed to get submission for task %d", taskID)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*models.TaskSubmission, error) {
	db := s.getDB(tx)
	var submission models.TaskSubmission
	if err := db.WithContext(ctx).Where("idempotency_key = ?", key).First(&submission).Error; err != nil {
		return nil, translateError(err, "failed to get submission by idempotency key")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) ListByTask(ctx context.Context, tx *gorm.DB, taskID uint, filters repositories.SubmissionFilters) ([]*models.TaskSubmission, int64, error) {
	db := s.getDB(tx)
	var submissions []*models.TaskSubmission
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.TaskSubmission{}).Where("task_id = ?", taskID)
	query = s.helpers.ApplySubmissionFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "failed to count submissions")
	}

	// then apply pagination and sorting
	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, translateError(err, "failed to list submissions")
	}

	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
