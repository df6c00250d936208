package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/altius-academy/activity-service/internal/cache"
	"github.com/altius-academy/activity-service/internal/events"
	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
	"github.com/altius-academy/activity-service/internal/validator"
)

// fileDownloadPrefix is stripped from stored file references
const fileDownloadPrefix = "/api/files/download/"

const autoGradeFeedback = "Calificación automática: %d/%d respuestas correctas (%.1f%%)"

type gradeTaskService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	cache     *cache.CacheManager
	now       func() time.Time
}

func NewGradeTaskService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, cacheManager *cache.CacheManager) GradeTaskService {
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}
	return &gradeTaskService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		cache:     cacheManager,
		now:       time.Now,
	}
}

// ===== STUDENT OPERATIONS =====

func (s *gradeTaskService) GetTask(ctx context.Context, taskID uint, studentID string) (*models.GradeTaskView, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.StudentID != studentID {
		return nil, NewPermissionError(studentID, taskID, "grade_task", "read", "task is assigned to another student")
	}

	view := &models.GradeTaskView{GradeTask: *task}

	submission, err := s.repo.Submission().GetByTaskAndStudent(ctx, nil, taskID, studentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	view.Submission = withDownloadLink(submission)

	return view, nil
}

func (s *gradeTaskService) Submit(ctx context.Context, taskID uint, studentID string, req *SubmitTaskRequest, idempotencyKey string) (*SubmitTaskResponse, error) {
	s.logger.Info("Submitting grade task",
		"task_id", taskID,
		"student_id", studentID,
		"idempotent", idempotencyKey != "")

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.StudentID != studentID {
		return nil, NewPermissionError(studentID, taskID, "grade_task", "submit", "task is assigned to another student")
	}

	// A retried write carries the key of the original one
	if idempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.replay(existing, taskID, studentID, idempotencyKey)
		}
	}

	existing, err := s.repo.Submission().GetByTaskAndStudent(ctx, nil, taskID, studentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: submission %d", ErrSubmissionExists, existing.ID)
	}

	now := s.now()
	submission := &models.TaskSubmission{
		TaskID:            taskID,
		StudentID:         studentID,
		SubmissionText:    req.SubmissionText,
		SubmissionFileURL: normalizeFileURL(req.SubmissionFileURL),
		Status:            models.SubmissionSubmitted,
		SubmittedAt:       now,
	}
	if idempotencyKey != "" {
		key := idempotencyKey
		submission.IdempotencyKey = &key
	}

	var result *models.SubmissionResult
	if task.IsInteractive() {
		result = s.autoGrade(task, submission, now)
	}

	taskStatus := models.TaskSubmitted
	if submission.Status == models.SubmissionGraded {
		taskStatus = models.TaskGraded
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Submission().Create(ctx, nil, submission); err != nil {
			return fmt.Errorf("failed to create submission: %w", err)
		}
		if err := txRepo.Task().UpdateStatus(ctx, nil, taskID, taskStatus); err != nil {
			return fmt.Errorf("failed to update task status: %w", err)
		}
		return nil
	})
	if err != nil {
		// Two writes with the same key raced; the unique index kept one
		if idempotencyKey != "" && repositories.IsDuplicateError(err) {
			stored, lookupErr := s.repo.Submission().GetByIdempotencyKey(ctx, nil, idempotencyKey)
			if lookupErr == nil {
				return s.replay(stored, taskID, studentID, idempotencyKey)
			}
		}
		return nil, err
	}

	if idempotencyKey != "" {
		if err := s.cache.Idempotency.Set(ctx, idempotencyKey, submission.ID, cache.IdempotencyCacheConfig.TTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", "error", err, "submission_id", submission.ID)
		}
	}

	s.logger.Info("Grade task submitted",
		"task_id", taskID,
		"submission_id", submission.ID,
		"status", submission.Status)

	s.publishSubmitted(ctx, task, submission, result)

	return &SubmitTaskResponse{Submission: withDownloadLink(submission)}, nil
}

// autoGrade scores an interactive submission from its result document. A
// document that cannot be read leaves the submission for manual grading.
func (s *gradeTaskService) autoGrade(task *models.GradeTask, submission *models.TaskSubmission, now time.Time) *models.SubmissionResult {
	var result models.SubmissionResult
	if err := json.Unmarshal([]byte(submission.SubmissionText), &result); err != nil {
		s.logger.Warn("Interactive submission is not a result document, skipping auto-grade",
			"task_id", task.ID,
			"error", err)
		return nil
	}

	percentage := result.Percentage
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	score := DerivedGrade(percentage, task.EffectiveMaxGrade())
	feedback := fmt.Sprintf(autoGradeFeedback, result.CorrectAnswers, result.TotalQuestions, float64(percentage))

	submission.Score = &score
	submission.Feedback = &feedback
	submission.GradedAt = &now
	submission.Status = models.SubmissionGraded

	result.Percentage = percentage
	return &result
}

func (s *gradeTaskService) findByIdempotencyKey(ctx context.Context, key string) (*models.TaskSubmission, error) {
	var submissionID uint
	err := s.cache.Idempotency.Get(ctx, key, &submissionID)
	if err == nil {
		submission, err := s.repo.Submission().GetByID(ctx, nil, submissionID)
		if err == nil {
			return submission, nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get submission: %w", err)
		}
	} else if !errors.Is(err, cache.ErrCacheNotFound) && !errors.Is(err, cache.ErrCacheNotAvailable) {
		s.logger.Warn("Idempotency cache lookup failed", "error", err)
	}

	submission, err := s.repo.Submission().GetByIdempotencyKey(ctx, nil, key)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get submission by idempotency key: %w", err)
	}
	return submission, nil
}

func (s *gradeTaskService) replay(existing *models.TaskSubmission, taskID uint, studentID, key string) (*SubmitTaskResponse, error) {
	if existing.TaskID != taskID || existing.StudentID != studentID {
		return nil, fmt.Errorf("%w: idempotency key already used for another submission", ErrConflict)
	}

	s.logger.Info("Replaying idempotent submission",
		"task_id", taskID,
		"submission_id", existing.ID,
		"idempotency_key", key)

	return &SubmitTaskResponse{Submission: withDownloadLink(existing), Replayed: true}, nil
}

// ===== TEACHER OPERATIONS =====

func (s *gradeTaskService) CreateTask(ctx context.Context, req *CreateGradeTaskRequest, teacherID string) (*models.GradeTask, error) {
	s.logger.Info("Creating grade task", "teacher_id", teacherID, "title", req.Title)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	// Stored as a jsonb array even when sent as an encoded string
	if len(req.ActivityConfig) > 0 {
		config, err := models.UnquoteActivityConfig(req.ActivityConfig)
		if err != nil {
			return nil, ValidationErrors{{Field: "activityConfig", Message: err.Error(), Rule: "json"}}
		}
		req.ActivityConfig = config
	}
	if errs := s.validator.Business().ValidateTaskCreate(req); len(errs) > 0 {
		return nil, errs
	}

	if err := s.checkManagePermission(ctx, teacherID, 0, "create"); err != nil {
		return nil, err
	}

	if req.TaskType == models.TaskTypeInteractive {
		if _, errs := s.validator.Activity().ParseAndValidate(req.ActivityConfig); len(errs) > 0 {
			return nil, errs
		}
	}

	exists, err := s.repo.User().ExistsByID(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check student: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: student %s", ErrUserNotFound, req.StudentID)
	}

	task := &models.GradeTask{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		DueDate:          req.DueDate,
		Priority:         req.Priority,
		Status:           models.TaskPending,
		TaskType:         req.TaskType,
		ActivityConfig:   req.ActivityConfig,
		TimeLimitSeconds: req.TimeLimitSeconds,
		MaxScore:         req.MaxScore,
		MaxGrade:         req.MaxGrade,
		TeacherID:        teacherID,
		StudentID:        req.StudentID,
		SchoolGrade:      req.SchoolGrade,
	}

	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.TimeLimitSeconds == 0 {
		task.TimeLimitSeconds = models.DefaultTimeLimitSeconds
	}
	if task.MaxScore == 0 {
		task.MaxScore = models.DefaultMaxScore
	}
	if task.MaxGrade == 0 {
		task.MaxGrade = models.DefaultMaxGrade
	}

	if err := s.repo.Task().Create(ctx, nil, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("Grade task created", "task_id", task.ID, "task_type", task.TaskType)

	return task, nil
}

func (s *gradeTaskService) ListSubmissions(ctx context.Context, taskID uint, teacherID string, filters repositories.SubmissionFilters) (*SubmissionListResponse, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// Coordinators and admins may read any task's submissions
	if task.TeacherID != teacherID {
		user, err := s.getUser(ctx, teacherID)
		if err != nil {
			return nil, err
		}
		if user.Role != models.RoleAdmin && user.Role != models.RoleCoordinator {
			return nil, NewPermissionError(teacherID, taskID, "grade_task", "list_submissions", "not the task owner")
		}
	}

	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	submissions, total, err := s.repo.Submission().ListByTask(ctx, nil, taskID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	for i, submission := range submissions {
		submissions[i] = withDownloadLink(submission)
	}

	return &SubmissionListResponse{
		Submissions: submissions,
		Total:       total,
		Limit:       filters.Limit,
		Offset:      filters.Offset,
	}, nil
}

// ===== HELPERS =====

func (s *gradeTaskService) getTask(ctx context.Context, taskID uint) (*models.GradeTask, error) {
	task, err := s.repo.Task().GetByID(ctx, nil, taskID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *gradeTaskService) getUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("permission check failed: %w", err)
	}
	return user, nil
}

func (s *gradeTaskService) checkManagePermission(ctx context.Context, userID string, taskID uint, action string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Role.CanManageTasks() {
		return NewPermissionError(userID, taskID, "grade_task", action, "insufficient role permissions")
	}
	return nil
}

func (s *gradeTaskService) publishSubmitted(ctx context.Context, task *models.GradeTask, submission *models.TaskSubmission, result *models.SubmissionResult) {
	if s.publisher == nil {
		return
	}

	created := events.NewSubmissionCreatedEvent(events.SubmissionCreatedEvent{
		SubmissionID: submission.ID,
		TaskID:       task.ID,
		TaskTitle:    task.Title,
		StudentID:    submission.StudentID,
		TeacherID:    task.TeacherID,
		SubmittedAt:  submission.SubmittedAt,
	})
	if err := s.publisher.PublishEvent(ctx, created); err != nil {
		s.logger.Error("Failed to publish submission created event", "error", err, "submission_id", submission.ID)
	}

	if submission.Status != models.SubmissionGraded || result == nil {
		return
	}

	graded := events.NewSubmissionGradedEvent(events.SubmissionGradedEvent{
		SubmissionID: submission.ID,
		TaskID:       task.ID,
		StudentID:    submission.StudentID,
		Score:        *submission.Score,
		MaxGrade:     task.EffectiveMaxGrade(),
		Percentage:   result.Percentage,
		GradedAt:     *submission.GradedAt,
		AutoGraded:   true,
	})
	if err := s.publisher.PublishEvent(ctx, graded); err != nil {
		s.logger.Error("Failed to publish submission graded event", "error", err, "submission_id", submission.ID)
	}
}

// withDownloadLink returns a copy of the submission whose stored file
// reference is turned back into a download link. Absolute URLs pass through.
func withDownloadLink(submission *models.TaskSubmission) *models.TaskSubmission {
	if submission == nil || submission.SubmissionFileURL == nil {
		return submission
	}

	link := *submission.SubmissionFileURL
	if !strings.HasPrefix(link, fileDownloadPrefix) && !strings.HasPrefix(link, "http") {
		link = fileDownloadPrefix + link
	}

	out := *submission
	out.SubmissionFileURL = &link
	return &out
}

// normalizeFileURL keeps only the file reference of a download link
func normalizeFileURL(url *string) *string {
	if url == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*url)
	if trimmed == "" {
		return nil
	}
	trimmed = strings.TrimPrefix(trimmed, fileDownloadPrefix)
	return &trimmed
}
