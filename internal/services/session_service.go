package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/altius-academy/activity-service/internal/events"
	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
	"github.com/altius-academy/activity-service/internal/utils"
	"github.com/altius-academy/activity-service/internal/validator"
)

// SessionServiceConfig tunes the session host
type SessionServiceConfig struct {
	DefaultTimeLimitSeconds int
	PersistTimeout          time.Duration
	// SnapshotEveryTicks controls how often the clock refreshes the stored
	// remaining time of running sessions
	SnapshotEveryTicks int
}

func DefaultSessionServiceConfig() SessionServiceConfig {
	return SessionServiceConfig{
		DefaultTimeLimitSeconds: models.DefaultTimeLimitSeconds,
		PersistTimeout:          10 * time.Second,
		SnapshotEveryTicks:      5,
	}
}

// liveSession is a session held in memory by this instance
type liveSession struct {
	runner *SessionRunner

	// token lets a clock-triggered write act as the student
	tokenMu sync.Mutex
	token   string

	// persistMu serializes the completion write with manual retries and
	// with snapshot saves
	persistMu sync.Mutex
}

func (l *liveSession) setToken(ctx context.Context) {
	token, ok := utils.BearerToken(ctx)
	if !ok {
		return
	}
	l.tokenMu.Lock()
	l.token = token
	l.tokenMu.Unlock()
}

func (l *liveSession) bearerToken() string {
	l.tokenMu.Lock()
	defer l.tokenMu.Unlock()
	return l.token
}

type sessionService struct {
	repo      repositories.Repository
	tasks     TaskSource
	grading   GradingService
	persister SubmissionPersister
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	config    SessionServiceConfig

	mu       sync.RWMutex
	sessions map[uuid.UUID]*liveSession
	ticks    int

	// background writes started by the clock
	pending sync.WaitGroup
}

func NewSessionService(repo repositories.Repository, tasks TaskSource, grading GradingService, persister SubmissionPersister, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator, config SessionServiceConfig) SessionService {
	defaults := DefaultSessionServiceConfig()
	if config.DefaultTimeLimitSeconds <= 0 {
		config.DefaultTimeLimitSeconds = defaults.DefaultTimeLimitSeconds
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = defaults.PersistTimeout
	}
	if config.SnapshotEveryTicks <= 0 {
		config.SnapshotEveryTicks = defaults.SnapshotEveryTicks
	}

	return &sessionService{
		repo:      repo,
		tasks:     tasks,
		grading:   grading,
		persister: persister,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		config:    config,
		sessions:  make(map[uuid.UUID]*liveSession),
	}
}

// ===== SESSION LIFECYCLE =====

// Start opens a session for the task, or resumes the one the student already
// has in progress
func (s *sessionService) Start(ctx context.Context, studentID string, req *models.StartSessionRequest) (*models.SessionView, error) {
	s.logger.Info("Starting activity session", "task_id", req.TaskID, "student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	taskView, err := s.tasks.FetchTask(ctx, req.TaskID, studentID)
	if err != nil {
		return nil, err
	}
	task := &taskView.GradeTask

	if !task.IsInteractive() {
		violation := NewBusinessRuleError("interactive_only", "only interactive tasks can be played as a session",
			map[string]interface{}{"task_id": task.ID, "task_type": task.TaskType})
		violation.Err = ErrTaskNotInteractive
		return nil, violation
	}
	if errs := s.validator.Business().ValidateSessionStart(task, studentID); len(errs) > 0 {
		return nil, errs
	}
	if taskView.Submission != nil {
		return nil, fmt.Errorf("%w: submission %d", ErrSubmissionExists, taskView.Submission.ID)
	}

	activities, err := s.loadActivities(task)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	holder, claimed, err := s.repo.Session().ClaimActive(ctx, studentID, task.ID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	if !claimed {
		live, err := s.resume(ctx, holder, studentID, task, activities)
		if err == nil {
			view := live.runner.View()
			s.logger.Info("Resuming activity session", "session_id", holder, "task_id", task.ID)
			return &view, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}

		// The claim outlived its snapshot
		if err := s.repo.Session().ReleaseActive(ctx, studentID, task.ID); err != nil {
			return nil, fmt.Errorf("failed to release stale session claim: %w", err)
		}
		if _, claimed, err = s.repo.Session().ClaimActive(ctx, studentID, task.ID, id); err != nil {
			return nil, fmt.Errorf("failed to claim session: %w", err)
		}
		if !claimed {
			return nil, fmt.Errorf("%w: another session was started for this task", ErrInvalidState)
		}
	}

	runner := NewSessionRunner(s.runnerConfig(id, task, studentID))

	timeLimit := task.TimeLimitSeconds
	if timeLimit <= 0 {
		timeLimit = s.config.DefaultTimeLimitSeconds
	}
	if err := runner.Start(activities, timeLimit); err != nil {
		s.releaseClaim(ctx, studentID, task.ID)
		return nil, err
	}

	live := &liveSession{runner: runner}
	live.setToken(ctx)
	s.register(live)
	s.saveLiveSnapshot(ctx, live)

	s.logger.Info("Activity session started",
		"session_id", id,
		"task_id", task.ID,
		"activities", len(activities),
		"time_limit_seconds", timeLimit)

	view := runner.View()
	return &view, nil
}

func (s *sessionService) Get(ctx context.Context, id uuid.UUID, studentID string) (*models.SessionView, error) {
	live, err := s.lookup(ctx, id, studentID)
	if err != nil {
		return nil, err
	}
	view := live.runner.View()
	return &view, nil
}

func (s *sessionService) SubmitAnswer(ctx context.Context, id uuid.UUID, studentID string, req *models.SessionAnswerRequest) (*models.AnswerOutcome, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	live, err := s.lookup(ctx, id, studentID)
	if err != nil {
		return nil, err
	}
	live.setToken(ctx)

	record, err := live.runner.SubmitAnswer(ctx, *req.Index, req.Answer)
	if err != nil {
		return nil, err
	}

	view := live.runner.View()
	if view.Status == models.SessionInProgress {
		s.saveLiveSnapshot(ctx, live)
	}

	s.logger.Info("Answer recorded",
		"session_id", id,
		"index", *req.Index,
		"is_correct", record.IsCorrect)

	return &models.AnswerOutcome{
		Index:     *req.Index,
		IsCorrect: record.IsCorrect,
		Session:   view,
	}, nil
}

func (s *sessionService) Review(ctx context.Context, id uuid.UUID, studentID string, index int) (*models.ReviewItem, error) {
	live, err := s.lookup(ctx, id, studentID)
	if err != nil {
		return nil, err
	}
	return live.runner.GoBack(index)
}

// RetrySubmit re-issues the write of a completed session whose first attempt
// failed. The session id is sent again as the idempotency key.
func (s *sessionService) RetrySubmit(ctx context.Context, id uuid.UUID, studentID string) (*models.SessionView, error) {
	live, err := s.lookup(ctx, id, studentID)
	if err != nil {
		return nil, err
	}
	live.setToken(ctx)

	payload, err := live.runner.Payload()
	if err != nil {
		return nil, err
	}

	s.logger.Info("Retrying session submission", "session_id", id, "task_id", payload.TaskID)

	if err := s.persist(ctx, live, *payload); err != nil {
		return nil, err
	}

	view := live.runner.View()
	return &view, nil
}

// Abandon discards an in-progress session without writing anything
func (s *sessionService) Abandon(ctx context.Context, id uuid.UUID, studentID string) error {
	live, err := s.lookup(ctx, id, studentID)
	if err != nil {
		return err
	}

	if err := live.runner.Abandon(); err != nil {
		return err
	}

	state := live.runner.Snapshot()
	s.unregister(id)
	s.releaseClaim(ctx, state.StudentID, state.TaskID)
	if err := s.repo.Session().Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete session snapshot", "session_id", id, "error", err)
	}

	s.logger.Info("Activity session abandoned", "session_id", id, "answered", len(state.AnswerOrder))

	s.publish(ctx, events.NewSessionAbandonedEvent(events.SessionAbandonedEvent{
		SessionID:   id.String(),
		TaskID:      state.TaskID,
		StudentID:   state.StudentID,
		Answered:    len(state.AnswerOrder),
		AbandonedAt: *state.CompletedAt,
	}))

	return nil
}

// ===== CLOCK =====

func (s *sessionService) TickAll(ctx context.Context) int {
	s.mu.Lock()
	s.ticks++
	snapshot := s.ticks%s.config.SnapshotEveryTicks == 0
	lives := make([]*liveSession, 0, len(s.sessions))
	for _, live := range s.sessions {
		lives = append(lives, live)
	}
	s.mu.Unlock()

	tickCtx := withBackgroundPersist(ctx)
	finished := 0
	for _, live := range lives {
		if live.runner.Tick(tickCtx) {
			finished++
			continue
		}
		if snapshot {
			s.saveLiveSnapshot(ctx, live)
		}
	}
	return finished
}

func (s *sessionService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, live := range s.sessions {
		if live.runner.View().Status == models.SessionInProgress {
			count++
		}
	}
	return count
}

// Shutdown snapshots running sessions and waits for writes started by the
// clock to finish
func (s *sessionService) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	lives := make([]*liveSession, 0, len(s.sessions))
	for _, live := range s.sessions {
		lives = append(lives, live)
	}
	s.mu.RUnlock()

	for _, live := range lives {
		s.saveLiveSnapshot(ctx, live)
	}

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending submissions did not finish: %w", ctx.Err())
	}
}

// ===== COMPLETION =====

type backgroundPersistKey struct{}

// withBackgroundPersist marks completions that must not block the caller
func withBackgroundPersist(ctx context.Context) context.Context {
	return context.WithValue(ctx, backgroundPersistKey{}, true)
}

func isBackgroundPersist(ctx context.Context) bool {
	v, _ := ctx.Value(backgroundPersistKey{}).(bool)
	return v
}

// onComplete runs exactly once per session, right after the runner flips to
// completed
func (s *sessionService) onComplete(ctx context.Context, payload SubmissionPayload) {
	s.logger.Info("Activity session completed",
		"session_id", payload.SessionID,
		"task_id", payload.TaskID,
		"end_reason", payload.EndReason,
		"correct", payload.Result.CorrectAnswers,
		"total", payload.Result.TotalQuestions,
		"percentage", payload.Result.Percentage)

	s.publish(ctx, events.NewSessionFinishedEvent(events.SessionFinishedEvent{
		SessionID:      payload.SessionID.String(),
		TaskID:         payload.TaskID,
		StudentID:      payload.StudentID,
		TotalQuestions: payload.Result.TotalQuestions,
		CorrectAnswers: payload.Result.CorrectAnswers,
		Percentage:     payload.Result.Percentage,
		TimeSpent:      payload.Result.TimeSpent,
		EndReason:      string(payload.EndReason),
		CompletedAt:    payload.CompletedAt,
	}))

	live := s.get(payload.SessionID)
	if live == nil {
		return
	}

	if isBackgroundPersist(ctx) {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			_ = s.persist(context.WithoutCancel(ctx), live, payload)
		}()
		return
	}

	_ = s.persist(ctx, live, payload)
}

// persist issues the submission write and records its outcome. Until the
// write is confirmed the session keeps its claim, so starting the task again
// resumes it and the student can retry. Once confirmed the session is dropped
// from memory; the stored snapshot keeps it reviewable.
func (s *sessionService) persist(ctx context.Context, live *liveSession, payload SubmissionPayload) error {
	live.persistMu.Lock()
	defer live.persistMu.Unlock()

	if live.runner.Snapshot().Persisted {
		return fmt.Errorf("%w: session %s", ErrAlreadyPersisted, payload.SessionID)
	}

	writeCtx, cancel := context.WithTimeout(utils.WithBearerToken(ctx, live.bearerToken()), s.config.PersistTimeout)
	defer cancel()

	receipt, err := s.persister.Persist(writeCtx, payload.TaskID, payload)
	live.runner.MarkPersisted(receipt, err)
	s.saveSnapshot(ctx, live.runner)

	if err != nil {
		s.logger.Error("Failed to persist session result",
			"session_id", payload.SessionID,
			"task_id", payload.TaskID,
			"error", err)
		return err
	}

	s.logger.Info("Session result persisted",
		"session_id", payload.SessionID,
		"submission_id", receipt.SubmissionID,
		"replayed", receipt.Replayed)

	s.releaseClaim(ctx, payload.StudentID, payload.TaskID)
	s.unregister(payload.SessionID)
	return nil
}

// ===== REGISTRY =====

func (s *sessionService) runnerConfig(id uuid.UUID, task *models.GradeTask, studentID string) RunnerConfig {
	return RunnerConfig{
		ID:         id,
		TaskID:     task.ID,
		StudentID:  studentID,
		MaxGrade:   task.EffectiveMaxGrade(),
		Grading:    s.grading,
		OnComplete: s.onComplete,
	}
}

func (s *sessionService) register(live *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[live.runner.ID()] = live
}

func (s *sessionService) unregister(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *sessionService) get(id uuid.UUID) *liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// lookup finds a session in memory or restores it from its snapshot
func (s *sessionService) lookup(ctx context.Context, id uuid.UUID, studentID string) (*liveSession, error) {
	if live := s.get(id); live != nil {
		if live.runner.Snapshot().StudentID != studentID {
			return nil, ErrSessionAccessDenied
		}
		return live, nil
	}

	snapshot, err := s.repo.Session().Get(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if snapshot.StudentID != studentID {
		return nil, ErrSessionAccessDenied
	}

	taskView, err := s.tasks.FetchTask(ctx, snapshot.TaskID, studentID)
	if err != nil {
		return nil, err
	}
	activities, err := s.loadActivities(&taskView.GradeTask)
	if err != nil {
		return nil, err
	}

	return s.restore(ctx, snapshot, &taskView.GradeTask, activities)
}

// resume returns the session that holds the student's claim: one in progress
// or one completed whose write has not been confirmed
func (s *sessionService) resume(ctx context.Context, id uuid.UUID, studentID string, task *models.GradeTask, activities []models.Activity) (*liveSession, error) {
	if live := s.get(id); live != nil {
		return live, nil
	}

	snapshot, err := s.repo.Session().Get(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if snapshot.StudentID != studentID || snapshot.Persisted || snapshot.Status == models.SessionAbandoned {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return s.restore(ctx, snapshot, task, activities)
}

func (s *sessionService) restore(ctx context.Context, snapshot *models.SessionState, task *models.GradeTask, activities []models.Activity) (*liveSession, error) {
	runner, err := RestoreSessionRunner(s.runnerConfig(snapshot.ID, task, snapshot.StudentID), snapshot, activities)
	if err != nil {
		return nil, err
	}

	live := &liveSession{runner: runner}
	live.setToken(ctx)

	// Persisted sessions stay out of the registry; they are only reviewed
	if !snapshot.Persisted && snapshot.Status != models.SessionAbandoned {
		s.mu.Lock()
		if existing, ok := s.sessions[snapshot.ID]; ok {
			s.mu.Unlock()
			return existing, nil
		}
		s.sessions[snapshot.ID] = live
		s.mu.Unlock()

		s.logger.Info("Restored activity session from snapshot",
			"session_id", snapshot.ID,
			"status", snapshot.Status)
	}

	return live, nil
}

func (s *sessionService) loadActivities(task *models.GradeTask) ([]models.Activity, error) {
	activities, err := task.Activities()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if len(activities) == 0 {
		return nil, fmt.Errorf("%w: task %d has no activities", ErrInvalidSession, task.ID)
	}
	if errs := validator.ValidateActivities(activities); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, errs)
	}
	return activities, nil
}

// saveLiveSnapshot stores the session unless its result is already persisted.
// The state is read under persistMu so a snapshot taken before completion
// cannot land on top of the one written by persist.
func (s *sessionService) saveLiveSnapshot(ctx context.Context, live *liveSession) {
	live.persistMu.Lock()
	defer live.persistMu.Unlock()

	if live.runner.Snapshot().Persisted {
		return
	}
	s.saveSnapshot(ctx, live.runner)
}

// saveSnapshot writes the runner state as is; callers outside persist go
// through saveLiveSnapshot
func (s *sessionService) saveSnapshot(ctx context.Context, runner *SessionRunner) {
	state := runner.Snapshot()
	if err := s.repo.Session().Save(ctx, &state); err != nil {
		s.logger.Warn("Failed to save session snapshot", "session_id", state.ID, "error", err)
	}
}

func (s *sessionService) releaseClaim(ctx context.Context, studentID string, taskID uint) {
	if err := s.repo.Session().ReleaseActive(ctx, studentID, taskID); err != nil {
		s.logger.Warn("Failed to release session claim",
			"task_id", taskID,
			"student_id", studentID,
			"error", err)
	}
}

func (s *sessionService) publish(ctx context.Context, event *events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", "event_type", event.Type, "error", err)
	}
}

// ===== TASK SOURCES =====

type localTaskSource struct {
	tasks GradeTaskService
}

// NewLocalTaskSource reads tasks through the in-process grade task service
func NewLocalTaskSource(tasks GradeTaskService) TaskSource {
	return &localTaskSource{tasks: tasks}
}

func (l *localTaskSource) FetchTask(ctx context.Context, taskID uint, studentID string) (*models.GradeTaskView, error) {
	return l.tasks.GetTask(ctx, taskID, studentID)
}
