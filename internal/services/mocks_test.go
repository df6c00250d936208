package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
	"github.com/altius-academy/activity-service/internal/repositories/redisstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockRepository wires the per-domain mocks into a Repository
type MockRepository struct {
	TaskRepo       *MockTaskRepository
	SubmissionRepo *MockSubmissionRepository
	UserRepo       *MockUserRepository
	SessionRepo    repositories.SessionRepository
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		TaskRepo:       &MockTaskRepository{},
		SubmissionRepo: &MockSubmissionRepository{},
		UserRepo:       &MockUserRepository{},
	}
}

func (m *MockRepository) Task() repositories.TaskRepository             { return m.TaskRepo }
func (m *MockRepository) Submission() repositories.SubmissionRepository { return m.SubmissionRepo }
func (m *MockRepository) Session() repositories.SessionRepository       { return m.SessionRepo }
func (m *MockRepository) User() repositories.UserRepository             { return m.UserRepo }
func (m *MockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}
func (m *MockRepository) Ping(ctx context.Context) error { return nil }
func (m *MockRepository) Close() error                   { return nil }

// MockTaskRepository is a mock implementation of TaskRepository
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, tx *gorm.DB, task *models.GradeTask) error {
	args := m.Called(ctx, tx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.GradeTask, error) {
	args := m.Called(ctx, tx, id)
	if task, ok := args.Get(0).(*models.GradeTask); ok {
		return task, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TaskStatus) error {
	args := m.Called(ctx, tx, id, status)
	return args.Error(0)
}

// MockSubmissionRepository is a mock implementation of SubmissionRepository
type MockSubmissionRepository struct {
	mock.Mock
}

func (m *MockSubmissionRepository) Create(ctx context.Context, tx *gorm.DB, submission *models.TaskSubmission) error {
	args := m.Called(ctx, tx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TaskSubmission, error) {
	args := m.Called(ctx, tx, id)
	if s, ok := args.Get(0).(*models.TaskSubmission); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubmissionRepository) Update(ctx context.Context, tx *gorm.DB, submission *models.TaskSubmission) error {
	args := m.Called(ctx, tx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetByTaskAndStudent(ctx context.Context, tx *gorm.DB, taskID uint, studentID string) (*models.TaskSubmission, error) {
	args := m.Called(ctx, tx, taskID, studentID)
	if s, ok := args.Get(0).(*models.TaskSubmission); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubmissionRepository) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*models.TaskSubmission, error) {
	args := m.Called(ctx, tx, key)
	if s, ok := args.Get(0).(*models.TaskSubmission); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubmissionRepository) ListByTask(ctx context.Context, tx *gorm.DB, taskID uint, filters repositories.SubmissionFilters) ([]*models.TaskSubmission, int64, error) {
	args := m.Called(ctx, tx, taskID, filters)
	return args.Get(0).([]*models.TaskSubmission), args.Get(1).(int64), args.Error(2)
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*models.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	args := m.Called(ctx, id, role)
	return args.Bool(0), args.Error(1)
}

// newSessionStore backs session snapshots with an in-memory redis
func newSessionStore(t *testing.T) (repositories.SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewSessionStore(client, 0), mr
}

// fakeTaskSource serves tasks from memory
type fakeTaskSource struct {
	mu    sync.Mutex
	tasks map[uint]*models.GradeTaskView
}

func newFakeTaskSource(tasks ...*models.GradeTask) *fakeTaskSource {
	src := &fakeTaskSource{tasks: make(map[uint]*models.GradeTaskView)}
	for _, task := range tasks {
		src.tasks[task.ID] = &models.GradeTaskView{GradeTask: *task}
	}
	return src
}

func (f *fakeTaskSource) FetchTask(ctx context.Context, taskID uint, studentID string) (*models.GradeTaskView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	view, ok := f.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if view.StudentID != studentID {
		return nil, NewPermissionError(studentID, taskID, "grade_task", "read", "task is assigned to another student")
	}
	copied := *view
	return &copied, nil
}

// recordingPersister counts writes and can be told to fail
type recordingPersister struct {
	mu       sync.Mutex
	payloads []SubmissionPayload
	keys     []string
	failures int
	err      error
}

func (p *recordingPersister) Persist(ctx context.Context, taskID uint, payload SubmissionPayload) (*SubmissionReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = append(p.keys, payload.IdempotencyKey())
	if p.failures > 0 {
		p.failures--
		return nil, p.err
	}
	p.payloads = append(p.payloads, payload)
	return &SubmissionReceipt{SubmissionID: uint(len(p.payloads)), Status: models.SubmissionGraded}, nil
}

func (p *recordingPersister) Writes() []SubmissionPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SubmissionPayload(nil), p.payloads...)
}

func (p *recordingPersister) Attempts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// ===== FIXTURES =====

func multipleChoice(question string, options []string, correct int) *models.MultipleChoiceActivity {
	return &models.MultipleChoiceActivity{Question: question, Options: options, CorrectAnswer: correct}
}

// fiveQuestionQuiz has the correct option at index 0 of every question
func fiveQuestionQuiz() []models.Activity {
	activities := make([]models.Activity, 0, 5)
	for _, q := range []string{"2+2", "3+3", "4+4", "5+5", "6+6"} {
		activities = append(activities, multipleChoice(q, []string{"right", "wrong"}, 0))
	}
	return activities
}

func interactiveTask(t *testing.T, id uint, studentID string, activities []models.Activity) *models.GradeTask {
	t.Helper()
	config, err := models.MarshalActivities(activities)
	require.NoError(t, err)
	return &models.GradeTask{
		ID:               id,
		Title:            "Quiz",
		Status:           models.TaskPending,
		TaskType:         models.TaskTypeInteractive,
		ActivityConfig:   datatypes.JSON(config),
		TimeLimitSeconds: 300,
		MaxScore:         100,
		MaxGrade:         5.0,
		TeacherID:        "teacher-1",
		StudentID:        studentID,
	}
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
