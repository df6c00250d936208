package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
	"github.com/altius-academy/activity-service/internal/services"
	"github.com/altius-academy/activity-service/internal/utils"
)

func testLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ===== SERVICE MOCKS =====

type MockServiceManager struct {
	mock.Mock
	gradeTasks *MockGradeTaskService
	sessions   *MockSessionService
}

func NewMockServiceManager() *MockServiceManager {
	return &MockServiceManager{
		gradeTasks: &MockGradeTaskService{},
		sessions:   &MockSessionService{},
	}
}

func (m *MockServiceManager) Grading() services.GradingService { return nil }
func (m *MockServiceManager) Session() services.SessionService { return m.sessions }
func (m *MockServiceManager) GradeTask() services.GradeTaskService { return m.gradeTasks }
func (m *MockServiceManager) Initialize(ctx context.Context) error { return nil }
func (m *MockServiceManager) Shutdown(ctx context.Context) error { return nil }

func (m *MockServiceManager) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockGradeTaskService struct {
	mock.Mock
}

func (m *MockGradeTaskService) GetTask(ctx context.Context, taskID uint, studentID string) (*models.GradeTaskView, error) {
	args := m.Called(ctx, taskID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GradeTaskView), args.Error(1)
}

func (m *MockGradeTaskService) Submit(ctx context.Context, taskID uint, studentID string, req *services.SubmitTaskRequest, idempotencyKey string) (*services.SubmitTaskResponse, error) {
	args := m.Called(ctx, taskID, studentID, req, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SubmitTaskResponse), args.Error(1)
}

func (m *MockGradeTaskService) CreateTask(ctx context.Context, req *services.CreateGradeTaskRequest, teacherID string) (*models.GradeTask, error) {
	args := m.Called(ctx, req, teacherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GradeTask), args.Error(1)
}

func (m *MockGradeTaskService) ListSubmissions(ctx context.Context, taskID uint, teacherID string, filters repositories.SubmissionFilters) (*services.SubmissionListResponse, error) {
	args := m.Called(ctx, taskID, teacherID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SubmissionListResponse), args.Error(1)
}

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Start(ctx context.Context, studentID string, req *models.StartSessionRequest) (*models.SessionView, error) {
	args := m.Called(ctx, studentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionView), args.Error(1)
}

func (m *MockSessionService) Get(ctx context.Context, id uuid.UUID, studentID string) (*models.SessionView, error) {
	args := m.Called(ctx, id, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionView), args.Error(1)
}

func (m *MockSessionService) SubmitAnswer(ctx context.Context, id uuid.UUID, studentID string, req *models.SessionAnswerRequest) (*models.AnswerOutcome, error) {
	args := m.Called(ctx, id, studentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnswerOutcome), args.Error(1)
}

func (m *MockSessionService) Review(ctx context.Context, id uuid.UUID, studentID string, index int) (*models.ReviewItem, error) {
	args := m.Called(ctx, id, studentID, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReviewItem), args.Error(1)
}

func (m *MockSessionService) RetrySubmit(ctx context.Context, id uuid.UUID, studentID string) (*models.SessionView, error) {
	args := m.Called(ctx, id, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionView), args.Error(1)
}

func (m *MockSessionService) Abandon(ctx context.Context, id uuid.UUID, studentID string) error {
	args := m.Called(ctx, id, studentID)
	return args.Error(0)
}

func (m *MockSessionService) TickAll(ctx context.Context) int { return 0 }
func (m *MockSessionService) ActiveCount() int { return 2 }
func (m *MockSessionService) Shutdown(ctx context.Context) error { return nil }

// ===== AUTH FAKES =====

// fakeTokenParser accepts tokens of the form "<role>-token" for the users it
// knows about
type fakeTokenParser struct {
	claims map[string]*casdoorsdk.Claims
}

func newFakeTokenParser() *fakeTokenParser {
	return &fakeTokenParser{claims: map[string]*casdoorsdk.Claims{
		"student-token": {User: casdoorsdk.User{Id: "student-1", Type: "student", Email: "student@altius.edu"}},
		"teacher-token": {User: casdoorsdk.User{Id: "teacher-1", Type: "teacher", Email: "teacher@altius.edu"}},
		"admin-token":   {User: casdoorsdk.User{Id: "admin-1", Type: "admin"}},
		"ghost-token":   {User: casdoorsdk.User{Type: "student"}},
	}}
}

func (f *fakeTokenParser) ParseJwtToken(token string) (*casdoorsdk.Claims, error) {
	claims, ok := f.claims[token]
	if !ok {
		return nil, errors.New("token signature is invalid")
	}
	return claims, nil
}

// emptyUserRepo never finds a user so identities come from the token claims
type emptyUserRepo struct{}

func (emptyUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return nil, repositories.ErrNotFound
}

func (emptyUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) { return false, nil }

func (emptyUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	return false, nil
}
