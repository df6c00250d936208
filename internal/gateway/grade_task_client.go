package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/services"
	"github.com/altius-academy/activity-service/internal/utils"
)

const (
	// IdempotencyKeyHeader carries the session id on submission writes
	IdempotencyKeyHeader = "Idempotency-Key"

	// CodeSubmissionExists is the error code the backend sends with a 409 for
	// a task that already has a submission
	CodeSubmissionExists = "submission_exists"

	maxErrorBody = 4 << 10
)

// Config for the grade task backend client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// RemoteError describes a non-2xx answer from the backend
type RemoteError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("grade task api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("grade task api returned %d: %s", e.StatusCode, e.Message)
}

// GradeTaskClient talks to the grade task endpoints over HTTP. It is the
// remote SubmissionPersister and TaskSource.
type GradeTaskClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewGradeTaskClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *GradeTaskClient {
	// Work on a copy so a shared client such as http.DefaultClient keeps its settings
	client := &http.Client{}
	if httpClient != nil {
		copied := *httpClient
		client = &copied
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	return &GradeTaskClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    client,
		logger:  logger,
	}
}

var (
	_ services.SubmissionPersister = (*GradeTaskClient)(nil)
	_ services.TaskSource          = (*GradeTaskClient)(nil)
)

// Persist issues POST /student/grade-tasks/{taskId}/submit once. Every
// failure is reported as a network failure; nothing is retried here.
func (c *GradeTaskClient) Persist(ctx context.Context, taskID uint, payload services.SubmissionPayload) (*services.SubmissionReceipt, error) {
	body, err := payload.Request()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission: %w", err)
	}

	url := fmt.Sprintf("%s/student/grade-tasks/%d/submit", c.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrNetworkFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, payload.IdempotencyKey())

	var resp services.SubmitTaskResponse
	if err := c.do(req, &resp); err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && remote.StatusCode == http.StatusConflict && remote.Code == CodeSubmissionExists {
			err = fmt.Errorf("%w: %w", services.ErrSubmissionExists, err)
		}
		c.logger.Error("Submission write failed",
			"task_id", taskID,
			"session_id", payload.SessionID,
			"error", err)
		return nil, fmt.Errorf("%w: %w", services.ErrNetworkFailure, err)
	}

	c.logger.Info("Submission written",
		"task_id", taskID,
		"session_id", payload.SessionID,
		"replayed", resp.Replayed)

	return services.NewSubmissionReceipt(&resp), nil
}

// FetchTask loads GET /student/grade-tasks/{taskId} as the student
func (c *GradeTaskClient) FetchTask(ctx context.Context, taskID uint, studentID string) (*models.GradeTaskView, error) {
	url := fmt.Sprintf("%s/student/grade-tasks/%d", c.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrNetworkFailure, err)
	}

	var view models.GradeTaskView
	if err := c.do(req, &view); err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) {
			switch remote.StatusCode {
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: %d", services.ErrTaskNotFound, taskID)
			case http.StatusForbidden, http.StatusUnauthorized:
				return nil, services.NewPermissionError(studentID, taskID, "grade_task", "read", remote.Message)
			}
		}
		return nil, fmt.Errorf("%w: %w", services.ErrNetworkFailure, err)
	}

	return &view, nil
}

// do sends the request with the caller's bearer token and decodes a 2xx body
// into out
func (c *GradeTaskClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if token, ok := utils.BearerToken(req.Context()); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID, ok := utils.RequestID(req.Context()); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return decodeRemoteError(res)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeRemoteError(res *http.Response) error {
	remote := &RemoteError{StatusCode: res.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		remote.Message = body.Message
		remote.Code = body.Code
	} else {
		remote.Message = strings.TrimSpace(string(raw))
	}
	if remote.Message == "" {
		remote.Message = http.StatusText(res.StatusCode)
	}
	return remote
}
