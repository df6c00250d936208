package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/altius-academy/activity-service/internal/models"
)

// SubmissionPayload is a finished session ready to be written
type SubmissionPayload struct {
	SessionID    uuid.UUID
	TaskID       uint
	StudentID    string
	Result       models.SubmissionResult
	DerivedGrade float64
	EndReason    models.SessionEndReason
	CompletedAt  time.Time
}

// IdempotencyKey identifies the write across retries
func (p SubmissionPayload) IdempotencyKey() string {
	return p.SessionID.String()
}

// Request encodes the payload as the grade task submit body. The result
// document travels as a JSON string in submissionText.
func (p SubmissionPayload) Request() (*models.SubmitTaskRequest, error) {
	text, err := json.Marshal(p.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission result: %w", err)
	}
	return &models.SubmitTaskRequest{
		SubmissionText:    string(text),
		SubmissionFileURL: nil,
	}, nil
}

// SubmissionReceipt is what the backend reports after a write
type SubmissionReceipt struct {
	SubmissionID uint                    `json:"submissionId"`
	Status       models.SubmissionStatus `json:"status"`
	Score        *float64                `json:"score,omitempty"`
	Replayed     bool                    `json:"replayed"`
}

// localPersister writes through the in-process grade task service
type localPersister struct {
	tasks GradeTaskService
}

// NewLocalPersister persists sessions without leaving the process
func NewLocalPersister(tasks GradeTaskService) SubmissionPersister {
	return &localPersister{tasks: tasks}
}

func (p *localPersister) Persist(ctx context.Context, taskID uint, payload SubmissionPayload) (*SubmissionReceipt, error) {
	req, err := payload.Request()
	if err != nil {
		return nil, err
	}

	resp, err := p.tasks.Submit(ctx, taskID, payload.StudentID, req, payload.IdempotencyKey())
	if err != nil {
		if IsConflict(err) || IsUnauthorized(err) || IsNotFound(err) || IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}

	return NewSubmissionReceipt(resp), nil
}

// NewSubmissionReceipt summarizes a submit response
func NewSubmissionReceipt(resp *SubmitTaskResponse) *SubmissionReceipt {
	if resp == nil || resp.Submission == nil {
		return &SubmissionReceipt{}
	}
	return &SubmissionReceipt{
		SubmissionID: resp.Submission.ID,
		Status:       resp.Submission.Status,
		Score:        resp.Submission.Score,
		Replayed:     resp.Replayed,
	}
}

// IsRetryable reports whether a failed write may be re-issued
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}
