package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	eventSource  = "activity-service"
	eventVersion = "1.0"
)

// EventType represents the kinds of domain events the service emits
type EventType string

const (
	// Session events
	EventSessionCompleted EventType = "session.completed"
	EventSessionTimedOut  EventType = "session.timed_out"
	EventSessionAbandoned EventType = "session.abandoned"

	// Submission events
	EventSubmissionCreated EventType = "submission.created"
	EventSubmissionGraded  EventType = "submission.graded"
)

// DomainEvent is the envelope for every event published by the service
type DomainEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Session event payloads

type SessionFinishedEvent struct {
	SessionID      string    `json:"session_id"`
	TaskID         uint      `json:"task_id"`
	StudentID      string    `json:"student_id"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	Percentage     int       `json:"percentage"`
	TimeSpent      int       `json:"time_spent"` // seconds
	EndReason      string    `json:"end_reason"`
	CompletedAt    time.Time `json:"completed_at"`
}

type SessionAbandonedEvent struct {
	SessionID   string    `json:"session_id"`
	TaskID      uint      `json:"task_id"`
	StudentID   string    `json:"student_id"`
	Answered    int       `json:"answered"`
	AbandonedAt time.Time `json:"abandoned_at"`
}

// Submission event payloads

type SubmissionCreatedEvent struct {
	SubmissionID uint      `json:"submission_id"`
	TaskID       uint      `json:"task_id"`
	TaskTitle    string    `json:"task_title"`
	StudentID    string    `json:"student_id"`
	TeacherID    string    `json:"teacher_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type SubmissionGradedEvent struct {
	SubmissionID uint      `json:"submission_id"`
	TaskID       uint      `json:"task_id"`
	StudentID    string    `json:"student_id"`
	Score        float64   `json:"score"`
	MaxGrade     float64   `json:"max_grade"`
	Percentage   int       `json:"percentage"`
	GradedAt     time.Time `json:"graded_at"`
	AutoGraded   bool      `json:"auto_graded"`
}

// Event factory functions

func NewSessionFinishedEvent(data SessionFinishedEvent) *DomainEvent {
	eventType := EventSessionCompleted
	if data.EndReason == "timeout" {
		eventType = EventSessionTimedOut
	}
	return newEvent(eventType, data, data.SessionID)
}

func NewSessionAbandonedEvent(data SessionAbandonedEvent) *DomainEvent {
	return newEvent(EventSessionAbandoned, data, data.SessionID)
}

func NewSubmissionCreatedEvent(data SubmissionCreatedEvent) *DomainEvent {
	return newEvent(EventSubmissionCreated, data, fmt.Sprintf("task-%d", data.TaskID))
}

func NewSubmissionGradedEvent(data SubmissionGradedEvent) *DomainEvent {
	return newEvent(EventSubmissionGraded, data, fmt.Sprintf("task-%d", data.TaskID))
}

func newEvent(eventType EventType, data interface{}, partitionKey string) *DomainEvent {
	return &DomainEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
		Metadata: map[string]interface{}{
			"partition_key": partitionKey,
		},
	}
}

// GenerateEventID returns a unique event identifier
func GenerateEventID() string {
	return uuid.NewString()
}
