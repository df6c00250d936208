package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

type SessionEndReason string

const (
	EndReasonFinished SessionEndReason = "finished"
	EndReasonTimeout  SessionEndReason = "timeout"
)

// DefaultTimeLimitSeconds applies when a task does not set its own budget
const DefaultTimeLimitSeconds = 300

// SessionState is a point-in-time copy of a running activity session. It is
// what the runner hands out and what the session store snapshots.
type SessionState struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uint      `json:"task_id"`
	StudentID string    `json:"student_id"`

	Activities   []Activity `json:"-"`
	CurrentIndex int        `json:"current_index"`

	// Answers is keyed by activity index; AnswerOrder keeps insertion order
	Answers     map[int]AnswerRecord `json:"answers"`
	AnswerOrder []int                `json:"answer_order"`
	Score       int                  `json:"score"`

	TimeLimitSeconds     int `json:"time_limit_seconds"`
	RemainingTimeSeconds int `json:"remaining_time_seconds"`

	Status    SessionStatus     `json:"status"`
	EndReason *SessionEndReason `json:"end_reason,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Submission bookkeeping
	Persisted    bool    `json:"persisted"`
	SubmissionID *uint   `json:"submission_id,omitempty"`
	LastError    *string `json:"last_error,omitempty"`
}

// TotalQuestions is the number of activities in the session
func (s *SessionState) TotalQuestions() int {
	return len(s.Activities)
}

// TimeSpentSeconds is the portion of the budget already used
func (s *SessionState) TimeSpentSeconds() int {
	return s.TimeLimitSeconds - s.RemainingTimeSeconds
}

// IsTerminal reports whether the session can no longer accept answers
func (s *SessionState) IsTerminal() bool {
	return s.Status != SessionInProgress
}

// ===== REQUEST / RESPONSE DTOs =====

type StartSessionRequest struct {
	TaskID uint `json:"task_id" validate:"required"`
}

type SessionAnswerRequest struct {
	Index  *int            `json:"index" validate:"required,gte=0"`
	Answer json.RawMessage `json:"answer"`
}

// ActivityView is an activity as shown to the student, without answer keys
type ActivityView struct {
	Index     int            `json:"index"`
	Type      ActivityKind   `json:"type"`
	Question  string         `json:"question"`
	Options   []string       `json:"options,omitempty"`
	Items     []string       `json:"items,omitempty"`
	Left      []string       `json:"left_items,omitempty"`
	Right     []string       `json:"right_items,omitempty"`
	VideoURL  string         `json:"video_url,omitempty"`
	FollowUps []ActivityView `json:"follow_up_questions,omitempty"`
}

type SessionView struct {
	ID                   uuid.UUID         `json:"id"`
	TaskID               uint              `json:"task_id"`
	Status               SessionStatus     `json:"status"`
	EndReason            *SessionEndReason `json:"end_reason,omitempty"`
	CurrentIndex         int               `json:"current_index"`
	TotalQuestions       int               `json:"total_questions"`
	Score                int               `json:"score"`
	RemainingTimeSeconds int               `json:"remaining_time_seconds"`
	Current              *ActivityView     `json:"current,omitempty"`
	Result               *SubmissionResult `json:"result,omitempty"`
	Persisted            bool              `json:"persisted"`
	LastError            *string           `json:"last_error,omitempty"`
}

// AnswerOutcome is returned after each accepted answer
type AnswerOutcome struct {
	Index     int         `json:"index"`
	IsCorrect bool        `json:"is_correct"`
	Session   SessionView `json:"session"`
}

// ReviewItem is the read-only view of one answered activity
type ReviewItem struct {
	Index    int          `json:"index"`
	Activity ActivityView `json:"activity"`
	Answer   AnswerRecord `json:"answer"`
}
