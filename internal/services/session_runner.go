package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/altius-academy/activity-service/internal/models"
)

// CompletionFunc receives the finished session. It runs on the goroutine
// that caused completion, after the runner's lock has been released.
type CompletionFunc func(ctx context.Context, payload SubmissionPayload)

// RunnerConfig identifies the session and wires its collaborators
type RunnerConfig struct {
	ID         uuid.UUID
	TaskID     uint
	StudentID  string
	MaxGrade   float64
	Grading    GradingService
	OnComplete CompletionFunc
	Now        func() time.Time
}

// SessionRunner drives one student through a task's activities. All state
// changes happen under mu and are gated on the session status, so a tick and
// an answer racing at the end of the session complete it only once.
type SessionRunner struct {
	mu sync.Mutex

	state    models.SessionState
	started  bool
	maxGrade float64

	grading    GradingService
	onComplete CompletionFunc
	now        func() time.Time
}

func NewSessionRunner(config RunnerConfig) *SessionRunner {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	id := config.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &SessionRunner{
		state: models.SessionState{
			ID:        id,
			TaskID:    config.TaskID,
			StudentID: config.StudentID,
		},
		maxGrade:   config.MaxGrade,
		grading:    config.Grading,
		onComplete: config.OnComplete,
		now:        now,
	}
}

// RestoreSessionRunner rebuilds a runner from a stored snapshot. Activities are
// not part of the snapshot and must come from the task.
func RestoreSessionRunner(config RunnerConfig, snapshot *models.SessionState, activities []models.Activity) (*SessionRunner, error) {
	if len(activities) == 0 {
		return nil, fmt.Errorf("%w: task has no activities", ErrInvalidSession)
	}
	if snapshot.CurrentIndex < 0 || snapshot.CurrentIndex > len(activities) {
		return nil, fmt.Errorf("%w: snapshot index %d does not fit %d activities",
			ErrInvalidSession, snapshot.CurrentIndex, len(activities))
	}

	config.ID = snapshot.ID
	config.TaskID = snapshot.TaskID
	config.StudentID = snapshot.StudentID
	r := NewSessionRunner(config)

	r.state = *snapshot
	r.state.Activities = activities
	if r.state.Answers == nil {
		r.state.Answers = make(map[int]models.AnswerRecord)
	}
	r.started = true
	return r, nil
}

// ID returns the session id, which doubles as the idempotency key
func (r *SessionRunner) ID() uuid.UUID {
	return r.state.ID
}

// Start initializes the session. An empty activity list is rejected and a
// non-positive limit falls back to the default budget.
func (r *SessionRunner) Start(activities []models.Activity, timeLimitSeconds int) error {
	if len(activities) == 0 {
		return fmt.Errorf("%w: no activities to play", ErrInvalidSession)
	}
	if timeLimitSeconds <= 0 {
		timeLimitSeconds = models.DefaultTimeLimitSeconds
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("%w: session already started", ErrInvalidState)
	}

	r.state.Activities = activities
	r.state.CurrentIndex = 0
	r.state.Answers = make(map[int]models.AnswerRecord)
	r.state.AnswerOrder = nil
	r.state.Score = 0
	r.state.TimeLimitSeconds = timeLimitSeconds
	r.state.RemainingTimeSeconds = timeLimitSeconds
	r.state.Status = models.SessionInProgress
	r.state.StartedAt = r.now()
	r.started = true

	return nil
}

// SubmitAnswer grades the answer for index, which must be the current
// activity. A rejected call leaves the session untouched.
func (r *SessionRunner) SubmitAnswer(ctx context.Context, index int, raw json.RawMessage) (models.AnswerRecord, error) {
	r.mu.Lock()

	if err := r.checkAnswerable(index); err != nil {
		r.mu.Unlock()
		return models.AnswerRecord{}, err
	}

	_, record, err := r.grading.Grade(r.state.Activities[index], raw)
	if err != nil {
		r.mu.Unlock()
		return models.AnswerRecord{}, err
	}

	r.state.Answers[index] = record
	r.state.AnswerOrder = append(r.state.AnswerOrder, index)
	if record.IsCorrect {
		r.state.Score++
	}

	r.state.CurrentIndex++

	var payload *SubmissionPayload
	if r.state.CurrentIndex == len(r.state.Activities) {
		payload = r.completeLocked(models.EndReasonFinished)
	}
	r.mu.Unlock()

	r.fireCompletion(ctx, payload)
	return record, nil
}

func (r *SessionRunner) checkAnswerable(index int) error {
	if !r.started {
		return fmt.Errorf("%w: session not started", ErrInvalidState)
	}
	if r.state.Status != models.SessionInProgress {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, r.state.Status)
	}
	if index != r.state.CurrentIndex {
		return fmt.Errorf("%w: expected answer for activity %d, got %d",
			ErrInvalidState, r.state.CurrentIndex, index)
	}
	if _, answered := r.state.Answers[index]; answered {
		return fmt.Errorf("%w: activity %d already answered", ErrInvalidState, index)
	}
	return nil
}

// Tick consumes one second of the budget. It reports whether this tick ended
// the session. Ticks on a finished session do nothing.
func (r *SessionRunner) Tick(ctx context.Context) bool {
	r.mu.Lock()

	if !r.started || r.state.Status != models.SessionInProgress {
		r.mu.Unlock()
		return false
	}

	if r.state.RemainingTimeSeconds > 0 {
		r.state.RemainingTimeSeconds--
	}

	var payload *SubmissionPayload
	if r.state.RemainingTimeSeconds == 0 {
		payload = r.completeLocked(models.EndReasonTimeout)
	}
	r.mu.Unlock()

	r.fireCompletion(ctx, payload)
	return payload != nil
}

// GoBack returns a read-only view of an answered activity. Once the session
// is over every activity can be reviewed, answered or not.
func (r *SessionRunner) GoBack(index int) (*models.ReviewItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil, fmt.Errorf("%w: session not started", ErrInvalidState)
	}
	if index < 0 || index >= len(r.state.Activities) {
		return nil, fmt.Errorf("%w: activity %d does not exist", ErrInvalidState, index)
	}

	activity := r.state.Activities[index]
	record, answered := r.state.Answers[index]
	if !answered {
		if !r.state.IsTerminal() {
			return nil, fmt.Errorf("%w: activity %d has not been answered", ErrInvalidState, index)
		}
		record = UnansweredRecord(activity)
	}

	return &models.ReviewItem{
		Index:    index,
		Activity: NewActivityView(index, activity),
		Answer:   record,
	}, nil
}

// Review lists every activity with its trace entry
func (r *SessionRunner) Review() ([]models.ReviewItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.IsTerminal() {
		return nil, fmt.Errorf("%w: review is available once the session ends", ErrInvalidState)
	}

	items := make([]models.ReviewItem, 0, len(r.state.Activities))
	for i, record := range r.traceLocked() {
		items = append(items, models.ReviewItem{
			Index:    i,
			Activity: NewActivityView(i, r.state.Activities[i]),
			Answer:   record,
		})
	}
	return items, nil
}

// Abandon discards an in-progress session. Nothing is persisted.
func (r *SessionRunner) Abandon() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.state.Status != models.SessionInProgress {
		return fmt.Errorf("%w: only an in-progress session can be abandoned", ErrInvalidState)
	}

	now := r.now()
	r.state.Status = models.SessionAbandoned
	r.state.CompletedAt = &now
	return nil
}

// Payload rebuilds the submission for a completed session, used when a
// failed write is retried
func (r *SessionRunner) Payload() (*SubmissionPayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Status != models.SessionCompleted {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, r.state.Status)
	}
	return r.payloadLocked()
}

// MarkPersisted records the outcome of a submission write
func (r *SessionRunner) MarkPersisted(receipt *SubmissionReceipt, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		msg := err.Error()
		r.state.LastError = &msg
		return
	}

	r.state.Persisted = true
	r.state.LastError = nil
	if receipt != nil && receipt.SubmissionID != 0 {
		id := receipt.SubmissionID
		r.state.SubmissionID = &id
	}
}

// Snapshot returns a copy of the current state
func (r *SessionRunner) Snapshot() models.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.copyLocked()
}

// View renders the student-facing state
func (r *SessionRunner) View() models.SessionView {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := models.SessionView{
		ID:                   r.state.ID,
		TaskID:               r.state.TaskID,
		Status:               r.state.Status,
		EndReason:            r.state.EndReason,
		CurrentIndex:         r.state.CurrentIndex,
		TotalQuestions:       r.state.TotalQuestions(),
		Score:                r.state.Score,
		RemainingTimeSeconds: r.state.RemainingTimeSeconds,
		Persisted:            r.state.Persisted,
		LastError:            r.state.LastError,
	}

	switch r.state.Status {
	case models.SessionInProgress:
		if r.state.CurrentIndex < len(r.state.Activities) {
			current := NewActivityView(r.state.CurrentIndex, r.state.Activities[r.state.CurrentIndex])
			view.Current = &current
		}
	case models.SessionCompleted:
		if payload, err := r.payloadLocked(); err == nil {
			result := payload.Result
			view.Result = &result
		}
	}

	return view
}

// completeLocked flips the session to completed and builds the payload. The
// caller holds mu and has checked the session is in progress.
func (r *SessionRunner) completeLocked(reason models.SessionEndReason) *SubmissionPayload {
	now := r.now()
	r.state.Status = models.SessionCompleted
	r.state.EndReason = &reason
	r.state.CompletedAt = &now

	payload, err := r.payloadLocked()
	if err != nil {
		// started sessions always have activities
		return nil
	}
	return payload
}

func (r *SessionRunner) payloadLocked() (*SubmissionPayload, error) {
	trace := r.traceLocked()

	summary, err := r.grading.Aggregate(trace, len(r.state.Activities), r.maxGrade)
	if err != nil {
		return nil, err
	}

	reason := models.EndReasonFinished
	if r.state.EndReason != nil {
		reason = *r.state.EndReason
	}
	completedAt := r.now()
	if r.state.CompletedAt != nil {
		completedAt = *r.state.CompletedAt
	}

	return &SubmissionPayload{
		SessionID:    r.state.ID,
		TaskID:       r.state.TaskID,
		StudentID:    r.state.StudentID,
		Result:       BuildResult(summary, trace, r.state.TimeSpentSeconds()),
		DerivedGrade: summary.DerivedGrade,
		EndReason:    reason,
		CompletedAt:  completedAt,
	}, nil
}

// traceLocked lists one record per activity in order, filling the gaps left
// by a timeout with unanswered entries
func (r *SessionRunner) traceLocked() []models.AnswerRecord {
	trace := make([]models.AnswerRecord, 0, len(r.state.Activities))
	for i, activity := range r.state.Activities {
		if record, ok := r.state.Answers[i]; ok {
			trace = append(trace, record)
			continue
		}
		trace = append(trace, UnansweredRecord(activity))
	}
	return trace
}

func (r *SessionRunner) copyLocked() models.SessionState {
	state := r.state

	state.Answers = make(map[int]models.AnswerRecord, len(r.state.Answers))
	for k, v := range r.state.Answers {
		state.Answers[k] = v
	}
	state.AnswerOrder = append([]int(nil), r.state.AnswerOrder...)
	state.Activities = append([]models.Activity(nil), r.state.Activities...)
	return state
}

func (r *SessionRunner) fireCompletion(ctx context.Context, payload *SubmissionPayload) {
	if payload == nil || r.onComplete == nil {
		return
	}
	r.onComplete(ctx, *payload)
}

// NewActivityView strips the answer keys from an activity
func NewActivityView(index int, activity models.Activity) models.ActivityView {
	view := models.ActivityView{
		Index:    index,
		Type:     activity.Kind(),
		Question: activity.Prompt(),
	}

	switch a := activity.(type) {
	case *models.MultipleChoiceActivity:
		view.Options = a.Options
	case *models.DragDropActivity:
		view.Items = a.Items
	case *models.MatchLinesActivity:
		view.Left = a.LeftItems
		view.Right = a.RightItems
	case *models.VideoActivity:
		view.VideoURL = a.VideoURL
		for i, fq := range a.FollowUpQuestions {
			view.FollowUps = append(view.FollowUps, NewActivityView(i, fq))
		}
	}

	return view
}
