package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type ActivityKind string

const (
	KindMultipleChoice ActivityKind = "multiple-choice"
	KindDragDrop       ActivityKind = "drag-drop"
	KindMatchLines     ActivityKind = "match-lines"
	KindShortAnswer    ActivityKind = "short-answer"
	KindVideo          ActivityKind = "video"
)

var ErrUnknownActivityKind = errors.New("unknown activity type")

// Activity is one gradable question. The set of implementations is closed:
// only the variant structs in this file satisfy it.
type Activity interface {
	Kind() ActivityKind
	Prompt() string
	activity()
}

type MultipleChoiceActivity struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

type DragDropActivity struct {
	Question     string   `json:"question"`
	Items        []string `json:"items"`
	CorrectOrder []int    `json:"correctOrder"`
}

type MatchLinesActivity struct {
	Question       string   `json:"question"`
	LeftItems      []string `json:"leftItems"`
	RightItems     []string `json:"rightItems"`
	CorrectMatches []int    `json:"correctMatches"`
}

type ShortAnswerActivity struct {
	Question        string   `json:"question"`
	CorrectAnswer   string   `json:"correctAnswer"`
	AcceptedAnswers []string `json:"acceptedAnswers,omitempty"`
	CaseSensitive   bool     `json:"caseSensitive,omitempty"`
}

type VideoActivity struct {
	Question          string     `json:"question"`
	VideoURL          string     `json:"videoUrl"`
	FollowUpQuestions []Activity `json:"-"`
}

func (*MultipleChoiceActivity) Kind() ActivityKind { return KindMultipleChoice }
func (*DragDropActivity) Kind() ActivityKind       { return KindDragDrop }
func (*MatchLinesActivity) Kind() ActivityKind     { return KindMatchLines }
func (*ShortAnswerActivity) Kind() ActivityKind    { return KindShortAnswer }
func (*VideoActivity) Kind() ActivityKind          { return KindVideo }

func (a *MultipleChoiceActivity) Prompt() string { return a.Question }
func (a *DragDropActivity) Prompt() string       { return a.Question }
func (a *MatchLinesActivity) Prompt() string     { return a.Question }
func (a *ShortAnswerActivity) Prompt() string    { return a.Question }
func (a *VideoActivity) Prompt() string          { return a.Question }

func (*MultipleChoiceActivity) activity() {}
func (*DragDropActivity) activity()       {}
func (*MatchLinesActivity) activity()     {}
func (*ShortAnswerActivity) activity()    {}
func (*VideoActivity) activity()          {}

// IsValidActivityKind reports whether kind names one of the variants
func IsValidActivityKind(kind string) bool {
	switch ActivityKind(kind) {
	case KindMultipleChoice, KindDragDrop, KindMatchLines, KindShortAnswer, KindVideo:
		return true
	}
	return false
}

// ===== JSON CODEC =====

// envelope peeks at the discriminator before decoding the variant
type envelope struct {
	Type ActivityKind `json:"type"`
}

// ParseActivities decodes a task's activity configuration (a JSON array)
func ParseActivities(data []byte) ([]Activity, error) {
	data, err := UnquoteActivityConfig(data)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("activity config must be a JSON array: %w", err)
	}

	activities := make([]Activity, 0, len(raws))
	for i, raw := range raws {
		a, err := UnmarshalActivity(raw)
		if err != nil {
			return nil, fmt.Errorf("activity %d: %w", i, err)
		}
		activities = append(activities, a)
	}
	return activities, nil
}

// UnquoteActivityConfig returns the array form of an activity config that
// arrived as a JSON-encoded string. Any other input is returned unchanged.
func UnquoteActivityConfig(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return data, nil
	}

	var encoded string
	if err := json.Unmarshal(trimmed, &encoded); err != nil {
		return nil, fmt.Errorf("activity config string is not valid JSON: %w", err)
	}
	return []byte(encoded), nil
}

// UnmarshalActivity decodes a single activity object
func UnmarshalActivity(raw []byte) (Activity, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case KindMultipleChoice:
		var a MultipleChoiceActivity
		return &a, json.Unmarshal(raw, &a)
	case KindDragDrop:
		var a DragDropActivity
		return &a, json.Unmarshal(raw, &a)
	case KindMatchLines:
		var a MatchLinesActivity
		return &a, json.Unmarshal(raw, &a)
	case KindShortAnswer:
		var a ShortAnswerActivity
		return &a, json.Unmarshal(raw, &a)
	case KindVideo:
		var a VideoActivity
		return &a, json.Unmarshal(raw, &a)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivityKind, env.Type)
	}
}

// MarshalActivities encodes activities back into the configuration format
func MarshalActivities(activities []Activity) ([]byte, error) {
	if activities == nil {
		activities = []Activity{}
	}
	return json.Marshal(activities)
}

func (a *MultipleChoiceActivity) MarshalJSON() ([]byte, error) {
	type plain MultipleChoiceActivity
	return json.Marshal(struct {
		Type ActivityKind `json:"type"`
		*plain
	}{KindMultipleChoice, (*plain)(a)})
}

func (a *DragDropActivity) MarshalJSON() ([]byte, error) {
	type plain DragDropActivity
	return json.Marshal(struct {
		Type ActivityKind `json:"type"`
		*plain
	}{KindDragDrop, (*plain)(a)})
}

func (a *MatchLinesActivity) MarshalJSON() ([]byte, error) {
	type plain MatchLinesActivity
	return json.Marshal(struct {
		Type ActivityKind `json:"type"`
		*plain
	}{KindMatchLines, (*plain)(a)})
}

func (a *ShortAnswerActivity) MarshalJSON() ([]byte, error) {
	type plain ShortAnswerActivity
	return json.Marshal(struct {
		Type ActivityKind `json:"type"`
		*plain
	}{KindShortAnswer, (*plain)(a)})
}

func (a *VideoActivity) MarshalJSON() ([]byte, error) {
	followUps := a.FollowUpQuestions
	if followUps == nil {
		followUps = []Activity{}
	}
	return json.Marshal(struct {
		Type              ActivityKind `json:"type"`
		Question          string       `json:"question"`
		VideoURL          string       `json:"videoUrl"`
		FollowUpQuestions []Activity   `json:"followUpQuestions"`
	}{KindVideo, a.Question, a.VideoURL, followUps})
}

func (a *VideoActivity) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question          string            `json:"question"`
		VideoURL          string            `json:"videoUrl"`
		FollowUpQuestions []json.RawMessage `json:"followUpQuestions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Question = raw.Question
	a.VideoURL = raw.VideoURL
	a.FollowUpQuestions = nil
	for i, fq := range raw.FollowUpQuestions {
		nested, err := UnmarshalActivity(fq)
		if err != nil {
			return fmt.Errorf("follow-up %d: %w", i, err)
		}
		a.FollowUpQuestions = append(a.FollowUpQuestions, nested)
	}
	return nil
}
