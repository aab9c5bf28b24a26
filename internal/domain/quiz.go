package domain

import (
	"time"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeOpenEnded      QuestionType = "open-ended"
)

func (t QuestionType) Valid() bool {
	return t == QuestionTypeMultipleChoice || t == QuestionTypeOpenEnded
}

// Quiz is an authored quiz. It is immutable once created.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"timeLimitMinutes,omitempty"`
	Questions        []Question `json:"questions"`
	CreatedBy        string     `json:"createdBy"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// TimeLimit returns the configured time limit, zero means untimed.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

// Question is a single quiz question. ID is assigned once when the question is
// authored and is never reassigned.
type Question struct {
	ID                 int          `json:"id"`
	Type               QuestionType `json:"type"`
	Prompt             string       `json:"prompt"`
	Options            []string     `json:"options,omitempty"`
	CorrectOptionIndex *int         `json:"correctOptionIndex,omitempty"`
	SampleAnswer       string       `json:"sampleAnswer,omitempty"`
}

// Public returns a copy of the question without the correct answer, suitable to show to a student.
func (q Question) Public() Question {
	q.CorrectOptionIndex = nil
	q.SampleAnswer = ""
	q.Options = append([]string(nil), q.Options...)
	return q
}

// Public returns a copy of the quiz with every question stripped of its answer.
func (q Quiz) Public() Quiz {
	qs := make([]Question, len(q.Questions))
	for i, qq := range q.Questions {
		qs[i] = qq.Public()
	}
	q.Questions = qs
	return q
}
