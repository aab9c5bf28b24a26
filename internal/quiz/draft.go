package quiz

import (
	"strings"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/validate"
)

// QuestionInput is a question as typed by the teacher.
type QuestionInput struct {
	Type               domain.QuestionType `json:"type" validate:"question_type"`
	Prompt             string              `json:"prompt" validate:"notblank,max=2000"`
	Options            []string            `json:"options,omitempty" validate:"max=20"`
	CorrectOptionIndex int                 `json:"correctOptionIndex"`
	SampleAnswer       string              `json:"sampleAnswer,omitempty" validate:"max=5000"`
}

// Draft is a quiz being authored. Question ids come from a counter owned by the
// draft, so removing a question never frees its id for reuse.
type Draft struct {
	questions []domain.Question
	nextID    int
}

// AddQuestion validates the input and appends it with a fresh id.
// Blank options are dropped before the correct option index is checked.
func (d *Draft) AddQuestion(in QuestionInput) (int, error) {
	if err := validate.Struct(in); err != nil {
		return 0, err
	}

	q := domain.Question{
		ID:     d.nextID,
		Type:   in.Type,
		Prompt: strings.TrimSpace(in.Prompt),
	}

	switch in.Type {
	case domain.QuestionTypeMultipleChoice:
		opts, correct, err := compactOptions(in.Options, in.CorrectOptionIndex)
		if err != nil {
			return 0, err
		}
		q.Options = opts
		q.CorrectOptionIndex = &correct

	case domain.QuestionTypeOpenEnded:
		q.SampleAnswer = strings.TrimSpace(in.SampleAnswer)
	}

	d.questions = append(d.questions, q)
	d.nextID++

	return q.ID, nil
}

// RemoveQuestion removes the question with the id. It reports whether the question existed.
func (d *Draft) RemoveQuestion(id int) bool {
	for i, q := range d.questions {
		if q.ID == id {
			d.questions = append(d.questions[:i], d.questions[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Draft) Questions() []domain.Question {
	return append([]domain.Question(nil), d.questions...)
}

func (d *Draft) Len() int { return len(d.questions) }

func compactOptions(options []string, correct int) ([]string, int, error) {
	out := make([]string, 0, len(options))
	newCorrect := -1
	for i, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if i == correct {
			newCorrect = len(out)
		}
		out = append(out, o)
	}

	if len(out) < 2 {
		return nil, 0, errors.InvalidArgument("a multiple-choice question needs at least 2 options, got %d", len(out))
	}

	if newCorrect < 0 {
		return nil, 0, errors.InvalidArgument("correct option %d is out of range or blank", correct)
	}

	return out, newCorrect, nil
}
