// Package attempt drives one student's pass through one quiz: answer by answer, optionally against a timer.
package attempt

import (
	"strings"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/score"
)

type State int

const (
	StateInProgress State = iota
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in-progress"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "in-progress":
		*s = StateInProgress
	case "completed":
		*s = StateCompleted
	default:
		return errors.InvalidArgument("unknown attempt state %q", b)
	}
	return nil
}

// Reason is why an attempt completed.
type Reason string

const (
	ReasonFinished Reason = "finished"
	ReasonTimeout  Reason = "timeout"
)

// Attempt is the state machine of a single attempt. It is not safe for concurrent use, see Runner.
//
// It starts InProgress at the first question and moves to Completed either after
// the last question is answered or when the timer runs out. Completed is terminal:
// SubmitAnswer and Tick do nothing afterwards.
type Attempt struct {
	quiz    domain.Quiz
	state   State
	reason  Reason
	index   int
	answers []domain.AnswerRecord
	score   int

	timed     bool
	remaining int
}

// New starts an attempt on q. A quiz without questions cannot be attempted.
func New(q domain.Quiz) (*Attempt, error) {
	if len(q.Questions) == 0 {
		return nil, errors.InvalidArgument("quiz %s has no questions", q.ID)
	}

	a := &Attempt{
		quiz:    q,
		state:   StateInProgress,
		answers: make([]domain.AnswerRecord, 0, len(q.Questions)),
	}

	if q.TimeLimitMinutes > 0 {
		a.timed = true
		a.remaining = q.TimeLimitMinutes * 60
	}

	return a, nil
}

// SubmitAnswer answers the current question. It reports whether the attempt completed with this answer.
// An answer that does not fit the question is rejected with CodeInvalidArgument and the attempt does not move.
func (a *Attempt) SubmitAnswer(ans domain.Answer) (bool, error) {
	if a.state == StateCompleted {
		return false, nil
	}

	q := a.quiz.Questions[a.index]
	if err := check(q, ans); err != nil {
		return false, err
	}

	rec := domain.AnswerRecord{
		QuestionID:     q.ID,
		QuestionType:   q.Type,
		PromptSnapshot: q.Prompt,
		UserAnswer:     ans,
	}

	if q.Type == domain.QuestionTypeMultipleChoice {
		opt, correct := *ans.Option, *q.CorrectOptionIndex
		rec.UserAnswer = domain.OptionAnswer(opt)
		rec.CorrectOptionIndex = &correct
		rec.OptionsSnapshot = append([]string(nil), q.Options...)
	}

	a.answers = append(a.answers, rec)
	if score.Earns(rec) {
		a.score++
	}

	if a.index == len(a.quiz.Questions)-1 {
		a.complete(ReasonFinished)
		return true, nil
	}

	a.index++
	return false, nil
}

// Tick counts down one second. It reports whether the attempt timed out with this tick.
// Untimed and completed attempts ignore ticks.
func (a *Attempt) Tick() bool {
	if a.state == StateCompleted || !a.timed {
		return false
	}

	a.remaining--
	if a.remaining > 0 {
		return false
	}

	a.remaining = 0
	a.complete(ReasonTimeout)
	return true
}

func (a *Attempt) complete(r Reason) {
	a.state = StateCompleted
	a.reason = r
}

func check(q domain.Question, ans domain.Answer) error {
	switch q.Type {
	case domain.QuestionTypeMultipleChoice:
		if ans.Option == nil {
			return errors.InvalidArgument("question %d: select an option", q.ID)
		}
		if *ans.Option < 0 || *ans.Option >= len(q.Options) {
			return errors.InvalidArgument("question %d: option %d out of range [0, %d)", q.ID, *ans.Option, len(q.Options))
		}
		if q.CorrectOptionIndex == nil {
			return errors.New(errors.CodeInternal, errors.WithMessagef("question %d has no correct option", q.ID))
		}

	case domain.QuestionTypeOpenEnded:
		if ans.Option != nil {
			return errors.InvalidArgument("question %d: a text answer is required", q.ID)
		}
		if strings.TrimSpace(ans.Text) == "" {
			return errors.InvalidArgument("question %d: answer must not be empty", q.ID)
		}

	default:
		return errors.InvalidArgument("question %d: unknown type %q", q.ID, q.Type)
	}

	return nil
}

func (a *Attempt) State() State { return a.state }

// Reason is empty while the attempt is in progress.
func (a *Attempt) Reason() Reason { return a.reason }

func (a *Attempt) Quiz() domain.Quiz { return a.quiz }

// Score counts the answers that earned a point so far. Open-ended answers never count before grading.
func (a *Attempt) Score() int { return a.score }

// QuestionIndex is the index of the question to answer next.
func (a *Attempt) QuestionIndex() int { return a.index }

// Current returns the question to answer next, false once completed.
func (a *Attempt) Current() (domain.Question, bool) {
	if a.state == StateCompleted {
		return domain.Question{}, false
	}
	return a.quiz.Questions[a.index], true
}

// Remaining returns the seconds left, false if the attempt is untimed.
func (a *Attempt) Remaining() (int, bool) {
	return a.remaining, a.timed
}

// Answers returns a copy of the answers collected so far.
func (a *Attempt) Answers() []domain.AnswerRecord {
	return append([]domain.AnswerRecord(nil), a.answers...)
}
