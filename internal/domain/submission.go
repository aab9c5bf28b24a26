package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Answer is the value a student gives to a question: an option index for
// multiple-choice questions, or free text for open-ended ones.
// In JSON it is a number or a string respectively.
type Answer struct {
	Option *int
	Text   string
}

func OptionAnswer(i int) Answer { return Answer{Option: &i} }

func TextAnswer(s string) Answer { return Answer{Text: s} }

func (a Answer) IsOption() bool { return a.Option != nil }

func (a Answer) String() string {
	if a.Option != nil {
		return fmt.Sprintf("option %d", *a.Option)
	}
	return fmt.Sprintf("%q", a.Text)
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Option != nil {
		return json.Marshal(*a.Option)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Answer{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Answer{Text: s}
		return nil
	}

	var i int
	if err := json.Unmarshal(b, &i); err != nil {
		return fmt.Errorf("answer must be an option index or text: %w", err)
	}
	*a = Answer{Option: &i}
	return nil
}

// AnswerRecord is the answer to one question, with snapshots of the question
// taken at answer time. TeacherGrade, TeacherComment and GradedBy are the grade
// annotation of an open-ended answer; a nil TeacherGrade means not yet graded.
type AnswerRecord struct {
	QuestionID         int          `json:"questionId"`
	QuestionType       QuestionType `json:"questionType"`
	PromptSnapshot     string       `json:"promptSnapshot"`
	UserAnswer         Answer       `json:"userAnswer"`
	CorrectOptionIndex *int         `json:"correctOptionIndex,omitempty"`
	OptionsSnapshot    []string     `json:"optionsSnapshot,omitempty"`

	TeacherGrade   *bool  `json:"teacherGrade,omitempty"`
	TeacherComment string `json:"teacherComment,omitempty"`
	GradedBy       string `json:"gradedBy,omitempty"`
}

// Correct reports whether a multiple-choice answer matches the correct option.
func (r AnswerRecord) Correct() bool {
	return r.QuestionType == QuestionTypeMultipleChoice &&
		r.UserAnswer.Option != nil &&
		r.CorrectOptionIndex != nil &&
		*r.UserAnswer.Option == *r.CorrectOptionIndex
}

func (r AnswerRecord) Graded() bool {
	return r.TeacherGrade != nil
}

// Submission is the persisted record of a completed attempt.
type Submission struct {
	ID                string         `json:"id"`
	QuizID            string         `json:"quizId"`
	QuizTitleSnapshot string         `json:"quizTitleSnapshot"`
	StudentID         string         `json:"studentId"`
	Answers           []AnswerRecord `json:"answers"`
	// TotalQuestions is the quiz's question count at attempt time, including unanswered questions.
	TotalQuestions int       `json:"totalQuestions"`
	Score          int       `json:"score"`
	SubmittedAt    time.Time `json:"submittedAt"`
	Graded         bool      `json:"graded"`
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (s Submission) Clone() Submission {
	c := s
	c.Answers = make([]AnswerRecord, len(s.Answers))
	for i, r := range s.Answers {
		if r.UserAnswer.Option != nil {
			v := *r.UserAnswer.Option
			r.UserAnswer.Option = &v
		}
		if r.CorrectOptionIndex != nil {
			v := *r.CorrectOptionIndex
			r.CorrectOptionIndex = &v
		}
		if r.TeacherGrade != nil {
			v := *r.TeacherGrade
			r.TeacherGrade = &v
		}
		r.OptionsSnapshot = append([]string(nil), r.OptionsSnapshot...)
		c.Answers[i] = r
	}
	return c
}

// PendingGrades returns the number of open-ended answers without a teacher grade.
func (s Submission) PendingGrades() int {
	n := 0
	for _, r := range s.Answers {
		if r.QuestionType == QuestionTypeOpenEnded && !r.Graded() {
			n++
		}
	}
	return n
}
