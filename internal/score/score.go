// Package score is the single scoring function used both right after an attempt and after every grading pass.
package score

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/quizit/internal/domain"
)

// Compute counts the answers that earn a point: multiple-choice answers matching the
// correct option, and open-ended answers the teacher graded as correct. Ungraded
// open-ended answers earn nothing.
func Compute(answers []domain.AnswerRecord) int {
	n := 0
	for _, a := range answers {
		if Earns(a) {
			n++
		}
	}
	return n
}

// Earns reports whether a single answer earns a point.
func Earns(a domain.AnswerRecord) bool {
	switch a.QuestionType {
	case domain.QuestionTypeMultipleChoice:
		return a.Correct()
	case domain.QuestionTypeOpenEnded:
		return a.TeacherGrade != nil && *a.TeacherGrade
	default:
		return false
	}
}

// Summary is a score against the quiz's total question count.
type Summary struct {
	Score      int             `json:"score"`
	Total      int             `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
	// Pending is the number of open-ended answers still waiting for a grade.
	Pending int  `json:"pending"`
	Graded  bool `json:"graded"`
}

var hundred = decimal.NewFromInt(100)

// Summarize computes the percentage of score over total, rounded to a whole number.
// The denominator is always the total question count, answered or not.
func Summarize(score, total int) Summary {
	s := Summary{
		Score:      score,
		Total:      total,
		Percentage: decimal.Zero,
	}

	if total > 0 {
		s.Percentage = decimal.NewFromInt(int64(score)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(total))).
			Round(0)
	}

	return s
}

// SummarizeSubmission summarizes a recorded submission.
func SummarizeSubmission(sub domain.Submission) Summary {
	total := sub.TotalQuestions
	if total < len(sub.Answers) {
		total = len(sub.Answers)
	}

	s := Summarize(sub.Score, total)
	s.Pending = sub.PendingGrades()
	s.Graded = sub.Graded
	return s
}
