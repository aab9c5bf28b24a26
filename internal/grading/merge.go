// Package grading merges a teacher's grades into a recorded submission.
package grading

import (
	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/score"
)

// Grade is the teacher's verdict on one open-ended answer.
// A nil Comment keeps the comment already on the answer.
type Grade struct {
	Correct bool    `json:"correct"`
	Comment *string `json:"comment,omitempty"`
}

// ApplyGrades returns a copy of sub with the grades merged into its open-ended answers,
// keyed by question id. Entries for multiple-choice or unknown questions are ignored.
// The score is recomputed and the submission is marked graded, even if some
// open-ended answers are still ungraded.
func ApplyGrades(sub domain.Submission, grades map[int]Grade, gradedBy string) domain.Submission {
	out := sub.Clone()

	for i, r := range out.Answers {
		if r.QuestionType != domain.QuestionTypeOpenEnded {
			continue
		}

		g, ok := grades[r.QuestionID]
		if !ok {
			continue
		}

		correct := g.Correct
		r.TeacherGrade = &correct
		r.GradedBy = gradedBy
		if g.Comment != nil {
			r.TeacherComment = *g.Comment
		}

		out.Answers[i] = r
	}

	out.Score = score.Compute(out.Answers)
	out.Graded = true

	return out
}
