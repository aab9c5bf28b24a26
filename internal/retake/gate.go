// Package retake decides whether a student may start another attempt on a quiz.
//
// The override code is a shared secret handed out by the teacher. It is friction,
// not access control: anybody who knows it can retake any quiz.
package retake

import (
	"crypto/subtle"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
)

type Gate struct {
	code string
}

// NewGate returns a gate accepting code as the retake override. An empty code disables retakes.
func NewGate(code string) *Gate {
	return &Gate{code: code}
}

// MayStart allows a first attempt unconditionally. Once the student has a submission
// for the quiz, a new attempt requires the override code.
func (g *Gate) MayStart(studentID, quizID string, existing []domain.Submission, suppliedCode string) bool {
	return g.Allow(taken(studentID, quizID, existing), suppliedCode)
}

// Allow decides on an attempt when the caller already knows whether the student has a prior
// attempt, recorded or still running.
func (g *Gate) Allow(prior bool, suppliedCode string) bool {
	if !prior {
		return true
	}

	return g.code != "" && subtle.ConstantTimeCompare([]byte(g.code), []byte(suppliedCode)) == 1
}

// Check is MayStart returning CodePermissionDenied on denial.
func (g *Gate) Check(studentID, quizID string, existing []domain.Submission, suppliedCode string) error {
	return g.CheckPrior(quizID, taken(studentID, quizID, existing), suppliedCode)
}

// CheckPrior is Allow returning CodePermissionDenied on denial.
func (g *Gate) CheckPrior(quizID string, prior bool, suppliedCode string) error {
	if g.Allow(prior, suppliedCode) {
		return nil
	}

	return errors.PermissionDenied("quiz %s was already taken, a valid retake code is required", quizID)
}

func taken(studentID, quizID string, existing []domain.Submission) bool {
	for _, s := range existing {
		if s.StudentID == studentID && s.QuizID == quizID {
			return true
		}
	}
	return false
}
