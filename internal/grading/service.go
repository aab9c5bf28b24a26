package grading

import (
	"context"
	"log/slog"
	"sort"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/event"
	"github.com/victornm/quizit/internal/submission"
	"github.com/victornm/quizit/internal/telemetry"
)

type Config struct {
	Submission *submission.Recorder
	EventBus   *event.Bus
}

type Service struct {
	submission *submission.Recorder
	eb         *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		submission: c.Submission,
		eb:         c.EventBus,
	}
}

type GradeRequest struct {
	Actor        domain.Actor
	SubmissionID string
	Grades       map[int]Grade
}

// Grade applies one grading pass to a submission and saves it.
// Every key of Grades must be the id of an open-ended answer of the submission.
func (s *Service) Grade(ctx context.Context, req GradeRequest) (*domain.Submission, error) {
	if !req.Actor.IsTeacher() {
		return nil, errors.PermissionDenied("only teachers can grade submissions")
	}

	sub, err := s.submission.Get(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}

	if err := checkGrades(*sub, req.Grades); err != nil {
		return nil, err
	}

	graded := ApplyGrades(*sub, req.Grades, req.Actor.ID)

	if err := s.submission.Put(ctx, graded); err != nil {
		return nil, err
	}

	telemetry.GradingPasses.Inc()

	slog.InfoContext(ctx, "grading: submission graded",
		"submission_id", graded.ID,
		"graded_by", req.Actor.ID,
		"grades", len(req.Grades),
		"score", graded.Score,
		"pending", graded.PendingGrades(),
	)

	s.eb.Publish(ctx, domain.EventSubmissionGraded{
		Submission: graded.Clone(),
		GradedBy:   req.Actor.ID,
	})

	return &graded, nil
}

func checkGrades(sub domain.Submission, grades map[int]Grade) error {
	openEnded := make(map[int]bool, len(sub.Answers))
	for _, r := range sub.Answers {
		openEnded[r.QuestionID] = r.QuestionType == domain.QuestionTypeOpenEnded
	}

	ids := make([]int, 0, len(grades))
	for id := range grades {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		oe, ok := openEnded[id]
		if !ok {
			return errors.InvalidArgument("question %d has no answer in submission %s", id, sub.ID)
		}
		if !oe {
			return errors.InvalidArgument("question %d is not open-ended", id)
		}
	}

	return nil
}
