package submission

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/event"
	"github.com/victornm/quizit/internal/store"
	"github.com/victornm/quizit/internal/telemetry"
)

type Config struct {
	Store    store.Collection[domain.Submission]
	EventBus *event.Bus
	Now      func() time.Time
}

// Recorder turns completed attempts into submissions.
type Recorder struct {
	store store.Collection[domain.Submission]
	eb    *event.Bus
	now   func() time.Time
}

func NewRecorder(c Config) *Recorder {
	r := &Recorder{
		store: c.Store,
		eb:    c.EventBus,
		now:   c.Now,
	}

	if r.now == nil {
		r.now = time.Now
	}

	return r
}

type RecordRequest struct {
	Quiz      domain.Quiz
	StudentID string
	Answers   []domain.AnswerRecord
	Score     int
	TimedOut  bool
}

// Record persists a new ungraded submission. It must be called once per completed attempt.
// A store failure is returned as CodeUnavailable and is not retried, the attempt is lost.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (*domain.Submission, error) {
	if req.Score < 0 || req.Score > len(req.Answers) {
		return nil, errors.InvalidArgument("score %d out of range for %d answers", req.Score, len(req.Answers))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	answers := req.Answers
	if answers == nil {
		answers = []domain.AnswerRecord{}
	}

	sub := domain.Submission{
		ID:                id.String(),
		QuizID:            req.Quiz.ID,
		QuizTitleSnapshot: req.Quiz.Title,
		StudentID:         req.StudentID,
		Answers:           answers,
		TotalQuestions:    len(req.Quiz.Questions),
		Score:             req.Score,
		SubmittedAt:       r.now().UTC(),
		Graded:            false,
	}

	if err := r.store.Put(ctx, sub); err != nil {
		return nil, errors.Unavailable(err, "record submission: quiz=%s student=%s", sub.QuizID, sub.StudentID)
	}

	telemetry.SubmissionsRecorded.Inc()

	slog.InfoContext(ctx, "submission: recorded",
		"submission_id", sub.ID,
		"quiz_id", sub.QuizID,
		"student_id", sub.StudentID,
		"score", sub.Score,
		"answers", len(sub.Answers),
		"timed_out", req.TimedOut,
	)

	r.eb.Publish(ctx, domain.EventSubmissionRecorded{
		Submission: sub.Clone(),
		TimedOut:   req.TimedOut,
	})

	return &sub, nil
}

// Filter selects submissions, empty fields match everything.
type Filter struct {
	StudentID string
	QuizID    string
}

func (f Filter) match(s domain.Submission) bool {
	return (f.StudentID == "" || f.StudentID == s.StudentID) &&
		(f.QuizID == "" || f.QuizID == s.QuizID)
}

// List returns the matching submissions in creation order.
func (r *Recorder) List(ctx context.Context, f Filter) ([]domain.Submission, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, errors.Unavailable(err, "list submissions")
	}

	out := all[:0]
	for _, s := range all {
		if f.match(s) {
			out = append(out, s)
		}
	}

	return out, nil
}

func (r *Recorder) Get(ctx context.Context, id string) (*domain.Submission, error) {
	s, err := r.store.Get(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("submission not found: id=%s", id)
	}
	if err != nil {
		return nil, errors.Unavailable(err, "get submission %s", id)
	}

	return &s, nil
}

// Put replaces a whole submission, the last writer wins.
func (r *Recorder) Put(ctx context.Context, s domain.Submission) error {
	if err := r.store.Put(ctx, s); err != nil {
		return errors.Unavailable(err, "save submission %s", s.ID)
	}
	return nil
}
