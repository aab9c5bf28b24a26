package quiz

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/store"
	"github.com/victornm/quizit/internal/validate"
)

type Config struct {
	Store store.Collection[domain.Quiz]
	Now   func() time.Time
}

// Service is the quiz definition store: teachers author quizzes, everybody reads them.
type Service struct {
	store store.Collection[domain.Quiz]
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type CreateRequest struct {
	Actor            domain.Actor    `json:"-"`
	Title            string          `json:"title" validate:"notblank,max=200"`
	Description      string          `json:"description" validate:"max=2000"`
	TimeLimitMinutes int             `json:"timeLimitMinutes" validate:"min=0,max=1440"`
	Questions        []QuestionInput `json:"questions" validate:"min=1,max=200"`
}

// Create authors a new quiz. Question ids are assigned in the order the questions are given.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Quiz, error) {
	if !req.Actor.IsTeacher() {
		return nil, errors.PermissionDenied("only teachers can create quizzes")
	}

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	var d Draft
	for i, in := range req.Questions {
		if _, err := d.AddQuestion(in); err != nil {
			e := errors.Convert(err)
			return nil, errors.New(e.Code, errors.WithMessagef("question %d: %s", i+1, e.Message), errors.WithCause(err))
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	q := domain.Quiz{
		ID:               id.String(),
		Title:            strings.TrimSpace(req.Title),
		Description:      strings.TrimSpace(req.Description),
		TimeLimitMinutes: req.TimeLimitMinutes,
		Questions:        d.Questions(),
		CreatedBy:        req.Actor.ID,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.store.Put(ctx, q); err != nil {
		return nil, errors.Unavailable(err, "save quiz %q", q.Title)
	}

	slog.InfoContext(ctx, "quiz: created",
		"quiz_id", q.ID,
		"teacher", q.CreatedBy,
		"questions", len(q.Questions),
	)

	return &q, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	q, err := s.store.Get(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("quiz not found: id=%s", id)
	}
	if err != nil {
		return nil, errors.Unavailable(err, "get quiz %s", id)
	}

	return &q, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Quiz, error) {
	qs, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Unavailable(err, "list quizzes")
	}

	return qs, nil
}

type DeleteRequest struct {
	Actor  domain.Actor
	QuizID string
}

// Delete removes a quiz. Only the teacher who created it may delete it.
// Submissions of the quiz are kept, they carry their own snapshots.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	if !req.Actor.IsTeacher() {
		return errors.PermissionDenied("only teachers can delete quizzes")
	}

	q, err := s.Get(ctx, req.QuizID)
	if err != nil {
		return err
	}

	if q.CreatedBy != req.Actor.ID {
		return errors.PermissionDenied("quiz %s belongs to another teacher", q.ID)
	}

	if err := s.store.Delete(ctx, q.ID); err != nil {
		return errors.Unavailable(err, "delete quiz %s", q.ID)
	}

	slog.InfoContext(ctx, "quiz: deleted", "quiz_id", q.ID, "teacher", req.Actor.ID)

	return nil
}
