package attempt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/quiz"
	"github.com/victornm/quizit/internal/retake"
	"github.com/victornm/quizit/internal/submission"
	"github.com/victornm/quizit/internal/telemetry"
)

const (
	defaultRetention   = 10 * time.Minute
	defaultIdleTimeout = time.Hour
	recordTimeout      = 10 * time.Second
)

type Config struct {
	Quiz       *quiz.Service
	Submission *submission.Recorder
	Gate       *retake.Gate

	TickInterval  time.Duration
	NewTickerFunc func(d time.Duration) Ticker
	// Retention is how long a completed attempt stays visible, so a student whose attempt
	// timed out can still find its submission.
	Retention time.Duration
	// IdleTimeout drops an untimed attempt nobody touched for that long. Timed attempts end on their own.
	IdleTimeout time.Duration
	Now         func() time.Time
}

// Service holds the attempts in progress. Each attempt is owned by one student.
type Service struct {
	quiz       *quiz.Service
	submission *submission.Recorder
	gate       *retake.Gate

	tick      time.Duration
	newTicker func(d time.Duration) Ticker
	retention time.Duration
	idle      time.Duration
	now       func() time.Time

	mu   sync.Mutex
	live map[string]*live
}

type live struct {
	id        string
	studentID string
	quiz      domain.Quiz
	runner    *Runner

	mu           sync.Mutex
	submissionID string
	recordErr    error
	completedAt  time.Time
	lastActive   time.Time
}

func (l *live) touch(now time.Time) {
	l.mu.Lock()
	l.lastActive = now
	l.mu.Unlock()
}

func NewService(c Config) *Service {
	s := &Service{
		quiz:       c.Quiz,
		submission: c.Submission,
		gate:       c.Gate,
		tick:       c.TickInterval,
		newTicker:  c.NewTickerFunc,
		retention:  c.Retention,
		idle:       c.IdleTimeout,
		now:        c.Now,
		live:       make(map[string]*live),
	}

	if s.retention <= 0 {
		s.retention = defaultRetention
	}

	if s.idle <= 0 {
		s.idle = defaultIdleTimeout
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// View is what the student sees of an attempt.
type View struct {
	AttemptID        string           `json:"attemptId"`
	QuizID           string           `json:"quizId"`
	QuizTitle        string           `json:"quizTitle"`
	State            State            `json:"state"`
	Reason           Reason           `json:"reason,omitempty"`
	QuestionIndex    int              `json:"questionIndex"`
	TotalQuestions   int              `json:"totalQuestions"`
	Answered         int              `json:"answered"`
	Question         *domain.Question `json:"question,omitempty"`
	RemainingSeconds *int             `json:"remainingSeconds,omitempty"`
	SubmissionID     string           `json:"submissionId,omitempty"`
	// Lost is set when the attempt completed but its submission could not be saved.
	Lost bool `json:"lost,omitempty"`
}

type StartRequest struct {
	Actor      domain.Actor
	QuizID     string
	RetakeCode string
}

// Start begins a new attempt. A student who already submitted the quiz needs the retake code.
func (s *Service) Start(ctx context.Context, req StartRequest) (*View, error) {
	if !req.Actor.IsStudent() {
		return nil, errors.PermissionDenied("only students can take quizzes")
	}

	q, err := s.quiz.Get(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	existing, err := s.submission.List(ctx, submission.Filter{StudentID: req.Actor.ID, QuizID: q.ID})
	if err != nil {
		return nil, err
	}

	a, err := New(*q)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	l := &live{
		id:         id.String(),
		studentID:  req.Actor.ID,
		quiz:       *q,
		lastActive: s.now(),
	}

	// The timer outlives the request that started it.
	bg := context.WithoutCancel(ctx)
	l.runner = NewRunner(a, RunnerConfig{
		TickInterval:  s.tick,
		NewTickerFunc: s.newTicker,
		OnTimeout: func(c Completion) {
			ctx, cancel := context.WithTimeout(bg, recordTimeout)
			defer cancel()

			if _, err := s.finish(ctx, l, c); err != nil {
				slog.ErrorContext(ctx, "attempt: record timed out attempt failed",
					"attempt_id", l.id,
					"quiz_id", l.quiz.ID,
					"student_id", l.studentID,
					"error", err,
				)
			}
		},
	})

	// An attempt still live for the same quiz counts as taken, its submission may not be stored yet.
	// The check and the insert share the lock so concurrent starts cannot both pass.
	s.mu.Lock()
	s.sweep()
	prior := len(existing) > 0 || s.hasLive(req.Actor.ID, q.ID)
	if err := s.gate.CheckPrior(q.ID, prior, req.RetakeCode); err != nil {
		s.mu.Unlock()
		telemetry.RetakesDenied.Inc()
		slog.InfoContext(ctx, "attempt: retake denied", "quiz_id", q.ID, "student_id", req.Actor.ID)
		return nil, err
	}
	s.live[l.id] = l
	s.mu.Unlock()

	l.runner.Start()

	telemetry.AttemptsStarted.Inc()
	slog.InfoContext(ctx, "attempt: started",
		"attempt_id", l.id,
		"quiz_id", q.ID,
		"student_id", req.Actor.ID,
		"retake", prior,
	)

	return s.view(l), nil
}

type SubmitAnswerRequest struct {
	Actor     domain.Actor
	AttemptID string
	Answer    domain.Answer
}

type SubmitAnswerResponse struct {
	View View
	// Submission is set when this answer completed the attempt.
	Submission *domain.Submission
}

// SubmitAnswer answers the current question of the attempt. Answering a completed attempt does nothing.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	l, err := s.lookup(req.Actor, req.AttemptID)
	if err != nil {
		return nil, err
	}

	l.touch(s.now())

	c, err := l.runner.SubmitAnswer(req.Answer)
	if err != nil {
		return nil, err
	}

	resp := &SubmitAnswerResponse{}
	if c != nil {
		sub, err := s.finish(ctx, l, *c)
		if err != nil {
			return nil, err
		}
		resp.Submission = sub
	}

	resp.View = *s.view(l)
	return resp, nil
}

type GetRequest struct {
	Actor     domain.Actor
	AttemptID string
}

func (s *Service) Get(_ context.Context, req GetRequest) (*View, error) {
	l, err := s.lookup(req.Actor, req.AttemptID)
	if err != nil {
		return nil, err
	}

	return s.view(l), nil
}

type AbandonRequest struct {
	Actor     domain.Actor
	AttemptID string
}

// Abandon discards the attempt without a submission and releases its timer.
func (s *Service) Abandon(ctx context.Context, req AbandonRequest) error {
	l, err := s.lookup(req.Actor, req.AttemptID)
	if err != nil {
		return err
	}

	l.runner.Close()

	s.mu.Lock()
	delete(s.live, l.id)
	s.mu.Unlock()

	if snap := l.runner.Snapshot(); snap.State == StateInProgress {
		telemetry.AttemptsCompleted.WithLabelValues("abandoned").Inc()
		slog.InfoContext(ctx, "attempt: abandoned", "attempt_id", l.id, "answered", snap.Answered)
	}

	return nil
}

// Close releases every timer and waits for timeouts already being recorded. Attempts in progress are lost.
func (s *Service) Close() {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.live))
	for id, l := range s.live {
		runners = append(runners, l.runner)
		delete(s.live, id)
	}
	s.mu.Unlock()

	for _, r := range runners {
		r.Close()
	}

	for _, r := range runners {
		<-r.Done()
	}
}

// finish records the submission of a completed attempt. It is called once per attempt.
func (s *Service) finish(ctx context.Context, l *live, c Completion) (*domain.Submission, error) {
	telemetry.AttemptsCompleted.WithLabelValues(string(c.Reason)).Inc()

	sub, err := s.submission.Record(ctx, submission.RecordRequest{
		Quiz:      l.quiz,
		StudentID: l.studentID,
		Answers:   c.Answers,
		Score:     c.Score,
		TimedOut:  c.Reason == ReasonTimeout,
	})

	l.mu.Lock()
	l.completedAt = s.now()
	if err != nil {
		l.recordErr = err
	} else {
		l.submissionID = sub.ID
	}
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "attempt: completed",
		"attempt_id", l.id,
		"submission_id", sub.ID,
		"reason", c.Reason,
	)

	return sub, nil
}

func (s *Service) lookup(actor domain.Actor, id string) (*live, error) {
	s.mu.Lock()
	s.sweep()
	l, ok := s.live[id]
	s.mu.Unlock()

	if !ok {
		return nil, errors.NotFound("attempt not found: id=%s", id)
	}

	if !actor.IsStudent() || actor.ID != l.studentID {
		return nil, errors.PermissionDenied("attempt %s belongs to another student", id)
	}

	return l, nil
}

// hasLive reports whether the student has an attempt on the quiz that is running or was recorded.
// A lost attempt does not count. s.mu must be held.
func (s *Service) hasLive(studentID, quizID string) bool {
	for _, l := range s.live {
		if l.studentID != studentID || l.quiz.ID != quizID {
			continue
		}

		l.mu.Lock()
		lost := l.recordErr != nil
		l.mu.Unlock()

		if !lost {
			return true
		}
	}
	return false
}

// sweep forgets completed attempts older than the retention and drops untimed attempts
// idle for longer than the idle timeout. s.mu must be held.
func (s *Service) sweep() {
	now := s.now()
	for id, l := range s.live {
		l.mu.Lock()
		completed := !l.completedAt.IsZero()
		expired := completed && now.Sub(l.completedAt) > s.retention
		idle := !completed && now.Sub(l.lastActive) > s.idle
		l.mu.Unlock()

		if expired {
			delete(s.live, id)
			continue
		}

		if !idle || l.quiz.TimeLimit() > 0 {
			continue
		}

		l.runner.Close()
		delete(s.live, id)

		telemetry.AttemptsCompleted.WithLabelValues("abandoned").Inc()
		slog.Info("attempt: dropped idle attempt",
			"attempt_id", l.id,
			"quiz_id", l.quiz.ID,
			"student_id", l.studentID,
		)
	}
}

func (s *Service) view(l *live) *View {
	snap := l.runner.Snapshot()

	v := &View{
		AttemptID:        l.id,
		QuizID:           l.quiz.ID,
		QuizTitle:        l.quiz.Title,
		State:            snap.State,
		Reason:           snap.Reason,
		QuestionIndex:    snap.QuestionIndex,
		TotalQuestions:   snap.TotalQuestions,
		Answered:         snap.Answered,
		Question:         snap.Question,
		RemainingSeconds: snap.RemainingSeconds,
	}

	l.mu.Lock()
	v.SubmissionID = l.submissionID
	v.Lost = l.recordErr != nil
	l.mu.Unlock()

	return v
}
