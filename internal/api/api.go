package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc/codes"

	"github.com/victornm/quizit/internal/attempt"
	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/event"
	"github.com/victornm/quizit/internal/grading"
	"github.com/victornm/quizit/internal/leaderboard"
	"github.com/victornm/quizit/internal/quiz"
	"github.com/victornm/quizit/internal/submission"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	actorKey = "actor"
)

type Config struct {
	EventBus     *event.Bus
	Quiz         *quiz.Service
	Attempt      *attempt.Service
	Submission   *submission.Recorder
	Grading      *grading.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qs *quiz.Service
	as *attempt.Service
	sr *submission.Recorder
	gs *grading.Service
	ls *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		qs:     c.Quiz,
		as:     c.Attempt,
		sr:     c.Submission,
		gs:     c.Grading,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	c.EventBus.Subscribe(domain.EventNameSubmissionGraded, func(ctx context.Context, e event.Event) error {
		return a.PublishSubmissionGraded(ctx, e.(domain.EventSubmissionGraded))
	})

	return a
}

// Register mounts the HTTP API on r.
func (a *API) Register(r gin.IRouter) {
	v1 := r.Group("/v1", authenticate)

	v1.POST("/quizzes", a.CreateQuiz)
	v1.GET("/quizzes", a.ListQuizzes)
	v1.GET("/quizzes/:id", a.GetQuiz)
	v1.DELETE("/quizzes/:id", a.DeleteQuiz)
	v1.GET("/quizzes/:id/leaderboard", a.GetLeaderboard)

	v1.POST("/quizzes/:id/attempts", a.StartAttempt)
	v1.GET("/attempts/:id", a.GetAttempt)
	v1.POST("/attempts/:id/answers", a.SubmitAnswer)
	v1.DELETE("/attempts/:id", a.AbandonAttempt)

	v1.GET("/submissions", a.ListSubmissions)
	v1.GET("/submissions/:id", a.GetSubmission)
	v1.POST("/submissions/:id/grades", a.GradeSubmission)
}

// authenticate reads the actor set by the identity proxy in front of the service.
func authenticate(c *gin.Context) {
	actor := domain.Actor{
		ID:   c.GetHeader(headerUserID),
		Role: domain.Role(c.GetHeader(headerUserRole)),
	}

	if actor.ID == "" || !actor.Role.Valid() {
		abort(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("%s and %s (teacher or student) are required", headerUserID, headerUserRole),
		))
		return
	}

	c.Set(actorKey, actor)
	c.Next()
}

func actorFrom(c *gin.Context) domain.Actor {
	return c.MustGet(actorKey).(domain.Actor)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)

	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), errorResponse{
		Code:    codes.Code(e.Code).String(),
		Message: e.Message,
	})
}
