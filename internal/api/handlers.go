package api

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizit/internal/attempt"
	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/grading"
	"github.com/victornm/quizit/internal/leaderboard"
	"github.com/victornm/quizit/internal/quiz"
	"github.com/victornm/quizit/internal/score"
	"github.com/victornm/quizit/internal/submission"
)

// bindJSON decodes the request body into v. An empty body is allowed when optional is set.
func bindJSON(c *gin.Context, v any, optional bool) bool {
	err := c.ShouldBindJSON(v)
	if err == nil || (optional && stderrors.Is(err, io.EOF)) {
		return true
	}

	abort(c, errors.InvalidArgument("invalid request body: %v", err))
	return false
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req quiz.CreateRequest
	if !bindJSON(c, &req, false) {
		return
	}
	req.Actor = actorFrom(c)

	q, err := a.qs.Create(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, q)
}

type ListQuizzesResponse struct {
	Quizzes []domain.Quiz `json:"quizzes"`
}

// ListQuizzes shows students the quizzes without their answers.
func (a *API) ListQuizzes(c *gin.Context) {
	qs, err := a.qs.List(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	if !actorFrom(c).IsTeacher() {
		for i := range qs {
			qs[i] = qs[i].Public()
		}
	}

	c.JSON(http.StatusOK, ListQuizzesResponse{Quizzes: qs})
}

func (a *API) GetQuiz(c *gin.Context) {
	q, err := a.qs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	if !actorFrom(c).IsTeacher() {
		*q = q.Public()
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) DeleteQuiz(c *gin.Context) {
	err := a.qs.Delete(c.Request.Context(), quiz.DeleteRequest{
		Actor:  actorFrom(c),
		QuizID: c.Param("id"),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	q, err := a.qs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		QuizID: q.ID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

type StartAttemptRequest struct {
	RetakeCode string `json:"retakeCode"`
}

func (a *API) StartAttempt(c *gin.Context) {
	var req StartAttemptRequest
	if !bindJSON(c, &req, true) {
		return
	}

	v, err := a.as.Start(c.Request.Context(), attempt.StartRequest{
		Actor:      actorFrom(c),
		QuizID:     c.Param("id"),
		RetakeCode: req.RetakeCode,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

func (a *API) GetAttempt(c *gin.Context) {
	v, err := a.as.Get(c.Request.Context(), attempt.GetRequest{
		Actor:     actorFrom(c),
		AttemptID: c.Param("id"),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

type SubmitAnswerRequest struct {
	Answer *domain.Answer `json:"answer"`
}

type SubmitAnswerResponse struct {
	Attempt    attempt.View    `json:"attempt"`
	Submission *SubmissionView `json:"submission,omitempty"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if !bindJSON(c, &req, false) {
		return
	}

	if req.Answer == nil {
		abort(c, errors.InvalidArgument("answer is required"))
		return
	}

	resp, err := a.as.SubmitAnswer(c.Request.Context(), attempt.SubmitAnswerRequest{
		Actor:     actorFrom(c),
		AttemptID: c.Param("id"),
		Answer:    *req.Answer,
	})
	if err != nil {
		abort(c, err)
		return
	}

	out := SubmitAnswerResponse{Attempt: resp.View}
	if resp.Submission != nil {
		v := newSubmissionView(*resp.Submission)
		out.Submission = &v
	}

	c.JSON(http.StatusOK, out)
}

func (a *API) AbandonAttempt(c *gin.Context) {
	err := a.as.Abandon(c.Request.Context(), attempt.AbandonRequest{
		Actor:     actorFrom(c),
		AttemptID: c.Param("id"),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SubmissionView is a submission with its score summary.
type SubmissionView struct {
	domain.Submission
	Summary score.Summary `json:"summary"`
}

func newSubmissionView(s domain.Submission) SubmissionView {
	return SubmissionView{
		Submission: s,
		Summary:    score.SummarizeSubmission(s),
	}
}

type ListSubmissionsResponse struct {
	Submissions []SubmissionView `json:"submissions"`
}

// ListSubmissions returns every submission to teachers and only their own to students.
// Teachers can filter with the quizId and studentId query parameters.
func (a *API) ListSubmissions(c *gin.Context) {
	actor := actorFrom(c)

	f := submission.Filter{
		QuizID:    c.Query("quizId"),
		StudentID: c.Query("studentId"),
	}
	if !actor.IsTeacher() {
		f.StudentID = actor.ID
	}

	subs, err := a.sr.List(c.Request.Context(), f)
	if err != nil {
		abort(c, err)
		return
	}

	resp := ListSubmissionsResponse{Submissions: make([]SubmissionView, 0, len(subs))}
	for _, s := range subs {
		resp.Submissions = append(resp.Submissions, newSubmissionView(s))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetSubmission(c *gin.Context) {
	actor := actorFrom(c)

	s, err := a.sr.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	if !actor.IsTeacher() && s.StudentID != actor.ID {
		abort(c, errors.PermissionDenied("submission %s belongs to another student", s.ID))
		return
	}

	c.JSON(http.StatusOK, newSubmissionView(*s))
}

type GradeSubmissionRequest struct {
	Grades map[int]grading.Grade `json:"grades"`
}

func (a *API) GradeSubmission(c *gin.Context) {
	var req GradeSubmissionRequest
	if !bindJSON(c, &req, false) {
		return
	}

	s, err := a.gs.Grade(c.Request.Context(), grading.GradeRequest{
		Actor:        actorFrom(c),
		SubmissionID: c.Param("id"),
		Grades:       req.Grades,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newSubmissionView(*s))
}
