package attempt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizit/internal/attempt"
	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/event"
	"github.com/victornm/quizit/internal/quiz"
	"github.com/victornm/quizit/internal/retake"
	"github.com/victornm/quizit/internal/store"
	"github.com/victornm/quizit/internal/submission"
)

var (
	teacher  = domain.Actor{ID: "teacher", Role: domain.RoleTeacher}
	alice    = domain.Actor{ID: "alice", Role: domain.RoleStudent}
	bob      = domain.Actor{ID: "bob", Role: domain.RoleStudent}
	mixedReq = func(limit int) quiz.CreateRequest {
		return quiz.CreateRequest{
			Actor:            teacher,
			Title:            "Mixed",
			TimeLimitMinutes: limit,
			Questions: []quiz.QuestionInput{
				{Type: domain.QuestionTypeMultipleChoice, Prompt: "1+1", Options: []string{"1", "2", "3"}, CorrectOptionIndex: 1},
				{Type: domain.QuestionTypeMultipleChoice, Prompt: "2+2", Options: []string{"4", "5"}, CorrectOptionIndex: 0},
				{Type: domain.QuestionTypeOpenEnded, Prompt: "why?"},
			},
		}
	}
)

type fixture struct {
	svc         *attempt.Service
	quizzes     *quiz.Service
	submissions *submission.Recorder
	ticker      *fakeTicker
}

type fixtureOptions struct {
	submissions store.Collection[domain.Submission]
	idle        time.Duration
	now         func() time.Time
}

func makeFixture(t *testing.T) *fixture {
	return makeFixtureWith(t, fixtureOptions{})
}

func makeFixtureWith(t *testing.T, o fixtureOptions) *fixture {
	f := &fixture{ticker: newFakeTicker()}

	if o.submissions == nil {
		o.submissions = store.NewMemory(func(s domain.Submission) string { return s.ID })
	}

	f.quizzes = quiz.NewService(quiz.Config{
		Store: store.NewMemory(func(q domain.Quiz) string { return q.ID }),
	})
	f.submissions = submission.NewRecorder(submission.Config{
		Store:    o.submissions,
		EventBus: event.NewBus(),
	})
	f.svc = attempt.NewService(attempt.Config{
		Quiz:          f.quizzes,
		Submission:    f.submissions,
		Gate:          retake.NewGate("123"),
		NewTickerFunc: f.ticker.new,
		IdleTimeout:   o.idle,
		Now:           o.now,
	})
	t.Cleanup(f.svc.Close)

	return f
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// blockingStore holds every Put until release is closed.
type blockingStore struct {
	store.Collection[domain.Submission]
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		Collection: store.NewMemory(func(s domain.Submission) string { return s.ID }),
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
}

func (b *blockingStore) Put(ctx context.Context, s domain.Submission) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}

	<-b.release
	return b.Collection.Put(ctx, s)
}

func (f *fixture) createQuiz(t *testing.T, limit int) *domain.Quiz {
	q, err := f.quizzes.Create(context.Background(), mixedReq(limit))
	require.NoError(t, err)
	return q
}

func (f *fixture) answerAll(t *testing.T, actor domain.Actor, attemptID string) *domain.Submission {
	ctx := context.Background()
	answers := []domain.Answer{domain.OptionAnswer(1), domain.OptionAnswer(1), domain.TextAnswer("the answer")}

	var resp *attempt.SubmitAnswerResponse
	for _, a := range answers {
		var err error
		resp, err = f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: actor, AttemptID: attemptID, Answer: a})
		require.NoError(t, err)
	}

	require.NotNil(t, resp.Submission)
	return resp.Submission
}

func TestService_CompleteAttempt(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	q := f.createQuiz(t, 0)

	v, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StateInProgress, v.State)
	assert.Equal(t, 3, v.TotalQuestions)
	require.NotNil(t, v.Question)
	assert.Nil(t, v.Question.CorrectOptionIndex)

	resp, err := f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: alice, AttemptID: v.AttemptID, Answer: domain.OptionAnswer(1)})
	require.NoError(t, err)
	assert.Nil(t, resp.Submission)
	assert.Equal(t, 1, resp.View.QuestionIndex)

	_, err = f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: alice, AttemptID: v.AttemptID, Answer: domain.TextAnswer("5")})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	resp, err = f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: alice, AttemptID: v.AttemptID, Answer: domain.OptionAnswer(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.View.QuestionIndex, "a rejected answer should not advance the attempt")

	resp, err = f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: alice, AttemptID: v.AttemptID, Answer: domain.TextAnswer("the answer")})
	require.NoError(t, err)
	require.NotNil(t, resp.Submission)

	sub := resp.Submission
	assert.Equal(t, 1, sub.Score, "only the first multiple-choice answer is correct")
	assert.False(t, sub.Graded)
	assert.Len(t, sub.Answers, 3)
	assert.Equal(t, attempt.StateCompleted, resp.View.State)
	assert.Equal(t, attempt.ReasonFinished, resp.View.Reason)
	assert.Equal(t, sub.ID, resp.View.SubmissionID)

	resp, err = f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: alice, AttemptID: v.AttemptID, Answer: domain.OptionAnswer(0)})
	require.NoError(t, err, "answering a completed attempt should be a no-op")
	assert.Nil(t, resp.Submission)

	subs, err := f.submissions.List(ctx, submission.Filter{StudentID: alice.ID})
	require.NoError(t, err)
	assert.Len(t, subs, 1, "exactly one submission per completed attempt")
}

func TestService_Timeout(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	q := f.createQuiz(t, 1)

	v, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	require.NoError(t, err)
	require.NotNil(t, v.RemainingSeconds)
	assert.Equal(t, 60, *v.RemainingSeconds)

	f.ticker.tickN(60)

	require.Eventually(t, func() bool {
		v, err := f.svc.Get(ctx, attempt.GetRequest{Actor: alice, AttemptID: v.AttemptID})
		return err == nil && v.SubmissionID != ""
	}, time.Second, 5*time.Millisecond)

	subs, err := f.submissions.List(ctx, submission.Filter{StudentID: alice.ID, QuizID: q.ID})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].Answers)
	assert.Equal(t, 0, subs[0].Score)
	assert.Equal(t, 3, subs[0].TotalQuestions)

	v, err = f.svc.Get(ctx, attempt.GetRequest{Actor: alice, AttemptID: v.AttemptID})
	require.NoError(t, err)
	assert.Equal(t, attempt.ReasonTimeout, v.Reason)
	assert.Nil(t, v.Question)
}

func TestService_Retake(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	q := f.createQuiz(t, 0)

	v, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	require.NoError(t, err)
	first := f.answerAll(t, alice, v.AttemptID)

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied), "retake without a code should be denied")

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID, RetakeCode: "999"})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied), "retake with a wrong code should be denied")

	subs, err := f.submissions.List(ctx, submission.Filter{StudentID: alice.ID, QuizID: q.ID})
	require.NoError(t, err)
	require.Len(t, subs, 1, "a denied retake should not create a submission")

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: bob, QuizID: q.ID})
	require.NoError(t, err, "another student's first attempt should be allowed")

	v, err = f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID, RetakeCode: "123"})
	require.NoError(t, err)
	second := f.answerAll(t, alice, v.AttemptID)

	assert.NotEqual(t, first.ID, second.ID)

	subs, err = f.submissions.List(ctx, submission.Filter{StudentID: alice.ID, QuizID: q.ID})
	require.NoError(t, err)
	require.Len(t, subs, 2, "both submissions should coexist")
	assert.Equal(t, first.ID, subs[0].ID)
	assert.Equal(t, second.ID, subs[1].ID)
}

func TestService_RetakeWhileInProgress(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	q := f.createQuiz(t, 0)

	v, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied), "a second attempt while the first is running needs the code")

	f.answerAll(t, alice, v.AttemptID)

	subs, err := f.submissions.List(ctx, submission.Filter{StudentID: alice.ID, QuizID: q.ID})
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: bob, QuizID: q.ID})
	require.NoError(t, err, "another student's attempt should not count")

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: bob, QuizID: q.ID, RetakeCode: "123"})
	assert.NoError(t, err, "a parallel attempt with the code should be allowed")
}

func TestService_ConcurrentStarts(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	q := f.createQuiz(t, 0)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		denied  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				started++
			} else if errors.Is(err, errors.CodePermissionDenied) {
				denied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, n-1, denied)
}

func TestService_IdleAttempt(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := makeFixtureWith(t, fixtureOptions{idle: time.Hour, now: c.now})
	untimed := f.createQuiz(t, 0)

	v, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: untimed.ID})
	require.NoError(t, err)

	c.advance(50 * time.Minute)
	_, err = f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: alice, AttemptID: v.AttemptID, Answer: domain.OptionAnswer(1)})
	require.NoError(t, err)

	c.advance(50 * time.Minute)
	_, err = f.svc.Get(ctx, attempt.GetRequest{Actor: alice, AttemptID: v.AttemptID})
	require.NoError(t, err, "answering should keep the attempt alive")

	c.advance(61 * time.Minute)
	_, err = f.svc.Get(ctx, attempt.GetRequest{Actor: alice, AttemptID: v.AttemptID})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "an idle attempt should be dropped")

	subs, err := f.submissions.List(ctx, submission.Filter{StudentID: alice.ID})
	require.NoError(t, err)
	assert.Empty(t, subs, "a dropped attempt should not be recorded")

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: untimed.ID})
	assert.NoError(t, err, "a dropped attempt should not count as taken")

	timed := f.createQuiz(t, 1)
	v, err = f.svc.Start(ctx, attempt.StartRequest{Actor: bob, QuizID: timed.ID})
	require.NoError(t, err)

	c.advance(2 * time.Hour)
	_, err = f.svc.Get(ctx, attempt.GetRequest{Actor: bob, AttemptID: v.AttemptID})
	assert.NoError(t, err, "a timed attempt is left to its timer")
}

func TestService_CloseWaitsForTimeout(t *testing.T) {
	ctx := context.Background()
	bs := newBlockingStore()
	f := makeFixtureWith(t, fixtureOptions{submissions: bs})
	q := f.createQuiz(t, 1)

	_, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	require.NoError(t, err)

	f.ticker.tickN(60)

	select {
	case <-bs.entered:
	case <-time.After(time.Second):
		t.Fatal("the timed out attempt should be recorded")
	}

	closed := make(chan struct{})
	go func() {
		f.svc.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close should wait for the submission being recorded")
	case <-time.After(50 * time.Millisecond):
	}

	close(bs.release)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close should return once the submission is recorded")
	}

	subs, err := f.submissions.List(ctx, submission.Filter{StudentID: alice.ID, QuizID: q.ID})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestService_Abandon(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	q := f.createQuiz(t, 1)

	v, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.Abandon(ctx, attempt.AbandonRequest{Actor: alice, AttemptID: v.AttemptID}))

	require.Eventually(t, f.ticker.isStopped, time.Second, 5*time.Millisecond, "abandoning should release the timer")

	_, err = f.svc.Get(ctx, attempt.GetRequest{Actor: alice, AttemptID: v.AttemptID})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	subs, err := f.submissions.List(ctx, submission.Filter{StudentID: alice.ID})
	require.NoError(t, err)
	assert.Empty(t, subs, "an abandoned attempt should not be recorded")

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	assert.NoError(t, err, "an abandoned attempt should not count as taken")
}

func TestService_Access(t *testing.T) {
	ctx := context.Background()
	f := makeFixture(t)
	q := f.createQuiz(t, 0)

	_, err := f.svc.Start(ctx, attempt.StartRequest{Actor: teacher, QuizID: q.ID})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied), "teachers should not take quizzes")

	_, err = f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: "missing"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	v, err := f.svc.Start(ctx, attempt.StartRequest{Actor: alice, QuizID: q.ID})
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, attempt.SubmitAnswerRequest{Actor: bob, AttemptID: v.AttemptID, Answer: domain.OptionAnswer(1)})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied), "another student should not answer the attempt")

	err = f.svc.Abandon(ctx, attempt.AbandonRequest{Actor: bob, AttemptID: v.AttemptID})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	_, err = f.svc.Get(ctx, attempt.GetRequest{Actor: alice, AttemptID: "missing"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
