package attempt_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizit/internal/attempt"
	"github.com/victornm/quizit/internal/domain"
)

func TestRunner_Timeout(t *testing.T) {
	ft := newFakeTicker()
	completions := make(chan attempt.Completion, 1)

	a, err := attempt.New(mixedQuiz(1))
	require.NoError(t, err)

	r := attempt.NewRunner(a, attempt.RunnerConfig{
		NewTickerFunc: ft.new,
		OnTimeout:     func(c attempt.Completion) { completions <- c },
	})
	r.Start()

	c, err := r.SubmitAnswer(domain.OptionAnswer(1))
	require.NoError(t, err)
	require.Nil(t, c)

	ft.tickN(60)

	select {
	case c := <-completions:
		assert.Equal(t, attempt.ReasonTimeout, c.Reason)
		assert.Len(t, c.Answers, 1)
		assert.Equal(t, 1, c.Score)
	case <-time.After(time.Second):
		t.Fatal("timeout should be delivered")
	}

	waitDone(t, r)
	assert.True(t, ft.isStopped(), "the ticker should be released after timeout")

	c, err = r.SubmitAnswer(domain.OptionAnswer(0))
	assert.NoError(t, err)
	assert.Nil(t, c, "answers after timeout should be ignored")

	s := r.Snapshot()
	assert.Equal(t, attempt.StateCompleted, s.State)
	assert.Equal(t, 0, *s.RemainingSeconds)
	assert.Nil(t, s.Question)
}

func TestRunner_FinishStopsTimer(t *testing.T) {
	ft := newFakeTicker()
	timeouts := 0
	var mu sync.Mutex

	a, err := attempt.New(mixedQuiz(1))
	require.NoError(t, err)

	r := attempt.NewRunner(a, attempt.RunnerConfig{
		NewTickerFunc: ft.new,
		OnTimeout: func(attempt.Completion) {
			mu.Lock()
			timeouts++
			mu.Unlock()
		},
	})
	r.Start()

	ft.tickN(10)

	_, err = r.SubmitAnswer(domain.OptionAnswer(1))
	require.NoError(t, err)
	_, err = r.SubmitAnswer(domain.OptionAnswer(1))
	require.NoError(t, err)
	c, err := r.SubmitAnswer(domain.TextAnswer("the answer"))
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, attempt.ReasonFinished, c.Reason)
	assert.Equal(t, 1, c.Score)
	assert.Len(t, c.Answers, 3)

	waitDone(t, r)
	assert.True(t, ft.isStopped(), "finishing should release the ticker")

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, timeouts, "a finished attempt should never time out")
}

func TestRunner_CloseStopsTimer(t *testing.T) {
	ft := newFakeTicker()
	timedOut := make(chan struct{}, 1)

	a, err := attempt.New(mixedQuiz(1))
	require.NoError(t, err)

	r := attempt.NewRunner(a, attempt.RunnerConfig{
		NewTickerFunc: ft.new,
		OnTimeout:     func(attempt.Completion) { timedOut <- struct{}{} },
	})
	r.Start()
	ft.tickN(5)

	r.Close()
	waitDone(t, r)
	assert.True(t, ft.isStopped(), "closing should release the ticker")

	select {
	case <-timedOut:
		t.Fatal("a closed attempt should never complete")
	case <-time.After(50 * time.Millisecond):
	}

	c, err := r.SubmitAnswer(domain.OptionAnswer(1))
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestRunner_CloseBeforeStart(t *testing.T) {
	ft := newFakeTicker()

	a, err := attempt.New(mixedQuiz(1))
	require.NoError(t, err)

	r := attempt.NewRunner(a, attempt.RunnerConfig{NewTickerFunc: ft.new})
	r.Close()
	r.Start()

	waitDone(t, r)
	assert.False(t, ft.isCreated(), "a closed runner should never create a ticker")
}

func TestRunner_UntimedHasNoTicker(t *testing.T) {
	ft := newFakeTicker()

	a, err := attempt.New(mixedQuiz(0))
	require.NoError(t, err)

	r := attempt.NewRunner(a, attempt.RunnerConfig{NewTickerFunc: ft.new})
	r.Start()

	waitDone(t, r)
	assert.False(t, ft.isCreated())
	assert.Nil(t, r.Snapshot().RemainingSeconds)
}

func TestRunner_Snapshot(t *testing.T) {
	a, err := attempt.New(mixedQuiz(0))
	require.NoError(t, err)

	r := attempt.NewRunner(a, attempt.RunnerConfig{})
	r.Start()
	defer r.Close()

	_, err = r.SubmitAnswer(domain.OptionAnswer(1))
	require.NoError(t, err)

	s := r.Snapshot()
	assert.Equal(t, attempt.StateInProgress, s.State)
	assert.Equal(t, 1, s.QuestionIndex)
	assert.Equal(t, 3, s.TotalQuestions)
	assert.Equal(t, 1, s.Answered)
	require.NotNil(t, s.Question)
	assert.Equal(t, 1, s.Question.ID)
	assert.Nil(t, s.Question.CorrectOptionIndex, "the correct answer should not be shown to the student")
}

// fakeTicker delivers ticks only when the test asks for them.
type fakeTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	created bool
	stopped bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{c: make(chan time.Time)}
}

func (f *fakeTicker) new(time.Duration) attempt.Ticker {
	f.mu.Lock()
	f.created = true
	f.mu.Unlock()
	return f
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// tickN blocks until the runner has received n ticks.
func (f *fakeTicker) tickN(n int) {
	for i := 0; i < n; i++ {
		f.c <- time.Now()
	}
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeTicker) isCreated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func waitDone(t *testing.T, r *attempt.Runner) {
	t.Helper()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("runner should release its timer")
	}
}
