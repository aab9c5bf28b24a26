package attempt

import (
	"sync"
	"time"

	"github.com/victornm/quizit/internal/domain"
)

const defaultTickInterval = time.Second

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct {
	t *time.Ticker
}

func (t stdTicker) C() <-chan time.Time { return t.t.C }

func (t stdTicker) Stop() { t.t.Stop() }

// NewTicker is a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Completion is the final state of a completed attempt.
type Completion struct {
	Answers []domain.AnswerRecord
	Score   int
	Reason  Reason
}

type RunnerConfig struct {
	// TickInterval is the wall time of one timer tick, one second unless set.
	TickInterval  time.Duration
	NewTickerFunc func(d time.Duration) Ticker
	// OnTimeout receives the completion when the timer ends the attempt. It runs on the timer goroutine.
	OnTimeout func(c Completion)
}

// Runner drives an Attempt from two sources, the student's answers and the timer,
// and serializes them. Exactly one Completion is delivered per attempt: returned by
// SubmitAnswer for the last answer, or passed to OnTimeout. Nothing is delivered after Close.
type Runner struct {
	mu     sync.Mutex
	a      *Attempt
	closed bool

	interval  time.Duration
	newTicker func(d time.Duration) Ticker
	onTimeout func(c Completion)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewRunner(a *Attempt, c RunnerConfig) *Runner {
	r := &Runner{
		a:         a,
		interval:  c.TickInterval,
		newTicker: c.NewTickerFunc,
		onTimeout: c.OnTimeout,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if r.interval <= 0 {
		r.interval = defaultTickInterval
	}

	if r.newTicker == nil {
		r.newTicker = NewTicker
	}

	if r.onTimeout == nil {
		r.onTimeout = func(Completion) {}
	}

	return r
}

// Start starts the timer if the attempt is timed. Calling it more than once has no effect.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		if _, timed := r.a.Remaining(); !timed {
			close(r.done)
			return
		}

		t := r.newTicker(r.interval)
		go r.loop(t)
	})
}

func (r *Runner) loop(t Ticker) {
	defer close(r.done)
	defer t.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-t.C():
			if r.tick() {
				return
			}
		}
	}
}

// tick reports whether the timer should stop.
func (r *Runner) tick() bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return true
	}

	if !r.a.Tick() {
		r.mu.Unlock()
		return false
	}

	r.closed = true
	c := r.completion()
	r.mu.Unlock()

	r.onTimeout(c)
	return true
}

// SubmitAnswer answers the current question. The returned Completion is non-nil when this answer completed the attempt.
// After completion or Close it does nothing.
func (r *Runner) SubmitAnswer(ans domain.Answer) (*Completion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil
	}

	completed, err := r.a.SubmitAnswer(ans)
	if err != nil || !completed {
		return nil, err
	}

	r.closed = true
	r.halt()

	c := r.completion()
	return &c, nil
}

// Close releases the timer. The attempt is abandoned if it was still in progress.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	// A runner closed before Start never starts its timer.
	r.startOnce.Do(func() { close(r.done) })
	r.halt()
}

// Done is closed once the timer has been released.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) halt() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Runner) completion() Completion {
	return Completion{
		Answers: r.a.Answers(),
		Score:   r.a.Score(),
		Reason:  r.a.Reason(),
	}
}

// Snapshot is a consistent view of the attempt at one point in time.
type Snapshot struct {
	State            State
	Reason           Reason
	QuestionIndex    int
	TotalQuestions   int
	Answered         int
	Score            int
	Question         *domain.Question
	RemainingSeconds *int
	Closed           bool
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		State:          r.a.State(),
		Reason:         r.a.Reason(),
		QuestionIndex:  r.a.QuestionIndex(),
		TotalQuestions: len(r.a.Quiz().Questions),
		Answered:       len(r.a.answers),
		Score:          r.a.Score(),
		Closed:         r.closed,
	}

	if q, ok := r.a.Current(); ok && !r.closed {
		pq := q.Public()
		s.Question = &pq
	}

	if rem, ok := r.a.Remaining(); ok {
		s.RemainingSeconds = &rem
	}

	return s
}
