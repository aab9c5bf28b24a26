package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
	"github.com/victornm/quizit/internal/event"
	"github.com/victornm/quizit/internal/submission"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus   *event.Bus
	Submission *submission.Recorder
	Redis      redis.UniversalClient
	Prefix     string
}

// Service keeps a board per quiz with the best score of each student.
type Service struct {
	eb         *event.Bus
	submission *submission.Recorder
	redis      redis.UniversalClient
	prefix     string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:         c.EventBus,
		submission: c.Submission,
		redis:      c.Redis,
		prefix:     c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameSubmissionRecorded, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventSubmissionRecorded).Submission)
	})

	s.eb.Subscribe(domain.EventNameSubmissionGraded, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventSubmissionGraded).Submission)
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID string
}

// GetLeaderboard returns the board of a quiz. A quiz nobody submitted has an empty board.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.QuizID), 0, -1).Result()
	if err != nil {
		return nil, errors.Unavailable(err, "get leaderboard: quiz=%s", req.QuizID)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			StudentID: z.Member.(string),
			Score:     z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// UpdateLeaderboard sets the student's entry to the best score over all their submissions of the quiz.
// A regrade can lower it.
func (s *Service) UpdateLeaderboard(ctx context.Context, sub domain.Submission) error {
	subs, err := s.submission.List(ctx, submission.Filter{StudentID: sub.StudentID, QuizID: sub.QuizID})
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}

	// The stored submissions are authoritative, the event copy only stands in when the store lags.
	best, found := 0, false
	for _, other := range subs {
		best = max(best, other.Score)
		found = found || other.ID == sub.ID
	}
	if !found {
		best = max(best, sub.Score)
	}

	if err := s.redis.ZAdd(ctx, s.getLeaderboardKey(sub.QuizID), redis.Z{
		Score:  float64(best),
		Member: sub.StudentID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, sub)
}

// schedulePublishLeaderboard publishes the board at most once per publish interval for each quiz,
// so a burst of submissions does not flood subscribers.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, sub domain.Submission) error {
	// SETNX keeps several instances from publishing the same board, though not perfectly.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(sub.QuizID), sub.SubmittedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, sub.QuizID)
}

func (s *Service) publishLeaderboard(ctx context.Context, quizID string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%s: %w", quizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey(quizID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, quizID)
}

func (s *Service) getLeaderboardTimeKey(quizID string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, quizID)
}
