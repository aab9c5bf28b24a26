package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/score"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		QuizID  string             `json:"quiz_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		StudentID string `json:"student_id"`
		Score     string `json:"score"`
	}

	SubmissionGraded struct {
		SubmissionID string        `json:"submission_id"`
		QuizID       string        `json:"quiz_id"`
		QuizTitle    string        `json:"quiz_title"`
		GradedBy     string        `json:"graded_by"`
		Summary      score.Summary `json:"summary"`
	}
)

// PublishLeaderboardUpdated sends the new board to every student on it.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := Leaderboard{
		QuizID:  l.QuizID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			StudentID: entry.StudentID,
			Score:     strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.StudentID, e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishSubmissionGraded tells the student that a grading pass changed their submission.
func (a *API) PublishSubmissionGraded(ctx context.Context, e domain.EventSubmissionGraded) error {
	s := e.Submission

	return a.publishNotification(ctx, s.StudentID, e.Name(), SubmissionGraded{
		SubmissionID: s.ID,
		QuizID:       s.QuizID,
		QuizTitle:    s.QuizTitleSnapshot,
		GradedBy:     e.GradedBy,
		Summary:      score.SummarizeSubmission(s),
	})
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
