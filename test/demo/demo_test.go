//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizit/internal/api"
	"github.com/victornm/quizit/internal/attempt"
	"github.com/victornm/quizit/internal/domain"
)

const (
	httpAddr = "http://localhost:8080"
	grpcAddr = "localhost:9090"
)

func TestQuiz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	checkHealth(ctx, t)

	var (
		wg       = new(sync.WaitGroup)
		teacher  = domain.Actor{ID: "teacher", Role: domain.RoleTeacher}
		students = []string{"u1", "u2", "u3"}
		answers  = map[string][]any{
			"u1": {1, 0, "because it is"},
			"u2": {1, 1, "no idea"},
			"u3": {0, 1, "42"},
		}
	)

	// Prepare Redis subscriber
	subscribeAsUser(t, makeRedis(t), wg, "u1")

	var q domain.Quiz
	do(ctx, t, teacher, http.MethodPost, "/v1/quizzes", map[string]any{
		"title":            "Demo",
		"timeLimitMinutes": 5,
		"questions": []map[string]any{
			{"type": "multiple-choice", "prompt": "1+1", "options": []string{"1", "2", "3"}, "correctOptionIndex": 1},
			{"type": "multiple-choice", "prompt": "2+2", "options": []string{"4", "5"}, "correctOptionIndex": 0},
			{"type": "open-ended", "prompt": "why?"},
		},
	}, http.StatusCreated, &q)

	// All students take the quiz concurrently
	subs := make(map[string]api.SubmissionView)
	var mu sync.Mutex

	var eg errgroup.Group
	for _, u := range students {
		eg.Go(func() error {
			student := domain.Actor{ID: u, Role: domain.RoleStudent}

			var v attempt.View
			if err := call(ctx, student, http.MethodPost, "/v1/quizzes/"+q.ID+"/attempts", nil, http.StatusCreated, &v); err != nil {
				return fmt.Errorf("student %q start attempt: %w", u, err)
			}

			var resp api.SubmitAnswerResponse
			for _, a := range answers[u] {
				if err := call(ctx, student, http.MethodPost, "/v1/attempts/"+v.AttemptID+"/answers", map[string]any{"answer": a}, http.StatusOK, &resp); err != nil {
					return fmt.Errorf("student %q submit answer: %w", u, err)
				}
			}

			if resp.Submission == nil {
				return fmt.Errorf("student %q: attempt did not complete", u)
			}

			t.Logf("Student %q submitted: score=%d percentage=%s", u, resp.Submission.Score, resp.Submission.Summary.Percentage)

			mu.Lock()
			subs[u] = *resp.Submission
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	time.Sleep(time.Second)

	// The teacher grades the open-ended answers
	for _, u := range students {
		var graded api.SubmissionView
		do(ctx, t, teacher, http.MethodPost, "/v1/submissions/"+subs[u].ID+"/grades", map[string]any{
			"grades": map[string]any{"2": map[string]any{"correct": u != "u2", "comment": "graded in demo"}},
		}, http.StatusOK, &graded)

		t.Logf("Student %q graded: score=%d percentage=%s", u, graded.Score, graded.Summary.Percentage)
	}

	time.Sleep(time.Second)

	var l domain.Leaderboard
	do(ctx, t, teacher, http.MethodGet, "/v1/quizzes/"+q.ID+"/leaderboard", nil, http.StatusOK, &l)
	t.Logf("Final leaderboard:\n%s", formatEntries(l.Entries))

	wg.Wait()
}

func checkHealth(ctx context.Context, t *testing.T) {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func do(ctx context.Context, t *testing.T, actor domain.Actor, method, path string, body any, wantStatus int, out any) {
	require.NoError(t, call(ctx, actor, method, path, body, wantStatus, out))
}

func call(ctx context.Context, actor domain.Actor, method, path string, body any, wantStatus int, out any) error {
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, httpAddr+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", actor.ID)
	req.Header.Set("X-User-Role", string(actor.Role))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%s %s: status %d, want %d", method, path, resp.StatusCode, wantStatus)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func subscribeAsUser(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, u string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, fmt.Sprintf("local:pubsub:user:%s", u))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			switch n.Event {
			case domain.EventNameLeaderboardUpdated:
				var l api.Leaderboard
				if err := json.Unmarshal(n.Data, &l); err != nil {
					t.Logf("unmarshal leaderboard: %v", err)
					continue
				}

				t.Logf("%s leaderboard:\n%s", u, formatLeaderboard(l))

			case domain.EventNameSubmissionGraded:
				var g api.SubmissionGraded
				if err := json.Unmarshal(n.Data, &g); err != nil {
					t.Logf("unmarshal graded submission: %v", err)
					continue
				}

				t.Logf("%s submission %s graded by %s: score=%d", u, g.SubmissionID, g.GradedBy, g.Summary.Score)
			}
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, pattern string) <-chan *redis.Message {
	sub := rc.PSubscribe(context.Background(), pattern)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(l api.Leaderboard) string {
	var s string
	for _, e := range l.Entries {
		s += fmt.Sprintf("%s: %s\n", e.StudentID, e.Score)
	}
	return s
}

func formatEntries(entries []domain.LeaderboardEntry) string {
	var s string
	for _, e := range entries {
		s += fmt.Sprintf("%s: %g\n", e.StudentID, e.Score)
	}
	return s
}
