package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizit/internal/api"
	"github.com/victornm/quizit/internal/attempt"
	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/event"
	"github.com/victornm/quizit/internal/grading"
	"github.com/victornm/quizit/internal/leaderboard"
	"github.com/victornm/quizit/internal/quiz"
	"github.com/victornm/quizit/internal/retake"
	"github.com/victornm/quizit/internal/store"
	"github.com/victornm/quizit/internal/submission"
	"github.com/victornm/quizit/internal/telemetry"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		// Driver is one of memory, redis or postgres. It holds quizzes and submissions.
		Driver string
	}

	Redis struct {
		Store       RedisConfig
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	Postgres struct {
		Store PostgresConfig
	}

	Retake struct {
		// Code lets a student retake a quiz. Empty disables retakes.
		Code string
	}

	Attempt struct {
		// Tick is the wall time of one second of an attempt timer.
		Tick time.Duration
	}
}

// DefaultConfig is the config before the file and the environment are applied.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Store.Driver = StoreMemory
	c.Redis.Store.Prefix = "quizit"
	c.Redis.Leaderboard.Prefix = "quizit"
	c.Redis.Pubsub.Prefix = "quizit"
	c.Retake.Code = "123"
	c.Attempt.Tick = time.Second
	return c
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if len(c.Redis.Store.Addrs) == 0 {
			errs = append(errs, errors.New("redis.store.addrs is required for the redis store"))
		}
	case StorePostgres:
		if c.Postgres.Store.Addr == "" || c.Postgres.Store.Name == "" {
			errs = append(errs, errors.New("postgres.store.addr and postgres.store.name are required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if len(c.Redis.Leaderboard.Addrs) == 0 {
		errs = append(errs, errors.New("redis.leaderboard.addrs is required"))
	}

	if len(c.Redis.Pubsub.Addrs) == 0 {
		errs = append(errs, errors.New("redis.pubsub.addrs is required"))
	}

	return errors.Join(errs...)
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			store       redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			store *pgxpool.Pool
		}
	}

	service struct {
		quiz        *quiz.Service
		submission  *submission.Recorder
		attempt     *attempt.Service
		grading     *grading.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if s.c.Store.Driver == StorePostgres {
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, rc RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(name, r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	if s.c.Store.Driver == StoreRedis {
		s.infra.redis.store, err = connect("store", s.c.Redis.Store)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(pc PostgresConfig) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}

		if err := store.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.store, err = connect(s.c.Postgres.Store)
	if err != nil {
		return fmt.Errorf("postgres: store: %w", err)
	}

	return nil
}

func quizKey(q domain.Quiz) string { return q.ID }

func submissionKey(sub domain.Submission) string { return sub.ID }

func (s *Server) initService() error {
	var (
		quizzes     store.Collection[domain.Quiz]
		submissions store.Collection[domain.Submission]
	)

	switch s.c.Store.Driver {
	case StoreMemory:
		quizzes = store.NewMemory(quizKey)
		submissions = store.NewMemory(submissionKey)
	case StoreRedis:
		quizzes = store.NewRedis(s.infra.redis.store, s.c.Redis.Store.Prefix, "quizzes", quizKey)
		submissions = store.NewRedis(s.infra.redis.store, s.c.Redis.Store.Prefix, "submissions", submissionKey)
	case StorePostgres:
		quizzes = store.NewPostgres(s.infra.postgres.store, "quizzes", quizKey)
		submissions = store.NewPostgres(s.infra.postgres.store, "submissions", submissionKey)
	default:
		return fmt.Errorf("unknown store driver %q", s.c.Store.Driver)
	}

	slog.Info("server: store selected", "driver", s.c.Store.Driver)

	s.service.quiz = quiz.NewService(quiz.Config{
		Store: quizzes,
	})

	s.service.submission = submission.NewRecorder(submission.Config{
		Store:    submissions,
		EventBus: s.eb,
	})

	s.service.attempt = attempt.NewService(attempt.Config{
		Quiz:         s.service.quiz,
		Submission:   s.service.submission,
		Gate:         retake.NewGate(s.c.Retake.Code),
		TickInterval: s.c.Attempt.Tick,
	})

	s.service.grading = grading.NewService(grading.Config{
		Submission: s.service.submission,
		EventBus:   s.eb,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:   s.eb,
		Submission: s.service.submission,
		Redis:      s.infra.redis.leaderboard,
		Prefix:     s.c.Redis.Leaderboard.Prefix,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())
	e.GET("/healthz", s.healthz)

	api.New(api.Config{
		EventBus:     s.eb,
		Quiz:         s.service.quiz,
		Attempt:      s.service.attempt,
		Submission:   s.service.submission,
		Grading:      s.service.grading,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}).Register(e)

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.infra.redis.leaderboard.Ping(c.Request.Context()).Err(); err != nil {
		slog.WarnContext(c.Request.Context(), "server: health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// Shutdown stops serving, drops the attempts in progress and waits for event handlers.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.attempt.Close()
	s.eb.Stop()

	if s.infra.postgres.store != nil {
		s.infra.postgres.store.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
