package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments a client with tracing, metrics and a slog hook.
// name tells the clients apart in the logs, e.g. "store" or "pubsub".
func MonitorRedis(name string, r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{name: name})
	return nil
}

// redisLog logs dials at info and commands at debug, failed commands at warn.
type redisLog struct {
	name string
}

func (l redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.WarnContext(ctx, "redis: dial failed", "client", l.name, "addr", addr, "error", err)
			return conn, err
		}

		slog.InfoContext(ctx, "redis: dialed", "client", l.name, "network", network, "addr", addr)
		return conn, nil
	}
}

func (l redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		l.log(ctx, cmd.FullName(), start, err)
		return err
	}
}

func (l redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		l.log(ctx, fmt.Sprintf("pipeline(%d)", len(cmds)), start, err)
		return err
	}
}

func (l redisLog) log(ctx context.Context, cmd string, start time.Time, err error) {
	// redis.Nil is a miss, not a failure.
	if err != nil && err != redis.Nil {
		slog.WarnContext(ctx, "redis: command failed", "client", l.name, "cmd", cmd, "error", err)
		return
	}

	slog.DebugContext(ctx, "redis: command", "client", l.name, "cmd", cmd, "duration", time.Since(start))
}
