package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps a collection in a single hash, one field per document.
type Redis[T any] struct {
	key   KeyFunc[T]
	redis redis.UniversalClient
	hash  string
}

func NewRedis[T any](r redis.UniversalClient, prefix, collection string, key KeyFunc[T]) *Redis[T] {
	return &Redis[T]{
		key:   key,
		redis: r,
		hash:  fmt.Sprintf("%s:%s", prefix, collection),
	}
}

func (s *Redis[T]) List(ctx context.Context) ([]T, error) {
	res, err := s.redis.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.hash, err)
	}

	docs := make([]document, 0, len(res))
	for id, body := range res {
		docs = append(docs, document{id: id, body: []byte(body)})
	}

	return decodeAll[T](docs)
}

func (s *Redis[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T

	body, err := s.redis.HGet(ctx, s.hash, id).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("hget %s %s: %w", s.hash, id, err)
	}

	return decode[T](document{id: id, body: body})
}

func (s *Redis[T]) Put(ctx context.Context, v T) error {
	d, err := encode(s.key, v)
	if err != nil {
		return err
	}

	if err := s.redis.HSet(ctx, s.hash, d.id, d.body).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", s.hash, d.id, err)
	}

	return nil
}

func (s *Redis[T]) Delete(ctx context.Context, id string) error {
	if err := s.redis.HDel(ctx, s.hash, id).Err(); err != nil {
		return fmt.Errorf("hdel %s %s: %w", s.hash, id, err)
	}

	return nil
}
