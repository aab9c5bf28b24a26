// Package store holds document collections: whole records addressed by id, replaced on every write.
// There is no optimistic concurrency control, the last writer wins.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
)

var ErrNotFound = stderrors.New("store: document not found")

// Collection is a set of documents of type T keyed by id.
type Collection[T any] interface {
	// List returns all documents ordered by id.
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	// Put inserts or replaces the whole document.
	Put(ctx context.Context, v T) error
	Delete(ctx context.Context, id string) error
}

// KeyFunc returns the id of a document.
type KeyFunc[T any] func(v T) string

type document struct {
	id   string
	body []byte
}

func encode[T any](key KeyFunc[T], v T) (document, error) {
	id := key(v)
	if id == "" {
		return document{}, fmt.Errorf("store: document has no id")
	}

	b, err := json.Marshal(v)
	if err != nil {
		return document{}, fmt.Errorf("store: marshal %s: %w", id, err)
	}

	return document{id: id, body: b}, nil
}

func decode[T any](d document) (T, error) {
	var v T
	if err := json.Unmarshal(d.body, &v); err != nil {
		return v, fmt.Errorf("store: unmarshal %s: %w", d.id, err)
	}
	return v, nil
}

func decodeAll[T any](docs []document) ([]T, error) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].id < docs[j].id })

	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, nil
}
