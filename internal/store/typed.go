package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Typed wraps a raw Store with JSON encoding for one collection of T. Both
// repository shapes (singleton profile, paginated feed) run on this layer.
type Typed[T any] struct {
	store      Store
	collection string
}

// NewTyped constructs a typed view over one collection of the raw store.
func NewTyped[T any](s Store, collection string) (*Typed[T], error) {
	if s == nil {
		return nil, errors.New("store: typed store requires a backing store")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("store: typed store requires a collection name")
	}
	return &Typed[T]{store: s, collection: collection}, nil
}

// Collection returns the collection name this view operates on.
func (t *Typed[T]) Collection() string {
	return t.collection
}

// Get decodes the record stored under key. A missing record reports ok=false
// with a nil error.
func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T

	body, ok, err := t.store.Get(ctx, t.collection, key)
	if err != nil || !ok {
		return value, false, err
	}

	if err := json.Unmarshal(body, &value); err != nil {
		return value, false, fmt.Errorf("store: decode %s/%s: %w", t.collection, key, err)
	}
	return value, true, nil
}

// Put encodes value and stores it under key, overwriting any prior record.
func (t *Typed[T]) Put(ctx context.Context, key string, value T) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", t.collection, key, err)
	}
	return t.store.Put(ctx, t.collection, key, body)
}

// Delete removes the record stored under key.
func (t *Typed[T]) Delete(ctx context.Context, key string) error {
	return t.store.Delete(ctx, t.collection, key)
}

// Clear removes every record in the collection.
func (t *Typed[T]) Clear(ctx context.Context) error {
	return t.store.ClearAll(ctx, t.collection)
}

// List decodes every record in the collection in insertion order.
func (t *Typed[T]) List(ctx context.Context) ([]T, error) {
	bodies, err := t.store.ListAll(ctx, t.collection)
	if err != nil {
		return nil, err
	}

	values := make([]T, 0, len(bodies))
	for i, body := range bodies {
		var value T
		if err := json.Unmarshal(body, &value); err != nil {
			return nil, fmt.Errorf("store: decode %s[%d]: %w", t.collection, i, err)
		}
		values = append(values, value)
	}
	return values, nil
}

// ReplaceAll clears the collection and stores values in order under keys
// produced by keyFn. Used to mirror a freshly fetched first page.
func (t *Typed[T]) ReplaceAll(ctx context.Context, values []T, keyFn func(T) string) error {
	if keyFn == nil {
		return errors.New("store: replace requires a key function")
	}

	if err := t.store.ClearAll(ctx, t.collection); err != nil {
		return err
	}

	for _, value := range values {
		if err := t.Put(ctx, keyFn(value), value); err != nil {
			return err
		}
	}
	return nil
}
