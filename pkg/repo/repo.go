// Package repo defines the generic Repository interface and list options.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the requested ID.
var ErrNotFound = errors.New("repo: not found")

// Repository is a generic persistence interface keyed by ID.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Upsert(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination, equality filtering and ordering for List.
type ListOpts struct {
	Offset int
	Limit  int
	// Filter matches properties by equality.
	Filter map[string]any
	// OrderBy names a property to sort by; empty keeps storage order.
	OrderBy string
	Desc    bool
}
