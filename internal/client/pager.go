package client

import "context"

// Pager is implemented by every continuation iterator in this package.
type Pager[T any] interface {
	Done() bool
	Next(ctx context.Context) ([]T, error)
}

// All drains it and returns every item in order.
func All[T any](ctx context.Context, it Pager[T]) ([]T, error) {
	var out []T
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, page...)
	}
	return out, nil
}
