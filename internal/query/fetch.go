package query

import (
	"context"
	"fmt"
	"time"
)

// Result is the typed form of State.
type Result[T any] struct {
	Data      T
	HasData   bool
	Err       error
	IsLoading bool
	Idle      bool
	UpdatedAt time.Time
}

// Fetch is Query with a typed fetch function and result.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(ctx context.Context) (T, error), opts ...Option) Result[T] {
	st := c.Query(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)

	res := Result[T]{
		Err:       st.Err,
		IsLoading: st.IsLoading,
		Idle:      st.Idle,
		UpdatedAt: st.UpdatedAt,
	}
	if st.HasData {
		data, ok := st.Data.(T)
		if !ok {
			res.Err = fmt.Errorf("query: cached %v holds %T", key, st.Data)
			return res
		}
		res.Data = data
		res.HasData = true
	}
	return res
}
