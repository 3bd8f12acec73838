package ctxutil

import (
	"context"
	"fmt"
)

// Cause returns the context's error together with its cause as one error.
// `ctx.Err()` predates causes and doesn't report them; `context.Cause(ctx)`
// reports the cause without saying it is one. This returns:
//
//   - nil, if the context is not done
//   - `ctx.Err()` if there is no separate cause
//   - an error wrapping both the [context.Canceled]/[context.DeadlineExceeded]
//     error and the cause otherwise, so `errors.Is` works against either
func Cause(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if cause == err {
		return err
	}
	return fmt.Errorf("%w, cause: %w", err, cause)
}
