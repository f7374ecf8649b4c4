package session

import (
	"context"
	"fmt"
	"log/slog"

	apperr "github.com/alexjbarnes/fedi-client/internal/errors"
)

// execute runs a single gateway call. A failure is logged with the
// operation, its result type and the HTTP status, and returned as a
// *RemoteFailure wrapping the cause. When ctx itself is done the error
// passes through as is; a transport timeout is still a remote failure.
func execute[T any](ctx context.Context, logger *slog.Logger, op string, call func(context.Context) (T, error)) (T, error) {
	res, err := call(ctx)
	if err == nil {
		return res, nil
	}

	var zero T

	if ctx.Err() != nil {
		return zero, err
	}

	result := fmt.Sprintf("%T", zero)
	status := apperr.StatusCode(err)

	logger.Error("remote call failed",
		slog.String("op", op),
		slog.String("result", result),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	return zero, &apperr.RemoteFailure{
		Op:         op,
		Result:     result,
		StatusCode: status,
		Err:        err,
	}
}
