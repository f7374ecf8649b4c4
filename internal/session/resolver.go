package session

import (
	"context"
	"fmt"
	"log/slog"
)

// source describes one cached credential: where it is read from, how a
// fresh one is obtained and where it is written back.
type source[T any] struct {
	name  string
	load  func() (*T, error)
	fetch func(context.Context) (*T, error)
	save  func(T) error

	// usable rejects records that cannot be used even though they were
	// found or returned. Nil accepts everything.
	usable func(*T) bool
}

func (s source[T]) ok(v *T) bool {
	return v != nil && (s.usable == nil || s.usable(v))
}

// resolve returns the cached credential unless force is set or the cache
// misses, in which case it fetches a fresh one and writes it back. A
// failed cache read counts as a miss and a failed write is only logged.
func resolve[T any](ctx context.Context, logger *slog.Logger, force bool, src source[T]) (*T, error) {
	if !force {
		cached, err := src.load()

		switch {
		case err != nil:
			logger.Warn("reading cached credential failed, requesting a new one",
				slog.String("credential", src.name),
				slog.String("error", err.Error()),
			)
		case src.ok(cached):
			logger.Debug("using cached credential", slog.String("credential", src.name))
			return cached, nil
		}
	}

	fresh, err := src.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if !src.ok(fresh) {
		return nil, fmt.Errorf("instance returned an unusable %s", src.name)
	}

	if err := src.save(*fresh); err != nil {
		logger.Warn("caching credential failed",
			slog.String("credential", src.name),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Debug("cached credential", slog.String("credential", src.name))
	}

	return fresh, nil
}
