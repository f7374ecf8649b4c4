package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alexjbarnes/fedi-client/internal/config"
	"github.com/alexjbarnes/fedi-client/internal/logging"
	"github.com/alexjbarnes/fedi-client/internal/session"
	"github.com/alexjbarnes/fedi-client/internal/state"
	"github.com/alexjbarnes/fedi-client/mastodon"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// runtime is everything a command needs: configuration, the credential
// cache and a session built on top of both.
type runtime struct {
	cfg   *config.Config
	log   *slog.Logger
	store *state.State
	sess  *session.Session
	out   printer
	in    io.Reader
}

// newConnector returns a Connector whose gateways share one limiter, so
// anonymous and authorized calls are paced together.
func newConnector(cfg *config.Config) session.Connector {
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	return func(accessToken string) session.Gateway {
		opts := []mastodon.Option{
			mastodon.WithLimiter(limiter),
			mastodon.WithTimeout(cfg.RequestTimeout),
			mastodon.WithAccessToken(accessToken),
		}

		if cfg.APIURL != "" {
			opts = append(opts, mastodon.WithBaseURL(cfg.APIURL))
		}

		return mastodon.NewClient(cfg.Hostname, opts...)
	}
}

func openRuntime(cmd *cobra.Command, opts *rootOptions) (*runtime, error) {
	out, err := newPrinter(cmd.OutOrStdout(), opts.output)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.force {
		cfg.ForceRequests = true
	}

	logger := logging.NewLoggerTo(cmd.ErrOrStderr(), cfg.Environment)

	store, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	sess, err := session.New(cmd.Context(), session.Config{
		Hostname:      cfg.Hostname,
		Store:         store,
		Connect:       newConnector(cfg),
		Logger:        logger,
		ForceRequests: cfg.ForceRequests,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		cfg:   cfg,
		log:   logger,
		store: store,
		sess:  sess,
		out:   out,
		in:    cmd.InOrStdin(),
	}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}

// login logs the configured user in. A cached token is used when present,
// so FEDI_PASSWORD is only needed the first time.
func (r *runtime) login(ctx context.Context) error {
	if err := r.cfg.RequireUsername(); err != nil {
		return err
	}

	return r.sess.Login(ctx, r.cfg.Username, r.cfg.Password)
}

// withRuntime adapts a command body to cobra's RunE, opening and closing
// the runtime around it.
func withRuntime(opts *rootOptions, fn func(ctx context.Context, r *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := openRuntime(cmd, opts)
		if err != nil {
			return err
		}
		defer r.Close()

		return fn(cmd.Context(), r, args)
	}
}

// withLogin is withRuntime for commands that act as the configured user.
func withLogin(opts *rootOptions, fn func(ctx context.Context, r *runtime, args []string) error) func(*cobra.Command, []string) error {
	return withRuntime(opts, func(ctx context.Context, r *runtime, args []string) error {
		if err := r.login(ctx); err != nil {
			return err
		}

		return fn(ctx, r, args)
	})
}
