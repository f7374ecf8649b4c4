package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/spf13/cobra"
)

func newHomeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show your home timeline",
		Args:  cobra.NoArgs,
		RunE: withLogin(opts, func(ctx context.Context, r *runtime, _ []string) error {
			statuses, err := r.sess.HomeTimeline(ctx)
			if err != nil {
				return err
			}

			return r.out.statuses(statuses)
		}),
	}
}

func newPublicCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "public",
		Short: "Show the public timeline (no login needed)",
		Args:  cobra.NoArgs,
		RunE: withRuntime(opts, func(ctx context.Context, r *runtime, _ []string) error {
			statuses, err := r.sess.PublicTimeline(ctx)
			if err != nil {
				return err
			}

			return r.out.statuses(statuses)
		}),
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search for accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: withLogin(opts, func(ctx context.Context, r *runtime, args []string) error {
			accounts, err := r.sess.SearchUsers(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			return r.out.accounts(accounts)
		}),
	}
}

func newLookupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <username> [host]",
		Short: "Find an account by username, on this instance or another",
		Example: `  fedi-client lookup @Gargron
  fedi-client lookup alice other.social`,
		Args: cobra.RangeArgs(1, 2),
		RunE: withLogin(opts, func(ctx context.Context, r *runtime, args []string) error {
			host := ""
			if len(args) == 2 {
				host = args[1]
			}

			acct, err := r.sess.UserByUsername(ctx, args[0], host)
			if err != nil {
				return err
			}

			if acct == nil {
				r.out.empty("No matching account")
				return nil
			}

			return r.out.account(acct)
		}),
	}
}

func newPostCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Publish a status",
		Args:  cobra.MinimumNArgs(1),
		RunE: withLogin(opts, func(ctx context.Context, r *runtime, args []string) error {
			st, err := r.sess.PostStatus(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			if r.out.format == formatYAML {
				return r.out.yaml(st)
			}

			r.out.success("Posted %s", st.URL)

			return nil
		}),
	}
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <delay> <text>",
		Short: "Publish a status after an ISO 8601 delay",
		Example: `  fedi-client schedule PT30M "half an hour from now"
  fedi-client schedule P1DT2H "tomorrow, a bit later"`,
		Args: cobra.MinimumNArgs(2),
		RunE: withLogin(opts, func(ctx context.Context, r *runtime, args []string) error {
			sched, err := r.sess.ScheduleStatusAfterDelay(ctx, strings.Join(args[1:], " "), args[0])
			if err != nil {
				return err
			}

			if r.out.format == formatYAML {
				return r.out.yaml(sched)
			}

			r.out.success("Scheduled %s for %s", sched.ID, formatTime(sched.ScheduledAt))

			return nil
		}),
	}
}

func newStreamCmd(opts *rootOptions) *cobra.Command {
	var events []string

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Follow your user stream until interrupted",
		Args:  cobra.NoArgs,
		RunE: withLogin(opts, func(ctx context.Context, r *runtime, _ []string) error {
			want := make(map[string]bool, len(events))
			for _, e := range events {
				want[e] = true
			}

			r.log.Info("streaming", slog.String("username", r.sess.Username()))

			err := r.sess.Stream(ctx, func(ev models.StreamEvent) error {
				if len(want) > 0 && !want[ev.Event] {
					return nil
				}

				return r.out.event(ev)
			})
			if err != nil {
				return fmt.Errorf("streaming: %w", err)
			}

			return nil
		}),
	}

	cmd.Flags().StringSliceVar(&events, "event", nil, "Only show these event types (update, notification, delete, ...)")

	return cmd
}
