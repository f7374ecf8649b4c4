package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/alexjbarnes/fedi-client/internal/session"
	"github.com/spf13/cobra"
)

func newRulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show the instance rules",
		Args:  cobra.NoArgs,
		RunE: withRuntime(opts, func(ctx context.Context, r *runtime, _ []string) error {
			rules, err := r.sess.GetRules(ctx)
			if err != nil {
				return err
			}

			return r.out.lines("rules", splitLines(rules))
		}),
	}
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var (
		agree   bool
		reason  string
		noLogin bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the instance",
		Long: `Create an account for FEDI_USERNAME with FEDI_EMAIL and FEDI_PASSWORD.

The instance rules are always shown first. Pass --agree to accept them
without a prompt.`,
		Args: cobra.NoArgs,
		RunE: withRuntime(opts, func(ctx context.Context, r *runtime, _ []string) error {
			if err := r.cfg.RequireCredentials(); err != nil {
				return err
			}

			rules, err := r.sess.GetRules(ctx)
			if err != nil {
				return err
			}

			if err := r.out.lines("rules", splitLines(rules)); err != nil {
				return err
			}

			if !agree {
				agree = confirm(r, "Do you accept these rules?")
			}

			err = r.sess.Register(ctx, session.RegisterParams{
				Username:  r.cfg.Username,
				Email:     r.cfg.Email,
				Password:  r.cfg.Password,
				Agreement: agree,
				Locale:    r.cfg.Locale,
				Reason:    reason,
				AutoLogin: !noLogin,
			})
			if err != nil {
				return err
			}

			r.out.success("Registered %s on %s", r.cfg.Username, r.cfg.Hostname)

			return nil
		}),
	}

	cmd.Flags().BoolVar(&agree, "agree", false, "Accept the instance rules without prompting")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason for joining, for instances that review sign-ups")
	cmd.Flags().BoolVar(&noLogin, "no-login", false, "Do not log in after registering")

	return cmd
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and cache the access token",
		Args:  cobra.NoArgs,
		RunE: withRuntime(opts, func(ctx context.Context, r *runtime, _ []string) error {
			if err := r.login(ctx); err != nil {
				return err
			}

			r.out.success("Logged in as %s on %s", r.sess.Username(), r.cfg.Hostname)

			return nil
		}),
	}
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and drop the cached access token",
		Args:  cobra.NoArgs,
		RunE: withRuntime(opts, func(_ context.Context, r *runtime, _ []string) error {
			if err := r.cfg.RequireUsername(); err != nil {
				return err
			}

			r.sess.Logout()

			app, err := r.sess.RequireApplication("logout")
			if err != nil {
				return err
			}

			if err := r.store.DeleteAccessToken(app.ClientID, r.cfg.Username); err != nil {
				return fmt.Errorf("deleting cached token: %w", err)
			}

			r.out.success("Logged out %s", r.cfg.Username)

			return nil
		}),
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: withLogin(opts, func(ctx context.Context, r *runtime, _ []string) error {
			me, err := r.sess.Me(ctx)
			if err != nil {
				return err
			}

			return r.out.account(me)
		}),
	}
}

func newVerifyAppCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-app",
		Short: "Check that the instance accepts the application credentials",
		Args:  cobra.NoArgs,
		RunE: withRuntime(opts, func(ctx context.Context, r *runtime, _ []string) error {
			if err := r.sess.AuthorizeApplication(ctx); err != nil {
				return err
			}

			app, err := r.sess.VerifyAppCredentials(ctx)
			if err != nil {
				return err
			}

			return r.out.application(app)
		}),
	}
}

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List users with a cached access token on this instance",
		Args:  cobra.NoArgs,
		RunE: withRuntime(opts, func(_ context.Context, r *runtime, _ []string) error {
			app, err := r.sess.RequireApplication("list accounts")
			if err != nil {
				return err
			}

			users, err := r.store.AccessTokenUsers(app.ClientID)
			if err != nil {
				return fmt.Errorf("listing cached accounts: %w", err)
			}

			return r.out.lines("accounts", users)
		}),
	}
}

func newForgetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <username>...",
		Short: "Drop cached access tokens for the given users",
		Args:  cobra.MinimumNArgs(1),
		RunE: withRuntime(opts, func(_ context.Context, r *runtime, args []string) error {
			app, err := r.sess.RequireApplication("forget")
			if err != nil {
				return err
			}

			for _, username := range args {
				if err := r.store.DeleteAccessToken(app.ClientID, username); err != nil {
					return fmt.Errorf("forgetting %s: %w", username, err)
				}
			}

			r.out.success("Forgot %d account(s)", len(args))

			return nil
		}),
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

// confirm asks a yes/no question on the command's input.
func confirm(r *runtime, question string) bool {
	fmt.Fprintf(r.out.w, "%s [y/N] ", question)

	scanner := bufio.NewScanner(r.in)
	if !scanner.Scan() {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))

	return answer == "y" || answer == "yes"
}
