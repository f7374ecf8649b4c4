package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	apperr "github.com/alexjbarnes/fedi-client/internal/errors"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (bad config, store failure).
	ExitCodeError = 1
	// ExitCodeInvalidInput indicates input rejected before any network call.
	ExitCodeInvalidInput = 2
	// ExitCodeNotReady indicates a command run out of sequence, e.g. while
	// not logged in or without an initialized application.
	ExitCodeNotReady = 3
	// ExitCodeRemote indicates the instance rejected or failed a request.
	ExitCodeRemote = 4
)

var version = "dev"

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	version = v
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	output string
	force  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "fedi-client",
		Short: "Talk to a Mastodon-compatible instance from the terminal",
		Long: `fedi-client registers itself with a Mastodon-compatible instance, logs
users in with the password grant, and caches every credential it obtains
so later runs need no network round trip to authenticate.

Configuration comes from the environment (or a .env file):
  FEDI_HOSTNAME   instance hostname (required)
  FEDI_USERNAME   account to act as
  FEDI_PASSWORD   password, only needed when no token is cached`,
		Version: version,
		// Errors are printed once by Execute.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate(`{{printf "fedi-client version %s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&opts.output, "output", "o", formatTable, "Output format (table, yaml)")
	root.PersistentFlags().BoolVar(&opts.force, "force", false, "Ignore cached credentials and request fresh ones")

	root.AddCommand(
		newRulesCmd(opts),
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newVerifyAppCmd(opts),
		newAccountsCmd(opts),
		newForgetCmd(opts),
		newHomeCmd(opts),
		newPublicCmd(opts),
		newSearchCmd(opts),
		newLookupCmd(opts),
		newPostCmd(opts),
		newScheduleCmd(opts),
		newStreamCmd(opts),
	)

	return root
}

// Execute runs the CLI and exits with a code derived from the error type.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", text.FgRed.Sprint("error:"), err)
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the exit code based on the error type.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case apperr.IsValidation(err):
		return ExitCodeInvalidInput
	case apperr.IsState(err):
		return ExitCodeNotReady
	case apperr.IsRemote(err):
		return ExitCodeRemote
	default:
		return ExitCodeError
	}
}
