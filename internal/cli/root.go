// Package cli provides the command-line interface for fsi-client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/neptunelabs/fsi-client/internal/abort"
	"github.com/neptunelabs/fsi-client/internal/logging"
	"github.com/neptunelabs/fsi-client/internal/version"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	configFile      string
	server          string
	user            string
	password        string
	verbose         bool
	continueOnError bool
	yes             bool
	skipExisting    bool
	lang            string
	metricsFile     string
	plain           bool
	quiet           bool
}

var (
	flags globalFlags

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// ExitCodeAborted is returned by the binary when a run was cancelled.
const ExitCodeAborted = 130

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fsi-client",
		Short: "Command line client for FSI Server",
		Long: `fsi-client ` + version.Version + ` - Built: ` + version.BuildTime + `
Browse, transfer and manage images on an FSI Server.

Every command logs in, runs its batch and logs out again. Press Ctrl+C to
abort a running batch; files already transferred are kept.

Configuration is read from ` + "`config.ini`" + ` in the user config directory,
FSI_* environment variables (also from a .env file) and flags, in
increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if flags.verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Configuration file path")
	pf.StringVarP(&flags.server, "server", "s", "", "FSI Server URL, e.g. https://fsi.example.com")
	pf.StringVarP(&flags.user, "user", "u", "", "User name")
	pf.StringVar(&flags.password, "password", "", "Password (prompted for when missing)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	pf.BoolVar(&flags.continueOnError, "continue-on-error", false, "Record errors and go on with the next entry")
	pf.BoolVarP(&flags.yes, "yes", "y", false, "Overwrite existing targets without asking")
	pf.BoolVar(&flags.skipExisting, "skip-existing", false, "Skip existing targets without asking")
	pf.StringVar(&flags.lang, "lang", "", "Message language (en, de)")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after each run")
	pf.BoolVar(&flags.plain, "plain", false, "Show a single plain progress bar")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "Hide progress output")
	rootCmd.MarkFlagsMutuallyExclusive("yes", "skip-existing")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived %v, aborting. Please wait for cleanup to complete.\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)

	signal.Stop(sigChan)
	close(sigChan)
	cancelFunc()

	switch {
	case err == nil:
		return 0
	case abort.IsAborted(err) || errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Aborted.")
		return ExitCodeAborted
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newCopyCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newReimportCmd())
	rootCmd.AddCommand(newMetaCmd())
	rootCmd.AddCommand(newServiceCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
