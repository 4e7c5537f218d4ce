// Package cli implements the deskmove command-line client for the queue API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/deskmove/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagJSON      bool

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking DESKMOVE_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("DESKMOVE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the deskmove CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "deskmove",
		Short: "deskmove: migrate Cloud PCs between provisioning groups",
		Long: "deskmove queues and monitors Cloud PC migrations. Each job moves a user from a\n" +
			"source group to a target group and follows the resource through deprovisioning\n" +
			"and reprovisioning.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "deskmove server URL (or DESKMOVE_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print raw JSON instead of tables")

	root.AddCommand(
		newEnqueueCmd(),
		newListCmd(),
		newStatusCmd(),
		newRemoveCmd(),
		newReorderCmd(),
		newQueueCmd(),
		newHistoryCmd(),
		newWatchCmd(),
	)

	return root
}

// printJSON writes v indented, for --json output.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRaw writes an envelope's data indented.
func printRaw(w io.Writer, resp *apiResponse) error {
	var v any
	if err := resp.decode(&v); err != nil {
		return err
	}
	return printJSON(w, v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
