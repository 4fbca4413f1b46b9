// Command klaviyo-extract pulls a reporting dataset for one date range out
// of a Klaviyo account.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitAborted = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if client.IsAuth(err) {
			return exitAborted
		}
		return exitError
	}
	return exitOK
}

type rootFlags struct {
	configFile string
	envFiles   []string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "klaviyo-extract",
		Short:         "Rate-limited Klaviyo reporting extractor",
		Long:          `klaviyo-extract collects revenue, campaign, flow, list and form statistics for a date range while staying inside the account's API rate limits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "YAML config file")
	pf.StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment is read")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("log-pretty", false, "human-readable console logs")
	pf.String("log-file", "", "also write JSON logs to this rotated file")

	cmd.AddCommand(newExtractCmd(flags), newTiersCmd())
	return cmd
}
