package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess = 0
	ExitFailure = 1
)

// errDeployFailed is returned once a failed run has already been reported.
var errDeployFailed = errors.New("deployment failed")

// flags are the command line options of the root command.
type flags struct {
	envFile               string
	composeFile           string
	monitoringComposeFile string
	noColor               bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errDeployFailed) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return ExitFailure
	}
	return ExitSuccess
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "stackdeploy",
		Short:         "Build and start the web application stack on this Docker host",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return deployStack(ctx, f, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetContext(context.Background())

	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "Path to the KEY=value configuration file")
	cmd.Flags().StringVar(&f.composeFile, "compose-file", "docker-compose.yml", "Compose file describing the stack")
	cmd.Flags().StringVar(&f.monitoringComposeFile, "monitoring-compose-file", "docker-compose.monitoring.yml", "Compose file describing the monitoring stack")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable coloured output")

	return cmd
}
