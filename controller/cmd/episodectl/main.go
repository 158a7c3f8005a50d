package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frothly/episode-mesh/controller/internal/client"
)

var (
	controllerURL string
	timeout       time.Duration

	rootCmd = &cobra.Command{
		Use:          "episodectl",
		Short:        "Drive an incident episode through the break controller",
		SilenceUsage: true,
	}

	breakCmd = &cobra.Command{
		Use:   "break",
		Short: "Move every dependent to the legacy version and record a deployment",
		Args:  cobra.NoArgs,
		RunE:  runScenario("break"),
	}
	fixCmd = &cobra.Command{
		Use:   "fix",
		Short: "Move every dependent back to the nominal version and record a rollback",
		Args:  cobra.NoArgs,
		RunE:  runScenario("fix"),
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show each dependent's version and the episode status",
		Args:  cobra.NoArgs,
		RunE:  runScenario("status"),
	}
)

func init() {
	defaultURL := os.Getenv("CONTROLLER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:5010"
	}
	rootCmd.PersistentFlags().StringVar(&controllerURL, "controller", defaultURL, "break controller base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.AddCommand(breakCmd, fixCmd, statusCmd)
}

func runScenario(scenario string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		c, err := client.New(client.Config{BaseURL: controllerURL, Timeout: timeout})
		if err != nil {
			return err
		}
		out, err := c.Run(cmd.Context(), scenario)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
