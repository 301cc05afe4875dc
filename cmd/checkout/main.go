package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"provision-saga/internal/common/configs"
)

var Version = "dev"

type globalFlags struct {
	coordinator string
	sessionFile string
	sessionName string
}

func main() {
	_ = configs.LoadDotEnv()

	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "checkout",
		Short:         "Order a game server and pay for it with QRIS",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.coordinator, "coordinator", envOr("COORDINATOR_URL", configs.DefaultCoordinator), "Coordinator base URL")
	rootCmd.PersistentFlags().StringVar(&flags.sessionFile, "session-file", envOr("CHECKOUT_SESSION_FILE", "checkout.db"), "File holding the pending order")
	rootCmd.PersistentFlags().StringVar(&flags.sessionName, "session", "default", "Name of the pending order inside the session file")

	rootCmd.AddCommand(quoteCmd(flags))
	rootCmd.AddCommand(payCmd(flags))
	rootCmd.AddCommand(resumeCmd(flags))
	rootCmd.AddCommand(cancelCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
