package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/terraincognita07/whiteboar/internal/cli"
	"github.com/terraincognita07/whiteboar/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "whiteboar",
		Short:         "WhiteBoar onboarding and checkout backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")

	loadConfig := func() (*config.Config, error) {
		return config.Load(configFile)
	}

	rootCmd.AddCommand(serveCmd(loadConfig))
	rootCmd.AddCommand(migrateCmd(loadConfig))
	rootCmd.AddCommand(cleanupSessionCmd(loadConfig))

	return rootCmd
}

func serveCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func migrateCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return cli.RunMigrateCommand(cmd.Context(), cfg.DatabaseURL, cmd.OutOrStdout())
		},
	}
}

func cleanupSessionCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		sessionID    string
		submissionID string
	)

	cmd := &cobra.Command{
		Use:   "cleanup-session",
		Short: "Delete an onboarding session with its submission and analytics",
		Long: `Delete an onboarding session together with its submission and analytics events.

Examples:
  whiteboar cleanup-session --session 4b1e3c1a-...
  whiteboar cleanup-session --submission 9f0d2b77-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("cleanup-session is disabled in %s", cfg.Env)
			}
			return cli.RunCleanupSessionCommand(cmd.Context(), cfg.DatabaseURL, sessionID, submissionID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to delete")
	cmd.Flags().StringVar(&submissionID, "submission", "", "submission id whose session should be deleted")

	return cmd
}
