// Package cli implements rundownctl, the operator command line for the
// rundown engine. It wires the same components as the server binaries.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rundown/internal/app"
	"rundown/internal/config"
	"rundown/internal/log"
)

// CLIApp is the rundownctl command tree.
type CLIApp struct {
	rootCmd *cobra.Command

	// open builds the engine; replaced in tests.
	open func(ctx context.Context, cfg *config.Config) (*app.App, error)

	jsonOutput bool
	currency   string
}

// NewCLIApp builds the command tree.
func NewCLIApp(version string) *CLIApp {
	c := &CLIApp{open: openApp}

	rootCmd := &cobra.Command{
		Use:           "rundownctl",
		Short:         "Generate and inspect contingency rundown profiles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validCurrency(c.currency)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "rundownctl version: %s\n" .Version}}`)

	rootCmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&c.currency, "currency", "EUR", "ISO currency code used to display amounts")

	rootCmd.AddCommand(
		c.generateCmd(),
		c.profilesCmd(),
		c.exportCmd(),
		c.scenarioCmd(),
		c.logCmd(),
		c.notifyCmd(),
		c.seedCmd(),
		c.migrateCmd(),
	)

	c.rootCmd = rootCmd
	return c
}

// Execute runs the command selected by args.
func (c *CLIApp) Execute(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

// SetOutput redirects command output.
func (c *CLIApp) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

// loadConfig reads the environment the same way the server does.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	// Keep logs out of the command output unless asked for.
	if strings.EqualFold(cfg.LogLevel, "info") {
		cfg.LogLevel = "warn"
	}
	logger := app.NewLogger(cfg, log.ComponentCLI)
	return app.Build(ctx, cfg, logger)
}

// withApp runs fn with a built engine and closes it afterwards.
func (c *CLIApp) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := c.open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize rundown engine: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}
