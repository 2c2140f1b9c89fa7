package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/target/namescreen/config"
	"github.com/target/namescreen/internal/bootstrap"
)

// adminApp carries the state shared by every subcommand.
type adminApp struct {
	logger *slog.Logger
	cfg    config.AppConfig
	// loadConfig is replaced in tests.
	loadConfig func() (config.AppConfig, error)
}

func main() {
	logger := bootstrap.InitLogger(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &adminApp{logger: logger, loadConfig: bootstrap.LoadConfig}
	if err := newRootCmd(app).ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(app *adminApp) *cobra.Command {
	root := &cobra.Command{
		Use:           "screener-admin",
		Short:         "Operate the name screening worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			app.cfg = cfg
			app.logger = bootstrap.InitLogger(cfg.Observability.SlogLevel())
			return nil
		},
	}

	root.AddCommand(
		newMigrateCmd(app),
		newSubmitCmd(app),
		newStatusCmd(app),
		newResultsCmd(app),
	)
	return root
}
