package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/namescreen/config"
	"github.com/target/namescreen/internal/bootstrap"
	"github.com/target/namescreen/internal/migrate"
)

const defaultMigrationTimeout = 5 * time.Minute

var errNotPostgres = errors.New("migrations apply to the postgres store only")

func newMigrateCmd(app *adminApp) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Args:  cobra.NoArgs,
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.cfg.Store.Backend != config.StoreBackendPostgres {
				return errNotPostgres
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := bootstrap.ConnectDB(app.databaseConfig())
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer db.Close()

			if err := bootstrap.RunMigrations(ctx, db, app.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			app.logger.InfoContext(ctx, "migrations completed successfully")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Args:  cobra.NoArgs,
		Short: "List embedded migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.cfg.Store.Backend != config.StoreBackendPostgres {
				return errNotPostgres
			}
			db, err := bootstrap.ConnectDB(app.databaseConfig())
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer db.Close()

			migrations, err := migrate.Status(cmd.Context(), db)
			if err != nil {
				return err
			}
			return printMigrations(cmd.OutOrStdout(), migrations)
		},
	})
	return cmd
}

func printMigrations(out io.Writer, migrations []migrate.Migration) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "VERSION\tAPPLIED"); err != nil {
		return fmt.Errorf("write migration header: %w", err)
	}
	for _, m := range migrations {
		if _, err := fmt.Fprintf(tw, "%s\t%t\n", m.Version, m.Applied); err != nil {
			return fmt.Errorf("write migration %s: %w", m.Version, err)
		}
	}
	return tw.Flush()
}
