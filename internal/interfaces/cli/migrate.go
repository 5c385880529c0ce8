package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/postgres"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// NewMigrateCmd returns the migrate command group. Migrations always run
// against the configured database, never through --server.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply or roll back the rule store schema. Requires database.driver=postgres.
An empty database.migration_path uses the migrations built into the binary.`,
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrator(cmd, func(mg *postgres.Migrator) error {
				if err := mg.Down(steps); err != nil {
					return err
				}
				return printMigrationState(cmd, mg)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrator(cmd, func(mg *postgres.Migrator) error {
					if err := mg.Up(); err != nil {
						return err
					}
					return printMigrationState(cmd, mg)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrator(cmd, func(mg *postgres.Migrator) error {
					return printMigrationState(cmd, mg)
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Record VERSION as applied without running it, clearing a dirty state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil || version < -1 {
					return errors.InvalidParam("version must be an integer >= -1").WithDetail("version=" + args[0])
				}
				return runMigrator(cmd, func(mg *postgres.Migrator) error {
					if err := mg.Force(version); err != nil {
						return err
					}
					return printMigrationState(cmd, mg)
				})
			},
		},
	)

	return cmd
}

func runMigrator(cmd *cobra.Command, fn func(mg *postgres.Migrator) error) error {
	cliCtx, ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	db := cliCtx.Config.Database
	if db.Driver != "postgres" {
		return errors.InvalidParam("migrations require database.driver=postgres").WithDetail("driver=" + db.Driver)
	}

	conn, err := postgres.NewConnection(db, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer closeQuietly(cliCtx.Logger, "postgres connection", conn.Close)

	mg, err := postgres.NewMigrator(ctx, conn, db.MigrationPath, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer closeQuietly(cliCtx.Logger, "migrator", mg.Close)

	return fn(mg)
}

func printMigrationState(cmd *cobra.Command, mg *postgres.Migrator) error {
	state, err := mg.Status()
	if err != nil {
		return err
	}
	return PrintResult(cmd, state)
}

func closeQuietly(log logging.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn("close failed", logging.String("resource", what), logging.Err(err))
	}
}
