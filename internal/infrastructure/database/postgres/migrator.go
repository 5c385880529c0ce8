package postgres

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationState is the schema version recorded by golang-migrate.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// Migrator applies schema migrations to a connection. Migrations come from
// the embedded set unless a directory is given.
type Migrator struct {
	m      *migrate.Migrate
	source string
	logger logging.Logger
}

// NewMigrator prepares migrations on a dedicated connection taken from
// conn's pool. An empty dir selects the embedded migrations.
func NewMigrator(ctx context.Context, conn *Connection, dir string, log logging.Logger) (*Migrator, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	sqlConn, err := conn.DB().Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to acquire migration connection")
	}
	driver, err := migratepg.WithConnection(ctx, sqlConn, &migratepg.Config{})
	if err != nil {
		_ = sqlConn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}

	var m *migrate.Migrate
	source := sourceName(dir)
	if dir == "" {
		src, srcErr := iofs.New(embeddedMigrations, "migrations")
		if srcErr != nil {
			_ = driver.Close()
			return nil, errors.Wrap(srcErr, errors.ErrCodeInternal, "failed to open embedded migrations")
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	} else {
		if _, statErr := os.Stat(dir); statErr != nil {
			_ = driver.Close()
			return nil, errors.Wrap(statErr, errors.CodeInvalidParam, "migration directory not found")
		}
		m, err = migrate.NewWithDatabaseInstance(source, "postgres", driver)
	}
	if err != nil {
		_ = driver.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	return &Migrator{m: m, source: source, logger: log.Named("migrator")}, nil
}

// Up applies all pending migrations. No pending migrations is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		state, _ := mg.Status()
		return errors.Wrap(err, errors.ErrCodeDatabaseError,
			fmt.Sprintf("failed to run migrations (current version: %d)", state.Version))
	}
	state, err := mg.Status()
	if err != nil {
		return err
	}
	mg.logger.Info("database migrations completed",
		logging.String("source", mg.source),
		logging.Int64("version", int64(state.Version)),
		logging.Bool("dirty", state.Dirty))
	return nil
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.InvalidParam(fmt.Sprintf("steps must be greater than 0, got %d", steps))
	}
	if err := mg.m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return errors.New(errors.ErrCodeConflict, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to roll back %d step(s)", steps))
	}
	mg.logger.Info("rolled back migrations", logging.Int("steps", steps))
	return nil
}

// Status reports the applied version. A database with no migrations applied
// reports version 0.
func (mg *Migrator) Status() (MigrationState, error) {
	version, dirty, err := mg.m.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return MigrationState{}, nil
		}
		return MigrationState{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read migration version")
	}
	return MigrationState{Version: version, Dirty: dirty}, nil
}

// Force records version without running migrations, to recover from a dirty
// state.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to force version %d", version))
	}
	mg.logger.Warn("forced migration version", logging.Int("version", version))
	return nil
}

// Close releases the migration source and returns the dedicated connection
// to the pool.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

func sourceName(dir string) string {
	if dir == "" {
		return "iofs://migrations"
	}
	return "file://" + dir
}
