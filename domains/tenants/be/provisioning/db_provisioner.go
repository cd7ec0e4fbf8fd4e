package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
	"github.com/zenGate-Global/seletor-hub/platform/go/tenant"
)

const (
	duplicateDatabase = "42P04"

	// createDatabaseSQL pins UTF-8 and the ICU root locale, which orders text by the Unicode
	// collation algorithm. Requires PostgreSQL 15 or newer built with ICU.
	createDatabaseSQL = "CREATE DATABASE %s ENCODING 'UTF8' LOCALE_PROVIDER icu ICU_LOCALE 'und' TEMPLATE template0"
)

// AdminConnector hands out executors bound to a server's maintenance database.
type AdminConnector interface {
	AdminExecutor(ctx context.Context, host string) (persistence.Executor, error)
}

// DBProvisioner creates and drops physical tenant databases through the administrative
// connection of their host.
type DBProvisioner struct {
	admins AdminConnector
	logger *zap.Logger
}

func NewDBProvisioner(admins AdminConnector, logger *zap.Logger) *DBProvisioner {
	if admins == nil {
		panic("db provisioner requires admin connector")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBProvisioner{admins: admins, logger: logger}
}

// DatabaseExists reports whether database is present on host.
func (p *DBProvisioner) DatabaseExists(ctx context.Context, host, database string) (bool, error) {
	if err := tenant.ValidateDatabaseName(database); err != nil {
		return false, err
	}
	exec, err := p.admins.AdminExecutor(ctx, host)
	if err != nil {
		return false, fmt.Errorf("admin connection: %w", err)
	}
	return databaseExists(ctx, exec, database)
}

// CreateDatabase creates database with UTF-8 encoding and Unicode collation unless it already exists.
// Losing a creation race to a concurrent caller is not an error.
func (p *DBProvisioner) CreateDatabase(ctx context.Context, host, database string) (bool, error) {
	if err := tenant.ValidateDatabaseName(database); err != nil {
		return false, err
	}
	exec, err := p.admins.AdminExecutor(ctx, host)
	if err != nil {
		return false, fmt.Errorf("admin connection: %w", err)
	}

	exists, err := databaseExists(ctx, exec, database)
	if err != nil {
		return false, err
	}
	if exists {
		p.logger.Info("tenant database already exists", zap.String("database", database))
		return false, nil
	}

	stmt := fmt.Sprintf(createDatabaseSQL, pgx.Identifier{database}.Sanitize())
	if _, err := exec.Exec(ctx, stmt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateDatabase {
			p.logger.Info("tenant database created concurrently", zap.String("database", database))
			return false, nil
		}
		return false, fmt.Errorf("create database %s: %w", database, err)
	}

	p.logger.Info("tenant database created", zap.String("database", database))
	return true, nil
}

// DropDatabase removes database if present, terminating open sessions on it.
func (p *DBProvisioner) DropDatabase(ctx context.Context, host, database string) error {
	if err := tenant.ValidateDatabaseName(database); err != nil {
		return err
	}
	exec, err := p.admins.AdminExecutor(ctx, host)
	if err != nil {
		return fmt.Errorf("admin connection: %w", err)
	}

	stmt := fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", pgx.Identifier{database}.Sanitize())
	if _, err := exec.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop database %s: %w", database, err)
	}
	p.logger.Info("tenant database dropped", zap.String("database", database))
	return nil
}

func databaseExists(ctx context.Context, exec persistence.Executor, database string) (bool, error) {
	var exists bool
	if err := exec.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", database).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database existence: %w", err)
	}
	return exists, nil
}

var _ service.DBProvisioner = (*DBProvisioner)(nil)
