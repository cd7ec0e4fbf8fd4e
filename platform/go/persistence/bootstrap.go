package persistence

import (
	"context"
	"fmt"

	sqlassets "github.com/zenGate-Global/seletor-hub/database"
	"github.com/zenGate-Global/seletor-hub/platform/go/sqlscript"
)

// BootstrapHubSchema applies the embedded hub DDL in a single transaction, in this order:
//  1. hub/systems.sql
//  2. hub/tenants.sql
//  3. hub/users.sql
//  4. hub/memberships.sql
//  5. hub/sessions.sql
//
// Every statement is idempotent, so the helper is safe for CLI bootstrap and tests.
func BootstrapHubSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("bootstrap hub schema: db is required")
	}

	var statements []string
	for _, file := range sqlassets.HubSchema() {
		statements = append(statements, sqlscript.Split(file)...)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply hub ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}
