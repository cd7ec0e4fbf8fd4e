package service

import (
	"context"

	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

// DBProvisioner creates and drops physical tenant databases on a database server.
// CreateDatabase is idempotent: an existing database is reported with created=false.
type DBProvisioner interface {
	CreateDatabase(ctx context.Context, host, database string) (created bool, err error)
	DropDatabase(ctx context.Context, host, database string) error
	DatabaseExists(ctx context.Context, host, database string) (bool, error)
}

// TemplateApplier runs a tenant schema template against a connected tenant database.
// An empty path selects the built-in default template.
type TemplateApplier interface {
	Apply(ctx context.Context, conn persistence.Executor, path string) (TemplateResult, error)
}

// TemplateResult summarises a successful template application.
type TemplateResult struct {
	Database    string
	CreateTable int
	Statements  int
	ForeignKeys int
}

// Total is the number of statements executed.
func (r TemplateResult) Total() int {
	return r.CreateTable + r.Statements + r.ForeignKeys
}

// TenantConnector opens ephemeral connections to tenant databases.
type TenantConnector interface {
	OpenTenant(ctx context.Context, host, database string) (persistence.TenantConn, error)
	TenantURL(host, database string) string
	ResolveHost(host string) string
}

// ProvisioningDeps groups the collaborators that touch physical databases.
type ProvisioningDeps struct {
	DB        DBProvisioner
	Template  TemplateApplier
	Connector TenantConnector
}
