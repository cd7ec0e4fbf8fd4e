package provisioning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/seletor-hub/database"
	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	"github.com/zenGate-Global/seletor-hub/platform/go/metrics"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
	"github.com/zenGate-Global/seletor-hub/platform/go/sqlscript"
)

// Phase is one of the three ordered passes over a template.
type Phase int

const (
	PhaseCreateTable Phase = iota
	PhaseStatements
	PhaseForeignKeys
)

func (p Phase) String() string {
	switch p {
	case PhaseCreateTable:
		return "create table"
	case PhaseStatements:
		return "statements"
	case PhaseForeignKeys:
		return "foreign keys"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Classify assigns a statement to its phase using its whitespace-normalized, lower-cased prefix.
// Constraint-adding ALTER TABLE statements run last so tables can reference each other in any
// textual order.
func Classify(stmt string) Phase {
	norm := " " + strings.ToLower(strings.Join(strings.Fields(stmt), " ")) + " "
	switch {
	case strings.HasPrefix(norm, " alter table ") &&
		(strings.Contains(norm, " foreign key ") || strings.Contains(norm, " add constraint ")):
		return PhaseForeignKeys
	case strings.HasPrefix(norm, " create table "):
		return PhaseCreateTable
	default:
		return PhaseStatements
	}
}

const (
	currentDatabaseSQL = `SELECT current_database()`
	usersTableSQL      = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = 'users'
	)`
)

// TemplateApplier executes tenant schema templates in three phases: CREATE TABLE statements,
// then everything else, then foreign keys and constraints. It stops at the first failing
// statement and leaves earlier statements applied.
type TemplateApplier struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewTemplateApplier(logger *zap.Logger, m *metrics.Metrics) *TemplateApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateApplier{logger: logger, metrics: m}
}

// LoadTemplate reads a template from disk. An empty path selects the embedded default template.
func LoadTemplate(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return sqlassets.TenantTemplateSQL, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	return string(raw), nil
}

// Apply loads the template at path and applies it.
func (a *TemplateApplier) Apply(ctx context.Context, conn persistence.Executor, path string) (service.TemplateResult, error) {
	sqlText, err := LoadTemplate(path)
	if err != nil {
		return service.TemplateResult{}, err
	}
	return a.ApplySQL(ctx, conn, sqlText)
}

// ApplySQL splits sqlText and applies it to the database conn is connected to.
func (a *TemplateApplier) ApplySQL(ctx context.Context, conn persistence.Executor, sqlText string) (service.TemplateResult, error) {
	var database string
	if err := conn.QueryRow(ctx, currentDatabaseSQL).Scan(&database); err != nil {
		return service.TemplateResult{}, fmt.Errorf("resolve current database: %w", err)
	}
	if database == "" {
		return service.TemplateResult{}, errors.New("template connection has no database selected")
	}

	var phases [3][]string
	for _, stmt := range sqlscript.Split(sqlText) {
		p := Classify(stmt)
		phases[p] = append(phases[p], stmt)
	}

	logger := a.logger.With(zap.String("database", database))
	for p, stmts := range phases {
		phase := Phase(p)
		for i, stmt := range stmts {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				a.metrics.ObserveTemplateStatement(phase.String(), metrics.OutcomeFailure)
				appErr := &apperrors.TemplateApplicationError{
					Database:  database,
					Phase:     phase.String(),
					Index:     i + 1,
					Statement: apperrors.Snippet(stmt),
					Err:       err,
				}
				logger.Error("template statement failed",
					zap.String("phase", phase.String()),
					zap.Int("index", i+1),
					zap.String("statement", appErr.Statement),
					zap.Error(err),
				)
				return service.TemplateResult{}, appErr
			}
			a.metrics.ObserveTemplateStatement(phase.String(), metrics.OutcomeSuccess)
		}
	}

	var hasUsers bool
	if err := conn.QueryRow(ctx, usersTableSQL).Scan(&hasUsers); err != nil {
		logger.Error("users table check failed", zap.Error(err))
		return service.TemplateResult{}, &apperrors.TemplateApplicationError{Database: database, Err: err}
	}
	if !hasUsers {
		logger.Error("template did not create users table")
		return service.TemplateResult{}, &apperrors.TemplateApplicationError{Database: database}
	}

	result := service.TemplateResult{
		Database:    database,
		CreateTable: len(phases[PhaseCreateTable]),
		Statements:  len(phases[PhaseStatements]),
		ForeignKeys: len(phases[PhaseForeignKeys]),
	}
	logger.Info("template applied",
		zap.Int("create_table", result.CreateTable),
		zap.Int("statements", result.Statements),
		zap.Int("foreign_keys", result.ForeignKeys),
	)
	return result, nil
}

var _ service.TemplateApplier = (*TemplateApplier)(nil)
