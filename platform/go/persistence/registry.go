package persistence

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor is the statement surface needed for DDL against a database server.
// *pgxpool.Pool, *pgx.Conn and pgxmock connections all satisfy it.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TenantConn is an ephemeral connection scoped to one tenant database.
type TenantConn interface {
	Executor
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

// DB is the query surface of the hub pool used by the stores.
type DB interface {
	Executor
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Connector hands out administrative executors and tenant connections.
type Connector interface {
	AdminExecutor(ctx context.Context, host string) (Executor, error)
	OpenTenant(ctx context.Context, host, database string) (TenantConn, error)
	TenantURL(host, database string) string
}

// TenantCredentials are the process-wide settings shared by every tenant database server.
type TenantCredentials struct {
	Driver        string
	Host          string
	Port          int
	User          string
	Password      string
	AdminDatabase string
	SSLMode       string
}

// Registry owns the hub pool and one administrative pool per tenant database host.
// It is constructed once in main and passed to every component that needs a connection.
type Registry struct {
	hub   *pgxpool.Pool
	creds TenantCredentials

	mu     sync.Mutex
	admins map[string]*pgxpool.Pool
}

var _ Connector = (*Registry)(nil)

// NewRegistry wires a registry around an already opened hub pool.
func NewRegistry(hub *pgxpool.Pool, creds TenantCredentials) *Registry {
	if hub == nil {
		panic("persistence registry: hub pool is required")
	}
	if creds.Driver == "" {
		creds.Driver = "postgres"
	}
	if creds.Port == 0 {
		creds.Port = 5432
	}
	if creds.AdminDatabase == "" {
		creds.AdminDatabase = "postgres"
	}
	return &Registry{hub: hub, creds: creds, admins: make(map[string]*pgxpool.Pool)}
}

// Hub returns the pooled connection to the hub database.
func (r *Registry) Hub() *pgxpool.Pool {
	return r.hub
}

// ResolveHost trims the host and falls back to the configured primary tenant host.
func (r *Registry) ResolveHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return strings.TrimSpace(r.creds.Host)
	}
	return host
}

// Admin returns the cached administrative pool for host, opening it on first use.
// The pool targets the maintenance database so it can run CREATE/DROP DATABASE;
// statements issued through Exec run outside any explicit transaction.
func (r *Registry) Admin(ctx context.Context, host string) (*pgxpool.Pool, error) {
	host = r.ResolveHost(host)
	if host == "" {
		return nil, errors.New("tenant database host is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.admins[host]; ok {
		return pool, nil
	}

	cfg, err := pgxpool.ParseConfig(r.buildURL(host, r.creds.AdminDatabase))
	if err != nil {
		return nil, fmt.Errorf("parse admin pool config: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create admin pool for %s: %w", host, err)
	}
	r.admins[host] = pool
	return pool, nil
}

// AdminExecutor adapts Admin to the Connector interface.
func (r *Registry) AdminExecutor(ctx context.Context, host string) (Executor, error) {
	pool, err := r.Admin(ctx, host)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// TenantURL builds {driver}://{user}:{password}@{host}:{port}/{database} for a tenant.
func (r *Registry) TenantURL(host, database string) string {
	return r.buildURL(r.ResolveHost(host), database)
}

// ConnectTenant opens an ephemeral single connection to a tenant database.
// Callers own the connection and must close it.
func (r *Registry) ConnectTenant(ctx context.Context, host, database string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, r.TenantURL(host, database))
	if err != nil {
		return nil, fmt.Errorf("connect tenant database %s: %w", database, err)
	}
	return conn, nil
}

// OpenTenant adapts ConnectTenant to the Connector interface.
func (r *Registry) OpenTenant(ctx context.Context, host, database string) (TenantConn, error) {
	conn, err := r.ConnectTenant(ctx, host, database)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close shuts every administrative pool. The hub pool is owned by the caller.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for host, pool := range r.admins {
		pool.Close()
		delete(r.admins, host)
	}
}

func (r *Registry) buildURL(host, database string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(r.creds.Port))
	}

	u := url.URL{
		Scheme: r.creds.Driver,
		Host:   host,
		Path:   "/" + database,
	}
	if r.creds.Password != "" {
		u.User = url.UserPassword(r.creds.User, r.creds.Password)
	} else if r.creds.User != "" {
		u.User = url.User(r.creds.User)
	}
	if r.creds.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{r.creds.SSLMode}}.Encode()
	}
	return u.String()
}
