package aggregator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tenantsvc "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	"github.com/zenGate-Global/seletor-hub/platform/go/metrics"
)

// TenantCatalog lists the tenants to aggregate over.
type TenantCatalog interface {
	List(ctx context.Context, opts tenantsvc.ListOptions) ([]tenantsvc.Tenant, error)
}

// Options tunes the fan-out. Concurrency 1 (the default) reads tenants one at a time;
// TenantTimeout 0 leaves per-tenant reads bounded only by the request context.
type Options struct {
	Concurrency   int
	TenantTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Aggregator lists users across every active tenant database.
type Aggregator struct {
	catalog     TenantCatalog
	fetcher     TenantFetcher
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func New(catalog TenantCatalog, fetcher TenantFetcher, opts Options) *Aggregator {
	if catalog == nil {
		panic("aggregator requires a tenant catalog")
	}
	if fetcher == nil {
		panic("aggregator requires a tenant fetcher")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Aggregator{
		catalog:     catalog,
		fetcher:     fetcher,
		concurrency: opts.Concurrency,
		timeout:     opts.TenantTimeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

type fetchOutcome struct {
	rows []RemoteUser
	err  error
}

// List reads, merges, filters, sorts and paginates users from the active tenants, optionally
// restricted to q.TenantSlug. Unreachable or incompatible tenants are logged, contribute no rows
// and are reported in Result.Unavailable.
func (a *Aggregator) List(ctx context.Context, q Query) (Result, error) {
	start := time.Now()
	defer func() { a.metrics.ObserveAggregation(time.Since(start)) }()

	q = Normalize(q)

	tenants, err := a.catalog.List(ctx, tenantsvc.ListOptions{Slug: q.TenantSlug})
	if err != nil {
		return Result{}, err
	}

	sources := make([]TenantSource, len(tenants))
	for i, t := range tenants {
		sources[i] = TenantSource{
			ID:           t.ID,
			Slug:         t.Slug,
			Name:         t.DisplayName,
			DatabaseName: t.DatabaseName,
			DatabaseHost: t.DatabaseHost,
			SystemSlug:   t.System.Slug,
			SystemName:   t.System.Name,
		}
	}

	outcomes := a.fetchAll(ctx, sources)

	var (
		rows        []RemoteUser
		unavailable []string
	)
	for i, out := range outcomes {
		if out.err != nil {
			unavailable = append(unavailable, sources[i].Slug)
			continue
		}
		rows = append(rows, out.rows...)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	merged := Filter(Merge(rows), q)
	Sort(merged, q)
	page, pagination := Paginate(merged, q.Page, q.PerPage)
	if page == nil {
		page = []Identity{}
	}

	return Result{Items: page, Pagination: pagination, Unavailable: unavailable}, nil
}

// fetchAll returns one outcome per source, in source order.
func (a *Aggregator) fetchAll(ctx context.Context, sources []TenantSource) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(sources))

	if a.concurrency <= 1 {
		for i, src := range sources {
			outcomes[i] = a.fetchOne(ctx, src)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = a.fetchOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (a *Aggregator) fetchOne(ctx context.Context, src TenantSource) fetchOutcome {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := a.fetcher.FetchUsers(ctx, src)
	elapsed := time.Since(start)
	if err == nil {
		a.metrics.ObserveTenantFetch(metrics.OutcomeSuccess, elapsed)
		return fetchOutcome{rows: rows}
	}

	logger := a.logger.With(zap.String("tenant", src.Slug), zap.String("database", src.DatabaseName))
	var incompatible *apperrors.SchemaIncompatibleError
	if errors.As(err, &incompatible) {
		a.metrics.ObserveTenantFetch(metrics.OutcomeSkipped, elapsed)
		logger.Warn("skipping tenant with incompatible users table", zap.Strings("missing", incompatible.Missing))
	} else {
		a.metrics.ObserveTenantFetch(metrics.OutcomeFailure, elapsed)
		logger.Error("tenant user read failed", zap.Error(err))
	}
	return fetchOutcome{err: err}
}
