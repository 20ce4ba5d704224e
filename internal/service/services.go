package service

import (
	"log/slog"
	"time"
)

// Services bundles the access-control services over one store.
type Services struct {
	Catalog  CatalogService
	Resolver ResolverService
	Usage    UsageService
	Gate     GateService
	Admin    AdminService
}

// Options configures New. A nil Cache disables resolution caching.
type Options struct {
	Cache    ResolutionCache
	CacheTTL time.Duration
	Retry    RetryPolicy
	Now      func() time.Time
}

// New wires every service over store.
func New(store Store, opts Options, logger *slog.Logger) *Services {
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetryPolicy
	}

	catalog := NewCatalogService(store, opts.Retry, logger)
	resolver := NewResolverService(store, catalog, ResolverOptions{
		Cache:    opts.Cache,
		CacheTTL: opts.CacheTTL,
		Retry:    opts.Retry,
		Now:      opts.Now,
	}, logger)
	usage := NewUsageService(store, resolver, opts.Retry, opts.Now, logger)
	gate := NewGateService(resolver, usage, opts.Now, logger)
	admin := NewAdminService(store, catalog, gate, opts.Cache, opts.Retry, opts.Now, logger)

	return &Services{
		Catalog:  catalog,
		Resolver: resolver,
		Usage:    usage,
		Gate:     gate,
		Admin:    admin,
	}
}
