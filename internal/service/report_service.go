package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/repository"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
	"github.com/nephi-asha/kishkumen/pkg/cache"
)

// ReportCache keeps computed reports per namespace for a short time.
// Writes that change report inputs invalidate their namespace.
type ReportCache struct {
	entries *cache.Cache[*domain.ProfitLoss]
	ttl     time.Duration
}

// NewReportCache disables caching when ttl is not positive.
func NewReportCache(ttl time.Duration) *ReportCache {
	return &ReportCache{entries: cache.New[*domain.ProfitLoss](), ttl: ttl}
}

func (c *ReportCache) key(ns domain.Namespace, r domain.DateRange) string {
	return ns.String() + ":pnl:" + r.From.Format(time.RFC3339) + ":" + r.To.Format(time.RFC3339)
}

func (c *ReportCache) get(ns domain.Namespace, r domain.DateRange) (*domain.ProfitLoss, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	return c.entries.Get(c.key(ns, r))
}

func (c *ReportCache) put(ns domain.Namespace, r domain.DateRange, pl *domain.ProfitLoss) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.entries.Set(c.key(ns, r), pl, c.ttl)
}

// Invalidate drops every cached report of ns.
func (c *ReportCache) Invalidate(ns domain.Namespace) {
	if c == nil {
		return
	}
	c.entries.Invalidate(ns.String() + ":")
}

// ReportService computes financial reports.
type ReportService struct {
	reports repository.ReportRepository
	cache   *ReportCache
	logger  *slog.Logger
}

func NewReportService(c *ReportCache, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{cache: c, logger: logger}
}

// ProfitLoss reports over the inclusive dates start to end. Both are
// required.
func (s *ReportService) ProfitLoss(ctx context.Context, sc tenancy.Scope, start, end string) (*domain.ProfitLoss, error) {
	r, err := ParseDateRange(start, end, true)
	if err != nil {
		return nil, err
	}
	if pl, ok := s.cache.get(sc.Namespace(), r); ok {
		return pl, nil
	}
	pl, err := s.reports.ProfitLoss(ctx, sc.Querier(), r)
	if err != nil {
		return nil, err
	}
	// Report the inclusive end date the caller asked for.
	pl.To = r.To.AddDate(0, 0, -1)
	s.cache.put(sc.Namespace(), r, pl)
	return pl, nil
}
