package health

import (
	"context"
	"fmt"
	"time"
)

// CatalogState — то, что проверка каталога читает у кеша.
type CatalogState interface {
	Ready() bool
	LoadedAt() time.Time
}

// CatalogChecker: unhealthy без снимка, degraded если снимок старше maxAge
// (таблица недоступна, бот работает на старых данных).
type CatalogChecker struct {
	catalog CatalogState
	maxAge  time.Duration
	now     func() time.Time
}

// NewCatalogChecker создаёт проверку свежести каталога.
func NewCatalogChecker(catalog CatalogState, maxAge time.Duration) *CatalogChecker {
	return &CatalogChecker{catalog: catalog, maxAge: maxAge, now: time.Now}
}

func (c *CatalogChecker) Check(context.Context) Check {
	start := time.Now()
	check := Check{Name: "catalog", Status: StatusHealthy}
	switch {
	case !c.catalog.Ready():
		check.Status = StatusUnhealthy
		check.Message = "catalog snapshot is not loaded"
	case c.maxAge > 0 && c.now().Sub(c.catalog.LoadedAt()) > c.maxAge:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("catalog snapshot is stale, loaded at %s", c.catalog.LoadedAt().UTC().Format(time.RFC3339))
	}
	check.Duration = time.Since(start)
	return check
}
