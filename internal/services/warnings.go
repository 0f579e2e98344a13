package services

import (
	"context"
	"sync"

	"github.com/epeers/navgraph/internal/models"
)

type warningContextKey struct{}

// WarningCollector accumulates warnings during a run.
type WarningCollector struct {
	mu       sync.Mutex
	warnings []models.Warning
	seen     map[string]struct{}
}

// NewWarningContext returns a context carrying a fresh WarningCollector,
// plus a reference to the collector so the caller can retrieve warnings later.
func NewWarningContext(ctx context.Context) (context.Context, *WarningCollector) {
	wc := &WarningCollector{seen: make(map[string]struct{})}
	return withWarnings(ctx, wc), wc
}

// withWarnings attaches an existing collector to ctx
func withWarnings(ctx context.Context, wc *WarningCollector) context.Context {
	return context.WithValue(ctx, warningContextKey{}, wc)
}

func collectorFrom(ctx context.Context) *WarningCollector {
	wc, ok := ctx.Value(warningContextKey{}).(*WarningCollector)
	if !ok || wc == nil {
		return nil
	}
	return wc
}

// AddWarning appends a warning to the collector in ctx.
// If ctx has no collector, the call is a no-op.
func AddWarning(ctx context.Context, w models.Warning) {
	wc := collectorFrom(ctx)
	if wc == nil {
		return
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.warnings = append(wc.warnings, w)
}

// AddWarningOnce appends w unless a warning with the same code and key was
// already recorded in this collector.
func AddWarningOnce(ctx context.Context, key string, w models.Warning) {
	wc := collectorFrom(ctx)
	if wc == nil {
		return
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	k := string(w.Code) + "|" + key
	if _, ok := wc.seen[k]; ok {
		return
	}
	wc.seen[k] = struct{}{}
	wc.warnings = append(wc.warnings, w)
}

// GetWarnings returns a copy of all collected warnings.
func (wc *WarningCollector) GetWarnings() []models.Warning {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return append([]models.Warning(nil), wc.warnings...)
}
