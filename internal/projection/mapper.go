package projection

import (
	"fmt"
	"sync"

	"github.com/wayline-gg/wayline/internal/monitoring"
	"github.com/wayline-gg/wayline/internal/worldmap"
)

// Mapper memoizes one fitted transform per map id. Fits happen lazily on the
// first transform request for a map and survive for the process lifetime
// unless explicitly invalidated. Safe for concurrent use.
type Mapper struct {
	reg *worldmap.Registry

	mu   sync.RWMutex
	fits map[worldmap.MapID]fitEntry
}

type fitEntry struct {
	transform Affine
	report    FitReport
}

// NewMapper wraps a loaded map registry.
func NewMapper(reg *worldmap.Registry) *Mapper {
	return &Mapper{
		reg:  reg,
		fits: make(map[worldmap.MapID]fitEntry),
	}
}

// Transform maps a game-plane position to pixel coordinates on the given
// map, fitting and caching the transform on first use.
func (m *Mapper) Transform(id worldmap.MapID, gameX, gameZ float64) (px, py float64, err error) {
	entry, err := m.fitFor(id)
	if err != nil {
		return 0, 0, err
	}
	px, py = entry.transform.Apply(gameX, gameZ)
	return px, py, nil
}

// Fit returns the cached transform for a map, fitting it if needed.
func (m *Mapper) Fit(id worldmap.MapID) (Affine, error) {
	entry, err := m.fitFor(id)
	if err != nil {
		return Affine{}, err
	}
	return entry.transform, nil
}

// Report returns the residual diagnostics for a map's fit, fitting it if
// needed.
func (m *Mapper) Report(id worldmap.MapID) (FitReport, error) {
	entry, err := m.fitFor(id)
	if err != nil {
		return FitReport{}, err
	}
	return entry.report, nil
}

// Invalidate drops the cached fit for one map so the next request recomputes
// it.
func (m *Mapper) Invalidate(id worldmap.MapID) {
	m.mu.Lock()
	delete(m.fits, id)
	m.mu.Unlock()
}

// InvalidateAll drops every cached fit.
func (m *Mapper) InvalidateAll() {
	m.mu.Lock()
	m.fits = make(map[worldmap.MapID]fitEntry)
	m.mu.Unlock()
}

func (m *Mapper) fitFor(id worldmap.MapID) (fitEntry, error) {
	m.mu.RLock()
	entry, ok := m.fits[id]
	m.mu.RUnlock()
	if ok {
		return entry, nil
	}

	mc, ok := m.reg.Get(id)
	if !ok {
		return fitEntry{}, fmt.Errorf("map %q: %w", id, worldmap.ErrUnknownMap)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another goroutine may have fitted while we waited for the write lock.
	if entry, ok := m.fits[id]; ok {
		return entry, nil
	}

	transform, report := Solve(mc.Calibration, FallbackFor(mc))
	if report.Mode != FitAffine {
		monitoring.Logf("map %s: calibration degraded to %s fit (%d points)", id, report.Mode, report.Points)
	} else {
		monitoring.Logf("map %s: fitted transform from %d points (mean residual %.2fpx, max %.2fpx)",
			id, report.Points, report.Mean, report.Max)
	}

	entry = fitEntry{transform: transform, report: report}
	m.fits[id] = entry
	return entry, nil
}
