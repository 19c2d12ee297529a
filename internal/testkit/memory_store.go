package testkit

import (
	"context"
	"sync"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

var (
	_ ports.ObservationSource = (*MemoryStore)(nil)
	_ ports.AuditRunStore     = (*MemoryStore)(nil)
)

type period struct {
	table    *audit.ObservationTable
	baseline audit.Baseline
}

// MemoryStore keeps periods and stored runs in memory
type MemoryStore struct {
	mu      sync.RWMutex
	periods map[string]period
	runs    map[core.RunID]ports.StoredRun
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods: make(map[string]period),
		runs:    make(map[core.RunID]ports.StoredRun),
	}
}

// PutPeriod registers the table of its period with a baseline
func (m *MemoryStore) PutPeriod(table *audit.ObservationTable, baseline audit.Baseline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[table.Period] = period{table: table, baseline: baseline}
}

// LoadPeriod returns the registered table, or NOT_FOUND
func (m *MemoryStore) LoadPeriod(ctx context.Context, name string) (*audit.ObservationTable, audit.Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.periods[name]
	if !ok {
		return nil, 0, errors.NotFound("period " + name)
	}
	return p.table, p.baseline, nil
}

// SaveRun stores run, replacing any run with the same id
func (m *MemoryStore) SaveRun(ctx context.Context, run ports.StoredRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// GetRun returns a stored run, or NOT_FOUND
func (m *MemoryStore) GetRun(ctx context.Context, id core.RunID) (*ports.StoredRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.NotFound("run " + id.String())
	}
	return &run, nil
}

// Runs returns the number of stored runs
func (m *MemoryStore) Runs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}
