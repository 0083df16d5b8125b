package pipeline

import (
	"context"
	"sync"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// StateStore persists orchestration state between phases. A run saved after
// the upload phase can be resumed without re-uploading artifacts whose
// fingerprints already carry a locator.
type StateStore interface {
	// SaveRun persists the full run state, overwriting any prior snapshot.
	SaveRun(ctx context.Context, run *models.PipelineRun) error

	// LoadRun fetches a prior snapshot by run ID.
	LoadRun(ctx context.Context, id string) (*models.PipelineRun, bool, error)

	// SaveSummary records the run's history entry.
	SaveSummary(ctx context.Context, summary models.RunSummary) error
}

// MemoryStateStore keeps run state in process memory. Used in tests and for
// local single-shot runs where resumability is not needed.
type MemoryStateStore struct {
	mu        sync.Mutex
	runs      map[string]models.PipelineRun
	summaries map[string]models.RunSummary
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		runs:      make(map[string]models.PipelineRun),
		summaries: make(map[string]models.RunSummary),
	}
}

func (m *MemoryStateStore) SaveRun(ctx context.Context, run *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryStateStore) LoadRun(ctx context.Context, id string) (*models.PipelineRun, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, false, nil
	}
	return &run, true, nil
}

func (m *MemoryStateStore) SaveSummary(ctx context.Context, summary models.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summary.RunID] = summary
	return nil
}

// Summary returns the stored history entry for a run, for test assertions.
func (m *MemoryStateStore) Summary(runID string) (models.RunSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[runID]
	return s, ok
}
