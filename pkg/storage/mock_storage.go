package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

type memoryData struct {
	runs      []models.Run
	agentRuns []models.AgentRun
	mu        sync.RWMutex
}

// mockStore implements storage.Store with in-memory storage. Transactions
// share the data of the store that began them; Rollback does not undo writes.
type mockStore struct {
	data      *memoryData
	inTx      bool
	committed bool
}

func NewMockStore() Store {
	return &mockStore{data: &memoryData{}}
}

func (m *mockStore) Begin() (Store, error) {
	return &mockStore{data: m.data, inTx: true}, nil
}

func (m *mockStore) Commit() error {
	if !m.inTx {
		return errors.New("cannot commit: not a transaction")
	}
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	return nil
}

func (m *mockStore) Rollback() error {
	if !m.inTx {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) writable() error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	return nil
}

func (m *mockStore) SaveRun(r models.Run) error {
	if err := m.writable(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	for _, existing := range m.data.runs {
		if existing.ID == r.ID {
			return errors.Errorf("run %s already exists", r.ID)
		}
	}
	r.AgentRuns = nil
	m.data.runs = append(m.data.runs, r)
	return nil
}

func (m *mockStore) GetRun(id string) (models.Run, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	for _, r := range m.data.runs {
		if r.ID == id {
			r.AgentRuns = m.agentRunsLocked(id)
			return r, nil
		}
	}
	return models.Run{}, ErrNotFound
}

func (m *mockStore) ListRuns(limit int) ([]models.Run, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	runs := make([]models.Run, 0, len(m.data.runs))
	for i := len(m.data.runs) - 1; i >= 0; i-- {
		runs = append(runs, m.data.runs[i])
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *mockStore) UpdateRunStatus(id string, status models.RunStatus, errorMsg string) error {
	if err := m.writable(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	for i, r := range m.data.runs {
		if r.ID == id {
			now := time.Now()
			m.data.runs[i].Status = status
			m.data.runs[i].ErrorMsg = errorMsg
			m.data.runs[i].UpdatedAt = now
			if IsTerminal(status) {
				m.data.runs[i].FinishedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveAgentRun(ar models.AgentRun) error {
	if err := m.writable(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	found := false
	for _, r := range m.data.runs {
		if r.ID == ar.RunID {
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(ErrNotFound, "run %s", ar.RunID)
	}
	for _, existing := range m.data.agentRuns {
		if existing.RunID == ar.RunID && existing.AgentID == ar.AgentID {
			return errors.Errorf("agent run %s/%s already exists", ar.RunID, ar.AgentID)
		}
	}
	m.data.agentRuns = append(m.data.agentRuns, ar)
	return nil
}

func (m *mockStore) UpdateAgentRun(ar models.AgentRun) error {
	if err := m.writable(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	for i, existing := range m.data.agentRuns {
		if existing.RunID == ar.RunID && existing.AgentID == ar.AgentID {
			m.data.agentRuns[i].Status = ar.Status
			m.data.agentRuns[i].Output = ar.Output
			m.data.agentRuns[i].ErrorMsg = ar.ErrorMsg
			m.data.agentRuns[i].FinishedAt = ar.FinishedAt
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) GetAgentRuns(runID string) ([]models.AgentRun, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return m.agentRunsLocked(runID), nil
}

func (m *mockStore) agentRunsLocked(runID string) []models.AgentRun {
	var out []models.AgentRun
	for _, ar := range m.data.agentRuns {
		if ar.RunID == runID {
			out = append(out, ar)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
