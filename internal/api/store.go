package api

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/coherent/pkg/sdk"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	defaultStoreLimit = 1024
)

// Execution is the record of a background execution.
type Execution struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	ModelID     string         `json:"model_id"`
	Status      string         `json:"status"`
	CreatedAt   int64          `json:"created_at"`
	CompletedAt *int64         `json:"completed_at,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       *sdk.ErrorInfo `json:"error,omitempty"`
}

// ExecutionStore keeps background executions in memory. Once more than limit
// records exist, the oldest finished ones are evicted.
type ExecutionStore struct {
	mu      sync.Mutex
	records map[string]*Execution
	order   []string
	limit   int
}

func NewExecutionStore(limit int) *ExecutionStore {
	if limit <= 0 {
		limit = defaultStoreLimit
	}
	return &ExecutionStore{
		records: make(map[string]*Execution),
		limit:   limit,
	}
}

func (s *ExecutionStore) Create(req sdk.ExecutionRequest, now time.Time) Execution {
	rec := &Execution{
		ID:        newExecutionID(),
		Object:    "execution",
		ModelID:   req.ModelID,
		Status:    StatusInProgress,
		CreatedAt: now.Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	s.evictLocked()
	return *rec
}

// Finish records the outcome of id. It reports false when the record was
// deleted in the meantime.
func (s *ExecutionStore) Finish(id string, outputs map[string]any, err error, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	completedAt := now.Unix()
	rec.CompletedAt = &completedAt
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = sdk.InfoFromError(err)
		return true
	}
	rec.Status = StatusCompleted
	rec.Outputs = outputs
	return true
}

func (s *ExecutionStore) Get(id string) (Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Execution{}, false
	}
	return *rec, true
}

func (s *ExecutionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

func (s *ExecutionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *ExecutionStore) evictLocked() {
	if len(s.records) <= s.limit {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if len(s.records) > s.limit && rec.Status != StatusInProgress {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func newExecutionID() string {
	return "exec_" + uuid.NewString()
}
