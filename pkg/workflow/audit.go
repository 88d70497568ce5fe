package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/amontoro/strategos/pkg/errors"
)

// AuditEvent is one recorded step transition within a run.
type AuditEvent struct {
	RunID      string         `json:"run_id"`
	Playbook   string         `json:"playbook"`
	StepID     string         `json:"step_id"`
	StepType   string         `json:"step_type"`
	Status     string         `json:"status"` // started, completed, failed
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// AuditFilter narrows List results. Zero values match everything.
type AuditFilter struct {
	RunID  string
	StepID string
	Status string
	Limit  int
}

// AuditStore persists the step-level audit trail of workflow runs.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
	Close() error
}

// MemoryAuditStore keeps the audit trail in memory. Suitable for tests and
// single-process runs where persistence is not required.
type MemoryAuditStore struct {
	mu     sync.RWMutex
	events []AuditEvent
}

// NewMemoryAuditStore creates an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record appends an event to the trail.
func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	if event.RunID == "" || event.StepID == "" {
		return errors.New(errors.CodeInvalidInput, "audit event requires run_id and step_id", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns events matching the filter, oldest first.
func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditEvent
	for _, event := range s.events {
		if filter.RunID != "" && event.RunID != filter.RunID {
			continue
		}
		if filter.StepID != "" && event.StepID != filter.StepID {
			continue
		}
		if filter.Status != "" && event.Status != filter.Status {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryAuditStore) Close() error { return nil }

func encodeOutput(output map[string]any) (string, error) {
	if len(output) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return "", errors.New(errors.CodeInternal, "encode audit output", err)
	}
	return string(raw), nil
}

func decodeOutput(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errors.New(errors.CodeInternal, "decode audit output", err)
	}
	return out, nil
}
