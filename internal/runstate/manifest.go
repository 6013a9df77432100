package runstate

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// StepStatus represents the lifecycle of a single step on a single item.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// ItemStatus summarizes an item across all its steps.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemWorking   ItemStatus = "working"
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// Step statuses only move forward. The single backward edge,
// in_progress -> pending, is the resume reset for work that was in flight
// when the writer died; failed may retry to in_progress but never returns
// to pending.
var allowedTransitions = map[StepStatus]map[StepStatus]bool{
	StepPending:    {StepInProgress: true, StepSkipped: true},
	StepInProgress: {StepCompleted: true, StepFailed: true, StepSkipped: true, StepPending: true},
	StepFailed:     {StepInProgress: true},
	StepCompleted:  {},
	StepSkipped:    {},
}

// CanTransition reports whether a step may move from one status to another.
func CanTransition(from, to StepStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ResultEntry records one produced result for an item.
type ResultEntry struct {
	Step      string        `json:"step"`
	Producer  string        `json:"producer"`
	Payload   string        `json:"payload"`
	Cached    bool          `json:"cached,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// ItemError captures the most recent failure observed for an item.
type ItemError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ItemRecord tracks one media file through the pipeline.
type ItemRecord struct {
	ID           string                `json:"id"`
	SourcePath   string                `json:"source_path"`
	ResolvedPath string                `json:"resolved_path,omitempty"`
	Kind         string                `json:"kind"`
	Status       ItemStatus            `json:"status"`
	Steps        map[string]StepStatus `json:"steps"`
	Results      []ResultEntry         `json:"results,omitempty"`
	LastError    *ItemError            `json:"last_error,omitempty"`
	Retries      map[string]int        `json:"retries,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// NewItemRecord constructs a pending record for a classified media file.
func NewItemRecord(id, sourcePath, kind string) *ItemRecord {
	now := time.Now().UTC()
	return &ItemRecord{
		ID:         id,
		SourcePath: sourcePath,
		Kind:       kind,
		Status:     ItemPending,
		Steps:      make(map[string]StepStatus),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// StepStatus returns the recorded status for a step, defaulting to pending.
func (r *ItemRecord) StepStatus(step string) StepStatus {
	if status, ok := r.Steps[step]; ok {
		return status
	}
	return StepPending
}

// Transition moves a step to a new status, enforcing the forward-only
// transition table and the at-most-one-in-flight invariant.
func (r *ItemRecord) Transition(step string, to StepStatus) error {
	from := r.StepStatus(step)
	if !CanTransition(from, to) {
		return Wrap(ErrValidation, "item", "transition",
			fmt.Sprintf("step %s: %s -> %s not allowed (item %s)", step, from, to, r.ID), nil)
	}
	if to == StepInProgress {
		if inFlight, ok := r.InFlightStep(); ok && inFlight != step {
			return Wrap(ErrValidation, "item", "transition",
				fmt.Sprintf("step %s already in progress on item %s", inFlight, r.ID), nil)
		}
	}
	if r.Steps == nil {
		r.Steps = make(map[string]StepStatus)
	}
	r.Steps[step] = to
	return nil
}

// Requeue forces a step back to pending. This deliberately bypasses the
// transition table; it exists solely for resume-with-override, which re-runs
// completed describe steps under a new producer while keeping prior results.
// The item-level status is left untouched so the run's completed count never
// regresses: the item stays completed while the new producer appends to it.
func (r *ItemRecord) Requeue(step string) {
	if r.Steps == nil {
		r.Steps = make(map[string]StepStatus)
	}
	r.Steps[step] = StepPending
}

// InFlightStep returns the step currently in progress, if any.
func (r *ItemRecord) InFlightStep() (string, bool) {
	for step, status := range r.Steps {
		if status == StepInProgress {
			return step, true
		}
	}
	return "", false
}

// AppendResult records a produced result.
func (r *ItemRecord) AppendResult(entry ResultEntry) {
	r.Results = append(r.Results, entry)
}

// ResultsFor returns the recorded results for a step.
func (r *ItemRecord) ResultsFor(step string) []ResultEntry {
	var out []ResultEntry
	for _, entry := range r.Results {
		if entry.Step == step {
			out = append(out, entry)
		}
	}
	return out
}

// HasResultFrom reports whether any result for step was produced by producer.
func (r *ItemRecord) HasResultFrom(step, producer string) bool {
	for _, entry := range r.Results {
		if entry.Step == step && entry.Producer == producer {
			return true
		}
	}
	return false
}

// RetryCount returns the number of recorded failures for a step.
func (r *ItemRecord) RetryCount(step string) int {
	return r.Retries[step]
}

// RecordFailure marks a step failed, notes the error, and bumps the retry count.
func (r *ItemRecord) RecordFailure(step, kind, message string) error {
	if err := r.Transition(step, StepFailed); err != nil {
		return err
	}
	if r.Retries == nil {
		r.Retries = make(map[string]int)
	}
	r.Retries[step]++
	r.LastError = &ItemError{Kind: kind, Message: message}
	return nil
}

// Clone returns a deep copy of the record.
func (r *ItemRecord) Clone() *ItemRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Steps = make(map[string]StepStatus, len(r.Steps))
	for step, status := range r.Steps {
		clone.Steps[step] = status
	}
	if r.Retries != nil {
		clone.Retries = make(map[string]int, len(r.Retries))
		for step, count := range r.Retries {
			clone.Retries[step] = count
		}
	}
	if r.Results != nil {
		clone.Results = make([]ResultEntry, len(r.Results))
		copy(clone.Results, r.Results)
	}
	if r.LastError != nil {
		lastError := *r.LastError
		clone.LastError = &lastError
	}
	return &clone
}

// RunConfig is the provider binding a run (or resume override) executes with.
type RunConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

// Producer is the identity recorded on results produced under this config.
func (c RunConfig) Producer() string {
	provider := strings.TrimSpace(c.Provider)
	model := strings.TrimSpace(c.Model)
	if provider == "" && model == "" {
		return "unknown"
	}
	if model == "" {
		return provider
	}
	return provider + "/" + model
}

// RunManifest is the durable record of one pipeline invocation.
type RunManifest struct {
	RunID          string        `json:"run_id"`
	Status         RunStatus     `json:"status"`
	InputRoot      string        `json:"input_root"`
	Recursive      bool          `json:"recursive"`
	Steps          []string      `json:"steps"`
	Config         RunConfig     `json:"config"`
	RetryLimit     int           `json:"retry_limit"`
	CompletedCount int           `json:"completed_count"`
	ReportPath     string        `json:"report_path,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Items          []*ItemRecord `json:"items"`
}

// NewManifest constructs a running manifest with a fresh run identifier.
func NewManifest(inputRoot string, recursive bool, steps []string, cfg RunConfig, retryLimit int) *RunManifest {
	now := time.Now().UTC()
	return &RunManifest{
		RunID:      uuid.NewString(),
		Status:     RunStatusRunning,
		InputRoot:  inputRoot,
		Recursive:  recursive,
		Steps:      append([]string{}, steps...),
		Config:     cfg,
		RetryLimit: retryLimit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy of the manifest including all item records.
func (m *RunManifest) Clone() *RunManifest {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Steps = append([]string{}, m.Steps...)
	if m.Warnings != nil {
		clone.Warnings = append([]string{}, m.Warnings...)
	}
	clone.Items = make([]*ItemRecord, len(m.Items))
	for i, item := range m.Items {
		clone.Items[i] = item.Clone()
	}
	return &clone
}

func (m *RunManifest) completedItems() int {
	count := 0
	for _, item := range m.Items {
		if item.Status == ItemCompleted {
			count++
		}
	}
	return count
}
