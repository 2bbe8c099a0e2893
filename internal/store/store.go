// Package store records pipeline runs and their stages so reruns can be
// compared against earlier output.
package store

import (
	"context"
	"time"
)

// RunStatus represents the current state of a command run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// PhaseStatus represents the current state of a pipeline stage.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// Run is one invocation of a pipeline command.
type Run struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Phase is one stage executed within a run. Digests are hex SHA-256 over
// the stage's input and output files.
type Phase struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	Name         string         `json:"name"`
	Status       PhaseStatus    `json:"status"`
	InputDigest  string         `json:"input_digest"`
	OutputDigest string         `json:"output_digest,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
}

// PhaseResult is what a finished stage reports back.
type PhaseResult struct {
	Status       PhaseStatus
	OutputDigest string
	DurationMs   int64
	Error        string
	Metadata     map[string]any
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  RunStatus `json:"status,omitempty"`
	Command string    `json:"command,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, command string) (*Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID, name, inputDigest string) (*Phase, error)
	CompletePhase(ctx context.Context, phaseID string, result PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]Phase, error)
	// OutputDigests returns the distinct output digests of completed phases
	// with the given name and input digest, excluding phase excludeID.
	OutputDigests(ctx context.Context, name, inputDigest, excludeID string) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
