// Package notify announces finished pipeline runs to downstream consumers.
package notify

import (
	"context"
	"time"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunCompleted is published once per pipeline run, whether it succeeded or not.
type RunCompleted struct {
	RunID         string         `json:"run_id"`
	Status        string         `json:"status"`
	ReferenceDate string         `json:"reference_date"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Sinks         []string       `json:"sinks"`
	Rows          map[string]int `json:"rows,omitempty"`
	Error         string         `json:"error,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, ev RunCompleted) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, RunCompleted) error { return nil }
