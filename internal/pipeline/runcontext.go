package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunContext carries the state scoped to one pipeline invocation. It is
// created at pipeline start, passed explicitly through every stage, and
// discarded at the end; nothing about a run lives in package state.
type RunContext struct {
	RunID     string
	StartedAt time.Time
	Pages     int
}

// NewRunContext starts a run with a fresh identifier.
func NewRunContext() *RunContext {
	now := time.Now().UTC()
	return &RunContext{
		RunID:     fmt.Sprintf("etl_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8]),
		StartedAt: now,
	}
}

// Status is a stage or run outcome, usable directly as a process exit code.
type Status int

const (
	StatusSuccess Status = 0
	StatusFailed  Status = 1
	StatusPartial Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	default:
		return "failed"
	}
}

// worse keeps the more severe of two outcomes.
func worse(a, b Status) Status {
	if a == StatusFailed || b == StatusFailed {
		return StatusFailed
	}
	if a == StatusPartial || b == StatusPartial {
		return StatusPartial
	}
	return StatusSuccess
}
