// Package job defines the persisted job model shared by the store,
// the scheduler core, and the HTTP API.
package job

import (
	"strings"
	"time"
)

// Type is the closed set of job kinds the executor knows how to run.
//
// Unknown values are tolerated on purpose: they route to the generic
// handler so that a new job kind rolled out ahead of this binary does
// not break scheduling.
type Type string

const (
	TypeEmail          Type = "email"
	TypeDataProcessing Type = "data-processing"
	TypeReport         Type = "report"
	TypeNotification   Type = "notification"
	TypeGeneric        Type = "generic"
)

// Normalize lower-cases and trims a raw type string.
func (t Type) Normalize() Type {
	return Type(strings.ToLower(strings.TrimSpace(string(t))))
}

// Known reports whether the type has a dedicated handler.
func (t Type) Known() bool {
	switch t {
	case TypeEmail, TypeDataProcessing, TypeReport, TypeNotification, TypeGeneric:
		return true
	}
	return false
}

// Status is the job lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Schedulable reports whether a job in this state may hold a live timer.
// Only active jobs are ever registered.
func (s Status) Schedulable() bool { return s == StatusActive }

// Job is the stored record. The scheduler core treats it as a read view:
// only the store mutates persisted fields.
type Job struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	CronSchedule string         `json:"cronSchedule"`
	Type         Type           `json:"type"`
	Data         map[string]any `json:"data,omitempty"`
	Status       Status         `json:"status"`
	LastRun      *time.Time     `json:"lastRun,omitempty"`
	NextRun      *time.Time     `json:"nextRun,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
