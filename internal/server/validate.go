package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/schedule"
)

// CreateJobRequest is the POST /jobs payload.
type CreateJobRequest struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	CronSchedule string         `json:"cronSchedule"`
	Type         job.Type       `json:"type"`
	Data         map[string]any `json:"data,omitempty"`
}

const maxNameLen = 200

// validateJobData checks the request and normalizes it in place.
// Unknown job types are accepted (they run the generic handler); a
// malformed cron expression is rejected here so it can never reach the
// timer registry.
func (s *Server) validateJobData(req *CreateJobRequest) error {
	var problems []string

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		problems = append(problems, "name is required")
	} else if len(req.Name) > maxNameLen {
		problems = append(problems, fmt.Sprintf("name exceeds %d characters", maxNameLen))
	}

	req.CronSchedule = strings.TrimSpace(req.CronSchedule)
	if req.CronSchedule == "" {
		problems = append(problems, "cronSchedule is required")
	} else if err := s.eval.Validate(req.CronSchedule); err != nil {
		if errors.Is(err, schedule.ErrInvalidExpression) {
			problems = append(problems, fmt.Sprintf("cronSchedule %q is not a valid cron expression", req.CronSchedule))
		} else {
			problems = append(problems, err.Error())
		}
	}

	req.Type = req.Type.Normalize()
	if req.Type == "" {
		req.Type = job.TypeGeneric
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// calculateNextRunTime computes the first trigger for a new job.
func (s *Server) calculateNextRunTime(expr string) (time.Time, error) {
	next, err := s.eval.Next(expr, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot compute next run: %w", err)
	}
	return next, nil
}
