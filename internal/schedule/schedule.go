// Package schedule evaluates cron expressions: validity and next-trigger
// computation. It is the only place in the repo that parses cron syntax.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression marks a schedule string that cannot be parsed.
// Callers must never register a timer when they see this error.
var ErrInvalidExpression = errors.New("invalid cron expression")

// Evaluator computes trigger instants for cron expressions in a fixed
// location. The zero value is not usable; construct with New.
//
// Evaluation is a pure function of (expression, reference time): the same
// inputs always yield the same instant, which keeps scheduling tests
// deterministic.
type Evaluator struct {
	parser cron.Parser
	loc    *time.Location

	// cache avoids re-parsing hot expressions on every trigger.
	mu    sync.RWMutex
	cache map[string]cron.Schedule
}

// New builds an Evaluator for the given IANA timezone name.
// An empty name means UTC. An unknown name is an error: the schedule
// location is a deployment-level decision and silently falling back
// would shift every trigger.
func New(timezone string) (*Evaluator, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("schedule: unknown timezone %q: %w", tz, err)
		}
		loc = l
	}
	return &Evaluator{
		// SecondOptional allows both 5-field and 6-field (seconds-first) specs.
		// Descriptors ("@hourly", "@every") are deliberately excluded: stored
		// schedules are plain cron expressions.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		loc:    loc,
		cache:  make(map[string]cron.Schedule),
	}, nil
}

// Location returns the evaluator's fixed reference location.
func (e *Evaluator) Location() *time.Location { return e.loc }

// Validate reports whether expr is a well-formed 5- or 6-field cron
// expression. On failure the returned error wraps ErrInvalidExpression.
func (e *Evaluator) Validate(expr string) error {
	_, err := e.schedule(expr)
	return err
}

// Next returns the earliest instant strictly after ref that satisfies expr,
// expressed in the evaluator's location.
func (e *Evaluator) Next(expr string, ref time.Time) (time.Time, error) {
	sched, err := e.schedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(ref.In(e.loc)), nil
}

// Schedule returns the parsed schedule for expr so that callers holding a
// cron runner can install it without re-parsing.
func (e *Evaluator) Schedule(expr string) (cron.Schedule, error) {
	return e.schedule(expr)
}

func (e *Evaluator) schedule(expr string) (cron.Schedule, error) {
	key := strings.TrimSpace(expr)
	if key == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	e.mu.RLock()
	sched, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := e.parser.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}

	e.mu.Lock()
	e.cache[key] = sched
	e.mu.Unlock()
	return sched, nil
}
