package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/notify"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// HandlerFunc is the type-specific work for one job firing. A non-nil
// error marks the run failed; the executor owns all store bookkeeping.
type HandlerFunc func(ctx context.Context, j job.Job) error

// Handlers maps job types to their work. Unknown types fall through to
// the generic handler, which succeeds: a new job kind rolled out ahead
// of this binary must not fail its runs.
type Handlers struct {
	byType  map[job.Type]HandlerFunc
	generic HandlerFunc
}

// DefaultHandlers builds the built-in handler table. sender delivers
// notification jobs; pass notify.Nop{} when no transport is configured.
func DefaultHandlers(sender notify.Sender, log logx.Logger) *Handlers {
	h := &Handlers{byType: make(map[job.Type]HandlerFunc)}

	h.byType[job.TypeEmail] = func(ctx context.Context, j job.Job) error {
		to := dataString(j.Data, "to")
		if to == "" {
			return fmt.Errorf("email job %s: missing recipient in data.to", j.ID)
		}
		log.Info("sending email",
			logx.String("job_id", j.ID),
			logx.String("to", to),
			logx.String("subject", dataString(j.Data, "subject")),
		)
		return nil
	}

	h.byType[job.TypeDataProcessing] = func(ctx context.Context, j job.Job) error {
		log.Info("processing data",
			logx.String("job_id", j.ID),
			logx.String("dataset", dataString(j.Data, "dataset")),
		)
		return nil
	}

	h.byType[job.TypeReport] = func(ctx context.Context, j job.Job) error {
		log.Info("generating report",
			logx.String("job_id", j.ID),
			logx.String("report", dataString(j.Data, "reportType")),
		)
		return nil
	}

	h.byType[job.TypeNotification] = func(ctx context.Context, j job.Job) error {
		msg := dataString(j.Data, "message")
		if msg == "" {
			msg = fmt.Sprintf("job %q fired", j.Name)
		}
		if err := sender.Send(ctx, msg); err != nil {
			return fmt.Errorf("notification job %s: %w", j.ID, err)
		}
		return nil
	}

	h.generic = func(ctx context.Context, j job.Job) error {
		log.Info("running generic job",
			logx.String("job_id", j.ID),
			logx.String("type", string(j.Type)),
		)
		return nil
	}
	h.byType[job.TypeGeneric] = h.generic

	return h
}

// Set installs or replaces the handler for a type.
func (h *Handlers) Set(t job.Type, fn HandlerFunc) {
	h.byType[t.Normalize()] = fn
}

// For returns the handler for a type, falling back to the generic one.
func (h *Handlers) For(t job.Type) HandlerFunc {
	if fn, ok := h.byType[t.Normalize()]; ok {
		return fn
	}
	return h.generic
}

func dataString(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	v, ok := data[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
