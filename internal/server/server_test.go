package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Karthik-guddanti/digantara/internal/job"
	"github.com/Karthik-guddanti/digantara/internal/notify"
	"github.com/Karthik-guddanti/digantara/internal/schedule"
	"github.com/Karthik-guddanti/digantara/internal/scheduler"
	"github.com/Karthik-guddanti/digantara/internal/store"
	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

func newTestServer(t *testing.T) (*Server, *store.Memory, *scheduler.Service) {
	t.Helper()
	st := store.NewMemory()
	eval, err := schedule.New("")
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	handlers := scheduler.DefaultHandlers(notify.Nop{}, logx.Nop())
	sched := scheduler.New(scheduler.Config{
		Workers:           1,
		DiscoveryInterval: time.Hour,
	}, st, eval, handlers, logx.Nop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	srv := New(Config{Addr: ":0"}, st, sched, eval, logx.Nop())
	return srv, st, sched
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestCreateJobRegistersTimer(t *testing.T) {
	t.Parallel()
	srv, st, sched := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/jobs", `{
		"name": "minutely-mail",
		"cronSchedule": "*/1 * * * *",
		"type": "email",
		"data": {"to": "ops@example.com"}
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var created job.Job
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Status != job.StatusActive {
		t.Fatalf("created = %+v", created)
	}
	if created.NextRun == nil || !created.NextRun.After(time.Now().Add(-time.Second)) {
		t.Fatalf("NextRun = %v", created.NextRun)
	}
	// nextRun is the input time rounded up to the next whole minute.
	if created.NextRun.Second() != 0 {
		t.Fatalf("NextRun not aligned to whole minute: %v", created.NextRun)
	}

	if got := sched.Status().TimerCount; got != 1 {
		t.Fatalf("TimerCount = %d, want 1", got)
	}
	if _, err := st.FindByID(context.Background(), created.ID); err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
}

func TestCreateJobInvalidCronNeverReachesRegistry(t *testing.T) {
	t.Parallel()
	srv, st, sched := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/jobs", `{
		"name": "broken",
		"cronSchedule": "not-a-cron",
		"type": "email"
	}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
	}

	all, err := st.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatal("invalid job was persisted")
	}
	if got := sched.Status().TimerCount; got != 0 {
		t.Fatalf("TimerCount = %d, want 0", got)
	}
}

func TestCreateJobValidation(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"cronSchedule": "* * * * *", "type": "email"}`},
		{name: "missing schedule", body: `{"name": "x", "type": "email"}`},
		{name: "unknown field", body: `{"name": "x", "cronSchedule": "* * * * *", "typ": "email"}`},
		{name: "not json", body: `hello`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/jobs", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	w := doJSON(t, srv.Handler(), http.MethodGet, "/jobs/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	srv, st, _ := newTestServer(t)
	h := srv.Handler()

	if _, err := st.Create(context.Background(), store.CreateJob{
		Name: "a", CronSchedule: "* * * * *", Type: job.TypeGeneric,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := doJSON(t, h, http.MethodGet, "/jobs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var jobs []job.Job
	if err := json.Unmarshal(w.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "a" {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, sched := newTestServer(t)
	w := doJSON(t, srv.Handler(), http.MethodGet, "/scheduler/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var snap scheduler.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.InstanceID != sched.InstanceID() || !snap.Running {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	limited := New(Config{Addr: ":0", RateLimitRPS: 1, RateLimitBurst: 1}, srv.store, srv.sched, srv.eval, logx.Nop())
	h := limited.Handler()

	first := doJSON(t, h, http.MethodGet, "/healthz", "")
	if first.Code != http.StatusOK {
		t.Fatalf("first request rejected: %d", first.Code)
	}
	second := doJSON(t, h, http.MethodGet, "/healthz", "")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", second.Code)
	}
}
