package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/queue"
	"github.com/unclebandit/mailing-service/internal/repository/repotest"
)

// ---- clock ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// ---- runner ----

// fakeRunner holds jobs until the test fires them, like a broker with a
// manual clock.
type fakeRunner struct {
	mu         sync.Mutex
	pending    map[string]queue.Job
	cancelled  map[string]queue.Job
	submitted  []queue.Job
	cancels    []string
	failCancel error
	failSubmit error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{pending: map[string]queue.Job{}, cancelled: map[string]queue.Job{}}
}

func (r *fakeRunner) Submit(_ context.Context, job queue.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSubmit != nil {
		return r.failSubmit
	}
	r.pending[job.ID] = job
	r.submitted = append(r.submitted, job)
	return nil
}

func (r *fakeRunner) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, id)
	if r.failCancel != nil {
		return r.failCancel
	}
	job, ok := r.pending[id]
	if !ok {
		return appErrors.ErrJobNotFound
	}
	delete(r.pending, id)
	r.cancelled[id] = job
	return nil
}

func (r *fakeRunner) Restore(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.cancelled[id]
	if !ok {
		return appErrors.ErrJobNotFound
	}
	delete(r.cancelled, id)
	r.pending[id] = job
	return nil
}

func (r *fakeRunner) Forget(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, id)
	return nil
}

func (r *fakeRunner) cancelledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancelled)
}

func (r *fakeRunner) live() []queue.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []queue.Job{}
	for _, j := range r.pending {
		out = append(out, j)
	}
	return out
}

func (r *fakeRunner) liveFor(mailingID int64) []queue.Job {
	out := []queue.Job{}
	for _, j := range r.live() {
		if j.MailingID == mailingID {
			out = append(out, j)
		}
	}
	return out
}

// fireDue runs every pending job whose fire time is not after now.
func (r *fakeRunner) fireDue(ctx context.Context, now time.Time, handler queue.Handler) error {
	r.mu.Lock()
	due := []queue.Job{}
	for id, j := range r.pending {
		if !j.FireAt.After(now) {
			due = append(due, j)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, j := range due {
		if err := handler(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

// ---- sender ----

type recordingSender struct {
	mu    sync.Mutex
	sent  []Delivery
	fails map[string]bool
}

func (s *recordingSender) Send(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails[d.PhoneNumber] {
		return errors.Newf("gateway rejected %s", d.PhoneNumber)
	}
	s.sent = append(s.sent, d)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// ---- wiring ----

type harness struct {
	clock  *fakeClock
	store  *repotest.Store
	runner *fakeRunner
	sender *recordingSender
	ledger *Ledger
	sched  *Scheduler
	svc    *MailingService
	worker *DispatchWorker
}

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newHarness() *harness {
	log := zap.NewNop()
	h := &harness{
		clock:  &fakeClock{t: t0},
		store:  repotest.NewStore(),
		runner: newFakeRunner(),
		sender: &recordingSender{fails: map[string]bool{}},
	}
	h.ledger = NewLedger(h.clock.Now, log)
	h.sched = NewScheduler(h.runner, time.UTC, log)
	lifecycle := NewLifecycle(h.ledger, h.sched, h.clock.Now, log)
	h.svc = &MailingService{Store: h.store, Lifecycle: lifecycle, Log: log}
	h.worker = NewDispatchWorker(h.store, h.ledger, h.sender, h.clock.Now, log)
	return h
}

func (h *harness) fireDue(ctx context.Context) error {
	return h.runner.fireDue(ctx, h.clock.Now(), h.worker.Run)
}

func mailing(start, end time.Time, code, tag string) *model.Mailing {
	return &model.Mailing{StartTime: start, EndTime: end, MessageText: "hello", MobileOperatorCode: code, Tag: tag}
}
