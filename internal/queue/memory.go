package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
)

// InMemoryRunner runs jobs in-process on timers, retrying failed runs with
// linear backoff.
type InMemoryRunner struct {
	mu        sync.Mutex
	handler   Handler
	pending   map[string]*pendingJob
	cancelled map[string]Job
	closed    bool

	MaxRetries int
	Backoff    time.Duration
	now        func() time.Time
	log        *zap.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

type pendingJob struct {
	job   Job
	timer *time.Timer
}

func NewInMemoryRunner(log *zap.Logger) *InMemoryRunner {
	ctx, stop := context.WithCancel(context.Background())
	return &InMemoryRunner{
		pending:    make(map[string]*pendingJob),
		cancelled:  make(map[string]Job),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		now:        time.Now,
		log:        log,
		ctx:        ctx,
		stop:       stop,
	}
}

// Subscribe sets the handler jobs are delivered to.
func (r *InMemoryRunner) Subscribe(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

func (r *InMemoryRunner) Submit(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitLocked(job)
}

func (r *InMemoryRunner) submitLocked(job Job) error {
	if r.closed {
		return errors.New("runner is closed")
	}
	if _, exists := r.pending[job.ID]; exists {
		return errors.Newf("job %s already scheduled", job.ID)
	}

	delay := job.FireAt.Sub(r.now())
	if delay < 0 {
		delay = 0
	}
	r.wg.Add(1)
	// fire blocks on r.mu until this entry is stored, even for a zero delay.
	r.pending[job.ID] = &pendingJob{
		job:   job,
		timer: time.AfterFunc(delay, func() { r.fire(job.ID) }),
	}
	return nil
}

func (r *InMemoryRunner) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[id]
	if !ok {
		return appErrors.ErrJobNotFound
	}
	delete(r.pending, id)
	r.cancelled[id] = p.job
	if p.timer.Stop() {
		r.wg.Done()
	}
	return nil
}

func (r *InMemoryRunner) Restore(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.cancelled[id]
	if !ok {
		return appErrors.ErrJobNotFound
	}
	delete(r.cancelled, id)
	return r.submitLocked(job)
}

func (r *InMemoryRunner) Forget(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, id)
	return nil
}

// Scheduled reports whether id is waiting to run.
func (r *InMemoryRunner) Scheduled(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return Job{}, false
	}
	return p.job, true
}

// Wait blocks until every submitted job has run or been cancelled.
func (r *InMemoryRunner) Wait() {
	r.wg.Wait()
}

// Close drops jobs that have not fired and waits for running ones.
func (r *InMemoryRunner) Close() {
	r.mu.Lock()
	r.closed = true
	for id, p := range r.pending {
		delete(r.pending, id)
		if p.timer.Stop() {
			r.wg.Done()
		}
	}
	r.mu.Unlock()

	r.stop()
	r.wg.Wait()
}

func (r *InMemoryRunner) fire(id string) {
	defer r.wg.Done()

	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	handler := r.handler
	r.mu.Unlock()

	if !ok {
		return
	}
	if handler == nil {
		r.log.Warn("no handler subscribed, dropping job", zap.String("job_id", id))
		return
	}
	r.process(handler, p.job)
}

func (r *InMemoryRunner) process(handler Handler, job Job) {
	for attempt := 1; ; attempt++ {
		err := handler(r.ctx, job)
		if err == nil {
			r.log.Debug("job processed", zap.String("job_id", job.ID), zap.Int64("mailing_id", job.MailingID))
			return
		}

		r.log.Warn("job failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.MaxRetries),
			zap.Error(err),
		)
		if attempt > r.MaxRetries {
			r.log.Error("job permanently failed", zap.String("job_id", job.ID), zap.Int64("mailing_id", job.MailingID))
			return
		}

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * r.Backoff):
		}
	}
}

var _ Runner = (*InMemoryRunner)(nil)
