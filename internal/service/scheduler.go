// internal/service/scheduler.go
package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/queue"
)

type PlanKind int

const (
	PlanNone PlanKind = iota
	PlanImmediate
	PlanDeferred
)

func (k PlanKind) String() string {
	switch k {
	case PlanImmediate:
		return "immediate"
	case PlanDeferred:
		return "deferred"
	default:
		return "none"
	}
}

// Plan is a dispatch decision. Job is zero for PlanNone.
type Plan struct {
	Kind PlanKind
	Job  queue.Job
}

// JobID is the handle to persist on the mailing, nil when nothing is armed.
func (p Plan) JobID() *string {
	if p.Kind == PlanNone {
		return nil
	}
	id := p.Job.ID
	return &id
}

// Scheduler decides when a mailing dispatches and talks to the job runner.
type Scheduler struct {
	runner queue.Runner
	loc    *time.Location
	newID  func() string
	log    *zap.Logger
}

func NewScheduler(runner queue.Runner, loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{runner: runner, loc: loc, newID: uuid.NewString, log: log}
}

// Plan decides how m dispatches given the current time:
//   - now inside [start, end]: run immediately
//   - start still ahead: run at start
//   - window elapsed: nothing runs and the ledger stays unsent
//
// All three comparisons use the same instant in the scheduler's zone.
func (s *Scheduler) Plan(m *model.Mailing, now time.Time) Plan {
	now = now.In(s.loc)
	start := m.StartTime.In(s.loc)
	end := m.EndTime.In(s.loc)

	switch {
	case !start.After(now) && !now.After(end):
		return Plan{Kind: PlanImmediate, Job: queue.Job{ID: s.newID(), MailingID: m.ID, FireAt: now}}
	case start.After(now):
		return Plan{Kind: PlanDeferred, Job: queue.Job{ID: s.newID(), MailingID: m.ID, FireAt: start}}
	default:
		return Plan{Kind: PlanNone}
	}
}

// Resume plans m again under its existing handle, for runners that lost their
// jobs on restart. A mailing whose window has elapsed resumes to PlanNone.
func (s *Scheduler) Resume(m *model.Mailing, now time.Time) Plan {
	if !m.HasJob() {
		return Plan{Kind: PlanNone}
	}
	plan := s.Plan(m, now)
	if plan.Kind != PlanNone {
		plan.Job.ID = *m.JobID
	}
	return plan
}

// Arm hands a planned job to the runner.
func (s *Scheduler) Arm(ctx context.Context, p Plan) error {
	if p.Kind == PlanNone {
		return nil
	}
	if err := s.runner.Submit(ctx, p.Job); err != nil {
		return errors.Wrapf(err, "arm job %s for mailing %d", p.Job.ID, p.Job.MailingID)
	}

	fields := []zap.Field{zap.Int64("mailing_id", p.Job.MailingID), zap.String("job_id", p.Job.ID)}
	if p.Kind == PlanImmediate {
		s.log.Info("mailing dispatching immediately", fields...)
	} else {
		s.log.Info("mailing scheduled", append(fields, zap.Time("fire_at", p.Job.FireAt))...)
	}
	return nil
}

// Cancel asks the runner to drop the job behind handle. It reports whether a
// pending job was actually cancelled; a job that already ran or was already
// cancelled is not an error.
func (s *Scheduler) Cancel(ctx context.Context, handle *string) (bool, error) {
	if handle == nil || *handle == "" {
		return false, nil
	}
	err := s.runner.Cancel(ctx, *handle)
	if errors.Is(err, appErrors.ErrJobNotFound) {
		s.log.Debug("job already gone", zap.String("job_id", *handle))
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "cancel job %s", *handle)
	}
	s.log.Info("job cancelled", zap.String("job_id", *handle))
	return true, nil
}

// Restore undoes a Cancel.
func (s *Scheduler) Restore(ctx context.Context, handle string) error {
	err := s.runner.Restore(ctx, handle)
	if errors.Is(err, appErrors.ErrJobNotFound) {
		return nil
	}
	return errors.Wrapf(err, "restore job %s", handle)
}

// Forget tells the runner a cancellation is final and will not be restored.
func (s *Scheduler) Forget(ctx context.Context, handle string) error {
	return errors.Wrapf(s.runner.Forget(ctx, handle), "forget job %s", handle)
}
