// internal/service/lifecycle.go
package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/repository"
)

// JobJournal records the job side effects of one lifecycle call so they can
// be committed after the database transaction, or undone if it fails.
type JobJournal struct {
	cancelled []string
	planned   []Plan

	// previous and previousLedger hold the mailing as it was before a
	// significant update, so the update can be undone if arming fails.
	previous       *model.Mailing
	previousLedger []*model.Message
}

func (j *JobJournal) Planned() []Plan {
	return j.planned
}

// Lifecycle keeps a mailing's ledger and its single outstanding job in step
// with the mailing definition. The hooks run inside the caller's transaction.
type Lifecycle struct {
	Audience  AudienceResolver
	Ledger    *Ledger
	Scheduler *Scheduler
	now       func() time.Time
	log       *zap.Logger
}

func NewLifecycle(ledger *Ledger, scheduler *Scheduler, now func() time.Time, log *zap.Logger) *Lifecycle {
	return &Lifecycle{Ledger: ledger, Scheduler: scheduler, now: now, log: log}
}

// OnMailingCreated builds the ledger of a freshly inserted mailing and plans
// its dispatch, persisting the planned handle.
func (l *Lifecycle) OnMailingCreated(ctx context.Context, repos repository.Repositories, m *model.Mailing, j *JobJournal) error {
	recipients, err := l.Audience.Resolve(ctx, repos.Clients, m.MobileOperatorCode, m.Tag)
	if err != nil {
		return err
	}
	if _, err := l.Ledger.Create(ctx, repos.Messages, m, recipients); err != nil {
		return err
	}

	plan := l.Scheduler.Plan(m, l.now())
	m.JobID = plan.JobID()
	if err := repos.Mailings.UpdateJobID(ctx, m.ID, m.JobID); err != nil {
		return err
	}
	j.planned = append(j.planned, plan)
	l.logPlan(m, plan)
	return nil
}

// OnMailingUpdating runs before updated is persisted over old. Only a change
// of start, end, operator code or tag cancels the old job, rebuilds the ledger
// and plans a new job; otherwise the old handle is carried over untouched.
func (l *Lifecycle) OnMailingUpdating(ctx context.Context, repos repository.Repositories, old, updated *model.Mailing, j *JobJournal) (*model.Mailing, error) {
	if !old.SignificantlyDiffers(updated) {
		updated.JobID = old.JobID
		return updated, nil
	}

	entries, err := l.Ledger.Snapshot(ctx, repos.Messages, old)
	if err != nil {
		return nil, err
	}
	previous := *old
	j.previous = &previous
	j.previousLedger = entries

	// The old job goes first so it cannot fire against a half-rebuilt ledger.
	cancelled, err := l.Scheduler.Cancel(ctx, old.JobID)
	if err != nil {
		return nil, err
	}
	if cancelled {
		j.cancelled = append(j.cancelled, *old.JobID)
	}

	recipients, err := l.Audience.Resolve(ctx, repos.Clients, updated.MobileOperatorCode, updated.Tag)
	if err != nil {
		return nil, err
	}
	if _, err := l.Ledger.Rebuild(ctx, repos.Messages, updated, recipients); err != nil {
		return nil, err
	}

	plan := l.Scheduler.Plan(updated, l.now())
	updated.JobID = plan.JobID()
	j.planned = append(j.planned, plan)
	l.logPlan(updated, plan)
	return updated, nil
}

// OnMailingDeleted cancels the outstanding job before the row and its ledger
// are removed.
func (l *Lifecycle) OnMailingDeleted(ctx context.Context, m *model.Mailing, j *JobJournal) error {
	cancelled, err := l.Scheduler.Cancel(ctx, m.JobID)
	if err != nil {
		return err
	}
	if cancelled {
		j.cancelled = append(j.cancelled, *m.JobID)
		l.log.Info("job cancelled for deleted mailing", zap.Int64("mailing_id", m.ID), zap.String("job_id", *m.JobID))
	}
	return nil
}

// Commit arms the jobs planned in j and makes its cancellations final. It runs
// once the transaction that persisted the new handles has committed. When
// arming fails the cancellations are kept so Revert can still restore them.
func (l *Lifecycle) Commit(ctx context.Context, j *JobJournal) error {
	for _, plan := range j.planned {
		if err := l.Scheduler.Arm(ctx, plan); err != nil {
			return err
		}
	}
	for _, id := range j.cancelled {
		if err := l.Scheduler.Forget(ctx, id); err != nil {
			l.log.Warn("failed to forget cancelled job", zap.String("job_id", id), zap.Error(err))
		}
	}
	return nil
}

// Revert undoes the cancellations recorded in j after a failed transaction.
// Planned jobs were never armed, so they need no undo.
func (l *Lifecycle) Revert(ctx context.Context, j *JobJournal) error {
	var errs error
	for _, id := range j.cancelled {
		if err := l.Scheduler.Restore(ctx, id); err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		l.log.Info("job restored after failed change", zap.String("job_id", id))
	}
	return errs
}

func (l *Lifecycle) logPlan(m *model.Mailing, plan Plan) {
	if plan.Kind == PlanNone {
		l.log.Info("mailing window already elapsed, nothing scheduled",
			zap.Int64("mailing_id", m.ID),
			zap.Time("end_time", m.EndTime),
		)
	}
}
