// internal/service/mailing_service.go
package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/repository"
)

type MailingService struct {
	Store     repository.Store
	Lifecycle *Lifecycle
	Log       *zap.Logger
}

// MailingChanges is a partial update; nil fields keep their current value.
type MailingChanges struct {
	StartTime          *time.Time
	EndTime            *time.Time
	MessageText        *string
	MobileOperatorCode *string
	Tag                *string
}

func (c MailingChanges) Apply(m *model.Mailing) {
	if c.StartTime != nil {
		m.StartTime = *c.StartTime
	}
	if c.EndTime != nil {
		m.EndTime = *c.EndTime
	}
	if c.MessageText != nil {
		m.MessageText = *c.MessageText
	}
	if c.MobileOperatorCode != nil {
		m.MobileOperatorCode = *c.MobileOperatorCode
	}
	if c.Tag != nil {
		m.Tag = *c.Tag
	}
}

type MailingDetails struct {
	*model.Mailing
	Stats model.MailingStats `json:"stats"`
}

func (s *MailingService) CreateMailing(ctx context.Context, m *model.Mailing) (*model.Mailing, error) {
	if !m.ValidWindow() {
		return nil, appErrors.ErrInvalidWindow
	}
	m.JobID = nil

	j := &JobJournal{}
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Mailings.Create(ctx, m); err != nil {
			return err
		}
		return s.Lifecycle.OnMailingCreated(ctx, repos, m, j)
	})
	if err != nil {
		return nil, s.abort(ctx, j, err)
	}
	if err := s.commit(ctx, m, j); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MailingService) UpdateMailing(ctx context.Context, id int64, changes MailingChanges) (*model.Mailing, error) {
	var result *model.Mailing
	j := &JobJournal{}
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		old, err := repos.Mailings.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated := *old
		changes.Apply(&updated)
		if !updated.ValidWindow() {
			return appErrors.ErrInvalidWindow
		}

		result, err = s.Lifecycle.OnMailingUpdating(ctx, repos, old, &updated, j)
		if err != nil {
			return err
		}
		return repos.Mailings.Update(ctx, result)
	})
	if err != nil {
		return nil, s.abort(ctx, j, err)
	}
	if err := s.commit(ctx, result, j); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *MailingService) DeleteMailing(ctx context.Context, id int64) error {
	j := &JobJournal{}
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		m, err := repos.Mailings.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.Lifecycle.OnMailingDeleted(ctx, m, j); err != nil {
			return err
		}
		return repos.Mailings.Delete(ctx, id)
	})
	if err != nil {
		return s.abort(ctx, j, err)
	}
	if err := s.Lifecycle.Commit(ctx, j); err != nil {
		return err
	}
	s.Log.Info("mailing deleted", zap.Int64("mailing_id", id))
	return nil
}

func (s *MailingService) GetMailing(ctx context.Context, id int64) (*MailingDetails, error) {
	repos := s.Store.Repos()
	m, err := repos.Mailings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := repos.Messages.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MailingDetails{Mailing: m, Stats: stats}, nil
}

// MailingStats counts the ledger entries of a mailing by delivery state.
func (s *MailingService) MailingStats(ctx context.Context, id int64) (model.MailingStats, error) {
	repos := s.Store.Repos()
	if _, err := repos.Mailings.GetByID(ctx, id); err != nil {
		return model.MailingStats{}, err
	}
	return repos.Messages.Stats(ctx, id)
}

// ListMailings fetches mailings with pagination
func (s *MailingService) ListMailings(ctx context.Context, page, pageSize int) ([]*model.Mailing, Pagination, error) {
	p := NewPagination(page, pageSize)
	mailings, total, err := s.Store.Repos().Mailings.List(ctx, p.Offset(), p.PageSize)
	if err != nil {
		return nil, Pagination{}, err
	}
	return mailings, p.WithTotal(total), nil
}

// RecoverJobs re-arms the outstanding job of every mailing, keeping its
// handle. It is meant for the in-memory runner after a restart; mailings whose
// window elapsed meanwhile lose their handle and keep their ledger unsent.
func (s *MailingService) RecoverJobs(ctx context.Context) (int, error) {
	repos := s.Store.Repos()
	now := s.Lifecycle.now()
	armed := 0

	for offset := 0; ; offset += maxPageSize {
		mailings, total, err := repos.Mailings.List(ctx, offset, maxPageSize)
		if err != nil {
			return armed, err
		}
		for _, m := range mailings {
			if !m.HasJob() {
				continue
			}
			plan := s.Lifecycle.Scheduler.Resume(m, now)
			if plan.Kind == PlanNone {
				s.Log.Info("job of elapsed mailing dropped", zap.Int64("mailing_id", m.ID), zap.String("job_id", *m.JobID))
				if err := repos.Mailings.UpdateJobID(ctx, m.ID, nil); err != nil {
					return armed, err
				}
				continue
			}
			if err := s.Lifecycle.Scheduler.Arm(ctx, plan); err != nil {
				return armed, err
			}
			armed++
		}
		if offset+maxPageSize >= total {
			return armed, nil
		}
	}
}

// abort reverts job side effects of a failed transaction and returns cause.
func (s *MailingService) abort(ctx context.Context, j *JobJournal, cause error) error {
	if err := s.Lifecycle.Revert(ctx, j); err != nil {
		s.Log.Error("failed to restore jobs after aborted change", zap.Error(err), zap.NamedError("cause", cause))
		return errors.WithSecondaryError(cause, err)
	}
	return cause
}

// commit arms the jobs planned by a committed transaction. If arming fails
// after an update, the previous definition, ledger and job are put back. A new
// mailing is left unarmed rather than pointing at a job that does not exist.
func (s *MailingService) commit(ctx context.Context, m *model.Mailing, j *JobJournal) error {
	err := s.Lifecycle.Commit(ctx, j)
	if err == nil {
		return nil
	}
	s.Log.Error("failed to arm mailing job", zap.Int64("mailing_id", m.ID), zap.Error(err))
	if j.previous != nil {
		if undoErr := s.undoUpdate(ctx, j); undoErr != nil {
			s.Log.Error("failed to restore mailing after arm failure", zap.Int64("mailing_id", m.ID), zap.Error(undoErr))
			return errors.WithSecondaryError(err, undoErr)
		}
		return err
	}
	if clearErr := s.Store.Repos().Mailings.UpdateJobID(ctx, m.ID, nil); clearErr != nil {
		return errors.WithSecondaryError(err, clearErr)
	}
	m.JobID = nil
	return err
}

// undoUpdate writes back the mailing and ledger captured in j, then restores
// the job the update cancelled. The row is rewritten first so the restored job
// finds its own handle on the mailing when it fires.
func (s *MailingService) undoUpdate(ctx context.Context, j *JobJournal) error {
	prev := j.previous
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Mailings.GetForUpdate(ctx, prev.ID); err != nil {
			return err
		}
		if err := repos.Mailings.Update(ctx, prev); err != nil {
			return err
		}
		return s.Lifecycle.Ledger.Restore(ctx, repos.Messages, prev, j.previousLedger)
	})
	if err != nil {
		return err
	}
	if err := s.Lifecycle.Revert(ctx, j); err != nil {
		return err
	}
	s.Log.Info("mailing restored after arm failure", zap.Int64("mailing_id", prev.ID))
	return nil
}
