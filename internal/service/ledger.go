// internal/service/ledger.go
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

// Ledger owns the per-(mailing, client) delivery records. Callers pass the
// message repository so the ledger works inside their transaction.
type Ledger struct {
	now func() time.Time
	log *zap.Logger
}

func NewLedger(now func() time.Time, log *zap.Logger) *Ledger {
	return &Ledger{now: now, log: log}
}

// Create writes the first set of entries for a new mailing.
func (l *Ledger) Create(ctx context.Context, messages repository.MessageRepositoryInterface, m *model.Mailing, recipients []int64) (int64, error) {
	existing, err := messages.CountByMailing(ctx, m.ID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, errors.Wrapf(appErrors.ErrLedgerNotEmpty, "mailing %d has %d entries", m.ID, existing)
	}

	n, err := messages.InsertForMailing(ctx, m.ID, recipients, l.now())
	if err != nil {
		return 0, err
	}
	l.log.Info("ledger created", zap.Int64("mailing_id", m.ID), zap.Int64("entries", n))
	return n, nil
}

// Rebuild replaces every entry of m with one fresh unsent entry per recipient.
// It must run inside the caller's transaction to be atomic.
func (l *Ledger) Rebuild(ctx context.Context, messages repository.MessageRepositoryInterface, m *model.Mailing, recipients []int64) (int64, error) {
	removed, err := messages.DeleteByMailing(ctx, m.ID)
	if err != nil {
		return 0, err
	}
	n, err := messages.InsertForMailing(ctx, m.ID, recipients, l.now())
	if err != nil {
		return 0, err
	}
	l.log.Info("ledger rebuilt",
		zap.Int64("mailing_id", m.ID),
		zap.Int64("removed", removed),
		zap.Int64("entries", n),
	)
	return n, nil
}

// Snapshot returns every entry of m with its delivery state.
func (l *Ledger) Snapshot(ctx context.Context, messages repository.MessageRepositoryInterface, m *model.Mailing) ([]*model.Message, error) {
	return messages.ListByMailing(ctx, m.ID)
}

// Restore puts back entries taken by Snapshot, replacing whatever m has now.
func (l *Ledger) Restore(ctx context.Context, messages repository.MessageRepositoryInterface, m *model.Mailing, entries []*model.Message) error {
	if _, err := messages.DeleteByMailing(ctx, m.ID); err != nil {
		return err
	}
	n, err := messages.InsertEntries(ctx, entries)
	if err != nil {
		return err
	}
	l.log.Info("ledger restored", zap.Int64("mailing_id", m.ID), zap.Int64("entries", n))
	return nil
}

func (l *Ledger) FetchUndelivered(ctx context.Context, messages repository.MessageRepositoryInterface, m *model.Mailing) ([]*model.Message, error) {
	return messages.ListUndelivered(ctx, m.ID)
}

// MarkSent records the delivery of entry. Marking an already sent entry is a
// no-op that keeps the first sent time.
func (l *Ledger) MarkSent(ctx context.Context, messages repository.MessageRepositoryInterface, entry *model.Message, at time.Time) error {
	changed, err := messages.MarkSent(ctx, entry.ID, at)
	if err != nil {
		return err
	}
	if !changed {
		l.log.Debug("message already sent", zap.Int64("message_id", entry.ID))
		return nil
	}
	entry.IsSent = true
	entry.SentAt = &at
	return nil
}
