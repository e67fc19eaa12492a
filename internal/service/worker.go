// internal/service/worker.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/queue"
	"github.com/unclebandit/mailing-service/internal/repository"
)

// DispatchWorker delivers the undelivered messages of a mailing when its job fires.
type DispatchWorker struct {
	Store  repository.Store
	Ledger *Ledger
	Sender Sender
	now    func() time.Time
	log    *zap.Logger
}

func NewDispatchWorker(store repository.Store, ledger *Ledger, sender Sender, now func() time.Time, log *zap.Logger) *DispatchWorker {
	return &DispatchWorker{Store: store, Ledger: ledger, Sender: sender, now: now, log: log}
}

// Run is the queue.Handler for dispatch jobs. A mailing deleted after its job
// was armed, or a job superseded by a newer one, ends the run without error.
// The mailing window is not re-checked here.
func (w *DispatchWorker) Run(ctx context.Context, job queue.Job) error {
	log := w.log.With(zap.Int64("mailing_id", job.MailingID), zap.String("job_id", job.ID))
	repos := w.Store.Repos()

	m, err := repos.Mailings.GetByID(ctx, job.MailingID)
	if appErrors.IsMailingNotFound(err) {
		log.Info("mailing not found, nothing to send")
		return nil
	}
	if err != nil {
		return err
	}
	if job.ID != "" && (m.JobID == nil || *m.JobID != job.ID) {
		log.Info("job is no longer the mailing's current job, skipping")
		return nil
	}

	entries, err := w.Ledger.FetchUndelivered(ctx, repos.Messages, m)
	if err != nil {
		return err
	}
	log.Info("dispatch started", zap.Int("undelivered", len(entries)))

	sent := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.deliver(ctx, repos, m, entry, log) {
			sent++
		}
	}

	log.Info("dispatch finished", zap.Int("sent", sent), zap.Int("failed", len(entries)-sent))
	return nil
}

// deliver sends one entry and marks it sent. Failures are logged and leave the
// entry unsent; they never stop the batch.
func (w *DispatchWorker) deliver(ctx context.Context, repos repository.Repositories, m *model.Mailing, entry *model.Message, log *zap.Logger) bool {
	log = log.With(zap.Int64("message_id", entry.ID), zap.Int64("client_id", entry.ClientID))

	client, err := repos.Clients.GetByID(ctx, entry.ClientID)
	if err != nil {
		log.Warn("client lookup failed", zap.Error(err))
		return false
	}

	err = w.Sender.Send(ctx, Delivery{
		MessageID:   entry.ID,
		MailingID:   m.ID,
		PhoneNumber: client.PhoneNumber,
		Text:        m.MessageText,
	})
	if err != nil {
		log.Warn("send failed", zap.Error(err))
		return false
	}

	if err := w.Ledger.MarkSent(ctx, repos.Messages, entry, w.now()); err != nil {
		log.Error("failed to mark message sent", zap.Error(err))
		return false
	}
	return true
}
