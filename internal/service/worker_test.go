package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/queue"
	"github.com/unclebandit/mailing-service/internal/repository/repotest"
)

func createImmediate(t *testing.T, h *harness) (*model.Mailing, queue.Job) {
	t.Helper()
	m, err := h.svc.CreateMailing(context.Background(), mailing(t0.Add(-time.Hour), t0.Add(time.Hour), "900", "vip"))
	require.NoError(t, err)
	jobs := h.runner.liveFor(m.ID)
	require.Len(t, jobs, 1)
	return m, jobs[0]
}

func TestDispatchWorkerIsolatesSendFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	seedVIPs(h)
	h.sender.fails["79000000002"] = true

	m, job := createImmediate(t, h)

	require.NoError(t, h.worker.Run(ctx, job))

	assert.Equal(t, 2, h.sender.count())
	sent := map[string]bool{}
	for _, e := range h.store.Ledger(m.ID) {
		c, _ := h.store.Repos().Clients.GetByID(ctx, e.ClientID)
		sent[c.PhoneNumber] = e.IsSent
	}
	assert.Equal(t, map[string]bool{"79000000001": true, "79000000002": false, "79000000003": true}, sent)

	// A rerun only touches what is still undelivered.
	delete(h.sender.fails, "79000000002")
	require.NoError(t, h.worker.Run(ctx, job))
	assert.Equal(t, 3, h.sender.count())
	for _, e := range h.store.Ledger(m.ID) {
		assert.True(t, e.IsSent)
	}
}

func TestDispatchWorkerMarkFailureLeavesEntryUnsent(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	seedVIPs(h)

	m, job := createImmediate(t, h)
	broken := h.store.Ledger(m.ID)[0]
	h.store.FailMarkSent[broken.ID] = true

	require.NoError(t, h.worker.Run(ctx, job))

	stats, err := h.store.Repos().Messages.Stats(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MailingStats{Total: 3, Sent: 2, Pending: 1}, stats)
}

func TestDispatchWorkerAfterClientDeleted(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	ids := seedVIPs(h)

	m, job := createImmediate(t, h)
	require.NoError(t, h.store.Repos().Clients.Delete(ctx, ids[0]))

	require.NoError(t, h.worker.Run(ctx, job))
	assert.Equal(t, 2, h.sender.count())

	stats, err := h.store.Repos().Messages.Stats(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MailingStats{Total: 2, Sent: 2}, stats, "the client's entry goes with it")
}

func TestDispatchWorkerSkipsSupersededJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	seedVIPs(h)

	m, job := createImmediate(t, h)

	stale := queue.Job{ID: "superseded", MailingID: m.ID, FireAt: job.FireAt}
	require.NoError(t, h.worker.Run(ctx, stale))
	assert.Zero(t, h.sender.count())

	for _, e := range h.store.Ledger(m.ID) {
		assert.False(t, e.IsSent)
	}
}

func TestDispatchWorkerMissingMailing(t *testing.T) {
	h := newHarness()
	err := h.worker.Run(context.Background(), queue.Job{ID: "x", MailingID: 12345})
	assert.NoError(t, err)
	assert.Zero(t, h.sender.count())
}

func TestDispatchWorkerDoesNotRecheckWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	seedVIPs(h)

	_, job := createImmediate(t, h)

	// The job is picked up after the window already closed.
	h.clock.Set(t0.Add(3 * time.Hour))
	require.NoError(t, h.worker.Run(ctx, job))
	assert.Equal(t, 3, h.sender.count())
}

func TestDispatchWorkerStopsOnCancelledContext(t *testing.T) {
	h := newHarness()
	seedVIPs(h)

	_, job := createImmediate(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.worker.Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.sender.count())
}

func TestDispatchWorkerWithInMemoryRunner(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()
	store := repotest.NewStore()
	store.AddClient("79000000001", "900", "vip")
	store.AddClient("79000000002", "900", "vip")
	sender := &recordingSender{fails: map[string]bool{}}

	runner := queue.NewInMemoryRunner(log)
	defer runner.Close()

	ledger := NewLedger(time.Now, log)
	worker := NewDispatchWorker(store, ledger, sender, time.Now, log)
	runner.Subscribe(worker.Run)
	svc := &MailingService{
		Store:     store,
		Lifecycle: NewLifecycle(ledger, NewScheduler(runner, time.UTC, log), time.Now, log),
		Log:       log,
	}

	now := time.Now()
	m, err := svc.CreateMailing(ctx, mailing(now.Add(-time.Minute), now.Add(time.Hour), "900", "vip"))
	require.NoError(t, err)

	runner.Wait()

	assert.Equal(t, 2, sender.count())
	details, err := svc.GetMailing(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, details.Stats.Sent)
}
