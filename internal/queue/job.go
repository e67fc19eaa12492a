package queue

import (
	"context"
	"time"
)

// Job is the payload of one dispatch run for a mailing. ID is the handle the
// mailing records while the job is outstanding.
type Job struct {
	ID        string    `json:"id"`
	MailingID int64     `json:"mailing_id"`
	FireAt    time.Time `json:"fire_at"`
}

// Handler runs a job. A returned error makes the runner retry it.
type Handler func(ctx context.Context, job Job) error

// Runner schedules jobs for immediate or deferred execution.
type Runner interface {
	// Submit schedules job to run at job.FireAt, or right away if that is not in the future.
	Submit(ctx context.Context, job Job) error
	// Cancel stops a job that has not started yet. It returns
	// appErrors.ErrJobNotFound when the job already ran or was already cancelled.
	Cancel(ctx context.Context, id string) error
	// Restore re-arms a job cancelled earlier, undoing Cancel.
	Restore(ctx context.Context, id string) error
	// Forget drops what Cancel kept for Restore once the cancellation is final.
	Forget(ctx context.Context, id string) error
}
