// internal/repository/message_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
)

type MessageRepositoryInterface interface {
	InsertForMailing(ctx context.Context, mailingID int64, clientIDs []int64, createdAt time.Time) (int64, error)
	DeleteByMailing(ctx context.Context, mailingID int64) (int64, error)
	CountByMailing(ctx context.Context, mailingID int64) (int, error)
	ListUndelivered(ctx context.Context, mailingID int64) ([]*model.Message, error)
	ListByMailing(ctx context.Context, mailingID int64) ([]*model.Message, error)
	// InsertEntries writes messages back exactly as given, ids and delivery state included.
	InsertEntries(ctx context.Context, messages []*model.Message) (int64, error)
	// MarkSent flips an unsent message to sent. It reports false when the
	// message was already sent or no longer exists.
	MarkSent(ctx context.Context, id int64, sentAt time.Time) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	List(ctx context.Context, mailingID int64, offset, limit int) ([]*model.Message, int, error)
	Stats(ctx context.Context, mailingID int64) (model.MailingStats, error)
}

type MessageRepository struct {
	DB DBTX
}

const messageColumns = `id, mailing_id, client_id, created_at, sent_at, is_sent`

func scanMessage(row interface{ Scan(...interface{}) error }) (*model.Message, error) {
	var msg model.Message
	err := row.Scan(&msg.ID, &msg.MailingID, &msg.ClientID, &msg.CreatedAt, &msg.SentAt, &msg.IsSent)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// InsertForMailing bulk inserts one unsent message per client in a single statement.
func (r *MessageRepository) InsertForMailing(ctx context.Context, mailingID int64, clientIDs []int64, createdAt time.Time) (int64, error) {
	if len(clientIDs) == 0 {
		return 0, nil
	}
	query := `
        INSERT INTO messages (mailing_id, client_id, created_at, is_sent)
        SELECT $1, client_id, $3, FALSE FROM unnest($2::bigint[]) AS client_id
    `
	res, err := r.DB.ExecContext(ctx, query, mailingID, pq.Array(clientIDs), createdAt)
	if err != nil {
		return 0, errors.Wrapf(err, "insert messages of mailing %d", mailingID)
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "rows affected")
}

func (r *MessageRepository) DeleteByMailing(ctx context.Context, mailingID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM messages WHERE mailing_id=$1`, mailingID)
	if err != nil {
		return 0, errors.Wrapf(err, "delete messages of mailing %d", mailingID)
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "rows affected")
}

func (r *MessageRepository) CountByMailing(ctx context.Context, mailingID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE mailing_id=$1`, mailingID).Scan(&n)
	return n, errors.Wrapf(err, "count messages of mailing %d", mailingID)
}

func (r *MessageRepository) ListUndelivered(ctx context.Context, mailingID int64) ([]*model.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE mailing_id=$1 AND is_sent=FALSE ORDER BY id`, mailingID)
	if err != nil {
		return nil, errors.Wrapf(err, "select undelivered messages of mailing %d", mailingID)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepository) ListByMailing(ctx context.Context, mailingID int64) ([]*model.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE mailing_id=$1 ORDER BY id`, mailingID)
	if err != nil {
		return nil, errors.Wrapf(err, "select messages of mailing %d", mailingID)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepository) InsertEntries(ctx context.Context, messages []*model.Message) (int64, error) {
	query := `INSERT INTO messages (` + messageColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	var n int64
	for _, msg := range messages {
		_, err := r.DB.ExecContext(ctx, query, msg.ID, msg.MailingID, msg.ClientID, msg.CreatedAt, msg.SentAt, msg.IsSent)
		if err != nil {
			return n, errors.Wrapf(err, "insert message %d", msg.ID)
		}
		n++
	}
	return n, nil
}

func (r *MessageRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE messages SET is_sent=TRUE, sent_at=$1 WHERE id=$2 AND is_sent=FALSE`, sentAt, id)
	if err != nil {
		return false, errors.Wrapf(err, "mark message %d sent", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	msg, err := scanMessage(r.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewMessageNotFound(id)
		}
		return nil, errors.Wrapf(err, "select message %d", id)
	}
	return msg, nil
}

// List pages through messages, optionally restricted to one mailing (mailingID > 0).
func (r *MessageRepository) List(ctx context.Context, mailingID int64, offset, limit int) ([]*model.Message, int, error) {
	f := &filter{}
	if mailingID > 0 {
		f.eq("mailing_id", mailingID)
	}
	pageClause, args := f.page(limit, offset)

	rows, err := r.DB.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages`+f.where()+` ORDER BY id`+pageClause, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list messages")
	}
	defer rows.Close()
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count messages")
	}
	return messages, total, nil
}

func (r *MessageRepository) Stats(ctx context.Context, mailingID int64) (model.MailingStats, error) {
	query := `SELECT is_sent, COUNT(*) FROM messages WHERE mailing_id=$1 GROUP BY is_sent`
	rows, err := r.DB.QueryContext(ctx, query, mailingID)
	if err != nil {
		return model.MailingStats{}, errors.Wrapf(err, "stats of mailing %d", mailingID)
	}
	defer rows.Close()

	var stats model.MailingStats
	for rows.Next() {
		var sent bool
		var count int
		if err := rows.Scan(&sent, &count); err != nil {
			return model.MailingStats{}, errors.Wrap(err, "scan stats")
		}
		if sent {
			stats.Sent = count
		} else {
			stats.Pending = count
		}
		stats.Total += count
	}
	return stats, errors.Wrap(rows.Err(), "iterate stats")
}

func collectMessages(rows *sql.Rows) ([]*model.Message, error) {
	messages := []*model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		messages = append(messages, msg)
	}
	return messages, errors.Wrap(rows.Err(), "iterate messages")
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
