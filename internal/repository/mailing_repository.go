// internal/repository/mailing_repository.go
package repository

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
)

type MailingRepositoryInterface interface {
	Create(ctx context.Context, m *model.Mailing) error
	GetByID(ctx context.Context, id int64) (*model.Mailing, error)
	// GetForUpdate loads the mailing and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*model.Mailing, error)
	Update(ctx context.Context, m *model.Mailing) error
	UpdateJobID(ctx context.Context, id int64, jobID *string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, offset, limit int) ([]*model.Mailing, int, error)
}

type MailingRepository struct {
	DB DBTX
}

const mailingColumns = `id, start_time, end_time, message_text, mobile_operator_code, tag, job_id`

func scanMailing(row interface{ Scan(...interface{}) error }) (*model.Mailing, error) {
	var m model.Mailing
	err := row.Scan(&m.ID, &m.StartTime, &m.EndTime, &m.MessageText, &m.MobileOperatorCode, &m.Tag, &m.JobID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MailingRepository) Create(ctx context.Context, m *model.Mailing) error {
	query := `
        INSERT INTO mailings (start_time, end_time, message_text, mobile_operator_code, tag, job_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query,
		m.StartTime, m.EndTime, m.MessageText, m.MobileOperatorCode, m.Tag, m.JobID,
	).Scan(&m.ID)
	return errors.Wrap(err, "insert mailing")
}

func (r *MailingRepository) GetByID(ctx context.Context, id int64) (*model.Mailing, error) {
	return r.get(ctx, `SELECT `+mailingColumns+` FROM mailings WHERE id=$1`, id)
}

func (r *MailingRepository) GetForUpdate(ctx context.Context, id int64) (*model.Mailing, error) {
	return r.get(ctx, `SELECT `+mailingColumns+` FROM mailings WHERE id=$1 FOR UPDATE`, id)
}

func (r *MailingRepository) get(ctx context.Context, query string, id int64) (*model.Mailing, error) {
	m, err := scanMailing(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewMailingNotFound(id)
		}
		return nil, errors.Wrapf(err, "select mailing %d", id)
	}
	return m, nil
}

func (r *MailingRepository) Update(ctx context.Context, m *model.Mailing) error {
	query := `
        UPDATE mailings
        SET start_time=$1, end_time=$2, message_text=$3, mobile_operator_code=$4, tag=$5, job_id=$6
        WHERE id=$7
    `
	res, err := r.DB.ExecContext(ctx, query,
		m.StartTime, m.EndTime, m.MessageText, m.MobileOperatorCode, m.Tag, m.JobID, m.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update mailing %d", m.ID)
	}
	return requireRow(res, appErrors.NewMailingNotFound(m.ID))
}

func (r *MailingRepository) UpdateJobID(ctx context.Context, id int64, jobID *string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE mailings SET job_id=$1 WHERE id=$2`, jobID, id)
	if err != nil {
		return errors.Wrapf(err, "update job of mailing %d", id)
	}
	return requireRow(res, appErrors.NewMailingNotFound(id))
}

// Delete removes the mailing; its messages go with it through ON DELETE CASCADE.
func (r *MailingRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM mailings WHERE id=$1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete mailing %d", id)
	}
	return requireRow(res, appErrors.NewMailingNotFound(id))
}

func (r *MailingRepository) List(ctx context.Context, offset, limit int) ([]*model.Mailing, int, error) {
	mailings := []*model.Mailing{}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+mailingColumns+` FROM mailings ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list mailings")
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMailing(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan mailing")
		}
		mailings = append(mailings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate mailings")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM mailings`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count mailings")
	}
	return mailings, total, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ MailingRepositoryInterface = (*MailingRepository)(nil)
