// internal/repository/client_repository.go
package repository

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
)

type ClientRepositoryInterface interface {
	Create(ctx context.Context, c *model.Client) error
	GetByID(ctx context.Context, id int64) (*model.Client, error)
	Update(ctx context.Context, c *model.Client) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, offset, limit int, operatorCode, tag string) ([]*model.Client, int, error)
	// ListIDsByOperatorAndTag returns the clients matching both fields exactly.
	ListIDsByOperatorAndTag(ctx context.Context, operatorCode, tag string) ([]int64, error)
}

type ClientRepository struct {
	DB DBTX
}

func (r *ClientRepository) Create(ctx context.Context, c *model.Client) error {
	query := `
        INSERT INTO clients (phone_number, mobile_operator_code, tag)
        VALUES ($1, $2, $3)
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query, c.PhoneNumber, c.MobileOperatorCode, c.Tag).Scan(&c.ID)
	if isUniqueViolation(err) {
		return appErrors.ErrDuplicatePhone
	}
	return errors.Wrap(err, "insert client")
}

func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	query := `SELECT id, phone_number, mobile_operator_code, tag FROM clients WHERE id=$1`
	var c model.Client
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.PhoneNumber, &c.MobileOperatorCode, &c.Tag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewClientNotFound(id)
		}
		return nil, errors.Wrapf(err, "select client %d", id)
	}
	return &c, nil
}

func (r *ClientRepository) Update(ctx context.Context, c *model.Client) error {
	query := `UPDATE clients SET phone_number=$1, mobile_operator_code=$2, tag=$3 WHERE id=$4`
	res, err := r.DB.ExecContext(ctx, query, c.PhoneNumber, c.MobileOperatorCode, c.Tag, c.ID)
	if isUniqueViolation(err) {
		return appErrors.ErrDuplicatePhone
	}
	if err != nil {
		return errors.Wrapf(err, "update client %d", c.ID)
	}
	return requireRow(res, appErrors.NewClientNotFound(c.ID))
}

func (r *ClientRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM clients WHERE id=$1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete client %d", id)
	}
	return requireRow(res, appErrors.NewClientNotFound(id))
}

func (r *ClientRepository) List(ctx context.Context, offset, limit int, operatorCode, tag string) ([]*model.Client, int, error) {
	f := &filter{}
	if operatorCode != "" {
		f.eq("mobile_operator_code", operatorCode)
	}
	if tag != "" {
		f.eq("tag", tag)
	}

	pageClause, args := f.page(limit, offset)
	query := `SELECT id, phone_number, mobile_operator_code, tag FROM clients` + f.where() + ` ORDER BY id` + pageClause

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list clients")
	}
	defer rows.Close()

	clients := []*model.Client{}
	for rows.Next() {
		c := &model.Client{}
		if err := rows.Scan(&c.ID, &c.PhoneNumber, &c.MobileOperatorCode, &c.Tag); err != nil {
			return nil, 0, errors.Wrap(err, "scan client")
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate clients")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count clients")
	}
	return clients, total, nil
}

func (r *ClientRepository) ListIDsByOperatorAndTag(ctx context.Context, operatorCode, tag string) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id FROM clients WHERE mobile_operator_code=$1 AND tag=$2`, operatorCode, tag)
	if err != nil {
		return nil, errors.Wrap(err, "select audience")
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan audience")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "iterate audience")
}

var _ ClientRepositoryInterface = (*ClientRepository)(nil)
