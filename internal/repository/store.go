// internal/repository/store.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

// DBTX abstracts *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Mailings MailingRepositoryInterface
	Clients  ClientRepositoryInterface
	Messages MessageRepositoryInterface
}

// Store hands out repositories, either on the shared pool or inside a
// transaction that commits only when fn returns nil.
type Store interface {
	Repos() Repositories
	WithTx(ctx context.Context, fn func(Repositories) error) error
}

type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Mailings: &MailingRepository{DB: db},
		Clients:  &ClientRepository{DB: db},
		Messages: &MessageRepository{DB: db},
	}
}

func (s *SQLStore) Repos() Repositories {
	return NewRepositories(s.DB)
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(Repositories) error) error {
	return WithTx(ctx, s.DB, func(tx DBTX) error {
		return fn(NewRepositories(tx))
	})
}

// WithTx executes fn inside a transaction when db is *sql.DB.
// If db is already a *sql.Tx, fn is executed directly.
func WithTx(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	if db == nil {
		return errors.New("database not initialized")
	}
	if tx, ok := db.(*sql.Tx); ok {
		return fn(tx)
	}
	sqlDB, ok := db.(*sql.DB)
	if !ok {
		return errors.New("unsupported db type")
	}
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.WithSecondaryError(err, rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// filter accumulates "AND col=$n" clauses, the way the list queries need them.
type filter struct {
	clauses []string
	args    []interface{}
}

func (f *filter) eq(column string, value interface{}) {
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf(" AND %s=$%d", column, len(f.args)))
}

func (f *filter) where() string {
	return " WHERE 1=1" + strings.Join(f.clauses, "")
}

// page appends LIMIT/OFFSET placeholders and returns the clause plus all args.
func (f *filter) page(limit, offset int) (string, []interface{}) {
	n := len(f.args)
	args := append(append([]interface{}{}, f.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}
