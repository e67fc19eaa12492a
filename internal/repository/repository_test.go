package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var (
	start = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end   = start.Add(2 * time.Hour)
)

func mailingRow(id int64, jobID interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "start_time", "end_time", "message_text", "mobile_operator_code", "tag", "job_id"}).
		AddRow(id, start, end, "hello", "916", "vip", jobID)
}

func TestMailingRepositoryCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := &MailingRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO mailings")).
		WithArgs(start, end, "hello", "916", "vip", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	m := &model.Mailing{StartTime: start, EndTime: end, MessageText: "hello", MobileOperatorCode: "916", Tag: "vip"}
	require.NoError(t, repo.Create(context.Background(), m))
	assert.Equal(t, int64(42), m.ID)
}

func TestMailingRepositoryGetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := &MailingRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("FROM mailings WHERE id=$1")).
		WithArgs(int64(3)).
		WillReturnRows(mailingRow(3, "job-1"))

	m, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "vip", m.Tag)
	require.NotNil(t, m.JobID)
	assert.Equal(t, "job-1", *m.JobID)
}

func TestMailingRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := &MailingRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("FROM mailings WHERE id=$1")).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 9)
	assert.True(t, appErrors.IsMailingNotFound(err))
}

func TestMailingRepositoryGetForUpdateLocksRow(t *testing.T) {
	db, mock := newMock(t)
	repo := &MailingRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id=$1 FOR UPDATE")).
		WithArgs(int64(3)).
		WillReturnRows(mailingRow(3, nil))

	m, err := repo.GetForUpdate(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, m.JobID)
}

func TestMailingRepositoryUpdateJobIDMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := &MailingRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE mailings SET job_id=$1 WHERE id=$2")).
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	job := "job-2"
	err := repo.UpdateJobID(context.Background(), 5, &job)
	assert.True(t, appErrors.IsMailingNotFound(err))
}

func TestMailingRepositoryList(t *testing.T) {
	db, mock := newMock(t)
	repo := &MailingRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id DESC LIMIT $1 OFFSET $2")).
		WithArgs(10, 20).
		WillReturnRows(mailingRow(2, nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM mailings")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	mailings, total, err := repo.List(context.Background(), 20, 10)
	require.NoError(t, err)
	assert.Len(t, mailings, 1)
	assert.Equal(t, 21, total)
}

func TestClientRepositoryCreateDuplicatePhone(t *testing.T) {
	db, mock := newMock(t)
	repo := &ClientRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO clients")).
		WithArgs("79161234567", "916", "vip").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &model.Client{PhoneNumber: "79161234567", MobileOperatorCode: "916", Tag: "vip"})
	assert.True(t, errors.Is(err, appErrors.ErrDuplicatePhone))
}

func TestClientRepositoryListFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := &ClientRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND mobile_operator_code=$1 AND tag=$2 ORDER BY id LIMIT $3 OFFSET $4")).
		WithArgs("916", "vip", 5, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone_number", "mobile_operator_code", "tag"}).
			AddRow(1, "79161234567", "916", "vip"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM clients WHERE 1=1 AND mobile_operator_code=$1 AND tag=$2")).
		WithArgs("916", "vip").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	clients, total, err := repo.List(context.Background(), 0, 5, "916", "vip")
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	assert.Equal(t, 1, total)
}

func TestClientRepositoryListIDsByOperatorAndTag(t *testing.T) {
	db, mock := newMock(t)
	repo := &ClientRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE mobile_operator_code=$1 AND tag=$2")).
		WithArgs("916", "vip").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(4))

	ids, err := repo.ListIDsByOperatorAndTag(context.Background(), "916", "vip")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)
}

func TestMessageRepositoryInsertForMailing(t *testing.T) {
	db, mock := newMock(t)
	repo := &MessageRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("unnest($2::bigint[])")).
		WithArgs(int64(7), pq.Array([]int64{1, 2, 3}), start).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.InsertForMailing(context.Background(), 7, []int64{1, 2, 3}, start)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMessageRepositoryInsertForMailingEmptyAudience(t *testing.T) {
	db, _ := newMock(t)
	repo := &MessageRepository{DB: db}

	n, err := repo.InsertForMailing(context.Background(), 7, nil, start)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMessageRepositoryInsertEntriesKeepsDeliveryState(t *testing.T) {
	db, mock := newMock(t)
	repo := &MessageRepository{DB: db}
	sentAt := start.Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages (id, mailing_id, client_id, created_at, sent_at, is_sent)")).
		WithArgs(int64(21), int64(7), int64(1), start, sentAt, true).
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages (id, mailing_id, client_id, created_at, sent_at, is_sent)")).
		WithArgs(int64(22), int64(7), int64(2), start, nil, false).
		WillReturnResult(sqlmock.NewResult(22, 1))

	n, err := repo.InsertEntries(context.Background(), []*model.Message{
		{ID: 21, MailingID: 7, ClientID: 1, CreatedAt: start, SentAt: &sentAt, IsSent: true},
		{ID: 22, MailingID: 7, ClientID: 2, CreatedAt: start},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMessageRepositoryListByMailing(t *testing.T) {
	db, mock := newMock(t)
	repo := &MessageRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE mailing_id=$1 ORDER BY id")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mailing_id", "client_id", "created_at", "sent_at", "is_sent"}).
			AddRow(21, 7, 1, start, start, true).
			AddRow(22, 7, 2, start, nil, false))

	msgs, err := repo.ListByMailing(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsSent)
	require.NotNil(t, msgs[0].SentAt)
	assert.Nil(t, msgs[1].SentAt)
}

func TestMessageRepositoryMarkSentIsConditional(t *testing.T) {
	db, mock := newMock(t)
	repo := &MessageRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("WHERE id=$2 AND is_sent=FALSE")).
		WithArgs(start, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id=$2 AND is_sent=FALSE")).
		WithArgs(start.Add(time.Minute), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkSent(context.Background(), 11, start)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkSent(context.Background(), 11, start.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMessageRepositoryStats(t *testing.T) {
	db, mock := newMock(t)
	repo := &MessageRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY is_sent")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"is_sent", "count"}).AddRow(true, 2).AddRow(false, 5))

	stats, err := repo.Stats(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.MailingStats{Total: 7, Sent: 2, Pending: 5}, stats)
}

func TestSQLStoreWithTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	store := NewSQLStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM messages WHERE mailing_id=$1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithTx(context.Background(), func(repos Repositories) error {
		if _, err := repos.Messages.DeleteByMailing(context.Background(), 7); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))
}

func TestSQLStoreWithTxCommits(t *testing.T) {
	db, mock := newMock(t)
	store := NewSQLStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM mailings WHERE id=$1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(repos Repositories) error {
		return repos.Mailings.Delete(context.Background(), 7)
	})
	assert.NoError(t, err)
}
