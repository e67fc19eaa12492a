// Package repotest provides an in-memory repository.Store for tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/repository"
)

type tables struct {
	mailings map[int64]model.Mailing
	clients  map[int64]model.Client
	messages map[int64]model.Message
	nextID   int64
}

func (d *tables) clone() *tables {
	c := &tables{
		mailings: map[int64]model.Mailing{},
		clients:  map[int64]model.Client{},
		messages: map[int64]model.Message{},
		nextID:   d.nextID,
	}
	for k, v := range d.mailings {
		c.mailings[k] = v
	}
	for k, v := range d.clients {
		c.clients[k] = v
	}
	for k, v := range d.messages {
		c.messages[k] = v
	}
	return c
}

// Store keeps everything in maps. WithTx serializes transactions and restores
// a snapshot when fn fails, so rollback semantics match the SQL store.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *tables

	// FailMailingUpdate, when set, is returned by Mailings.Update.
	FailMailingUpdate error
	// FailMarkSent makes Messages.MarkSent fail for the listed message IDs.
	FailMarkSent map[int64]bool
}

func NewStore() *Store {
	return &Store{
		data:         &tables{mailings: map[int64]model.Mailing{}, clients: map[int64]model.Client{}, messages: map[int64]model.Message{}},
		FailMarkSent: map[int64]bool{},
	}
}

func (s *Store) Repos() repository.Repositories {
	return repository.Repositories{
		Mailings: &mailingRepo{s},
		Clients:  &clientRepo{s},
		Messages: &messageRepo{s},
	}
}

func (s *Store) WithTx(_ context.Context, fn func(repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s.Repos()); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *Store) AddClient(phone, code, tag string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.data.clients[id] = model.Client{ID: id, PhoneNumber: phone, MobileOperatorCode: code, Tag: tag}
	return id
}

func (s *Store) Mailing(id int64) (model.Mailing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data.mailings[id]
	return m, ok
}

func (s *Store) Ledger(mailingID int64) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, msg := range s.data.messages {
		if msg.MailingID == mailingID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (s *Store) LedgerClients(mailingID int64) []int64 {
	ids := []int64{}
	for _, msg := range s.Ledger(mailingID) {
		ids = append(ids, msg.ClientID)
	}
	return ids
}

type mailingRepo struct{ s *Store }

func (r *mailingRepo) Create(_ context.Context, m *model.Mailing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.id()
	r.s.data.mailings[m.ID] = *m
	return nil
}

func (r *mailingRepo) GetByID(_ context.Context, id int64) (*model.Mailing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.data.mailings[id]
	if !ok {
		return nil, appErrors.NewMailingNotFound(id)
	}
	return &m, nil
}

func (r *mailingRepo) GetForUpdate(ctx context.Context, id int64) (*model.Mailing, error) {
	return r.GetByID(ctx, id)
}

func (r *mailingRepo) Update(_ context.Context, m *model.Mailing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailMailingUpdate != nil {
		return r.s.FailMailingUpdate
	}
	if _, ok := r.s.data.mailings[m.ID]; !ok {
		return appErrors.NewMailingNotFound(m.ID)
	}
	r.s.data.mailings[m.ID] = *m
	return nil
}

func (r *mailingRepo) UpdateJobID(_ context.Context, id int64, jobID *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.data.mailings[id]
	if !ok {
		return appErrors.NewMailingNotFound(id)
	}
	m.JobID = jobID
	r.s.data.mailings[id] = m
	return nil
}

func (r *mailingRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.mailings[id]; !ok {
		return appErrors.NewMailingNotFound(id)
	}
	delete(r.s.data.mailings, id)
	for k, msg := range r.s.data.messages {
		if msg.MailingID == id {
			delete(r.s.data.messages, k)
		}
	}
	return nil
}

func (r *mailingRepo) List(_ context.Context, offset, limit int) ([]*model.Mailing, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := []*model.Mailing{}
	for _, m := range r.s.data.mailings {
		m := m
		all = append(all, &m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []*model.Mailing{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

type clientRepo struct{ s *Store }

func (r *clientRepo) Create(_ context.Context, c *model.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.clients {
		if existing.PhoneNumber == c.PhoneNumber {
			return appErrors.ErrDuplicatePhone
		}
	}
	c.ID = r.s.id()
	r.s.data.clients[c.ID] = *c
	return nil
}

func (r *clientRepo) GetByID(_ context.Context, id int64) (*model.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.clients[id]
	if !ok {
		return nil, appErrors.NewClientNotFound(id)
	}
	return &c, nil
}

func (r *clientRepo) Update(_ context.Context, c *model.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.clients[c.ID]; !ok {
		return appErrors.NewClientNotFound(c.ID)
	}
	for id, existing := range r.s.data.clients {
		if id != c.ID && existing.PhoneNumber == c.PhoneNumber {
			return appErrors.ErrDuplicatePhone
		}
	}
	r.s.data.clients[c.ID] = *c
	return nil
}

func (r *clientRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.clients[id]; !ok {
		return appErrors.NewClientNotFound(id)
	}
	delete(r.s.data.clients, id)
	for k, msg := range r.s.data.messages {
		if msg.ClientID == id {
			delete(r.s.data.messages, k)
		}
	}
	return nil
}

func (r *clientRepo) List(_ context.Context, offset, limit int, operatorCode, tag string) ([]*model.Client, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := []*model.Client{}
	for _, c := range r.s.data.clients {
		if (operatorCode == "" || c.MobileOperatorCode == operatorCode) && (tag == "" || c.Tag == tag) {
			c := c
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return []*model.Client{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (r *clientRepo) ListIDsByOperatorAndTag(_ context.Context, operatorCode, tag string) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := []int64{}
	for _, c := range r.s.data.clients {
		if c.MobileOperatorCode == operatorCode && c.Tag == tag {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) InsertForMailing(_ context.Context, mailingID int64, clientIDs []int64, createdAt time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, msg := range r.s.data.messages {
		for _, cid := range clientIDs {
			if msg.MailingID == mailingID && msg.ClientID == cid {
				return 0, errors.Newf("duplicate ledger entry for mailing %d client %d", mailingID, cid)
			}
		}
	}
	for _, cid := range clientIDs {
		id := r.s.id()
		r.s.data.messages[id] = model.Message{ID: id, MailingID: mailingID, ClientID: cid, CreatedAt: createdAt}
	}
	return int64(len(clientIDs)), nil
}

func (r *messageRepo) DeleteByMailing(_ context.Context, mailingID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, msg := range r.s.data.messages {
		if msg.MailingID == mailingID {
			delete(r.s.data.messages, k)
			n++
		}
	}
	return n, nil
}

func (r *messageRepo) CountByMailing(_ context.Context, mailingID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, msg := range r.s.data.messages {
		if msg.MailingID == mailingID {
			n++
		}
	}
	return n, nil
}

func (r *messageRepo) ListUndelivered(_ context.Context, mailingID int64) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Message{}
	for _, msg := range r.s.data.messages {
		if msg.MailingID == mailingID && !msg.IsSent {
			msg := msg
			out = append(out, &msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *messageRepo) ListByMailing(_ context.Context, mailingID int64) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Message{}
	for _, msg := range r.s.data.messages {
		if msg.MailingID == mailingID {
			msg := msg
			out = append(out, &msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *messageRepo) InsertEntries(_ context.Context, messages []*model.Message) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, msg := range messages {
		if _, exists := r.s.data.messages[msg.ID]; exists {
			return 0, errors.Newf("duplicate message id %d", msg.ID)
		}
	}
	for _, msg := range messages {
		r.s.data.messages[msg.ID] = *msg
	}
	return int64(len(messages)), nil
}

func (r *messageRepo) MarkSent(_ context.Context, id int64, sentAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailMarkSent[id] {
		return false, errors.Newf("mark %d failed", id)
	}
	msg, ok := r.s.data.messages[id]
	if !ok || msg.IsSent {
		return false, nil
	}
	msg.IsSent = true
	msg.SentAt = &sentAt
	r.s.data.messages[id] = msg
	return true, nil
}

func (r *messageRepo) GetByID(_ context.Context, id int64) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.data.messages[id]
	if !ok {
		return nil, appErrors.NewMessageNotFound(id)
	}
	return &msg, nil
}

func (r *messageRepo) List(_ context.Context, mailingID int64, offset, limit int) ([]*model.Message, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := []*model.Message{}
	for _, msg := range r.s.data.messages {
		if mailingID == 0 || msg.MailingID == mailingID {
			msg := msg
			all = append(all, &msg)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return []*model.Message{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (r *messageRepo) Stats(_ context.Context, mailingID int64) (model.MailingStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stats model.MailingStats
	for _, msg := range r.s.data.messages {
		if msg.MailingID != mailingID {
			continue
		}
		stats.Total++
		if msg.IsSent {
			stats.Sent++
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}

var _ repository.Store = (*Store)(nil)
