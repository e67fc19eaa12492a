// internal/service/client_service.go
package service

import (
	"context"

	"github.com/unclebandit/mailing-service/internal/model"
	"github.com/unclebandit/mailing-service/internal/repository"
)

// ClientService is the thin CRUD surface over clients. Client edits never
// touch existing ledgers; audiences are resolved when a mailing is built.
type ClientService struct {
	Store repository.Store
}

func (s *ClientService) CreateClient(ctx context.Context, c *model.Client) (*model.Client, error) {
	if err := s.Store.Repos().Clients.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	return s.Store.Repos().Clients.GetByID(ctx, id)
}

func (s *ClientService) UpdateClient(ctx context.Context, c *model.Client) (*model.Client, error) {
	if err := s.Store.Repos().Clients.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) DeleteClient(ctx context.Context, id int64) error {
	return s.Store.Repos().Clients.Delete(ctx, id)
}

func (s *ClientService) ListClients(ctx context.Context, page, pageSize int, operatorCode, tag string) ([]*model.Client, Pagination, error) {
	p := NewPagination(page, pageSize)
	clients, total, err := s.Store.Repos().Clients.List(ctx, p.Offset(), p.PageSize, operatorCode, tag)
	if err != nil {
		return nil, Pagination{}, err
	}
	return clients, p.WithTotal(total), nil
}

// MessageService is the read side of the delivery ledger.
type MessageService struct {
	Store repository.Store
}

func (s *MessageService) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	return s.Store.Repos().Messages.GetByID(ctx, id)
}

func (s *MessageService) ListMessages(ctx context.Context, mailingID int64, page, pageSize int) ([]*model.Message, Pagination, error) {
	p := NewPagination(page, pageSize)
	messages, total, err := s.Store.Repos().Messages.List(ctx, mailingID, p.Offset(), p.PageSize)
	if err != nil {
		return nil, Pagination{}, err
	}
	return messages, p.WithTotal(total), nil
}
