package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
)

// ServiceParams groups dependencies for the order service.
type ServiceParams struct {
	Repo *Repository
}

// Service exposes order reads for the storefront.
type Service interface {
	GetOrder(ctx context.Context, id uuid.UUID) (OrderDTO, error)
	ListByCustomerEmail(ctx context.Context, email string, limit int) ([]OrderDTO, error)
}

type service struct {
	repo *Repository
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order repo is required")
	}
	return &service{repo: params.Repo}, nil
}

// GetOrder returns the storefront view of a single order.
func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (OrderDTO, error) {
	if id == uuid.Nil {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
		}
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return ToDTO(*order), nil
}

// ListByCustomerEmail returns a customer's order history, newest first.
func (s *service) ListByCustomerEmail(ctx context.Context, email string, limit int) ([]OrderDTO, error) {
	if strings.TrimSpace(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	items, err := s.repo.ListByCustomerEmail(ctx, email, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	dtos := make([]OrderDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, ToDTO(item))
	}
	return dtos, nil
}
