package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/mariposavintage/mariposa-backend/pkg/errors"
)

// ServiceParams groups dependencies for the product service.
type ServiceParams struct {
	Repo *Repository
}

// Service exposes catalog reads for the storefront.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (ProductDTO, error)
	ListProducts(ctx context.Context, limit, offset int) ([]ProductDTO, error)
}

type service struct {
	repo *Repository
}

// NewService builds a product service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	return &service{repo: params.Repo}, nil
}

// GetProduct returns the catalog view of a single product.
func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (ProductDTO, error) {
	if id == uuid.Nil {
		return ProductDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return toDTO(*product), nil
}

// ListProducts returns the active catalog page.
func (s *service) ListProducts(ctx context.Context, limit, offset int) ([]ProductDTO, error) {
	items, err := s.repo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	dtos := make([]ProductDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, toDTO(item))
	}
	return dtos, nil
}
