package parts

import (
	"context"
	"fmt"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// Service coordinates catalog operations.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Part, int, error) {
	if filters.BoutiqueID == 0 {
		return nil, 0, shared.ErrBoutiqueScope
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, boutiqueID, id int64) (Part, error) {
	if boutiqueID == 0 {
		return Part{}, shared.ErrBoutiqueScope
	}
	if id <= 0 {
		return Part{}, fmt.Errorf("%w: invalid part id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, boutiqueID, id)
}

func (s *Service) Create(ctx context.Context, part Part) (Part, error) {
	if err := s.validate(part); err != nil {
		return Part{}, err
	}
	if part.Stock < 0 || part.StockMin < 0 {
		return Part{}, fmt.Errorf("%w: stock values cannot be negative", shared.ErrValidation)
	}
	return s.repo.Create(ctx, part)
}

func (s *Service) Update(ctx context.Context, part Part) error {
	if part.ID <= 0 {
		return fmt.Errorf("%w: invalid part id", shared.ErrValidation)
	}
	if err := s.validate(part); err != nil {
		return err
	}
	return s.repo.Update(ctx, part)
}

// Deactivate retires a part from the catalog. Parts are never hard-deleted:
// their movement history must outlive them.
func (s *Service) Deactivate(ctx context.Context, boutiqueID, id int64) error {
	if boutiqueID == 0 {
		return shared.ErrBoutiqueScope
	}
	return s.repo.SetActive(ctx, boutiqueID, id, false)
}

// Reactivate returns a deactivated part to the catalog.
func (s *Service) Reactivate(ctx context.Context, boutiqueID, id int64) error {
	if boutiqueID == 0 {
		return shared.ErrBoutiqueScope
	}
	return s.repo.SetActive(ctx, boutiqueID, id, true)
}

func (s *Service) validate(part Part) error {
	if part.BoutiqueID == 0 {
		return shared.ErrBoutiqueScope
	}
	if part.Reference == "" {
		return fmt.Errorf("%w: reference required", shared.ErrValidation)
	}
	if part.Name == "" {
		return fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if part.SalePrice.IsNegative() || part.PurchasePrice.IsNegative() {
		return fmt.Errorf("%w: prices cannot be negative", shared.ErrValidation)
	}
	return nil
}
