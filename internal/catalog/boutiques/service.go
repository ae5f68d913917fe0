package boutiques

import (
	"context"
	"fmt"

	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// Service exposes boutique reference data.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Boutique, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Boutique, error) {
	if id <= 0 {
		return Boutique{}, fmt.Errorf("%w: invalid boutique id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}
