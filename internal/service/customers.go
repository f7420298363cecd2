package service

import (
	"context"
	"fmt"

	apperrors "pacer/internal/errors"
	"pacer/internal/models"
)

const (
	DefaultHighValueLimit = 100
	MaxHighValueLimit     = 1000
)

type CustomerService struct {
	store Store
}

func NewCustomerService(store Store) *CustomerService {
	return &CustomerService{store: store}
}

func (s *CustomerService) Get(ctx context.Context, email string) (*models.Customer, error) {
	if models.NormalizeEmail(email) == "" {
		return nil, fmt.Errorf("%w: email is required", apperrors.ErrInvalidInput)
	}
	c, err := s.store.GetCustomer(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if c == nil {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (s *CustomerService) Segments(ctx context.Context) (map[string]int, error) {
	counts, err := s.store.SegmentCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count segments: %w", err)
	}
	return counts, nil
}

func (s *CustomerService) HighValue(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, error) {
	if filter.MinLTV < 0 || filter.Limit < 0 {
		return nil, fmt.Errorf("%w: min_ltv and limit must not be negative", apperrors.ErrInvalidInput)
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultHighValueLimit
	}
	filter.Limit = min(filter.Limit, MaxHighValueLimit)

	out, err := s.store.ListHighValueCustomers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list high-value customers: %w", err)
	}
	if out == nil {
		out = []models.Customer{}
	}
	return out, nil
}

func (s *CustomerService) AtRisk(ctx context.Context, minOrders, minDaysInactive int) ([]models.Customer, error) {
	if minOrders < 0 || minDaysInactive < 0 {
		return nil, fmt.Errorf("%w: thresholds must not be negative", apperrors.ErrInvalidInput)
	}
	out, err := s.store.ListAtRiskCustomers(ctx, minOrders, minDaysInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list at-risk customers: %w", err)
	}
	if out == nil {
		out = []models.Customer{}
	}
	return out, nil
}
