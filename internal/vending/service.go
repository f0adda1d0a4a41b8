package vending

import (
	"context"

	errors "github.com/frahmantamala/smartwater-vending/internal"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Service exposes the pipeline together with read access to issued vends.
type Service struct {
	*Pipeline
	repo RepositoryAPI
}

func NewService(pipeline *Pipeline, repo RepositoryAPI) *Service {
	return &Service{Pipeline: pipeline, repo: repo}
}

func (s *Service) GetByToken(ctx context.Context, token string) (*VendRecord, error) {
	row, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, errors.NewInternalError("failed to load vend", err)
	}
	if row == nil {
		return nil, errors.ErrVendNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) ListByMeter(ctx context.Context, meterNumber string, limit int) ([]*VendRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.repo.ListByMeter(ctx, meterNumber, limit)
	if err != nil {
		return nil, errors.NewInternalError("failed to list vends", err)
	}

	records := make([]*VendRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, FromDataModel(row))
	}
	return records, nil
}
