package meter

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	meterDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
)

type RepositoryAPI interface {
	// Create returns ErrMeterExists when the meter number is taken.
	Create(ctx context.Context, m *meterDatamodel.Meter) error
	// GetByNumber returns nil, nil when absent.
	GetByNumber(ctx context.Context, meterNumber string) (*meterDatamodel.Meter, error)
	List(ctx context.Context) ([]*meterDatamodel.Meter, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterMeterRequest) (*Meter, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	row := &meterDatamodel.Meter{
		MeterNumber:  req.MeterNumber,
		CustomerName: optional(req.CustomerName),
		PhoneNumber:  optional(req.PhoneNumber),
		Email:        optional(req.Email),
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeMeterExists {
			return nil, appErr
		}
		s.logger.Error("failed to register meter", "meter_number", req.MeterNumber, "error", err)
		return nil, errors.NewInternalError("failed to register meter", err)
	}

	s.logger.Info("meter registered", "meter_number", row.MeterNumber, "id", row.ID)
	return FromDataModel(row), nil
}

func (s *Service) Get(ctx context.Context, meterNumber string) (*Meter, error) {
	row, err := s.repo.GetByNumber(ctx, meterNumber)
	if err != nil {
		return nil, errors.NewInternalError("failed to load meter", err)
	}
	if row == nil {
		return nil, errors.ErrMeterNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) List(ctx context.Context) ([]*Meter, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.NewInternalError("failed to list meters", err)
	}
	meters := make([]*Meter, 0, len(rows))
	for _, row := range rows {
		meters = append(meters, FromDataModel(row))
	}
	return meters, nil
}

func (s *Service) Exists(ctx context.Context, meterNumber string) (bool, error) {
	row, err := s.repo.GetByNumber(ctx, meterNumber)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Seed registers the sample meters, skipping any that already exist.
func (s *Service) Seed(ctx context.Context, requests []RegisterMeterRequest) (int, error) {
	created := 0
	for _, req := range requests {
		_, err := s.Register(ctx, req)
		if err == nil {
			created++
			continue
		}
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeMeterExists {
			continue
		}
		return created, err
	}
	return created, nil
}

func SampleMeters() []RegisterMeterRequest {
	return []RegisterMeterRequest{
		{MeterNumber: "MTR001", CustomerName: "John Kamau", PhoneNumber: "254712345678", Email: "john.kamau@example.com"},
		{MeterNumber: "MTR002", CustomerName: "Mary Wanjiku", PhoneNumber: "254723456789", Email: "mary.wanjiku@example.com"},
		{MeterNumber: "MTR003", CustomerName: "Peter Otieno", PhoneNumber: "254734567890", Email: "peter.otieno@example.com"},
	}
}
