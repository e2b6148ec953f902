package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/internal/customers"
	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/metrics"
	"github.com/dvega/clienthub-backend/pkg/prediction"
)

// Segment decision thresholds, spend in cents.
const (
	highValueSpendCents = 100_000
	activeWindowDays    = 90
	atRiskWindowDays    = 180
	dormantWindowDays   = 365
)

// Churn AOV bands, in cents.
const (
	churnAOVLowCents = 5_000
	churnAOVMidCents = 10_000
)

const (
	defaultSimilarLimit = 10
	maxSimilarLimit     = 50

	segmentAllJob = "segment_all"
)

type customerRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID, includeDeleted bool) (*models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	ListSegmentPage(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]models.Customer, error)
	FindSimilar(ctx context.Context, source *models.Customer, limit int) ([]models.Customer, error)
	UpdateWithTx(tx *gorm.DB, customer *models.Customer) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type predictor interface {
	PredictChurn(ctx context.Context, features prediction.Features) (float64, error)
	PredictCLV(ctx context.Context, features prediction.Features, months int) (float64, error)
	Embed(ctx context.Context, profile prediction.Profile) ([]float64, error)
}

// Recommendations pairs similar-customer ids with the integration caveat.
type Recommendations struct {
	SimilarCustomerIDs []uuid.UUID `json:"similar_customer_ids"`
	Note               string      `json:"note"`
}

// Service exposes the rule-based customer analytics.
type Service interface {
	RecomputeSegment(ctx context.Context, tenantID, customerID uuid.UUID) (enums.Segment, error)
	SegmentAll(ctx context.Context, tenantID uuid.UUID) (map[enums.Segment]int, error)
	ChurnRisk(ctx context.Context, tenantID, customerID uuid.UUID) (*float64, error)
	PredictCLV(ctx context.Context, tenantID, customerID uuid.UUID, months int) (*decimal.Decimal, error)
	FindSimilar(ctx context.Context, tenantID, customerID uuid.UUID, limit int) ([]customers.CustomerDTO, error)
	GenerateEmbedding(ctx context.Context, tenantID, customerID uuid.UUID) ([]float64, error)
	Recommendations(ctx context.Context, tenantID, customerID uuid.UUID, limit int) (*Recommendations, error)
}

type service struct {
	repo      customerRepository
	tx        txRunner
	logg      *logger.Logger
	predictor predictor
	jobs      *metrics.JobMetrics
	batchSize int
	now       func() time.Time
}

// ServiceParams wires the analytics service collaborators.
type ServiceParams struct {
	Repo      customerRepository
	Tx        txRunner
	Logger    *logger.Logger
	Predictor predictor
	Jobs      *metrics.JobMetrics
	BatchSize int
}

// NewService builds the analytics service. Predictor and job metrics are
// optional; without a predictor the heuristics run alone and embedding
// requests are refused.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		logg:      params.Logger,
		predictor: params.Predictor,
		jobs:      params.Jobs,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// ClassifySegment is the pure decision table over a customer's aggregates.
// Without a last order timestamp there is no recency to ladder on, so the
// customer stays new even when orders are already counted.
func ClassifySegment(totalOrders int, totalSpentCents int64, lastOrderAt *time.Time, now time.Time) enums.Segment {
	if totalOrders == 0 || lastOrderAt == nil {
		return enums.SegmentNew
	}

	days := daysBetween(*lastOrderAt, now)

	switch {
	case totalSpentCents > highValueSpendCents && days <= activeWindowDays:
		return enums.SegmentHighValue
	case days <= activeWindowDays:
		return enums.SegmentActive
	case days <= atRiskWindowDays:
		return enums.SegmentAtRisk
	case days <= dormantWindowDays:
		return enums.SegmentDormant
	default:
		return enums.SegmentChurned
	}
}

// HeuristicChurnScore sums the recency, frequency and AOV bands, capped at 1.0.
// Returns nil for customers with no orders.
func HeuristicChurnScore(customer *models.Customer, now time.Time) *float64 {
	if customer == nil || customer.TotalOrders == 0 {
		return nil
	}

	score := 0.0

	if customer.LastOrderAt != nil {
		switch d := daysBetween(*customer.LastOrderAt, now); {
		case d > 365:
			score += 0.5
		case d > 180:
			score += 0.4
		case d > 90:
			score += 0.3
		case d > 60:
			score += 0.2
		case d > 30:
			score += 0.1
		}
	}

	if customer.FirstOrderAt != nil {
		if daysAsCustomer := daysBetween(*customer.FirstOrderAt, now); daysAsCustomer > 0 {
			ordersPerMonth := float64(customer.TotalOrders) / float64(daysAsCustomer) * 30
			switch {
			case ordersPerMonth < 0.5:
				score += 0.3
			case ordersPerMonth < 1:
				score += 0.2
			case ordersPerMonth < 2:
				score += 0.1
			}
		}
	}

	switch aov := customer.AverageOrderValueCents; {
	case aov < churnAOVLowCents:
		score += 0.2
	case aov < churnAOVMidCents:
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return &score
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func (s *service) loadCustomer(ctx context.Context, tenantID, customerID uuid.UUID) (*models.Customer, error) {
	customer, err := s.repo.FindByID(ctx, tenantID, customerID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

func (s *service) RecomputeSegment(ctx context.Context, tenantID, customerID uuid.UUID) (enums.Segment, error) {
	customer, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return "", err
	}

	segment := ClassifySegment(customer.TotalOrders, customer.TotalSpentCents, customer.LastOrderAt, s.now())
	customer.Segment = segment
	customer.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, customer); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist segment")
	}
	return segment, nil
}

// SegmentAll reclassifies every non-deleted customer in the tenant, one fixed
// page per transaction, and returns counts per resulting segment. Page
// failures are collected so the scan still covers the remaining pages.
func (s *service) SegmentAll(ctx context.Context, tenantID uuid.UUID) (map[enums.Segment]int, error) {
	started := s.now()
	counts := make(map[enums.Segment]int)
	var errs error

	for offset := 0; ; offset += s.batchSize {
		rows, err := s.repo.ListSegmentPage(ctx, tenantID, offset, s.batchSize)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("page at offset %d: %w", offset, err))
			break
		}
		if len(rows) == 0 {
			break
		}

		pageCounts := make(map[enums.Segment]int)
		pageErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			now := s.now()
			for i := range rows {
				customer := &rows[i]
				segment := ClassifySegment(customer.TotalOrders, customer.TotalSpentCents, customer.LastOrderAt, now)
				pageCounts[segment]++
				if customer.Segment == segment {
					continue
				}
				customer.Segment = segment
				customer.UpdatedAt = now
				if err := s.repo.UpdateWithTx(tx, customer); err != nil {
					return err
				}
			}
			return nil
		})
		if pageErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("page at offset %d: %w", offset, pageErr))
		} else {
			for segment, n := range pageCounts {
				counts[segment] += n
			}
		}

		if len(rows) < s.batchSize {
			break
		}
	}

	s.jobs.ObserveDuration(segmentAllJob, s.now().Sub(started))
	if errs != nil {
		s.jobs.IncFailure(segmentAllJob)
		return counts, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "segment scan incomplete")
	}
	s.jobs.IncSuccess(segmentAllJob)
	return counts, nil
}

func (s *service) ChurnRisk(ctx context.Context, tenantID, customerID uuid.UUID) (*float64, error) {
	customer, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	if customer.TotalOrders == 0 {
		return nil, nil
	}

	now := s.now()
	score := HeuristicChurnScore(customer, now)

	if s.predictor != nil {
		predicted, predErr := s.predictor.PredictChurn(ctx, s.features(customer, now))
		if predErr != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"customer_id": customer.ID,
			}), "churn predictor failed, using heuristic")
		} else {
			score = &predicted
		}
	}

	customer.ChurnRiskScore = score
	customer.UpdatedAt = now
	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist churn score")
	}
	return score, nil
}

func (s *service) PredictCLV(ctx context.Context, tenantID, customerID uuid.UUID, months int) (*decimal.Decimal, error) {
	if months <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "months must be positive")
	}

	customer, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	if customer.TotalOrders == 0 {
		return nil, nil
	}
	if customer.FirstOrderAt == nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"customer_id": customer.ID,
		}), "customer has orders but no first_order_at, skipping clv")
		return nil, nil
	}

	now := s.now()
	daysAsCustomer := daysBetween(*customer.FirstOrderAt, now)
	if daysAsCustomer <= 0 {
		return nil, nil
	}
	clv := s.heuristicCLV(customer, months, daysAsCustomer)

	if s.predictor != nil {
		predicted, predErr := s.predictor.PredictCLV(ctx, s.features(customer, now), months)
		if predErr != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"customer_id": customer.ID,
			}), "clv predictor failed, using heuristic")
		} else {
			clv = decimal.NewFromFloat(predicted).Round(2)
		}
	}

	cents := customers.DecimalToCents(clv)
	customer.LifetimeValueCents = &cents
	customer.UpdatedAt = now
	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist clv")
	}
	return &clv, nil
}

func (s *service) heuristicCLV(customer *models.Customer, months, daysAsCustomer int) decimal.Decimal {
	ordersPerMonth := float64(customer.TotalOrders) / float64(daysAsCustomer) * 30

	clv := customers.CentsToDecimal(customer.AverageOrderValueCents).
		Mul(decimal.NewFromFloat(ordersPerMonth)).
		Mul(decimal.NewFromInt(int64(months)))

	if customer.ChurnRiskScore != nil {
		retention := decimal.NewFromFloat(1 - *customer.ChurnRiskScore*0.5)
		clv = clv.Mul(retention)
	}
	return clv.Round(2)
}

func (s *service) features(customer *models.Customer, now time.Time) prediction.Features {
	features := prediction.Features{
		TotalOrders:       customer.TotalOrders,
		TotalSpent:        customers.CentsToDecimal(customer.TotalSpentCents).InexactFloat64(),
		AverageOrderValue: customers.CentsToDecimal(customer.AverageOrderValueCents).InexactFloat64(),
	}
	if customer.LastOrderAt != nil {
		d := daysBetween(*customer.LastOrderAt, now)
		features.DaysSinceLastOrder = &d
	}
	if customer.FirstOrderAt != nil {
		d := daysBetween(*customer.FirstOrderAt, now)
		features.DaysAsCustomer = &d
	}
	return features
}

func (s *service) FindSimilar(ctx context.Context, tenantID, customerID uuid.UUID, limit int) ([]customers.CustomerDTO, error) {
	source, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	if limit > maxSimilarLimit {
		limit = maxSimilarLimit
	}

	rows, err := s.repo.FindSimilar(ctx, source, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find similar customers")
	}

	dtos := make([]customers.CustomerDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *customers.FromModel(&rows[i]))
	}
	return dtos, nil
}

func (s *service) GenerateEmbedding(ctx context.Context, tenantID, customerID uuid.UUID) ([]float64, error) {
	if s.predictor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "embedding capability unavailable: no prediction service configured")
	}

	customer, err := s.loadCustomer(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	profile := prediction.Profile{
		Segment:     customer.Segment.String(),
		Tags:        customer.Tags,
		Preferences: customer.Preferences,
	}
	vector, err := s.predictor.Embed(ctx, profile)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate embedding")
	}

	customer.Embedding = vector
	customer.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist embedding")
	}
	return vector, nil
}

func (s *service) Recommendations(ctx context.Context, tenantID, customerID uuid.UUID, limit int) (*Recommendations, error) {
	similar, err := s.FindSimilar(ctx, tenantID, customerID, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(similar))
	for _, dto := range similar {
		ids = append(ids, dto.ID)
	}
	return &Recommendations{
		SimilarCustomerIDs: ids,
		Note:               "product recommendations require order-history integration",
	}, nil
}
