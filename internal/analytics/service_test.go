package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	pkgerrors "github.com/dvega/clienthub-backend/pkg/errors"
	"github.com/dvega/clienthub-backend/pkg/logger"
	"github.com/dvega/clienthub-backend/pkg/prediction"
)

func daysAgo(now time.Time, days int) *time.Time {
	t := now.Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

func TestClassifySegment(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		totalOrders int
		spentCents  int64
		lastOrderAt *time.Time
		want        enums.Segment
	}{
		{"no orders", 0, 0, nil, enums.SegmentNew},
		{"big spender recent", 5, 150_000, daysAgo(now, 30), enums.SegmentHighValue},
		{"big spender stale", 5, 150_000, daysAgo(now, 120), enums.SegmentAtRisk},
		{"spend at threshold is not high value", 5, 100_000, daysAgo(now, 30), enums.SegmentActive},
		{"recent small spender", 2, 5_000, daysAgo(now, 60), enums.SegmentActive},
		{"at risk window", 2, 5_000, daysAgo(now, 150), enums.SegmentAtRisk},
		{"dormant window", 2, 5_000, daysAgo(now, 300), enums.SegmentDormant},
		{"beyond a year", 2, 5_000, daysAgo(now, 400), enums.SegmentChurned},
		{"orders but unknown recency stay new", 2, 5_000, nil, enums.SegmentNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySegment(tt.totalOrders, tt.spentCents, tt.lastOrderAt, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicChurnScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("nil without orders", func(t *testing.T) {
		assert.Nil(t, HeuristicChurnScore(&models.Customer{}, now))
		assert.Nil(t, HeuristicChurnScore(nil, now))
	})

	t.Run("stale infrequent cheap buyer", func(t *testing.T) {
		customer := &models.Customer{
			TotalOrders:            2,
			AverageOrderValueCents: 2_000,
			FirstOrderAt:           daysAgo(now, 500),
			LastOrderAt:            daysAgo(now, 200),
		}
		// 0.4 recency + 0.3 frequency + 0.2 low AOV.
		score := HeuristicChurnScore(customer, now)
		require.NotNil(t, score)
		assert.InDelta(t, 0.9, *score, 1e-9)
	})

	t.Run("capped at one", func(t *testing.T) {
		customer := &models.Customer{
			TotalOrders:            1,
			AverageOrderValueCents: 1_000,
			FirstOrderAt:           daysAgo(now, 800),
			LastOrderAt:            daysAgo(now, 400),
		}
		score := HeuristicChurnScore(customer, now)
		require.NotNil(t, score)
		assert.InDelta(t, 1.0, *score, 1e-9)
	})

	t.Run("fresh frequent big spender", func(t *testing.T) {
		customer := &models.Customer{
			TotalOrders:            20,
			AverageOrderValueCents: 20_000,
			FirstOrderAt:           daysAgo(now, 100),
			LastOrderAt:            daysAgo(now, 5),
		}
		score := HeuristicChurnScore(customer, now)
		require.NotNil(t, score)
		assert.InDelta(t, 0.0, *score, 1e-9)
	})
}

type fakeAnalyticsRepo struct {
	customers map[uuid.UUID]*models.Customer
	similar   []models.Customer
	lastLimit int
}

func newFakeAnalyticsRepo() *fakeAnalyticsRepo {
	return &fakeAnalyticsRepo{customers: make(map[uuid.UUID]*models.Customer)}
}

func (f *fakeAnalyticsRepo) add(customer *models.Customer) {
	f.customers[customer.ID] = customer
}

func (f *fakeAnalyticsRepo) FindByID(_ context.Context, tenantID, id uuid.UUID, _ bool) (*models.Customer, error) {
	customer, ok := f.customers[id]
	if !ok || customer.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	cpy := *customer
	return &cpy, nil
}

func (f *fakeAnalyticsRepo) Update(_ context.Context, customer *models.Customer) error {
	cpy := *customer
	f.customers[customer.ID] = &cpy
	return nil
}

func (f *fakeAnalyticsRepo) ListSegmentPage(_ context.Context, tenantID uuid.UUID, offset, limit int) ([]models.Customer, error) {
	all := []models.Customer{}
	for _, customer := range f.customers {
		if customer.TenantID == tenantID && customer.DeletedAt == nil {
			all = append(all, *customer)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeAnalyticsRepo) FindSimilar(_ context.Context, _ *models.Customer, limit int) ([]models.Customer, error) {
	f.lastLimit = limit
	return f.similar, nil
}

func (f *fakeAnalyticsRepo) UpdateWithTx(_ *gorm.DB, customer *models.Customer) error {
	cpy := *customer
	f.customers[customer.ID] = &cpy
	return nil
}

type fakeAnalyticsTx struct{}

func (fakeAnalyticsTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePredictor struct {
	churn     float64
	churnErr  error
	clv       float64
	clvErr    error
	embedding []float64
	embedErr  error
}

func (f *fakePredictor) PredictChurn(_ context.Context, _ prediction.Features) (float64, error) {
	return f.churn, f.churnErr
}

func (f *fakePredictor) PredictCLV(_ context.Context, _ prediction.Features, _ int) (float64, error) {
	return f.clv, f.clvErr
}

func (f *fakePredictor) Embed(_ context.Context, _ prediction.Profile) ([]float64, error) {
	return f.embedding, f.embedErr
}

func newAnalyticsService(t *testing.T, repo *fakeAnalyticsRepo, pred predictor) Service {
	t.Helper()
	params := ServiceParams{
		Repo:   repo,
		Tx:     fakeAnalyticsTx{},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	if pred != nil {
		params.Predictor = pred
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func TestRecomputeSegmentPersists(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	now := time.Now()
	customer := &models.Customer{
		ID:              uuid.New(),
		TenantID:        tenantID,
		TotalOrders:     3,
		TotalSpentCents: 150_000,
		LastOrderAt:     daysAgo(now, 10),
		Segment:         enums.SegmentNew,
	}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, nil)
	segment, err := svc.RecomputeSegment(context.Background(), tenantID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SegmentHighValue, segment)
	assert.Equal(t, enums.SegmentHighValue, repo.customers[customer.ID].Segment)
}

func TestRecomputeSegmentUnknownCustomer(t *testing.T) {
	svc := newAnalyticsService(t, newFakeAnalyticsRepo(), nil)
	_, err := svc.RecomputeSegment(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestSegmentAllCountsEveryCustomer(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	now := time.Now()

	repo.add(&models.Customer{ID: uuid.New(), TenantID: tenantID, Segment: enums.SegmentActive})
	repo.add(&models.Customer{
		ID: uuid.New(), TenantID: tenantID, TotalOrders: 2, TotalSpentCents: 5_000,
		LastOrderAt: daysAgo(now, 30), Segment: enums.SegmentNew,
	})
	repo.add(&models.Customer{
		ID: uuid.New(), TenantID: tenantID, TotalOrders: 1, TotalSpentCents: 2_000,
		LastOrderAt: daysAgo(now, 400), Segment: enums.SegmentActive,
	})

	svc := newAnalyticsService(t, repo, nil)
	counts, err := svc.SegmentAll(context.Background(), tenantID)
	require.NoError(t, err)

	assert.Equal(t, 1, counts[enums.SegmentNew])
	assert.Equal(t, 1, counts[enums.SegmentActive])
	assert.Equal(t, 1, counts[enums.SegmentChurned])

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 3, total)
}

func TestChurnRiskNilWithoutOrders(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	customer := &models.Customer{ID: uuid.New(), TenantID: tenantID}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, nil)
	score, err := svc.ChurnRisk(context.Background(), tenantID, customer.ID)
	require.NoError(t, err)
	assert.Nil(t, score)
}

func TestChurnRiskPrefersPredictor(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	now := time.Now()
	customer := &models.Customer{
		ID: uuid.New(), TenantID: tenantID, TotalOrders: 5,
		AverageOrderValueCents: 20_000,
		FirstOrderAt:           daysAgo(now, 100),
		LastOrderAt:            daysAgo(now, 10),
	}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, &fakePredictor{churn: 0.73})
	score, err := svc.ChurnRisk(context.Background(), tenantID, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.InDelta(t, 0.73, *score, 1e-9)

	stored := repo.customers[customer.ID]
	require.NotNil(t, stored.ChurnRiskScore)
	assert.InDelta(t, 0.73, *stored.ChurnRiskScore, 1e-9)
}

func TestChurnRiskFallsBackWhenPredictorFails(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	now := time.Now()
	customer := &models.Customer{
		ID: uuid.New(), TenantID: tenantID, TotalOrders: 2,
		AverageOrderValueCents: 2_000,
		FirstOrderAt:           daysAgo(now, 500),
		LastOrderAt:            daysAgo(now, 200),
	}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, &fakePredictor{churnErr: errors.New("ml down")})
	score, err := svc.ChurnRisk(context.Background(), tenantID, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.InDelta(t, 0.9, *score, 1e-9)
}

func TestPredictCLVValidatesMonths(t *testing.T) {
	svc := newAnalyticsService(t, newFakeAnalyticsRepo(), nil)
	_, err := svc.PredictCLV(context.Background(), uuid.New(), uuid.New(), 0)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestPredictCLVNilWithoutOrders(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	customer := &models.Customer{ID: uuid.New(), TenantID: tenantID}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, nil)
	clv, err := svc.PredictCLV(context.Background(), tenantID, customer.ID, 12)
	require.NoError(t, err)
	assert.Nil(t, clv)
}

func TestPredictCLVNilOnFirstOrderDay(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	now := time.Now()
	customer := &models.Customer{
		ID: uuid.New(), TenantID: tenantID, TotalOrders: 5,
		AverageOrderValueCents: 10_000,
		FirstOrderAt:           &now,
		LastOrderAt:            &now,
	}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, nil)
	clv, err := svc.PredictCLV(context.Background(), tenantID, customer.ID, 12)
	require.NoError(t, err)
	assert.Nil(t, clv)
	assert.Nil(t, repo.customers[customer.ID].LifetimeValueCents)
}

func TestPredictCLVHeuristicDiscountsChurn(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	now := time.Now()
	risk := 0.4
	customer := &models.Customer{
		ID: uuid.New(), TenantID: tenantID, TotalOrders: 10,
		AverageOrderValueCents: 5_000,
		FirstOrderAt:           daysAgo(now, 300),
		LastOrderAt:            daysAgo(now, 10),
		ChurnRiskScore:         &risk,
	}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, nil)
	clv, err := svc.PredictCLV(context.Background(), tenantID, customer.ID, 12)
	require.NoError(t, err)
	require.NotNil(t, clv)
	// 50 AOV x 1 order/month x 12 months x 0.8 retention.
	assert.InDelta(t, 480.0, clv.InexactFloat64(), 0.05)

	require.NotNil(t, repo.customers[customer.ID].LifetimeValueCents)
}

func TestPredictCLVUsesPredictorValue(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	now := time.Now()
	customer := &models.Customer{
		ID: uuid.New(), TenantID: tenantID, TotalOrders: 3,
		AverageOrderValueCents: 8_000,
		FirstOrderAt:           daysAgo(now, 90),
		LastOrderAt:            daysAgo(now, 5),
	}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, &fakePredictor{clv: 1234.56})
	clv, err := svc.PredictCLV(context.Background(), tenantID, customer.ID, 6)
	require.NoError(t, err)
	require.NotNil(t, clv)
	assert.True(t, clv.Equal(decimal.RequireFromString("1234.56")))
}

func TestFindSimilarClampsLimit(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	customer := &models.Customer{ID: uuid.New(), TenantID: tenantID}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, nil)

	_, err := svc.FindSimilar(context.Background(), tenantID, customer.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultSimilarLimit, repo.lastLimit)

	_, err = svc.FindSimilar(context.Background(), tenantID, customer.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, maxSimilarLimit, repo.lastLimit)
}

func TestGenerateEmbeddingRequiresPredictor(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	customer := &models.Customer{ID: uuid.New(), TenantID: tenantID}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, nil)
	_, err := svc.GenerateEmbedding(context.Background(), tenantID, customer.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestGenerateEmbeddingPersistsVector(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	customer := &models.Customer{ID: uuid.New(), TenantID: tenantID, Segment: enums.SegmentActive}
	repo.add(customer)

	svc := newAnalyticsService(t, repo, &fakePredictor{embedding: []float64{0.1, 0.2, 0.3}})
	vector, err := svc.GenerateEmbedding(context.Background(), tenantID, customer.ID)
	require.NoError(t, err)
	assert.Len(t, vector, 3)
	assert.Len(t, []float64(repo.customers[customer.ID].Embedding), 3)
}

func TestRecommendationsListSimilarIDs(t *testing.T) {
	repo := newFakeAnalyticsRepo()
	tenantID := uuid.New()
	customer := &models.Customer{ID: uuid.New(), TenantID: tenantID}
	repo.add(customer)
	peer := models.Customer{ID: uuid.New(), TenantID: tenantID}
	repo.similar = []models.Customer{peer}

	svc := newAnalyticsService(t, repo, nil)
	recs, err := svc.Recommendations(context.Background(), tenantID, customer.ID, 5)
	require.NoError(t, err)
	require.Len(t, recs.SimilarCustomerIDs, 1)
	assert.Equal(t, peer.ID, recs.SimilarCustomerIDs[0])
	assert.NotEmpty(t, recs.Note)
}
