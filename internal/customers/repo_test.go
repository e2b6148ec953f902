package customers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/pkg/db/models"
	"github.com/dvega/clienthub-backend/pkg/enums"
	"github.com/dvega/clienthub-backend/pkg/pagination"
	"github.com/dvega/clienthub-backend/pkg/types"
)

func newRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Customer{}, &models.Address{}, &models.CustomerNote{}))
	return conn
}

func seedRow(t *testing.T, repo *Repository, tenantID uuid.UUID, email string, mutate func(*models.Customer)) *models.Customer {
	t.Helper()
	customer := &models.Customer{
		ID:       uuid.New(),
		TenantID: tenantID,
		Email:    email,
		Segment:  enums.SegmentNew,
	}
	if mutate != nil {
		mutate(customer)
	}
	require.NoError(t, repo.Create(context.Background(), customer))
	return customer
}

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()
	seedRow(t, repo, tenantID, "ana@example.com", nil)

	found, err := repo.FindByEmail(context.Background(), tenantID, "ANA@Example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", found.Email)
}

func TestEmailExistsIgnoresDeletedRows(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()
	ctx := context.Background()

	deletedAt := time.Now()
	seedRow(t, repo, tenantID, "ana@example.com", func(c *models.Customer) {
		c.DeletedAt = &deletedAt
	})

	exists, err := repo.EmailExists(ctx, tenantID, "ana@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	seedRow(t, repo, tenantID, "ana@example.com", nil)
	exists, err = repo.EmailExists(ctx, tenantID, "ANA@EXAMPLE.COM")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListPaginatesDeterministically(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		created := base.Add(time.Duration(i) * time.Hour)
		seedRow(t, repo, tenantID, fmt.Sprintf("c%02d@example.com", i), func(c *models.Customer) {
			c.CreatedAt = created
		})
	}
	// Another tenant's row must never leak into the listing.
	seedRow(t, repo, uuid.New(), "other@example.com", nil)

	seen := make(map[uuid.UUID]bool)
	for page := 1; page <= 3; page++ {
		rows, total, err := repo.List(context.Background(), tenantID, Filter{}, pagination.Params{Page: page, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		for _, row := range rows {
			assert.False(t, seen[row.ID], "row repeated across pages")
			seen[row.ID] = true
		}
	}
	assert.Len(t, seen, 25)

	rows, total, err := repo.List(context.Background(), tenantID, Filter{}, pagination.Params{Page: 4, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Empty(t, rows)
}

func TestListDefaultOrderIsNewestFirst(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedRow(t, repo, tenantID, "old@example.com", func(c *models.Customer) { c.CreatedAt = base })
	seedRow(t, repo, tenantID, "new@example.com", func(c *models.Customer) { c.CreatedAt = base.Add(time.Hour) })

	rows, _, err := repo.List(context.Background(), tenantID, Filter{}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "new@example.com", rows[0].Email)
}

func TestListFilters(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()
	ctx := context.Background()

	seedRow(t, repo, tenantID, "vip@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentHighValue
		c.Tags = types.StringList{"vip", "beta"}
		c.TotalSpentCents = 250_000
		c.TotalOrders = 12
	})
	seedRow(t, repo, tenantID, "casual@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.Tags = types.StringList{"newsletter"}
		c.TotalSpentCents = 4_000
		c.TotalOrders = 1
	})

	segment := enums.SegmentHighValue
	rows, total, err := repo.List(ctx, tenantID, Filter{Segment: &segment}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "vip@example.com", rows[0].Email)

	rows, _, err = repo.List(ctx, tenantID, Filter{Tags: []string{"vip", "beta"}}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "vip@example.com", rows[0].Email)

	_, total, err = repo.List(ctx, tenantID, Filter{Tags: []string{"vip", "newsletter"}}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total, "tag filter is conjunctive")

	minSpent := int64(100_000)
	rows, _, err = repo.List(ctx, tenantID, Filter{MinTotalSpentCents: &minSpent}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "vip@example.com", rows[0].Email)

	maxOrders := 5
	rows, _, err = repo.List(ctx, tenantID, Filter{MaxTotalOrders: &maxOrders}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "casual@example.com", rows[0].Email)

	needle := "VIP@"
	rows, _, err = repo.List(ctx, tenantID, Filter{Email: &needle}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "vip@example.com", rows[0].Email)
}

func TestListTagFilterMatchesLiterally(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()
	ctx := context.Background()

	seedRow(t, repo, tenantID, "promo@example.com", func(c *models.Customer) {
		c.Tags = types.StringList{"50%off"}
	})
	seedRow(t, repo, tenantID, "decoy@example.com", func(c *models.Customer) {
		c.Tags = types.StringList{"50xoff"}
	})
	seedRow(t, repo, tenantID, "tiered@example.com", func(c *models.Customer) {
		c.Tags = types.StringList{"tier_1"}
	})

	rows, total, err := repo.List(ctx, tenantID, Filter{Tags: []string{"50%off"}}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "promo@example.com", rows[0].Email)

	rows, _, err = repo.List(ctx, tenantID, Filter{Tags: []string{"tier_1"}}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tiered@example.com", rows[0].Email)

	_, total, err = repo.List(ctx, tenantID, Filter{Tags: []string{"tier%"}}, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total, "wildcard characters in a tag do not widen the match")
}

func TestSearchMatchesAnyContactColumn(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()
	ctx := context.Background()

	first := "Margarida"
	seedRow(t, repo, tenantID, "m@example.com", func(c *models.Customer) { c.FirstName = &first })
	phone := "+351-777-0000"
	seedRow(t, repo, tenantID, "p@example.com", func(c *models.Customer) { c.Phone = &phone })
	seedRow(t, repo, tenantID, "unrelated@example.com", nil)

	rows, total, err := repo.Search(ctx, tenantID, "margar", pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "m@example.com", rows[0].Email)

	rows, _, err = repo.Search(ctx, tenantID, "777", pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p@example.com", rows[0].Email)
}

func TestFindSimilarUsesSpendAndOrderBands(t *testing.T) {
	conn := newRepoTestDB(t)
	repo := NewRepository(conn)
	tenantID := uuid.New()

	source := seedRow(t, repo, tenantID, "source@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.TotalSpentCents = 10_000
		c.TotalOrders = 10
	})
	inside := seedRow(t, repo, tenantID, "inside@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.TotalSpentCents = 12_000
		c.TotalOrders = 8
	})
	seedRow(t, repo, tenantID, "too-cheap@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.TotalSpentCents = 6_000
		c.TotalOrders = 8
	})
	seedRow(t, repo, tenantID, "too-many-orders@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.TotalSpentCents = 10_000
		c.TotalOrders = 20
	})
	seedRow(t, repo, tenantID, "wrong-segment@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentDormant
		c.TotalSpentCents = 10_000
		c.TotalOrders = 10
	})

	rows, err := repo.FindSimilar(context.Background(), source, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, inside.ID, rows[0].ID)
}

func TestFindSimilarBoundaryValues(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	tenantID := uuid.New()

	source := seedRow(t, repo, tenantID, "source@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.TotalSpentCents = 10_000
		c.TotalOrders = 10
	})
	seedRow(t, repo, tenantID, "low-edge@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.TotalSpentCents = 7_000
		c.TotalOrders = 7
	})
	seedRow(t, repo, tenantID, "high-edge@example.com", func(c *models.Customer) {
		c.Segment = enums.SegmentActive
		c.TotalSpentCents = 13_000
		c.TotalOrders = 13
	})

	rows, err := repo.FindSimilar(context.Background(), source, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "band edges are inclusive")
}

func TestCreateAddressWithTxUnsetsSiblingDefault(t *testing.T) {
	conn := newRepoTestDB(t)
	repo := NewRepository(conn)
	customerID := uuid.New()

	first := &models.Address{
		ID: uuid.New(), CustomerID: customerID, Type: enums.AddressTypeShipping,
		Line1: "1 Main St", City: "Lisbon", PostalCode: "1000-001", Country: "PT", IsDefault: true,
	}
	require.NoError(t, repo.CreateAddressWithTx(conn, first))

	second := &models.Address{
		ID: uuid.New(), CustomerID: customerID, Type: enums.AddressTypeShipping,
		Line1: "2 Side St", City: "Lisbon", PostalCode: "1000-002", Country: "PT", IsDefault: true,
	}
	require.NoError(t, repo.CreateAddressWithTx(conn, second))

	rows, err := repo.ListAddresses(context.Background(), customerID, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	defaults := 0
	for _, row := range rows {
		if row.IsDefault {
			defaults++
			assert.Equal(t, second.ID, row.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestReassignNotesWithTx(t *testing.T) {
	conn := newRepoTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	from := uuid.New()
	to := uuid.New()

	require.NoError(t, repo.CreateNote(ctx, &models.CustomerNote{ID: uuid.New(), CustomerID: from, Note: "hello"}))
	require.NoError(t, repo.ReassignNotesWithTx(conn, from, to))

	fromNotes, err := repo.ListNotes(ctx, from)
	require.NoError(t, err)
	assert.Empty(t, fromNotes)

	toNotes, err := repo.ListNotes(ctx, to)
	require.NoError(t, err)
	assert.Len(t, toNotes, 1)
}

func TestWithTxMethodsRejectNilTx(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))
	assert.Error(t, repo.UpdateWithTx(nil, &models.Customer{}))
	assert.Error(t, repo.HardDeleteWithTx(nil, uuid.New()))
	assert.Error(t, repo.ReassignAddressesWithTx(nil, uuid.New(), uuid.New()))
	_, err := repo.FindByIDWithTx(nil, uuid.New(), uuid.New())
	assert.Error(t, err)
}

func TestOrderClauseWhitelistsColumns(t *testing.T) {
	assert.Equal(t, "created_at DESC", Filter{}.OrderClause())
	assert.Equal(t, "total_spent_cents ASC", Filter{OrderBy: "total_spent", OrderDirection: "asc"}.OrderClause())
	assert.Equal(t, "created_at DESC", Filter{OrderBy: "tags; DROP TABLE customers"}.OrderClause())
	assert.Equal(t, "created_at ASC", Filter{OrderDirection: "ASC"}.OrderClause())
}
