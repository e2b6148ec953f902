package customers

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dvega/clienthub-backend/pkg/enums"
)

// Filter describes the optional predicates for customer listing. Every field
// defaults to "no constraint"; range bounds are inclusive.
type Filter struct {
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string

	Segment *enums.Segment
	Tags    []string

	MinTotalSpentCents *int64
	MaxTotalSpentCents *int64
	MinTotalOrders     *int
	MaxTotalOrders     *int
	CreatedAfter       *time.Time
	CreatedBefore      *time.Time

	IncludeDeleted bool

	OrderBy        string
	OrderDirection string
}

// sortColumns whitelists the orderable columns.
var sortColumns = map[string]string{
	"created_at":          "created_at",
	"updated_at":          "updated_at",
	"email":               "email",
	"total_spent":         "total_spent_cents",
	"total_orders":        "total_orders",
	"last_order_at":       "last_order_at",
	"segment":             "segment",
	"average_order_value": "average_order_value_cents",
}

// Apply appends the filter predicates to the query. Tenant scoping is the
// caller's responsibility.
func (f Filter) Apply(q *gorm.DB) *gorm.DB {
	if !f.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}

	q = applySubstring(q, "email", f.Email)
	q = applySubstring(q, "first_name", f.FirstName)
	q = applySubstring(q, "last_name", f.LastName)
	q = applySubstring(q, "phone", f.Phone)

	if f.Segment != nil {
		q = q.Where("segment = ?", *f.Segment)
	}
	for _, tag := range f.Tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		q = q.Where(`tags LIKE ? ESCAPE '\'`, `%"`+escapeLike(tag)+`"%`)
	}

	if f.MinTotalSpentCents != nil {
		q = q.Where("total_spent_cents >= ?", *f.MinTotalSpentCents)
	}
	if f.MaxTotalSpentCents != nil {
		q = q.Where("total_spent_cents <= ?", *f.MaxTotalSpentCents)
	}
	if f.MinTotalOrders != nil {
		q = q.Where("total_orders >= ?", *f.MinTotalOrders)
	}
	if f.MaxTotalOrders != nil {
		q = q.Where("total_orders <= ?", *f.MaxTotalOrders)
	}
	if f.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *f.CreatedBefore)
	}

	return q
}

// OrderClause resolves the whitelisted ordering, defaulting to newest first.
func (f Filter) OrderClause() string {
	column, ok := sortColumns[strings.ToLower(strings.TrimSpace(f.OrderBy))]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(f.OrderDirection, "asc") {
		direction = "ASC"
	}
	if f.OrderBy == "" && f.OrderDirection == "" {
		return "created_at DESC"
	}
	return column + " " + direction
}

// ApplySearch appends the free-text OR predicate over the contact columns.
func ApplySearch(q *gorm.DB, term string) *gorm.DB {
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	return q.Where(
		"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(phone) LIKE ?",
		pattern, pattern, pattern, pattern,
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so tag values match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func applySubstring(q *gorm.DB, column string, value *string) *gorm.DB {
	if value == nil || strings.TrimSpace(*value) == "" {
		return q
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(*value)) + "%"
	return q.Where("LOWER("+column+") LIKE ?", pattern)
}
