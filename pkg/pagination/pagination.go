package pagination

const (
	// DefaultPageSize is the standard page size when one is not provided.
	DefaultPageSize = 50
	// MaxPageSize caps how many rows any list query can request.
	MaxPageSize = 200
)

// Params holds page pagination inputs from controllers or services.
type Params struct {
	Page     int
	PageSize int
}

// Normalize enforces the configured defaults and maximum page size.
func (p Params) Normalize() Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Limit returns the normalized page size.
func (p Params) Limit() int {
	return p.Normalize().PageSize
}

// TotalPages computes the page count for a result set of the given size.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if total <= 0 {
		return 0
	}
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return int(pages)
}

// Result describes a page of rows alongside the full result-set shape.
type Result struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewResult builds the pagination envelope for the normalized params.
func NewResult(p Params, total int64) Result {
	n := p.Normalize()
	return Result{
		Page:       n.Page,
		PageSize:   n.PageSize,
		Total:      total,
		TotalPages: TotalPages(total, n.PageSize),
	}
}
