package pagination

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	n := Params{}.Normalize()
	if n.Page != 1 {
		t.Fatalf("expected page 1 got %d", n.Page)
	}
	if n.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size got %d", n.PageSize)
	}
}

func TestNormalizeCapsPageSize(t *testing.T) {
	n := Params{Page: 2, PageSize: 10_000}.Normalize()
	if n.PageSize != MaxPageSize {
		t.Fatalf("expected page size capped at %d got %d", MaxPageSize, n.PageSize)
	}
}

func TestOffsetAndLimit(t *testing.T) {
	p := Params{Page: 3, PageSize: 20}
	if got := p.Offset(); got != 40 {
		t.Fatalf("expected offset 40 got %d", got)
	}
	if got := p.Limit(); got != 20 {
		t.Fatalf("expected limit 20 got %d", got)
	}
	if got := (Params{}).Offset(); got != 0 {
		t.Fatalf("expected zero offset for defaults got %d", got)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total    int64
		pageSize int
		want     int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{107, 20, 6},
		{107, 0, 3},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.pageSize); got != tt.want {
			t.Fatalf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.pageSize, got, tt.want)
		}
	}
}

func TestNewResult(t *testing.T) {
	result := NewResult(Params{Page: 6, PageSize: 20}, 107)
	if result.Page != 6 || result.PageSize != 20 {
		t.Fatalf("unexpected shape %+v", result)
	}
	if result.Total != 107 || result.TotalPages != 6 {
		t.Fatalf("unexpected totals %+v", result)
	}
}
