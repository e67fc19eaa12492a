// internal/service/pagination.go
package service

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination clamps page and pageSize to sane values.
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p Pagination) WithTotal(total int) Pagination {
	p.TotalCount = total
	p.TotalPages = (total + p.PageSize - 1) / p.PageSize
	return p
}
