package services

import (
	"math"

	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// ClampPage normalises caller paging input. page is raised to 1; a
// page_size of 0 means "not supplied" and takes defaultSize; anything else
// is clamped into [1, maxSize]. Out-of-range input is clamped, never rejected.
// page is also capped so that Offset(page, pageSize) cannot overflow.
func ClampPage(page, pageSize, defaultSize, maxSize int) (int, int) {
	if maxSize < 1 {
		maxSize = 1
	}
	if defaultSize < 1 || defaultSize > maxSize {
		defaultSize = maxSize
	}

	if page < 1 {
		page = 1
	}
	switch {
	case pageSize == 0:
		pageSize = defaultSize
	case pageSize < 1:
		pageSize = 1
	case pageSize > maxSize:
		pageSize = maxSize
	}
	if page > math.MaxInt/pageSize {
		page = math.MaxInt / pageSize
	}
	return page, pageSize
}

// TotalPages is ceil(total/pageSize), and 0 when there are no records.
func TotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize < 1 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// Offset is the number of rows skipped before page.
func Offset(page, pageSize int) int {
	return (page - 1) * pageSize
}

// BuildPagination computes page metadata. total is nil when the record
// count is unknown, in which case hasMore (whether a row past this page was
// seen) decides has_next.
func BuildPagination(page, pageSize int, total *int64, hasMore bool) models.Pagination {
	p := models.Pagination{
		Page:     page,
		PageSize: pageSize,
		HasPrev:  page > 1,
	}

	if total != nil {
		pages := TotalPages(*total, pageSize)
		p.TotalRecords = total
		p.TotalPages = &pages
		p.CountExact = true
		p.HasNext = page < pages
	} else {
		p.HasNext = hasMore
	}

	if p.HasNext {
		next := page + 1
		p.NextPage = &next
	}
	if p.HasPrev {
		prev := page - 1
		p.PrevPage = &prev
	}
	return p
}
