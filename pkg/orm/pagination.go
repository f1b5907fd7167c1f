package orm

import "gorm.io/gorm"

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// ApplyPagination adds OFFSET/LIMIT; page or limit <= 0 leaves the query unpaged.
func ApplyPagination(db *gorm.DB, page, limit int) *gorm.DB {
	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		return db.Offset(offset).Limit(limit)
	}
	return db
}

// NormalizePage clamps user supplied paging values.
func NormalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// TotalPages is ceil(total/size).
func TotalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
