package service

// defaultPageSize is applied when a caller passes a non-positive limit;
// maxPageSize bounds what any caller can request in one page.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// clampLimit normalises a caller-provided page size into [1, maxPageSize].
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
