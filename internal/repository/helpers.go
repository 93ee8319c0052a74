package repository

import "strings"

// sortColumn resolves a requested sort key against the whitelist for the
// query, falling back when the key is unknown.
func sortColumn(requested string, allowed map[string]string, fallback string) string {
	if requested == "" {
		return fallback
	}
	if column, ok := allowed[requested]; ok {
		return column
	}
	return fallback
}

func sortOrder(raw string) string {
	order := strings.ToUpper(raw)
	if order != "ASC" && order != "DESC" {
		return "DESC"
	}
	return order
}

func paging(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
