package sqlite

import (
	"fmt"
	"strings"
)

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(n int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// limitClause renders LIMIT/OFFSET. SQLite only accepts OFFSET after LIMIT.
func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if limit > 1000 {
		limit = 1000 // Cap to prevent excessive data retrieval
	}
	clause := fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}
