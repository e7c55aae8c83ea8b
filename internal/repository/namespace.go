package repository

import (
	"github.com/nephi-asha/kishkumen/internal/domain"
)

// Repositories that take a database.DBTX on every call operate on namespace
// tables. Their statements use unqualified table names and so run against
// whatever namespace the caller's connection is bound to.

// rangeArgs turns open bounds into NULL parameters. The upper bound is
// exclusive.
func rangeArgs(r domain.DateRange) (from, to any) {
	if !r.From.IsZero() {
		from = r.From
	}
	if !r.To.IsZero() {
		to = r.To
	}
	return from, to
}
