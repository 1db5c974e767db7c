package store

import (
	"errors"

	"github.com/lib/pq"
)

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")

	stockVersionConstraint = "product_stock_events_product_version_key"
	couponCodeConstraint   = "coupons_code_key"
)

func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// isVersionConflict reports whether err is a duplicate (product_id, version)
// on the stock ledger.
func isVersionConflict(err error) bool {
	pqErr, ok := asPQError(err)
	return ok && pqErr.Code == uniqueViolation && pqErr.Constraint == stockVersionConstraint
}

func isDuplicateCouponCode(err error) bool {
	pqErr, ok := asPQError(err)
	return ok && pqErr.Code == uniqueViolation && pqErr.Constraint == couponCodeConstraint
}

func isForeignKeyViolation(err error) bool {
	pqErr, ok := asPQError(err)
	return ok && pqErr.Code == foreignKeyViolation
}
