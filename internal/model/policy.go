package model

import "github.com/shopspring/decimal"

// MaxUserPaymentAmount is the per-payment ceiling for non-admin users, in
// major units.
var MaxUserPaymentAmount = decimal.NewFromInt(1_000_000)

// CanApproveTransactions reports whether role may act on the approval ledger.
func CanApproveTransactions(role Role) bool {
	return role == RoleAdmin
}

// MaxPaymentAmount returns the payment ceiling for role. The boolean is false
// when the role has no ceiling.
func MaxPaymentAmount(role Role) (decimal.Decimal, bool) {
	if role == RoleAdmin {
		return decimal.Zero, false
	}
	return MaxUserPaymentAmount, true
}

// WithinPaymentLimit reports whether amount is allowed for role.
func WithinPaymentLimit(role Role, amount decimal.Decimal) bool {
	limit, limited := MaxPaymentAmount(role)
	return !limited || amount.LessThanOrEqual(limit)
}
