package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrAlreadyExists signals that a record keyed by an external id was inserted
// by a concurrent caller between lookup and insert. Callers re-fetch and reuse.
var ErrAlreadyExists = errors.New("record already exists")

func calculateDueDate(date time.Time, paymentTerms PaymentTerms, customDays int) *time.Time {
	var dueDate time.Time
	switch terms := paymentTerms; terms {
	case PaymentTermsDueOnReceipt:
		dueDate = date
	case PaymentTermsNet14:
		dueDate = date.AddDate(0, 0, 14)
	case PaymentTermsNet15:
		dueDate = date.AddDate(0, 0, 15)
	case PaymentTermsNet30:
		dueDate = date.AddDate(0, 0, 30)
	case PaymentTermsDueEndOfMonth:
		year, month, _ := date.Date()
		firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, date.Location())
		dueDate = firstOfMonth.AddDate(0, 1, -1)
	case PaymentTermsDueEndOfNextMonth:
		year, month, _ := date.Date()
		firstOfNextMonth := time.Date(year, month+1, 1, 0, 0, 0, 0, date.Location())
		dueDate = firstOfNextMonth.AddDate(0, 1, -1)
	case PaymentTermsCustom:
		dueDate = date.AddDate(0, 0, customDays)
	}
	return &dueDate
}

// remaining balance floored at zero
func RemainingAfterDeposit(total, deposit decimal.Decimal) decimal.Decimal {
	remaining := total.Sub(deposit)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// isDuplicateKeyError reports whether err is a MySQL duplicate-entry error
// (ER_DUP_ENTRY, 1062) raised by a unique index.
func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
