package reports

import (
	"context"
	"errors"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/shopspring/decimal"
)

type InvoiceRegisterRow struct {
	InvoiceId        int             `json:"InvoiceId"`
	InvoiceNumber    string          `json:"InvoiceNumber"`
	InvoiceDate      string          `json:"InvoiceDate"`
	DueDate          string          `json:"DueDate"`
	CustomerName     *string         `json:"CustomerName,omitempty"`
	JobTitle         *string         `json:"JobTitle,omitempty"`
	CurrentStatus    string          `json:"CurrentStatus"`
	TotalAmount      decimal.Decimal `json:"TotalAmount"`
	DepositAmount    decimal.Decimal `json:"DepositAmount"`
	RemainingBalance decimal.Decimal `json:"RemainingBalance"`
}

// GetInvoiceRegisterReport lists the business's invoices with their linked
// customer and job, newest first.
func GetInvoiceRegisterReport(ctx context.Context) ([]*InvoiceRegisterRow, error) {

	sql := `
SELECT
    invoices.id AS invoice_id,
    invoices.invoice_number,
    DATE_FORMAT(invoices.invoice_date, '%Y-%m-%d') AS invoice_date,
    DATE_FORMAT(invoices.due_date, '%Y-%m-%d') AS due_date,
    customers.name AS customer_name,
    jobs.title AS job_title,
    invoices.current_status,
    invoices.total_amount,
    invoices.deposit_amount,
    invoices.remaining_balance
FROM
    invoices
        LEFT JOIN
    customers ON customers.id = invoices.customer_id
        LEFT JOIN
    jobs ON jobs.business_id = invoices.business_id
        AND jobs.external_booking_id = invoices.external_booking_id
WHERE
    invoices.business_id = @businessId
ORDER BY invoices.invoice_date DESC , invoices.id DESC;
`

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var records []*InvoiceRegisterRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r InvoiceRegisterRow) GetCellValues() []interface{} {
	return []interface{}{
		r.InvoiceNumber,
		r.InvoiceDate,
		r.DueDate,
		utils.DereferencePtr(r.CustomerName, ""),
		utils.DereferencePtr(r.JobTitle, ""),
		r.CurrentStatus,
		r.TotalAmount,
		r.DepositAmount,
		r.RemainingBalance,
	}
}
