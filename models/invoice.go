package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Invoice struct {
	ID                int           `gorm:"primary_key" json:"id"`
	BusinessId        string        `gorm:"uniqueIndex:idx_invoice_booking,priority:1;size:64;not null" json:"business_id" binding:"required"`
	CustomerId        int           `gorm:"index;not null" json:"customer_id" binding:"required"`
	DocumentType      DocumentType  `gorm:"uniqueIndex:idx_invoice_booking,priority:2;type:enum('invoice','deposit','estimate');not null;default:'invoice'" json:"document_type"`
	ExternalBookingId string        `gorm:"uniqueIndex:idx_invoice_booking,priority:3;size:128;not null" json:"external_booking_id"`
	InvoiceNumber     string        `gorm:"size:255;not null" json:"invoice_number"`
	InvoiceDate       time.Time     `gorm:"not null" json:"invoice_date"`
	PaymentTerms      PaymentTerms  `gorm:"type:enum('Net14','Net15','Net30','DueMonthEnd','DueNextMonthEnd','DueOnReceipt','Custom');not null;default:'Net14'" json:"payment_terms"`
	DueDate           *time.Time    `json:"due_date"`
	Notes             string        `gorm:"type:text" json:"notes"`
	Terms             string        `gorm:"type:text" json:"terms"`
	TemplateKey       string        `gorm:"size:100" json:"template_key"`

	// mirrored booking deposit fields; amounts are cents
	DepositAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deposit_amount"`
	DepositPaidAt    *time.Time      `json:"deposit_paid_at"`
	DepositInvoiceId string          `gorm:"size:128" json:"deposit_invoice_id"`

	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	RemainingBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_balance"`

	CurrentStatus InvoiceStatus  `gorm:"type:enum('Draft','Confirmed','Partial Paid','Paid','Void');not null;default:'Confirmed'" json:"current_status"`
	Items         []InvoiceItem  `gorm:"foreignKey:InvoiceId" json:"items"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	Name        string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Description string          `gorm:"size:255" json:"description"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);default:1" json:"qty"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

const remainingBalanceItemName = "Remaining Balance"

var computedNotePrefixes = []string{"Total:", "Deposit:", "Remaining:"}

// FormatCents renders a cent amount as a dollar string, e.g. 7000 -> "$70.00".
func FormatCents(cents decimal.Decimal) string {
	return "$" + cents.Div(decimal.NewFromInt(100)).StringFixed(2)
}

// StripComputedNoteLines removes any Total:/Deposit:/Remaining: lines from
// free-text notes. The amounts live in structured columns; note lines are
// rendered from them at presentation time, never stored.
func StripComputedNoteLines(notes string) string {
	if notes == "" {
		return notes
	}
	lines := strings.Split(notes, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		computed := false
		for _, prefix := range computedNotePrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				computed = true
				break
			}
		}
		if !computed {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// RenderComputedNoteLines builds the Total/Deposit/Remaining note lines from
// the structured amounts. Without a known total, only the deposit renders.
func RenderComputedNoteLines(total, deposit decimal.Decimal, totalKnown bool) []string {
	if !totalKnown {
		if deposit.IsZero() {
			return nil
		}
		return []string{"Deposit: " + FormatCents(deposit)}
	}
	remaining := RemainingAfterDeposit(total, deposit)
	return []string{
		"Total: " + FormatCents(total),
		"Deposit: " + FormatCents(deposit),
		"Remaining: " + FormatCents(remaining),
	}
}

// DisplayNotes renders the stored free text plus the computed amount lines.
func (invoice *Invoice) DisplayNotes() string {
	totalKnown := !invoice.TotalAmount.IsZero() || !invoice.RemainingBalance.IsZero()
	lines := RenderComputedNoteLines(invoice.TotalAmount, invoice.DepositAmount, totalKnown)
	notes := StripComputedNoteLines(invoice.Notes)
	if len(lines) == 0 {
		return notes
	}
	if notes == "" {
		return strings.Join(lines, "\n")
	}
	return notes + "\n" + strings.Join(lines, "\n")
}

func findInvoiceByBooking(ctx context.Context, db *gorm.DB, businessId, externalBookingId string) (*Invoice, error) {
	var invoice Invoice
	err := db.WithContext(ctx).
		Preload("Items").
		Where("business_id = ? AND document_type = ? AND external_booking_id = ?",
			businessId, DocumentTypeInvoice, externalBookingId).
		Take(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

// CreateOrReuseFinalInvoiceForBooking finds or creates the single final
// invoice keyed by (business id, document type invoice, external booking id).
// Reuse patches the mirrored deposit fields, recomputes the remaining balance
// whenever the total or the effective deposit moves, and guarantees at least
// one line item.
func CreateOrReuseFinalInvoiceForBooking(ctx context.Context, customer *Customer, booking *BookingRequest) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if strings.TrimSpace(booking.ExternalId) == "" {
		return nil, errors.New("external booking id is required")
	}

	db := config.GetDB()

	existing, err := findInvoiceByBooking(ctx, db, businessId, booking.ExternalId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return patchExistingInvoice(ctx, db, existing, booking)
	}

	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	deposit := decimal.Zero
	if booking.DepositAmount != nil {
		deposit = *booking.DepositAmount
	}
	total := decimal.Zero
	remaining := decimal.Zero
	if booking.TotalAmount != nil {
		total = *booking.TotalAmount
		remaining = RemainingAfterDeposit(total, deposit)
	}

	templateKey := customer.InvoiceTemplateKey
	if templateKey == "" {
		templateKey = business.DefaultTemplateKey
	}

	notes := StripComputedNoteLines(booking.Notes)
	if business.DefaultInvoiceNotes != "" && !strings.Contains(notes, business.DefaultInvoiceNotes) {
		if notes != "" {
			notes += "\n"
		}
		notes += business.DefaultInvoiceNotes
	}

	tx := db.Begin()
	number, err := NextInvoiceNumber(ctx, tx, businessId, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	invoice := Invoice{
		BusinessId:        businessId,
		CustomerId:        customer.ID,
		DocumentType:      DocumentTypeInvoice,
		ExternalBookingId: booking.ExternalId,
		InvoiceNumber:     number,
		InvoiceDate:       now,
		PaymentTerms:      PaymentTermsNet14,
		DueDate:           calculateDueDate(now, PaymentTermsNet14, 0),
		Notes:             notes,
		Terms:             business.DefaultInvoiceTerms,
		TemplateKey:       templateKey,
		DepositAmount:     deposit,
		DepositPaidAt:     booking.DepositPaidAt,
		DepositInvoiceId:  booking.DepositInvoiceId,
		TotalAmount:       total,
		RemainingBalance:  remaining,
		CurrentStatus:     InvoiceStatusConfirmed,
		Items: []InvoiceItem{{
			Name:   remainingBalanceItemName,
			Qty:    decimal.NewFromInt(1),
			Amount: decimal.Zero,
		}},
	}
	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		tx.Rollback()
		// a concurrent reconcile won the insert; patch its row instead
		if isDuplicateKeyError(err) {
			if existing, ferr := findInvoiceByBooking(ctx, db, businessId, booking.ExternalId); ferr == nil && existing != nil {
				return patchExistingInvoice(ctx, db, existing, booking)
			}
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func patchExistingInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice, booking *BookingRequest) (*Invoice, error) {
	updates := map[string]interface{}{}

	deposit := invoice.DepositAmount
	if booking.DepositAmount != nil {
		deposit = *booking.DepositAmount
	}
	if !invoice.DepositAmount.Equal(deposit) {
		updates["DepositAmount"] = deposit
	}
	if booking.DepositPaidAt != nil {
		if invoice.DepositPaidAt == nil || !invoice.DepositPaidAt.Equal(*booking.DepositPaidAt) {
			updates["DepositPaidAt"] = booking.DepositPaidAt
		}
	}
	if booking.DepositInvoiceId != "" && invoice.DepositInvoiceId != booking.DepositInvoiceId {
		updates["DepositInvoiceId"] = booking.DepositInvoiceId
	}
	total := invoice.TotalAmount
	if booking.TotalAmount != nil {
		total = *booking.TotalAmount
		if !invoice.TotalAmount.Equal(total) {
			updates["TotalAmount"] = total
		}
	}
	// a deposit-only retry still has to rebalance against the stored total
	if booking.TotalAmount != nil || !total.IsZero() {
		remaining := RemainingAfterDeposit(total, deposit)
		if !invoice.RemainingBalance.Equal(remaining) {
			updates["RemainingBalance"] = remaining
		}
	}
	// legacy rows may still carry computed lines inside the notes text
	if stripped := StripComputedNoteLines(invoice.Notes); stripped != invoice.Notes {
		updates["Notes"] = stripped
	}

	tx := db.Begin()
	if len(updates) > 0 {
		if err := tx.WithContext(ctx).Model(invoice).Updates(updates).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if len(invoice.Items) == 0 {
		item := InvoiceItem{
			InvoiceId: invoice.ID,
			Name:      remainingBalanceItemName,
			Qty:       decimal.NewFromInt(1),
			Amount:    decimal.Zero,
		}
		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		invoice.Items = append(invoice.Items, item)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Invoice](ctx, businessId, id, "Items")
}

func GetInvoiceByBooking(ctx context.Context, externalBookingId string) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	invoice, err := findInvoiceByBooking(ctx, config.GetDB(), businessId, externalBookingId)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, utils.ErrorRecordNotFound
	}
	return invoice, nil
}

func GetInvoices(ctx context.Context, customerId *int) ([]*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Invoice
	dbCtx := db.WithContext(ctx).Preload("Items").Where("business_id = ?", businessId)
	if customerId != nil && *customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	if err := dbCtx.Order("invoice_date DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
