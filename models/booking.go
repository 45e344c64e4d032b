package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
)

// BookingRequest is the transient payload from an intake channel. It is never
// persisted itself; reconciliation keys off ExternalId per business.
type BookingRequest struct {
	ExternalId       string           `json:"external_id" binding:"required"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone"`
	ServiceType      string           `json:"service_type"`
	Notes            string           `json:"notes"`
	RequestedStart   string           `json:"requested_start"`
	RequestedEnd     string           `json:"requested_end"`
	DepositAmount    *decimal.Decimal `json:"deposit_amount"`
	DepositPaidAt    *time.Time       `json:"deposit_paid_at"`
	DepositInvoiceId string           `json:"deposit_invoice_id"`
	TotalAmount      *decimal.Decimal `json:"total_amount"`
}

// epoch values above this are milliseconds, below are seconds
const epochMillisThreshold = int64(10_000_000_000)

// ParseBookingTime parses the free-form timestamps intake channels send:
// fractional-second ISO-8601, plain ISO-8601, or a raw epoch value.
// Returns nil for empty or unparseable input.
func ParseBookingTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return &t
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		n := int64(f)
		var t time.Time
		if n > epochMillisThreshold {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		return &t
	}
	return nil
}

// BookingIntakeRecord stores every inbound booking payload before
// reconciliation, so failed intakes can be replayed.
type BookingIntakeRecord struct {
	ID            int          `gorm:"primary_key" json:"id"`
	BusinessId    string       `gorm:"index;not null" json:"business_id"`
	ExternalId    string       `gorm:"index;size:128;not null" json:"external_id"`
	Payload       []byte       `gorm:"type:json" json:"payload"`
	Status        IntakeStatus `gorm:"type:enum('Pending','Processed','Failed');not null;default:'Pending'" json:"status"`
	LastError     string       `gorm:"type:text" json:"last_error"`
	Attempts      int          `gorm:"default:0" json:"attempts"`
	CorrelationId string       `gorm:"size:64" json:"correlation_id"`
	ProcessedAt   *time.Time   `json:"processed_at"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateBookingIntakeRecord(ctx context.Context, businessId string, booking *BookingRequest) (*BookingIntakeRecord, error) {
	payload, err := utils.MarshalToJSON(booking)
	if err != nil {
		return nil, err
	}

	record := BookingIntakeRecord{
		BusinessId:    businessId,
		ExternalId:    booking.ExternalId,
		Payload:       []byte(payload),
		Status:        IntakeStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (record *BookingIntakeRecord) MarkProcessed(ctx context.Context) error {
	now := time.Now()
	db := config.GetDB()
	return db.WithContext(ctx).Model(record).Updates(map[string]interface{}{
		"Status":      IntakeStatusProcessed,
		"LastError":   "",
		"Attempts":    record.Attempts + 1,
		"ProcessedAt": &now,
	}).Error
}

func (record *BookingIntakeRecord) MarkFailed(ctx context.Context, cause error) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(record).Updates(map[string]interface{}{
		"Status":    IntakeStatusFailed,
		"LastError": cause.Error(),
		"Attempts":  record.Attempts + 1,
	}).Error
}

// ListUnprocessedIntakeRecords returns pending/failed intakes for replay,
// oldest first.
func ListUnprocessedIntakeRecords(ctx context.Context, businessId string, limit int) ([]*BookingIntakeRecord, error) {
	db := config.GetDB()
	var records []*BookingIntakeRecord
	dbCtx := db.WithContext(ctx).
		Where("status IN (?)", []IntakeStatus{IntakeStatusPending, IntakeStatusFailed}).
		Order("id")
	if businessId != "" {
		dbCtx = dbCtx.Where("business_id = ?", businessId)
	}
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	if err := dbCtx.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ReconcileBooking runs the full flow for one booking: resolve the customer,
// find-or-create the job, then the final invoice. A job created before an
// invoice failure stays; the next call resumes at invoice creation.
//
// The server is multi-goroutine, so a best-effort redis lock keyed by
// (business, external booking id) guards the scan-before-insert window.
func ReconcileBooking(ctx context.Context, booking *BookingRequest) (*Job, *Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, errors.New("business id is required")
	}
	if strings.TrimSpace(booking.ExternalId) == "" {
		return nil, nil, errors.New("external booking id is required")
	}

	if locker := config.GetRedisLock(); locker != nil {
		lockKey := "bookingReconcile:" + businessId + ":" + booking.ExternalId
		lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
		if err == nil {
			defer lock.Release(config.GetRedisContext())
		} else if !errors.Is(err, redislock.ErrNotObtained) {
			logger := config.GetLogger()
			config.LogError(logger, "models", "ReconcileBooking", "obtain lock", lockKey, err)
		}
	}

	customer, err := ResolveOrCreateCustomer(ctx, booking)
	if err != nil {
		return nil, nil, err
	}

	job, err := CreateOrReuseJobForBooking(ctx, customer, booking)
	if err != nil {
		return nil, nil, err
	}

	invoice, err := CreateOrReuseFinalInvoiceForBooking(ctx, customer, booking)
	if err != nil {
		return job, nil, err
	}

	return job, invoice, nil
}
