package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"gorm.io/gorm"
)

type Job struct {
	ID                int       `gorm:"primary_key" json:"id"`
	BusinessId        string    `gorm:"uniqueIndex:idx_job_booking,priority:1;size:64;not null" json:"business_id" binding:"required"`
	CustomerId        int       `gorm:"index;not null" json:"customer_id" binding:"required"`
	Title             string    `gorm:"size:255" json:"title"`
	Notes             string    `gorm:"type:text" json:"notes"`
	ServiceType       string    `gorm:"size:100" json:"service_type"`
	StartAt           time.Time `gorm:"not null" json:"start_at"`
	EndAt             time.Time `gorm:"not null" json:"end_at"`
	Stage             JobStage  `gorm:"type:enum('Booked','InProgress','Completed','Canceled');not null;default:'Booked'" json:"stage"`
	ExternalBookingId string    `gorm:"uniqueIndex:idx_job_booking,priority:2;size:128;not null" json:"external_booking_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// missing end timestamps default to two hours after start
const defaultJobDuration = 2 * time.Hour

// DeriveJobTitle builds a display title from whatever the booking carries.
func DeriveJobTitle(serviceType, customerName string) string {
	serviceType = strings.TrimSpace(serviceType)
	customerName = strings.TrimSpace(customerName)
	switch {
	case serviceType != "" && customerName != "":
		return serviceType + " - " + customerName
	case serviceType != "":
		return serviceType
	case customerName != "":
		return customerName + " booking"
	}
	return "New booking"
}

func findJobByBooking(ctx context.Context, db *gorm.DB, businessId, externalBookingId string) (*Job, error) {
	var job Job
	err := db.WithContext(ctx).
		Where("business_id = ? AND external_booking_id = ?", businessId, externalBookingId).
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// CreateOrReuseJobForBooking finds or creates the single job keyed by
// (business id, external booking id).
//
// On reuse it re-links the customer, fills an empty title, and reverts a
// Completed stage back to Booked when the start date is still ahead. That
// last rule undoes jobs marked done before they ever ran.
func CreateOrReuseJobForBooking(ctx context.Context, customer *Customer, booking *BookingRequest) (*Job, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if strings.TrimSpace(booking.ExternalId) == "" {
		return nil, errors.New("external booking id is required")
	}
	if customer == nil {
		return nil, errors.New("customer is required")
	}

	db := config.GetDB()

	existing, err := findJobByBooking(ctx, db, businessId, booking.ExternalId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		updates := map[string]interface{}{}
		if existing.CustomerId != customer.ID {
			updates["CustomerId"] = customer.ID
		}
		if existing.Title == "" {
			updates["Title"] = DeriveJobTitle(booking.ServiceType, customer.Name)
		}
		if existing.Stage == JobStageCompleted && existing.StartAt.After(time.Now()) {
			updates["Stage"] = JobStageBooked
		}
		if len(updates) == 0 {
			return existing, nil
		}
		if err := db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		return existing, nil
	}

	start := ParseBookingTime(booking.RequestedStart)
	if start == nil {
		now := time.Now()
		start = &now
	}
	end := ParseBookingTime(booking.RequestedEnd)
	if end == nil {
		e := start.Add(defaultJobDuration)
		end = &e
	}

	job := Job{
		BusinessId:        businessId,
		CustomerId:        customer.ID,
		Title:             DeriveJobTitle(booking.ServiceType, customer.Name),
		Notes:             booking.Notes,
		ServiceType:       booking.ServiceType,
		StartAt:           *start,
		EndAt:             *end,
		Stage:             JobStageBooked,
		ExternalBookingId: booking.ExternalId,
	}
	if err := db.WithContext(ctx).Create(&job).Error; err != nil {
		// a concurrent reconcile won the insert; reuse its row
		if isDuplicateKeyError(err) {
			if existing, ferr := findJobByBooking(ctx, db, businessId, booking.ExternalId); ferr == nil && existing != nil {
				return existing, nil
			}
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &job, nil
}

func GetJob(ctx context.Context, id int) (*Job, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Job](ctx, businessId, id)
}

func GetJobByBooking(ctx context.Context, externalBookingId string) (*Job, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	job, err := findJobByBooking(ctx, config.GetDB(), businessId, externalBookingId)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, utils.ErrorRecordNotFound
	}
	return job, nil
}

// UpdateJobStage moves a job through the pipeline stages.
func UpdateJobStage(ctx context.Context, id int, stage JobStage) (*Job, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	job, err := utils.FetchModel[Job](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(job).Update("Stage", stage).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func GetJobs(ctx context.Context, customerId *int) ([]*Job, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Job
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if customerId != nil && *customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	if err := dbCtx.Order("start_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
