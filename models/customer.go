package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
)

type Customer struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	BusinessId         string    `gorm:"index;not null" json:"business_id" binding:"required"`
	Name               string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email              string    `gorm:"size:100" json:"email"`
	Phone              string    `gorm:"size:20" json:"phone"`
	Mobile             string    `gorm:"size:20" json:"mobile"`
	Address            string    `gorm:"type:text" json:"address"`
	Notes              string    `gorm:"type:text" json:"notes"`
	InvoiceTemplateKey string    `gorm:"size:100" json:"invoice_template_key"`
	IsActive           *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name               string `json:"name" binding:"required"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Mobile             string `json:"mobile"`
	Address            string `json:"address"`
	Notes              string `json:"notes"`
	InvoiceTemplateKey string `json:"invoice_template_key"`
}

// fallback label when the booking carries neither a name nor an email
const fallbackCustomerName = "Booking customer"

func (input *NewCustomer) validate(ctx context.Context, businessId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, businessId, id); err != nil {
			return err
		}
	}
	// validate email
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return errors.New("invalid phone number")
		}
	}
	if input.Mobile != "" {
		if err := utils.ValidatePhoneNumber(input.Mobile, utils.CountryCode); err != nil {
			return errors.New("invalid mobile number")
		}
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	customer := Customer{
		BusinessId:         businessId,
		Name:               input.Name,
		Email:              input.Email,
		Phone:              input.Phone,
		Mobile:             input.Mobile,
		Address:            input.Address,
		Notes:              input.Notes,
		InvoiceTemplateKey: input.InvoiceTemplateKey,
		IsActive:           utils.NewTrue(),
	}

	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&customer).Updates(map[string]interface{}{
		"Name":               input.Name,
		"Email":              input.Email,
		"Phone":              input.Phone,
		"Mobile":             input.Mobile,
		"Address":            input.Address,
		"Notes":              input.Notes,
		"InvoiceTemplateKey": input.InvoiceTemplateKey,
	}).Error
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Customer](ctx, businessId, id)
}

func GetCustomers(ctx context.Context, name *string) ([]*Customer, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var results []*Customer
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// MatchCustomer scans candidates for the first customer matching the booking
// contact fields: email first, then phone digits, then name. Returns nil when
// nothing matches.
func MatchCustomer(candidates []*Customer, email, phone, name string) *Customer {
	wantEmail := utils.NormalizeEmail(email)
	if wantEmail != "" {
		for _, c := range candidates {
			if utils.NormalizeEmail(c.Email) == wantEmail {
				return c
			}
		}
	}

	wantPhone := utils.NormalizePhoneDigits(phone)
	if wantPhone != "" {
		for _, c := range candidates {
			if utils.NormalizePhoneDigits(c.Phone) == wantPhone {
				return c
			}
			if utils.NormalizePhoneDigits(c.Mobile) == wantPhone {
				return c
			}
		}
	}

	wantName := utils.NormalizeName(name)
	if wantName != "" {
		for _, c := range candidates {
			if utils.NormalizeName(c.Name) == wantName {
				return c
			}
		}
	}
	return nil
}

// ResolveOrCreateCustomer finds the customer a booking's contact fields point
// at, or creates one. The create path runs even on lookup-style callers.
func ResolveOrCreateCustomer(ctx context.Context, booking *BookingRequest) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	candidates, err := utils.FetchAllModels[Customer](ctx, businessId)
	if err != nil {
		return nil, err
	}

	if match := MatchCustomer(candidates, booking.Email, booking.Phone, booking.Name); match != nil {
		return match, nil
	}

	name := utils.NormalizeWhitespace(booking.Name)
	if name == "" {
		name = utils.NormalizeWhitespace(booking.Email)
	}
	if name == "" {
		name = fallbackCustomerName
	}

	// intake channels send free-form phone text; keep it only when it parses
	// as a dialable number so a bad field never blocks the reconcile
	phone := utils.NormalizeWhitespace(booking.Phone)
	if phone != "" {
		if err := utils.ValidatePhoneNumber(phone, utils.CountryCode); err != nil {
			phone = ""
		}
	}

	return CreateCustomer(ctx, &NewCustomer{
		Name:  name,
		Email: utils.NormalizeWhitespace(booking.Email),
		Phone: phone,
	})
}
