package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Business struct {
	ID          uuid.UUID `gorm:"primary_key" json:"id"`
	LogoUrl     string    `json:"logo_url"`
	Name        string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName string    `gorm:"size:100" json:"contact_name"`
	Email       string    `gorm:"size:255" json:"email"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Mobile      string    `gorm:"size:20" json:"mobile"`
	Website     string    `gorm:"size:255" json:"website"`
	About       string    `gorm:"type:text" json:"about"`
	Address     string    `gorm:"type:text" json:"address"`
	Country     string    `gorm:"size:100" json:"country"`
	City        string    `gorm:"size:100" json:"city"`
	Timezone    string    `gorm:"size:50" json:"timezone"`

	// public-page profile defaults
	ServicesText        string `gorm:"type:text" json:"services_text"`
	DefaultInvoiceNotes string `gorm:"type:text" json:"default_invoice_notes"`
	DefaultInvoiceTerms string `gorm:"type:text" json:"default_invoice_terms"`
	DefaultTemplateKey  string `gorm:"size:100" json:"default_template_key"`

	// invoice numbering profile
	InvoiceNumberPrefix  string `gorm:"size:10;default:'INV-'" json:"invoice_number_prefix"`
	InvoiceNumberPadding int    `gorm:"default:4" json:"invoice_number_padding"`
	InvoiceNumberCounter int    `gorm:"default:0" json:"invoice_number_counter"`
	InvoiceNumberYear    int    `gorm:"default:0" json:"invoice_number_year"`

	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	LogoUrl             string `json:"logo_url"`
	Name                string `json:"name" binding:"required"`
	ContactName         string `json:"contact_name"`
	Email               string `json:"email" binding:"required"`
	Phone               string `json:"phone"`
	Mobile              string `json:"mobile"`
	Website             string `json:"website"`
	About               string `json:"about"`
	Address             string `json:"address"`
	Country             string `json:"country"`
	City                string `json:"city"`
	Timezone            string `json:"timezone"`
	ServicesText        string `json:"services_text"`
	DefaultInvoiceNotes string `json:"default_invoice_notes"`
	DefaultInvoiceTerms string `json:"default_invoice_terms"`
	DefaultTemplateKey  string `json:"default_template_key"`
	InvoiceNumberPrefix string `json:"invoice_number_prefix"`
}

func (business *Business) StoreRedis() error {
	return config.SetRedisObject("Business:"+fmt.Sprint(business.ID), business, 0)
}

func (business *Business) RemoveRedis() error {
	return config.RemoveRedisKey("Business:" + fmt.Sprint(business.ID))
}

func (input *NewBusiness) validate(ctx context.Context, id string) error {
	// name
	if err := utils.ValidateUnique[Business](ctx, "", "name", input.Name, id); err != nil {
		return err
	}
	// email
	if err := utils.ValidateUnique[Business](ctx, "", "email", input.Email, id); err != nil {
		return err
	}
	// phone
	if input.Phone != "" {
		if err := utils.ValidateUnique[Business](ctx, "", "phone", input.Phone, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	// When creating a business,
	// - create the 'Owner' user
	if err := input.validate(ctx, ""); err != nil {
		return nil, err
	}
	db := config.GetDB()

	tx := db.Begin()

	BID := uuid.New()
	timezone := "America/New_York"
	if input.Timezone != "" {
		timezone = input.Timezone
	}
	prefix := input.InvoiceNumberPrefix
	if prefix == "" {
		prefix = "INV-"
	}

	business := Business{
		ID:                   BID,
		LogoUrl:              input.LogoUrl,
		Name:                 input.Name,
		ContactName:          input.ContactName,
		Email:                input.Email,
		Phone:                input.Phone,
		Mobile:               input.Mobile,
		Website:              input.Website,
		About:                input.About,
		Address:              input.Address,
		Country:              input.Country,
		City:                 input.City,
		Timezone:             timezone,
		ServicesText:         input.ServicesText,
		DefaultInvoiceNotes:  input.DefaultInvoiceNotes,
		DefaultInvoiceTerms:  input.DefaultInvoiceTerms,
		DefaultTemplateKey:   input.DefaultTemplateKey,
		InvoiceNumberPrefix:  prefix,
		InvoiceNumberPadding: 4,
		IsActive:             utils.NewTrue(),
	}

	err := tx.WithContext(ctx).Create(&business).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	businessId := business.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	if _, err := CreateDefaultOwner(tx, ctx, businessId, business.Email, business.Name); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func UpdateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	tx := db.Begin()
	err := tx.WithContext(ctx).Model(&business).Updates(map[string]interface{}{
		"LogoUrl":             input.LogoUrl,
		"Name":                input.Name,
		"ContactName":         input.ContactName,
		"Email":               input.Email,
		"Phone":               input.Phone,
		"Mobile":              input.Mobile,
		"Website":             input.Website,
		"About":               input.About,
		"Address":             input.Address,
		"Country":             input.Country,
		"City":                input.City,
		"ServicesText":        input.ServicesText,
		"DefaultInvoiceNotes": input.DefaultInvoiceNotes,
		"DefaultInvoiceTerms": input.DefaultInvoiceTerms,
		"DefaultTemplateKey":  input.DefaultTemplateKey,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// caching
	if err := business.RemoveRedis(); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &business, tx.Commit().Error
}

// SetBusinessLogo updates only the logo URL, leaving the rest of the
// profile untouched. Used by the asset upload flow.
func SetBusinessLogo(ctx context.Context, logoUrl string) (*Business, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if err := db.WithContext(ctx).Model(&business).Update("LogoUrl", logoUrl).Error; err != nil {
		return nil, err
	}
	if err := business.RemoveRedis(); err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusinessById(ctx context.Context, id string) (*Business, error) {

	var result Business

	exists, err := config.GetRedisObject("Business:"+id, &result)
	if err != nil {
		return nil, err
	}

	if !exists {
		db := config.GetDB()
		// db query
		err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		// caching
		if err := result.StoreRedis(); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func GetBusiness(ctx context.Context) (*Business, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return GetBusinessById(ctx, businessId)
}

// FormatInvoiceNumber renders a numbering-profile entry:
// prefix, zero-padded counter, then the issuing year.
func FormatInvoiceNumber(prefix string, counter int, padding int, year int) string {
	if padding <= 0 {
		padding = 4
	}
	return fmt.Sprintf("%s%0*d-%d", prefix, padding, counter, year)
}

// NextInvoiceNumber advances the business numbering profile inside tx and
// returns the formatted number. The counter restarts at 1 on year rollover.
func NextInvoiceNumber(ctx context.Context, tx *gorm.DB, businessId string, issuedAt time.Time) (string, error) {
	var business Business
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", businessId).
		First(&business).Error; err != nil {
		return "", utils.ErrorRecordNotFound
	}

	year := issuedAt.Year()
	counter := business.InvoiceNumberCounter + 1
	if business.InvoiceNumberYear != year {
		counter = 1
	}

	if err := tx.WithContext(ctx).Model(&business).Updates(map[string]interface{}{
		"InvoiceNumberCounter": counter,
		"InvoiceNumberYear":    year,
	}).Error; err != nil {
		return "", err
	}

	// counter moved, cached copy is stale
	if err := business.RemoveRedis(); err != nil {
		return "", err
	}

	return FormatInvoiceNumber(business.InvoiceNumberPrefix, counter, business.InvoiceNumberPadding, year), nil
}
