package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/models"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// authorizeInternalBusiness ensures the session user is allowed to act on the provided business_id.
// - Admin users may act on any business.
// - Non-admin users may only act on their own business.
func authorizeInternalBusiness(ctx context.Context, businessId string) error {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return errors.New("unauthorized")
	}
	if businessId == "" {
		return errors.New("business_id is required")
	}

	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return errors.New("db is nil")
		}
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Take(&user).Error; err != nil {
			return errors.New("unauthorized")
		}
	}

	if user.Role == models.UserRoleAdmin {
		return nil
	}
	if user.BusinessId != businessId {
		return errors.New("unauthorized")
	}
	return nil
}

func authorizeAdminOnly(ctx context.Context) error {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return errors.New("unauthorized")
	}

	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return errors.New("db is nil")
		}
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Take(&user).Error; err != nil {
			return errors.New("unauthorized")
		}
	}
	if user.Role != models.UserRoleAdmin {
		return errors.New("unauthorized")
	}
	return nil
}

// resolveSessionBusinessID maps the session user (or an explicit, authorized
// business_id query param) to the business the request acts on.
func resolveSessionBusinessID(c *gin.Context) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", errors.New("unauthorized")
	}

	businessId := strings.TrimSpace(c.Query("business_id"))
	if businessId != "" {
		if err := authorizeInternalBusiness(c.Request.Context(), businessId); err != nil {
			return "", err
		}
		return businessId, nil
	}

	businessId, err := models.ResolveBusinessIdByUsername(c.Request.Context(), username)
	if err != nil || businessId == "" {
		return "", errors.New("business_id is required")
	}
	return businessId, nil
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := utils.GetUsernameFromContext(c.Request.Context())
		if !ok || username == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := models.Logout(c.Request.Context(), username); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func createBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func getBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveSessionBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		business, err := models.GetBusinessById(c.Request.Context(), businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func updateBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveSessionBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		business, err := models.UpdateBusiness(ctx, &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

// bookingIntakeHandler is the webhook the booking channel posts into. The
// payload is persisted as an intake record before reconciliation so a crash
// mid-flow can be replayed.
func bookingIntakeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveSessionBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var booking models.BookingRequest
		if err := c.ShouldBindJSON(&booking); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(booking.ExternalId) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "external id is required"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)

		record, err := models.CreateBookingIntakeRecord(ctx, businessId, &booking)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		job, invoice, err := models.ReconcileBooking(ctx, &booking)
		if err != nil {
			_ = record.MarkFailed(ctx, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = record.MarkProcessed(ctx)

		c.JSON(http.StatusOK, gin.H{
			"jobId":     job.ID,
			"invoiceId": invoice.ID,
			"intakeId":  record.ID,
		})
	}
}

func jobByBookingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveSessionBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		job, err := models.GetJobByBooking(ctx, c.Param("externalId"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func invoiceByBookingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveSessionBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		invoice, err := models.GetInvoiceByBooking(ctx, c.Param("externalId"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func customerByBookingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveSessionBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		job, err := models.GetJobByBooking(ctx, c.Param("externalId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		customer, err := models.GetCustomer(ctx, job.CustomerId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}

type intakeReplayRequest struct {
	BusinessId string `json:"business_id"`
	Limit      int    `json:"limit"`
}

// intakeReplayHandler re-runs reconciliation for pending/failed intake
// records. Admin ops tooling.
func intakeReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req intakeReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.Limit <= 0 {
			req.Limit = 50
		}

		records, err := models.ListUnprocessedIntakeRecords(c.Request.Context(), req.BusinessId, req.Limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		replayed, failed := 0, 0
		for _, record := range records {
			var booking models.BookingRequest
			if err := utils.UnmarshalFromJSON(record.Payload, &booking); err != nil {
				_ = record.MarkFailed(c.Request.Context(), err)
				failed++
				continue
			}
			ctx := utils.SetBusinessIdInContext(c.Request.Context(), record.BusinessId)
			if _, _, err := models.ReconcileBooking(ctx, &booking); err != nil {
				_ = record.MarkFailed(ctx, err)
				failed++
				continue
			}
			_ = record.MarkProcessed(ctx)
			replayed++
		}

		c.JSON(http.StatusOK, gin.H{
			"scanned":  len(records),
			"replayed": replayed,
			"failed":   failed,
		})
	}
}

func invoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveSessionBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var customerId *int
		if v := strings.TrimSpace(c.Query("customer_id")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				customerId = &n
			}
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		invoices, err := models.GetInvoices(ctx, customerId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, invoices)
	}
}
