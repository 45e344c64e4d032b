package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/models"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// scopedRequestContext re-checks the session and stamps the business id onto
// the request context, returning false after writing the 401 itself.
func scopedRequestContext(c *gin.Context) (contextOK bool) {
	businessId, err := resolveSessionBusinessID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
	c.Request = c.Request.WithContext(ctx)
	return true
}

func parseIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func writeBindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(verrs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func listCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		var name *string
		if v := strings.TrimSpace(c.Query("name")); v != "" {
			name = &v
		}
		customers, err := models.GetCustomers(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, customers)
	}
}

func getCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		customer, err := models.GetCustomer(c.Request.Context(), id)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}

func updateCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		customer, err := models.UpdateCustomer(c.Request.Context(), id, &input)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}

func listJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		var customerId *int
		if v := strings.TrimSpace(c.Query("customer_id")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				customerId = &n
			}
		}
		jobs, err := models.GetJobs(c.Request.Context(), customerId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}

func getJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		job, err := models.GetJob(c.Request.Context(), id)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

type jobStageRequest struct {
	Stage string `json:"stage" binding:"required"`
}

func updateJobStageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		var req jobStageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		stage, err := models.ParseJobStage(req.Stage)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		job, err := models.UpdateJobStage(c.Request.Context(), id, stage)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func getInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		invoice, err := models.GetInvoice(c.Request.Context(), id)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		users, err := models.GetUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func getUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !scopedRequestContext(c) {
			return
		}
		id, ok := parseIdParam(c)
		if !ok {
			return
		}
		user, err := models.GetUser(c.Request.Context(), id)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		// GetUser is unscoped; keep cross-business reads admin-only
		if err := authorizeInternalBusiness(c.Request.Context(), user.BusinessId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// cacheFlushHandler drops every cached object so stale reads can be forced
// out after a manual data fix.
func cacheFlushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := config.ClearRedis(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
