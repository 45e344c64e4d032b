package sitepublish

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/models"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/gin-gonic/gin"
)

func DraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)

		draft, err := models.GetOrCreateSiteDraft(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, draft)
	}
}

func SaveDraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req SaveDraftRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		draft, err := models.SaveDraftEdits(ctx, &models.SiteDraftEdits{
			Handle:         req.Handle,
			AppName:        req.AppName,
			HeroImagePath:  req.HeroImagePath,
			AboutImagePath: req.AboutImagePath,
			AboutText:      req.AboutText,
			ServicesText:   req.ServicesText,
			Team:           req.Team,
			GalleryPaths:   req.GalleryPaths,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, draft)
	}
}

func QueuePublishHandler(publisher *Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		draft, err := publisher.QueuePublish(ctx)
		if err != nil {
			if errors.Is(err, ErrInvalidHandle) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid handle"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		// Out-of-process trigger is best-effort; the in-process attempt
		// already fired.
		if err := PublishSiteSync(c.Request.Context(), draft.ID, businessId); err != nil {
			config.LogError(config.GetLogger(), "sitepublish", "QueuePublishHandler", "publish pubsub", draft.ID, err)
		}

		c.JSON(http.StatusOK, gin.H{"id": draft.ID, "publishStatus": string(models.PublishStatusQueued)})
	}
}

func PublishStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		draft, err := models.GetOrCreateSiteDraft(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, PublishStatusResponse{
			SiteId:           draft.ID,
			PublishStatus:    string(draft.PublishStatus),
			NeedsSync:        draft.NeedsSync != nil && *draft.NeedsSync,
			LastPublishError: draft.LastPublishError,
			PublishedAt:      formatTime(draft.PublishedAt),
			PublishedUrl:     draft.PublishedUrl,
		})
	}
}

func resolveBusinessID(c *gin.Context) (string, error) {
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

	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return "", err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return "", errors.New("db is nil")
		}
		if err := db.WithContext(c.Request.Context()).
			Model(&models.User{}).
			Where("username = ?", username).
			Take(&user).Error; err != nil {
			return "", errors.New("unauthorized")
		}
	}
	businessId = strings.TrimSpace(user.BusinessId)
	if businessId == "" {
		return "", errors.New("business_id is required")
	}
	return businessId, nil
}

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

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
