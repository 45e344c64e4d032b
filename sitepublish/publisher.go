package sitepublish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/models"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"github.com/bsm/redislock"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

const fallbackAppName = "My Business"

var ErrInvalidHandle = errors.New("invalid handle")

// Publisher owns the publish state machine. The in-flight set lives on the
// instance so two Publishers never share accidental global state; within one
// process a single Publisher must be used for single-flight to hold.
type Publisher struct {
	client  Client
	logger  *logrus.Logger
	monitor *NetworkMonitor

	mu       sync.Mutex
	inflight map[int]bool
}

func NewPublisher(client Client) *Publisher {
	p := &Publisher{
		client:   client,
		logger:   config.GetLogger(),
		inflight: make(map[int]bool),
	}
	p.monitor = NewNetworkMonitor(client, func(ctx context.Context) {
		_ = p.SyncAllQueuedDrafts(ctx)
	})
	return p
}

func (p *Publisher) Monitor() *NetworkMonitor {
	return p.monitor
}

func (p *Publisher) tryAcquire(siteId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[siteId] {
		return false
	}
	p.inflight[siteId] = true
	return true
}

func (p *Publisher) release(siteId int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, siteId)
}

// QueuePublish validates the draft, backfills presentation fields from the
// business profile, moves it to Queued, and fires one publish attempt.
func (p *Publisher) QueuePublish(ctx context.Context) (*models.SiteDraft, error) {
	draft, err := models.GetOrCreateSiteDraft(ctx)
	if err != nil {
		return nil, err
	}

	handle := utils.NormalizeHandle(draft.Handle)
	if handle == "" {
		return nil, ErrInvalidHandle
	}

	business, err := models.GetBusiness(ctx)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"Handle":           handle,
		"PublishStatus":    models.PublishStatusQueued,
		"NeedsSync":        true,
		"LastPublishError": "",
	}

	if strings.TrimSpace(draft.AppName) == "" {
		appName := business.Name
		if strings.TrimSpace(appName) == "" {
			appName = business.ContactName
		}
		if strings.TrimSpace(appName) == "" {
			appName = fallbackAppName
		}
		updates["AppName"] = appName
	}
	if strings.TrimSpace(draft.ServicesText) == "" && business.ServicesText != "" {
		updates["ServicesText"] = business.ServicesText
	}
	if strings.TrimSpace(draft.AboutText) == "" && business.About != "" {
		updates["AboutText"] = business.About
	}
	if draft.HeroImagePath == "" && draft.HeroImageUrl == "" && business.LogoUrl != "" {
		heroPath, err := p.seedHeroFromLogo(ctx, business.LogoUrl)
		if err != nil {
			config.LogError(p.logger, "sitepublish", "QueuePublish", "seed hero from logo", business.LogoUrl, err)
		} else {
			updates["HeroImagePath"] = heroPath
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(draft).Updates(updates).Error; err != nil {
		return nil, err
	}

	go func() {
		attemptCtx := utils.SetBusinessIdInContext(context.Background(), draft.BusinessId)
		if err := p.AttemptPublish(attemptCtx, draft.ID); err != nil {
			config.LogError(p.logger, "sitepublish", "QueuePublish", "attempt publish", draft.ID, err)
		}
	}()

	return draft, nil
}

// AttemptPublish runs one publish pass for the draft: uploads any asset whose
// remote URL is still empty, then upserts the page. It no-ops when the portal
// is unreachable, when the draft is clean, or when another attempt for the
// same id is running.
func (p *Publisher) AttemptPublish(ctx context.Context, siteId int) error {
	if !p.monitor.Reachable() {
		return nil
	}

	db := config.GetDB()
	var draft models.SiteDraft
	if err := db.WithContext(ctx).Take(&draft, siteId).Error; err != nil {
		return err
	}
	if draft.NeedsSync == nil || !*draft.NeedsSync {
		return nil
	}

	if !p.tryAcquire(siteId) {
		return nil
	}
	defer p.release(siteId)

	ctx = utils.SetBusinessIdInContext(ctx, draft.BusinessId)

	// Best-effort cross-process guard; the in-flight set already serializes
	// attempts within this process.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("sitePublish:%d", siteId), 60*time.Second, nil)
		if err == redislock.ErrNotObtained {
			return nil
		} else if err != nil {
			config.LogError(p.logger, "sitepublish", "AttemptPublish", "obtain redis lock", siteId, err)
		} else {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	if err := db.WithContext(ctx).Model(&draft).Updates(map[string]interface{}{
		"PublishStatus":    models.PublishStatusPublishing,
		"LastPublishError": "",
	}).Error; err != nil {
		return err
	}

	business, err := models.GetBusinessById(ctx, draft.BusinessId)
	if err != nil {
		return p.markPublishError(ctx, &draft, err)
	}

	if err := p.uploadAssets(ctx, &draft); err != nil {
		return p.markPublishError(ctx, &draft, err)
	}

	payload := PagePayload{
		Handle:        draft.Handle,
		AppName:       draft.AppName,
		AboutText:     draft.AboutText,
		ServicesText:  draft.ServicesText,
		Team:          draft.Team(),
		HeroImageUrl:  draft.HeroImageUrl,
		AboutImageUrl: draft.AboutImageUrl,
		GalleryUrls:   draft.GalleryUrls(),
		ContactEmail:  business.Email,
		ContactPhone:  business.Phone,
		Address:       business.Address,
	}
	pageUrl, err := p.client.UpsertPage(ctx, payload)
	if err != nil {
		return p.markPublishError(ctx, &draft, err)
	}

	now := time.Now()
	if err := db.WithContext(ctx).Model(&draft).Updates(map[string]interface{}{
		"PublishStatus":    models.PublishStatusPublished,
		"NeedsSync":        false,
		"LastPublishError": "",
		"PublishedAt":      now,
		"PublishedUrl":     pageUrl,
	}).Error; err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"site_id":     siteId,
		"business_id": draft.BusinessId,
		"handle":      draft.Handle,
		"url":         pageUrl,
	}).Info("site published")
	return nil
}

// markPublishError moves the draft to Error with a readable message.
// needs-sync stays true so the next trigger retries the whole attempt.
func (p *Publisher) markPublishError(ctx context.Context, draft *models.SiteDraft, cause error) error {
	config.LogError(p.logger, "sitepublish", "AttemptPublish", "publish failed", draft.ID, cause)
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(draft).Updates(map[string]interface{}{
		"PublishStatus":    models.PublishStatusError,
		"LastPublishError": cause.Error(),
	}).Error; err != nil {
		return err
	}
	return cause
}

// uploadAssets pushes each local asset whose remote URL is still empty.
// Uploaded URLs are persisted as they land, so a failed pass resumes at the
// first unmatched asset instead of re-uploading.
func (p *Publisher) uploadAssets(ctx context.Context, draft *models.SiteDraft) error {
	db := config.GetDB()

	if draft.HeroImageUrl == "" && draft.HeroImagePath != "" {
		url, err := p.uploadOne(ctx, draft, models.SiteAssetKindHero, draft.HeroImagePath, false)
		if err != nil {
			return err
		}
		if err := db.WithContext(ctx).Model(draft).Updates(map[string]interface{}{"HeroImageUrl": url}).Error; err != nil {
			return err
		}
	}

	if draft.AboutImageUrl == "" && draft.AboutImagePath != "" {
		url, err := p.uploadOne(ctx, draft, models.SiteAssetKindAbout, draft.AboutImagePath, false)
		if err != nil {
			return err
		}
		if err := db.WithContext(ctx).Model(draft).Updates(map[string]interface{}{"AboutImageUrl": url}).Error; err != nil {
			return err
		}
	}

	paths := draft.GalleryPaths()
	urls := draft.GalleryUrls()
	for len(urls) < len(paths) {
		urls = append(urls, "")
	}
	for i, path := range paths {
		if urls[i] != "" || path == "" {
			continue
		}
		url, err := p.uploadOne(ctx, draft, models.SiteAssetKindGallery, path, true)
		if err != nil {
			return err
		}
		urls[i] = url
		if err := db.WithContext(ctx).Model(draft).Updates(map[string]interface{}{
			"GalleryUrlsJSON": models.EncodeStringList(urls),
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) uploadOne(ctx context.Context, draft *models.SiteDraft, kind models.SiteAssetKind, path string, withThumbnail bool) (string, error) {
	data, err := readLocalAsset(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read asset %s: %w", path, err)
	}

	filename := filepath.Base(path)
	url, err := p.client.UploadAsset(ctx, AssetUploadRequest{
		BusinessId: draft.BusinessId,
		Handle:     draft.Handle,
		Kind:       kind,
		Filename:   filename,
		Data:       data,
	})
	if err != nil {
		return "", err
	}

	if withThumbnail {
		thumb, err := makeGalleryThumbnail(data)
		if err != nil {
			config.LogError(p.logger, "sitepublish", "uploadOne", "thumbnail", path, err)
		} else if _, err := p.client.UploadAsset(ctx, AssetUploadRequest{
			BusinessId: draft.BusinessId,
			Handle:     draft.Handle,
			Kind:       kind,
			Filename:   "thumb_" + filename,
			Data:       thumb,
		}); err != nil {
			config.LogError(p.logger, "sitepublish", "uploadOne", "thumbnail upload", path, err)
		}
	}

	return url, nil
}

// SyncAllQueuedDrafts attempts a publish for every dirty draft across all
// businesses. Idempotent; safe to call on every connectivity restoration.
func (p *Publisher) SyncAllQueuedDrafts(ctx context.Context) error {
	drafts, err := models.ListDraftsNeedingSync(ctx)
	if err != nil {
		return err
	}
	for _, draft := range drafts {
		draftCtx := utils.SetBusinessIdInContext(ctx, draft.BusinessId)
		if err := p.AttemptPublish(draftCtx, draft.ID); err != nil {
			config.LogError(p.logger, "sitepublish", "SyncAllQueuedDrafts", "attempt publish", draft.ID, err)
		}
	}
	return nil
}

// seedHeroFromLogo copies the business logo into a temp file so it flows
// through the same local-asset upload path as user-picked images.
func (p *Publisher) seedHeroFromLogo(ctx context.Context, logoUrl string) (string, error) {
	if strings.HasPrefix(logoUrl, "http://") || strings.HasPrefix(logoUrl, "https://") {
		if err := utils.CheckImageExistInGCS(logoUrl); err != nil {
			return "", err
		}
	}
	data, err := readLocalAsset(ctx, logoUrl)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "hero-*"+filepath.Ext(logoUrl))
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := tmp.Write(data); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

// readLocalAsset loads asset bytes from a local path, a bucket object key,
// or an absolute URL, in that order.
func readLocalAsset(ctx context.Context, path string) ([]byte, error) {
	if _, err := os.Stat(path); err == nil {
		return os.ReadFile(path)
	}

	if key := utils.ExtractObjectKeyFromURL(path); key != "" {
		if data, err := utils.ReadBytesFromGCS(ctx, key); err == nil {
			return data, nil
		}
	}

	url := path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = utils.BuildObjectAccessURL(path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func makeGalleryThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, 400, 400, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
