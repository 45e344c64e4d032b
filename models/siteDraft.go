package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/config"
	"bitbucket.org/craftworks/bizmate_backend/utils"
	"gorm.io/gorm"
)

// SiteDraft is the single per-business editable public page. Status runs
// draft -> queued -> publishing -> published/error; any edit demotes it back
// to draft and flips needs-sync.
type SiteDraft struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"uniqueIndex;size:64;not null" json:"business_id"`
	Handle     string `gorm:"size:100" json:"handle"`
	AppName    string `gorm:"size:100" json:"app_name"`

	HeroImagePath  string `gorm:"size:512" json:"hero_image_path"`
	HeroImageUrl   string `gorm:"size:512" json:"hero_image_url"`
	AboutImagePath string `gorm:"size:512" json:"about_image_path"`
	AboutImageUrl  string `gorm:"size:512" json:"about_image_url"`
	AboutText      string `gorm:"type:text" json:"about_text"`
	ServicesText   string `gorm:"type:text" json:"services_text"`

	TeamJSON         []byte `gorm:"type:json" json:"team"`
	GalleryPathsJSON []byte `gorm:"type:json" json:"gallery_paths"`
	GalleryUrlsJSON  []byte `gorm:"type:json" json:"gallery_urls"`

	PublishStatus    PublishStatus `gorm:"type:enum('Draft','Queued','Publishing','Published','Error');not null;default:'Draft'" json:"publish_status"`
	NeedsSync        *bool         `gorm:"not null;default:false" json:"needs_sync"`
	LastPublishError string        `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time    `json:"published_at"`
	PublishedUrl     string        `gorm:"size:512" json:"published_url"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type TeamMember struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type SiteDraftEdits struct {
	Handle         *string       `json:"handle"`
	AppName        *string       `json:"app_name"`
	HeroImagePath  *string       `json:"hero_image_path"`
	AboutImagePath *string       `json:"about_image_path"`
	AboutText      *string       `json:"about_text"`
	ServicesText   *string       `json:"services_text"`
	Team           []TeamMember  `json:"team"`
	GalleryPaths   []string      `json:"gallery_paths"`
}

func DecodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

func EncodeStringList(list []string) []byte {
	b, _ := json.Marshal(list)
	return b
}

func DecodeTeam(raw []byte) []TeamMember {
	if len(raw) == 0 {
		return nil
	}
	var team []TeamMember
	if err := json.Unmarshal(raw, &team); err != nil {
		return nil
	}
	return team
}

func EncodeTeam(team []TeamMember) []byte {
	b, _ := json.Marshal(team)
	return b
}

func (d *SiteDraft) GalleryPaths() []string {
	return DecodeStringList(d.GalleryPathsJSON)
}

func (d *SiteDraft) GalleryUrls() []string {
	return DecodeStringList(d.GalleryUrlsJSON)
}

func (d *SiteDraft) Team() []TeamMember {
	return DecodeTeam(d.TeamJSON)
}

// GetOrCreateSiteDraft returns the business's draft, lazily creating an empty
// one on first access.
func GetOrCreateSiteDraft(ctx context.Context) (*SiteDraft, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var draft SiteDraft
	err := db.WithContext(ctx).Where("business_id = ?", businessId).Take(&draft).Error
	if err == nil {
		return &draft, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	draft = SiteDraft{
		BusinessId:    businessId,
		PublishStatus: PublishStatusDraft,
		NeedsSync:     utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&draft).Error; err != nil {
		// concurrent first access
		if isDuplicateKeyError(err) {
			var existing SiteDraft
			if ferr := db.WithContext(ctx).Where("business_id = ?", businessId).Take(&existing).Error; ferr == nil {
				return &existing, nil
			}
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &draft, nil
}

// SaveDraftEdits applies the edits, demotes the status back to Draft, and
// marks the draft dirty. Every edit path goes through here so the status
// machine never skips the demotion.
func SaveDraftEdits(ctx context.Context, input *SiteDraftEdits) (*SiteDraft, error) {
	draft, err := GetOrCreateSiteDraft(ctx)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"PublishStatus": PublishStatusDraft,
		"NeedsSync":     true,
	}
	if input.Handle != nil {
		updates["Handle"] = utils.NormalizeHandle(*input.Handle)
	}
	if input.AppName != nil {
		updates["AppName"] = *input.AppName
	}
	if input.HeroImagePath != nil {
		updates["HeroImagePath"] = *input.HeroImagePath
		// new local asset invalidates the uploaded copy
		updates["HeroImageUrl"] = ""
	}
	if input.AboutImagePath != nil {
		updates["AboutImagePath"] = *input.AboutImagePath
		updates["AboutImageUrl"] = ""
	}
	if input.AboutText != nil {
		updates["AboutText"] = *input.AboutText
	}
	if input.ServicesText != nil {
		updates["ServicesText"] = *input.ServicesText
	}
	if input.Team != nil {
		updates["TeamJSON"] = EncodeTeam(input.Team)
	}
	if input.GalleryPaths != nil {
		updates["GalleryPathsJSON"] = EncodeStringList(input.GalleryPaths)
		updates["GalleryUrlsJSON"] = EncodeStringList(nil)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(draft).Updates(updates).Error; err != nil {
		return nil, err
	}
	return draft, nil
}

func GetSiteDraftById(ctx context.Context, id int) (*SiteDraft, error) {
	return utils.FetchSingleModel[SiteDraft](ctx, id)
}

// ListDraftsNeedingSync returns every dirty draft across all businesses,
// for the connectivity-restoration sweep.
func ListDraftsNeedingSync(ctx context.Context) ([]*SiteDraft, error) {
	db := config.GetDB()
	var drafts []*SiteDraft
	if err := db.WithContext(ctx).Where("needs_sync = ?", true).Order("id").Find(&drafts).Error; err != nil {
		return nil, err
	}
	return drafts, nil
}
