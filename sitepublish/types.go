package sitepublish

import "bitbucket.org/craftworks/bizmate_backend/models"

// PagePayload is the composed public page sent to the portal.
type PagePayload struct {
	Handle       string              `json:"handle"`
	AppName      string              `json:"appName"`
	AboutText    string              `json:"aboutText"`
	ServicesText string              `json:"servicesText"`
	Team         []models.TeamMember `json:"team"`
	HeroImageUrl string              `json:"heroImageUrl"`
	AboutImageUrl string             `json:"aboutImageUrl"`
	GalleryUrls  []string            `json:"galleryUrls"`
	ContactEmail string              `json:"contactEmail"`
	ContactPhone string              `json:"contactPhone"`
	Address      string              `json:"address"`
}

// AssetUploadRequest identifies one binary asset pushed to the portal.
type AssetUploadRequest struct {
	BusinessId string
	Handle     string
	Kind       models.SiteAssetKind
	Filename   string
	Data       []byte
}

type SaveDraftRequest struct {
	Handle         *string             `json:"handle"`
	AppName        *string             `json:"appName"`
	HeroImagePath  *string             `json:"heroImagePath"`
	AboutImagePath *string             `json:"aboutImagePath"`
	AboutText      *string             `json:"aboutText"`
	ServicesText   *string             `json:"servicesText"`
	Team           []models.TeamMember `json:"team"`
	GalleryPaths   []string            `json:"galleryPaths"`
}

type PublishStatusResponse struct {
	SiteId           int     `json:"siteId"`
	PublishStatus    string  `json:"publishStatus"`
	NeedsSync        bool    `json:"needsSync"`
	LastPublishError string  `json:"lastPublishError,omitempty"`
	PublishedAt      *string `json:"publishedAt,omitempty"`
	PublishedUrl     string  `json:"publishedUrl,omitempty"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SitePublishPayload struct {
	SiteId     int    `json:"site_id"`
	BusinessId string `json:"business_id"`
}
