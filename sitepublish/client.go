package sitepublish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the portal-facing surface the publisher needs. Kept small so
// tests can swap in a fake.
type Client interface {
	UpsertPage(ctx context.Context, payload PagePayload) (string, error)
	UploadAsset(ctx context.Context, req AssetUploadRequest) (string, error)
	Ping(ctx context.Context) error
}

type portalClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func NewPortalClient() (Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("PORTAL_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://portal.bizmate.app"
	}
	apiKey := strings.TrimSpace(os.Getenv("PORTAL_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("portal api key is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("PORTAL_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("PORTAL_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &portalClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type upsertPageResponse struct {
	URL     string `json:"url"`
	PageURL string `json:"pageUrl"`
}

type uploadAssetResponse struct {
	URL string `json:"url"`
}

// UpsertPage creates or updates the public page and returns its URL.
func (c *portalClient) UpsertPage(ctx context.Context, payload PagePayload) (string, error) {
	<-c.limiter
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/v1/pages/" + payload.Handle
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("portal api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed upsertPageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	if parsed.URL != "" {
		return parsed.URL, nil
	}
	return parsed.PageURL, nil
}

// UploadAsset pushes one binary asset and returns its remote URL.
func (c *portalClient) UploadAsset(ctx context.Context, upload AssetUploadRequest) (string, error) {
	<-c.limiter

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", upload.Filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return "", err
	}
	_ = writer.WriteField("businessId", upload.BusinessId)
	_ = writer.WriteField("kind", string(upload.Kind))
	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/v1/pages/" + upload.Handle + "/assets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("portal api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed uploadAssetResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	if parsed.URL == "" {
		return "", errors.New("portal returned empty asset url")
	}
	return parsed.URL, nil
}

// Ping is the reachability probe used by the network monitor.
func (c *portalClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("portal unhealthy: %d", resp.StatusCode)
	}
	return nil
}
