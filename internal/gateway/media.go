package gateway

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var ErrMediaNotConfigured = errors.New("media storage credentials are not configured")

const (
	DestroyOK       = "ok"
	DestroyNotFound = "not found"
)

type MediaConfig struct {
	BaseURL   string
	CloudName string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

func (c MediaConfig) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// MediaClient talks to a Cloudinary-compatible upload and admin API.
type MediaClient struct {
	config  MediaConfig
	client  *fasthttp.Client
	metrics *UpstreamMetrics
	now     func() time.Time
}

func NewMediaClient(cfg MediaConfig) *MediaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MediaClient{
		config:  cfg,
		client:  newFastClient("kryos-media", cfg.Timeout),
		metrics: NewUpstreamMetrics(),
		now:     time.Now,
	}
}

func (c *MediaClient) Configured() bool {
	return c.config.Configured()
}

func (c *MediaClient) Stats() UpstreamStats {
	return c.metrics.Snapshot("media_store")
}

// Resource is an asset as reported by the upload, search and destroy APIs.
type Resource struct {
	PublicID     string `json:"public_id"`
	Filename     string `json:"filename"`
	ResourceType string `json:"resource_type"`
	Bytes        int64  `json:"bytes"`
	SecureURL    string `json:"secure_url"`
	Format       string `json:"format"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	CreatedAt    string `json:"created_at"`
}

// CreatedTime parses CreatedAt, returning the zero time when it is absent or
// malformed.
func (r Resource) CreatedTime() time.Time {
	t, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

type UploadParams struct {
	Folder       string
	PublicID     string
	ResourceType string
	Overwrite    bool
	FileName     string
	ContentType  string
	Content      []byte
}

// Upload sends a signed multipart upload.
func (c *MediaClient) Upload(ctx context.Context, p UploadParams) (*Resource, error) {
	if !c.Configured() {
		return nil, ErrMediaNotConfigured
	}
	resourceType := p.ResourceType
	if resourceType == "" {
		resourceType = "auto"
	}

	params := map[string]string{
		"folder":    p.Folder,
		"public_id": p.PublicID,
		"overwrite": strconv.FormatBool(p.Overwrite),
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range params {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.WriteField("api_key", c.config.APIKey); err != nil {
		return nil, err
	}
	if err := mw.WriteField("signature", SignParams(params, c.config.APISecret)); err != nil {
		return nil, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, p.FileName))
	if p.ContentType != "" {
		h.Set("Content-Type", p.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(p.Content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var res Resource
	path := fmt.Sprintf("/v1_1/%s/%s/upload", c.config.CloudName, resourceType)
	if err := c.call(ctx, path, mw.FormDataContentType(), buf.Bytes(), false, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Destroy deletes one asset and returns the API result string, "ok" or
// "not found" in the normal cases.
func (c *MediaClient) Destroy(ctx context.Context, publicID, resourceType string) (string, error) {
	if !c.Configured() {
		return "", ErrMediaNotConfigured
	}
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	form := &fasthttp.Args{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("api_key", c.config.APIKey)
	form.Set("signature", SignParams(params, c.config.APISecret))

	var out struct {
		Result string `json:"result"`
	}
	path := fmt.Sprintf("/v1_1/%s/%s/destroy", c.config.CloudName, resourceType)
	if err := c.call(ctx, path, "application/x-www-form-urlencoded", form.QueryString(), false, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

// Search runs an admin search expression and returns up to maxResults assets.
func (c *MediaClient) Search(ctx context.Context, expression string, maxResults int) ([]Resource, error) {
	if !c.Configured() {
		return nil, ErrMediaNotConfigured
	}
	body, err := json.Marshal(map[string]interface{}{
		"expression":  expression,
		"max_results": maxResults,
		"sort_by":     []map[string]string{{"created_at": "desc"}},
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Resources []Resource `json:"resources"`
	}
	path := fmt.Sprintf("/v1_1/%s/resources/search", c.config.CloudName)
	if err := c.call(ctx, path, "application/json", body, true, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

func (c *MediaClient) call(ctx context.Context, path, contentType string, body []byte, withBasicAuth bool, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(contentType)
	if withBasicAuth {
		req.Header.Set("Authorization", basicAuth(c.config.APIKey, c.config.APISecret))
	}
	req.SetBody(body)

	if err := doRequest(ctx, c.client, c.config.Timeout, c.metrics, req, resp); err != nil {
		return err
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		apiErr := &APIError{StatusCode: status, Description: strings.TrimSpace(string(resp.Body()))}
		var env struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(resp.Body(), &env) == nil && env.Error.Message != "" {
			apiErr.Description = env.Error.Message
		}
		return apiErr
	}
	if err := json.Unmarshal(copyBody(resp), out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// SignParams signs upload API parameters: non-empty params sorted by name,
// joined as k=v with '&', the secret appended, SHA-1 hex encoded.
func SignParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "&") + secret))
	return hex.EncodeToString(sum[:])
}
