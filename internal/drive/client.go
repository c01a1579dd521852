// Package drive is the resource catalog adapter over the Google Drive files
// API. Each supported region maps to one Drive folder of profile images.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/madakixo/jayy-bot/internal/types"
)

const listPageSize = 10

// Client lists and fetches catalog images by region folder.
type Client struct {
	apiKey  string
	baseURL string
	folders map[string]string
	client  *http.Client
}

// New creates a Drive catalog client. folders maps region name to Drive
// folder id; a region absent from the map has an empty catalog.
func New(apiKey string, folders map[string]string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/drive/v3",
		folders: folders,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint, for tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type listResponse struct {
	Files []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ThumbnailLink string `json:"thumbnailLink"`
	} `json:"files"`
}

// ListResources returns up to 10 images in the region's folder, in the
// catalog's order.
func (c *Client) ListResources(ctx context.Context, region string) ([]types.Resource, error) {
	folderID, ok := c.folders[region]
	if !ok {
		return nil, nil
	}

	u, err := url.Parse(c.baseURL + "/files")
	if err != nil {
		return nil, fmt.Errorf("parse list url: %w", err)
	}
	q := u.Query()
	q.Set("q", fmt.Sprintf("'%s' in parents and mimeType contains 'image/'", folderID))
	q.Set("fields", "files(id, name, thumbnailLink)")
	q.Set("pageSize", fmt.Sprintf("%d", listPageSize))
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list resources: %v", types.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list resources status %d", types.ErrUnavailable, resp.StatusCode)
	}

	var result listResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	resources := make([]types.Resource, 0, len(result.Files))
	for _, f := range result.Files {
		resources = append(resources, types.Resource{
			ID:           types.ResourceID(f.ID),
			Name:         f.Name,
			ThumbnailURL: f.ThumbnailLink,
		})
	}
	return resources, nil
}

// FetchResource downloads a resource's bytes.
func (c *Client) FetchResource(ctx context.Context, id types.ResourceID) ([]byte, error) {
	u := fmt.Sprintf("%s/files/%s?alt=media&key=%s", c.baseURL, url.PathEscape(string(id)), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch resource: %v", types.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: resource %s", types.ErrNotFound, id)
	default:
		return nil, fmt.Errorf("%w: fetch resource status %d", types.ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read resource body: %w", err)
	}
	return data, nil
}
