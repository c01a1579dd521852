// Package geocode resolves coordinates to a supported administrative region
// via the Nominatim reverse-geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/madakixo/jayy-bot/internal/types"
)

// Nominatim reverse-geocodes coordinates and normalizes the result against
// the set of supported regions.
type Nominatim struct {
	baseURL   string
	supported map[string]bool
	client    *http.Client
}

// New creates a Nominatim geocoder. Only regions in supported resolve; any
// other location yields an empty region.
func New(supported []string) *Nominatim {
	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[s] = true
	}
	return &Nominatim{
		baseURL:   "https://nominatim.openstreetmap.org",
		supported: set,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint, for tests.
func (n *Nominatim) SetBaseURL(u string) { n.baseURL = u }

type reverseResponse struct {
	Address struct {
		State string `json:"state"`
	} `json:"address"`
}

// ResolveRegion returns the supported region containing the coordinates, or
// "" when the location resolves to no supported region.
func (n *Nominatim) ResolveRegion(ctx context.Context, lat, lon float64) (string, error) {
	u := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s",
		n.baseURL,
		url.QueryEscape(fmt.Sprintf("%g", lat)),
		url.QueryEscape(fmt.Sprintf("%g", lon)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create reverse request: %w", err)
	}
	req.Header.Set("User-Agent", "JayyBot/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: reverse geocode: %v", types.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: reverse geocode status %d", types.ErrUnavailable, resp.StatusCode)
	}

	var result reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode reverse response: %w", err)
	}

	region := strings.TrimSuffix(result.Address.State, " State")
	if !n.supported[region] {
		return "", nil
	}
	return region, nil
}
