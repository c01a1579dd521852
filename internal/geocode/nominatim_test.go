package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/madakixo/jayy-bot/internal/types"
)

func newTestGeocoder(t *testing.T, state string) *Nominatim {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "JayyBot/1.0" {
			t.Errorf("unexpected user agent: %s", r.Header.Get("User-Agent"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"address": map[string]string{"state": state},
		})
	}))
	t.Cleanup(srv.Close)

	g := New([]string{"Lagos", "Kano"})
	g.SetBaseURL(srv.URL)
	return g
}

func TestResolveRegionStripsStateSuffix(t *testing.T) {
	g := newTestGeocoder(t, "Lagos State")
	region, err := g.ResolveRegion(context.Background(), 6.5, 3.4)
	if err != nil {
		t.Fatal(err)
	}
	if region != "Lagos" {
		t.Errorf("expected Lagos, got %q", region)
	}
}

func TestResolveRegionBareName(t *testing.T) {
	g := newTestGeocoder(t, "Kano")
	region, err := g.ResolveRegion(context.Background(), 12.0, 8.5)
	if err != nil {
		t.Fatal(err)
	}
	if region != "Kano" {
		t.Errorf("expected Kano, got %q", region)
	}
}

func TestResolveRegionUnsupported(t *testing.T) {
	g := newTestGeocoder(t, "Bavaria")
	region, err := g.ResolveRegion(context.Background(), 48.1, 11.6)
	if err != nil {
		t.Fatalf("unsupported region is not an error: %v", err)
	}
	if region != "" {
		t.Errorf("expected empty region, got %q", region)
	}
}

func TestResolveRegionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := New([]string{"Lagos"})
	g.SetBaseURL(srv.URL)

	_, err := g.ResolveRegion(context.Background(), 6.5, 3.4)
	if !errors.Is(err, types.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
