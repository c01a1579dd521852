package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/madakixo/jayy-bot/internal/types"
)

func TestListResources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if !strings.Contains(q.Get("q"), "'folder-lagos' in parents") {
			t.Errorf("unexpected query: %s", q.Get("q"))
		}
		if q.Get("pageSize") != "10" {
			t.Errorf("unexpected page size: %s", q.Get("pageSize"))
		}
		if q.Get("key") != "api-key" {
			t.Errorf("unexpected key: %s", q.Get("key"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]string{
				{"id": "f1", "name": "Amaka.jpg", "thumbnailLink": "https://thumbs/f1"},
				{"id": "f2", "name": "Bisi.jpg", "thumbnailLink": "https://thumbs/f2"},
			},
		})
	}))
	defer srv.Close()

	c := New("api-key", map[string]string{"Lagos": "folder-lagos"})
	c.SetBaseURL(srv.URL)

	resources, err := c.ListResources(context.Background(), "Lagos")
	if err != nil {
		t.Fatal(err)
	}
	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(resources))
	}
	if resources[0].ID != "f1" || resources[0].Name != "Amaka.jpg" {
		t.Errorf("unexpected first resource: %+v", resources[0])
	}
}

func TestListResourcesUnknownRegion(t *testing.T) {
	c := New("api-key", map[string]string{"Lagos": "folder-lagos"})

	resources, err := c.ListResources(context.Background(), "Bavaria")
	if err != nil {
		t.Fatalf("unmapped region is not an error: %v", err)
	}
	if len(resources) != 0 {
		t.Errorf("expected empty catalog, got %d", len(resources))
	}
}

func TestFetchResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/f1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("expected alt=media, got %s", r.URL.Query().Get("alt"))
		}
		w.Write([]byte("raw-image-bytes"))
	}))
	defer srv.Close()

	c := New("api-key", nil)
	c.SetBaseURL(srv.URL)

	data, err := c.FetchResource(context.Background(), "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("raw-image-bytes")) {
		t.Errorf("unexpected body: %q", data)
	}
}

func TestFetchResourceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New("api-key", nil)
	c.SetBaseURL(srv.URL)

	_, err := c.FetchResource(context.Background(), "gone")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListResourcesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("api-key", map[string]string{"Lagos": "folder-lagos"})
	c.SetBaseURL(srv.URL)

	_, err := c.ListResources(context.Background(), "Lagos")
	if !errors.Is(err, types.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
