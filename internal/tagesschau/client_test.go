package tagesschau

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/apperr"
)

func TestClient_EndpointsAndParameters(t *testing.T) {
	t.Parallel()

	var gotNews, gotSearch url.Values
	var gotPaths []string
	var gotUserAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api2/homepage/":
			_, _ = w.Write([]byte(`{"news":[],"regional":[]}`))
		case "/api2/news/":
			gotNews = r.URL.Query()
			_, _ = w.Write([]byte(`{"news":[]}`))
		case "/api2/search/":
			gotSearch = r.URL.Query()
			_, _ = w.Write([]byte(`{"searchResults":[],"totalItemCount":0}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL+"/api2/", WithUserAgent("test-agent"))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	if _, err := c.Homepage(ctx); err != nil {
		t.Fatalf("Homepage returned error: %v", err)
	}

	berlin, _ := RegionByID(3)
	hamburg, _ := RegionByID(6)
	if _, err := c.News(ctx, []Region{berlin, hamburg}, TopicSport); err != nil {
		t.Fatalf("News returned error: %v", err)
	}
	if got := gotNews.Get("regions"); got != "3,6" {
		t.Fatalf("regions = %q, want 3,6", got)
	}
	if got := gotNews.Get("ressort"); got != "sport" {
		t.Fatalf("ressort = %q, want sport", got)
	}

	if _, err := c.Search(ctx, "Bundestag & Wahl", 2); err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if got := gotSearch.Get("searchText"); got != "Bundestag & Wahl" {
		t.Fatalf("searchText = %q", got)
	}
	if gotSearch.Get("resultPage") != "2" || gotSearch.Get("pageSize") != "15" || gotSearch.Get("type") != "story" {
		t.Fatalf("unexpected search query %v", gotSearch)
	}

	if len(gotPaths) != 3 {
		t.Fatalf("requests = %v, want 3", gotPaths)
	}
	if gotUserAgent != "test-agent" {
		t.Fatalf("User-Agent = %q", gotUserAgent)
	}
}

func TestClient_NewsOmitsEmptyFilters(t *testing.T) {
	t.Parallel()

	var rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"news":[]}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.News(context.Background(), nil, ""); err != nil {
		t.Fatalf("News returned error: %v", err)
	}
	if rawQuery != "" {
		t.Fatalf("query = %q, want empty", rawQuery)
	}
}

func TestClient_FailuresAreApiRequestFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/html":
			_, _ = w.Write([]byte(`<html>nope</html>`))
		case "/array":
			_, _ = w.Write([]byte(`[1,2,3]`))
		case "/broken":
			_, _ = w.Write([]byte(`{"title":`))
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	for _, path := range []string{"/html", "/array", "/broken", "/missing"} {
		_, err := c.Fetch(context.Background(), server.URL+path)
		if !apperr.IsKind(err, apperr.ApiRequestFailure) {
			t.Errorf("Fetch(%s) error = %v, want ApiRequestFailure", path, err)
		}
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	if _, err := c.Fetch(context.Background(), closed.URL); !apperr.IsKind(err, apperr.ApiRequestFailure) {
		t.Errorf("Fetch on closed server error = %v, want ApiRequestFailure", err)
	}
}

func TestNewClient_RejectsRelativeBase(t *testing.T) {
	if _, err := NewClient("www.tagesschau.de/api2"); err == nil {
		t.Fatal("expected error for base url without scheme")
	}
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient(\"\") returned error: %v", err)
	}
	if c.baseURL.String() != DefaultBaseURL {
		t.Fatalf("baseURL = %q, want %q", c.baseURL.String(), DefaultBaseURL)
	}
}

func TestClient_DoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	var offsiteHits atomic.Int32
	offsite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsiteHits.Add(1)
		_, _ = w.Write([]byte(`{"title":"elsewhere"}`))
	}))
	t.Cleanup(offsite.Close)

	allowed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, offsite.URL+"/x.json", http.StatusFound)
	}))
	t.Cleanup(allowed.Close)

	plain, err := NewClient(allowed.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	custom, err := NewClient(allowed.URL, WithHTTPClient(&http.Client{}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	for name, c := range map[string]*Client{"default": plain, "custom http client": custom} {
		_, err := c.Fetch(context.Background(), allowed.URL+"/api2/x.json")
		if !apperr.IsKind(err, apperr.ApiRequestFailure) {
			t.Errorf("%s: Fetch error = %v, want ApiRequestFailure", name, err)
		}
	}
	if n := offsiteHits.Load(); n != 0 {
		t.Fatalf("redirect target contacted %d times", n)
	}
}
