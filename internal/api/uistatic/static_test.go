package uistatic

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesIndexForPagePaths(t *testing.T) {
	h := Handler()
	for _, path := range []string{"/", "/index.html", "/history/42"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "<title>QueryMind</title>") {
			t.Fatalf("%s did not serve index.html", path)
		}
		if got := rr.Header().Get("Cache-Control"); got != indexCacheControl {
			t.Fatalf("%s Cache-Control = %q", path, got)
		}
	}
}

func TestHandlerServesAssets(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/v1/query/translate") {
		t.Fatal("app.js content missing")
	}
	if got := rr.Header().Get("Cache-Control"); got != assetCacheControl {
		t.Fatalf("Cache-Control = %q", got)
	}
}

func TestHandlerReturnsNotFoundForAPIAndMissingAssets(t *testing.T) {
	h := Handler()
	for _, path := range []string{"/v1/unknown", "/v1", "/missing.js"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", path, rr.Code)
		}
	}
}

func TestHandlerHeadServesNoBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodHead, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("HEAD body length = %d", rr.Body.Len())
	}
}
