package httpkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientSetsDefaultHeaders(t *testing.T) {
	var gotUA, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("X-Api-Key")
	}))
	defer srv.Close()

	client := NewClient(WithHeader("X-Api-Key", "secret"))
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if gotUA != UserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotKey != "secret" {
		t.Errorf("X-Api-Key = %q", gotKey)
	}
}

func TestClientKeepsRequestHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err := NewClient().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotUA != "custom" {
		t.Errorf("User-Agent = %q, want custom", gotUA)
	}
}

func TestReadErrorBody(t *testing.T) {
	got := ReadErrorBody(strings.NewReader(strings.Repeat("e", 1000)), 10)
	if got != strings.Repeat("e", 10) {
		t.Errorf("ReadErrorBody = %q", got)
	}
}
