package httprpc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blockbus/gateway/internal/errs"
)

func doGet(t *testing.T, url string) ([]byte, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return New(4, 0).Do(req)
}

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := doGet(t, srv.URL)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestDoStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   errs.Kind
	}{
		{400, errs.BadRequest},
		{401, errs.Unauthorized},
		{404, errs.NotFound},
		{500, errs.InternalServer},
		{502, errs.BadGateway},
		{504, errs.GatewayTimeout},
		{503, errs.UnknownServerError},
		{418, errs.UnknownServerError},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			w.Write([]byte("upstream says no"))
		}))
		_, err := doGet(t, srv.URL)
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error", c.status)
			continue
		}
		if got := errs.KindOf(err); got != c.kind {
			t.Errorf("status %d: kind = %v, want %v", c.status, got, c.kind)
		}
		if !strings.Contains(err.Error(), "upstream says no") {
			t.Errorf("status %d: error should capture body, got %q", c.status, err)
		}
	}
}

func TestDoDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	_, err := doGet(t, srv.URL)
	if err == nil {
		t.Fatal("redirect should surface as an error, not be followed")
	}
	if got := errs.KindOf(err); got != errs.UnknownServerError {
		t.Errorf("kind = %v, want UnknownServerError", got)
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Basic dXNlcjpwYXNz")
	h.Set("Content-Type", "application/json")
	out := redactHeaders(h)
	if out["Authorization"] != "<redacted>" {
		t.Errorf("Authorization = %q, want redacted", out["Authorization"])
	}
	if out["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q", out["Content-Type"])
	}
}
