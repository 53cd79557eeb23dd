package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestCheckCVURL(t *testing.T) {
	cfg := CVProxyConfig{
		CMSBaseURL: "https://cms.example.com",
		ExtraHosts: []string{"files.bücher.example"},
	}
	allowed := cfg.allowedHosts()

	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"cms host", "https://cms.example.com/uploads/cv.pdf", 0},
		{"cms host upper case", "https://CMS.Example.com/uploads/cv.pdf", 0},
		{"media subdomain", "https://cms.media.example.com/cv_ab12.pdf", 0},
		{"extra idn host", "https://files.xn--bcher-kva.example/cv.pdf", 0},
		{"extra idn unicode", "https://files.bücher.example/cv.pdf", 0},
		{"missing", "", http.StatusBadRequest},
		{"relative", "/uploads/cv.pdf", http.StatusBadRequest},
		{"ftp", "ftp://cms.example.com/cv.pdf", http.StatusBadRequest},
		{"dot dot", "https://cms.example.com/uploads/../secret.pdf", http.StatusBadRequest},
		{"encoded dot dot", "https://cms.example.com/uploads/%2E%2E/secret.pdf", http.StatusBadRequest},
		{"backslash", `https://cms.example.com/uploads\secret.pdf`, http.StatusBadRequest},
		{"encoded backslash", "https://cms.example.com/uploads%5Csecret.pdf", http.StatusBadRequest},
		{"other host", "https://evil.example.org/cv.pdf", http.StatusForbidden},
		{"suffix trick", "https://cms.example.com.evil.org/cv.pdf", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, code, err := checkCVURL(tt.raw, allowed)
			if code != tt.want {
				t.Errorf("checkCVURL(%q) code = %d (err %v), want %d", tt.raw, code, err, tt.want)
			}
			if tt.want == 0 && err != nil {
				t.Errorf("checkCVURL(%q) error = %v", tt.raw, err)
			}
		})
	}
}

// pdfServer serves body from the loopback host and returns a proxy config
// that allows it.
func pdfServer(t *testing.T, h http.HandlerFunc) (CVProxyConfig, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return CVProxyConfig{CMSBaseURL: srv.URL, HTTPClient: srv.Client()}, srv.URL
}

func cvRequest(t *testing.T, cfg CVProxyConfig, target string) *httptest.ResponseRecorder {
	t.Helper()
	deps, _, _ := testDeps()
	deps.CV = cfg
	return doRequest(t, NewHandler(deps), http.MethodGet, "/api/cv?url="+url.QueryEscape(target), "", nil)
}

func TestCV_StreamsPDF(t *testing.T) {
	doc := []byte("%PDF-1.4\nfake body\n%%EOF")
	cfg, base := pdfServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(doc)
	})

	rec := cvRequest(t, cfg, base+"/uploads/jane_cv.pdf")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") || !strings.Contains(cd, "jane_cv.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.Equal(rec.Body.Bytes(), doc) {
		t.Errorf("body = %q", rec.Body.Bytes())
	}
}

func TestCV_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }, http.StatusBadGateway},
		{"not a pdf", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html></html>")) }, http.StatusBadGateway},
		{"too large", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("%PDF-"))
			w.Write(bytes.Repeat([]byte("x"), 2048))
		}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, base := pdfServer(t, tt.handler)
			cfg.MaxBytes = 1024
			rec := cvRequest(t, cfg, base+"/cv.pdf")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCV_Timeout(t *testing.T) {
	release := make(chan struct{})
	cfg, base := pdfServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	cfg.Timeout = 50 * time.Millisecond

	rec := cvRequest(t, cfg, base+"/cv.pdf")
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestCV_RejectsForeignHost(t *testing.T) {
	cfg := CVProxyConfig{CMSBaseURL: "https://cms.example.com"}
	rec := cvRequest(t, cfg, "https://attacker.example.net/cv.pdf")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestCV_Redirects(t *testing.T) {
	var base string
	secretHits := 0
	cfg, base := pdfServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved.pdf":
			http.Redirect(w, r, base+"/cv.pdf", http.StatusFound)
		case "/escape.pdf":
			u, _ := url.Parse(base)
			http.Redirect(w, r, "http://localhost:"+u.Port()+"/secret.pdf", http.StatusFound)
		case "/secret.pdf":
			secretHits++
			w.Write([]byte("%PDF-1.4 internal document"))
		default:
			w.Write([]byte("%PDF-1.4 cv"))
		}
	})

	rec := cvRequest(t, cfg, base+"/moved.pdf")
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF-1.4 cv" {
		t.Errorf("same-host redirect: status = %d, body = %q", rec.Code, rec.Body.String())
	}

	rec = cvRequest(t, cfg, base+"/escape.pdf")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign redirect: status = %d, want 403, body = %s", rec.Code, rec.Body.String())
	}
	if secretHits != 0 {
		t.Errorf("foreign host fetched %d times, want 0", secretHits)
	}
	if msg, _ := errorMessage(t, rec); !strings.Contains(msg, "localhost") {
		t.Errorf("message = %q, want it to name the rejected host", msg)
	}
}

func TestPDFFilename(t *testing.T) {
	tests := map[string]string{
		"https://a.example/uploads/cv.pdf": "cv.pdf",
		"https://a.example/uploads/resume": "resume.pdf",
		"https://a.example/":               "cv.pdf",
	}
	for raw, want := range tests {
		u, _ := url.Parse(raw)
		if got := pdfFilename(u); got != want {
			t.Errorf("pdfFilename(%q) = %q, want %q", raw, got, want)
		}
	}
}
