package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, factory SessionFactory, opts ...Option) *Server {
	t.Helper()
	cfg := config.Default().Server
	cfg.UploadDir = t.TempDir()
	srv, err := New(cfg, factory, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func doRequest(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, WithVersion("1.2.3"))
	w := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != ServiceName || body["version"] != "1.2.3" {
		t.Errorf("body = %v", body)
	}
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadListDelete(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, uploadRequest(t, "sales.csv", "a,b\n1,2\n"))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var info FileInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	stored := filepath.Base(info.Path)
	if info.Filename != "sales.csv" || info.Size != 8 {
		t.Errorf("info = %+v", info)
	}
	if len(stored) != len("12345678_sales.csv") || !strings.HasSuffix(stored, "_sales.csv") {
		t.Errorf("stored name = %q, want <8 chars>_sales.csv", stored)
	}
	if data, err := os.ReadFile(info.Path); err != nil || string(data) != "a,b\n1,2\n" {
		t.Errorf("stored content = %q, err = %v", data, err)
	}

	w = doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	var list struct {
		Files []FileInfo `json:"files"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Files) != 1 || list.Files[0].Filename != stored {
		t.Errorf("list = %+v", list.Files)
	}

	w = doRequest(t, srv, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+stored, nil))
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if _, err := os.Stat(info.Path); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}

	w = doRequest(t, srv, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+stored, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(""))
	if w := doRequest(t, srv, req); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteUpload_RejectsTraversal(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, name := range []string{"..", "a%5Cb"} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/uploads/"+name, nil)
			if w := doRequest(t, srv, req); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Iterations.Inc()

	srv := newTestServer(t, nil, WithGatherer(reg))
	w := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "dsstar_iterations_total 1") {
		t.Errorf("metrics body missing counter:\n%s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	cfg := config.Default().Server
	cfg.UploadDir = t.TempDir()
	cfg.AllowedOrigins = []string{"http://localhost:5173"}
	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:5173", "http://localhost:5173"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/uploads", nil)
			req.Header.Set("Origin", tt.origin)
			w := doRequest(t, srv, req)
			if w.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_TemporaryUploadDir(t *testing.T) {
	srv, err := New(config.ServerConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	dir := srv.UploadDir()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("upload dir missing: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Close() should remove a temporary upload dir")
	}
}

func TestOverrides_Apply(t *testing.T) {
	base := config.Default()
	iters, attempts, tokens := 5, 0, 100
	timeout := 2.5
	temp := float32(0.2)
	format := "Reply in French"

	got := Overrides{
		MaxIterations:           &iters,
		MaxDebugAttempts:        &attempts,
		ExecutionTimeoutSeconds: &timeout,
		Temperature:             &temp,
		MaxTokens:               &tokens,
		AnswerFormat:            &format,
	}.Apply(base)

	if got.Session.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", got.Session.MaxIterations)
	}
	if got.Session.MaxDebugAttempts != base.Session.MaxDebugAttempts {
		t.Errorf("invalid MaxDebugAttempts override should be ignored, got %d", got.Session.MaxDebugAttempts)
	}
	if got.Executor.TimeoutSeconds != 2.5 {
		t.Errorf("TimeoutSeconds = %v, want 2.5", got.Executor.TimeoutSeconds)
	}
	if got.Executor.ExecutionTimeout() != 2500*time.Millisecond {
		t.Errorf("ExecutionTimeout() = %v, want 2.5s", got.Executor.ExecutionTimeout())
	}
	if got.Session.AnswerFormat != "Reply in French" {
		t.Errorf("AnswerFormat = %q, want %q", got.Session.AnswerFormat, "Reply in French")
	}
	if got.LLM.Temperature != 0.2 || got.LLM.MaxTokens != 100 {
		t.Errorf("LLM = %+v", got.LLM)
	}
	if base.Session.MaxIterations != 20 {
		t.Error("Apply() must not mutate the base config")
	}
}
