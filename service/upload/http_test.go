package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/config"
)

type testConfig struct {
	config.IService
	url string
}

func (c testConfig) GetUploadURL() string { return c.url }

func newService(t *testing.T, url string) IService {
	t.Helper()
	return NewHTTP(testConfig{IService: config.NewHardCoded(), url: url}, nil, nil)
}

func testBlob(size int) *model.VideoBlob {
	return &model.VideoBlob{
		ID:        "blob-1",
		MediaType: "video/webm",
		Data:      []byte(strings.Repeat("v", size)),
		Source:    model.BlobSourceCapture,
	}
}

func TestUpload_MultipartAndJSONReference(t *testing.T) {
	var gotField, gotName, gotType string
	var gotSize int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		for field, files := range r.MultipartForm.File {
			gotField = field
			gotName = files[0].Filename
			gotType = files[0].Header.Get("Content-Type")
			f, _ := files[0].Open()
			data, _ := io.ReadAll(f)
			gotSize = len(data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"url":"/static/processed/blob-1.mp4"}`)
	}))
	defer ts.Close()

	var mu sync.Mutex
	var calls [][2]int64
	ref, err := newService(t, ts.URL).Upload(t.Context(), testBlob(64*1024), func(sent, total int64) {
		mu.Lock()
		calls = append(calls, [2]int64{sent, total})
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if ref != "/static/processed/blob-1.mp4" {
		t.Errorf("ref = %q", ref)
	}
	if gotField != "file" || gotType != "video/webm" || gotSize != 64*1024 {
		t.Errorf("part field=%q type=%q size=%d", gotField, gotType, gotSize)
	}
	if !strings.HasPrefix(gotName, "video.") {
		t.Errorf("filename = %q", gotName)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) == 0 {
		t.Fatal("no progress reported")
	}
	last := calls[len(calls)-1]
	if last[0] != last[1] {
		t.Errorf("final progress %d/%d, want complete", last[0], last[1])
	}
	for i := 1; i < len(calls); i++ {
		if calls[i][0] < calls[i-1][0] {
			t.Fatalf("progress went backwards: %v", calls)
		}
	}
}

func TestUpload_PlainTextReference(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, "outputs/clip.mp4\n")
	}))
	defer ts.Close()

	ref, err := newService(t, ts.URL).Upload(t.Context(), testBlob(10), nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ref != "outputs/clip.mp4" {
		t.Errorf("ref = %q", ref)
	}
}

func TestUpload_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newService(t, ts.URL).Upload(t.Context(), testBlob(10), nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable || statusErr.Body != "model not loaded" {
		t.Errorf("status error = %+v", statusErr)
	}
}

func TestUpload_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	if _, err := newService(t, url).Upload(t.Context(), testBlob(10), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpload_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := newService(t, ts.URL).Upload(ctx, testBlob(10), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestUpload_EmptyBlob(t *testing.T) {
	if _, err := newService(t, "http://unused").Upload(t.Context(), &model.VideoBlob{}, nil); err == nil {
		t.Fatal("expected error for empty blob")
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
		wantErr     bool
	}{
		{"json url", "application/json", `{"url":"u"}`, "u", false},
		{"json path", "application/json; charset=utf-8", `{"path":"p"}`, "p", false},
		{"json output", "", `{"output":"o"}`, "o", false},
		{"json string", "application/json", `"s"`, "s", false},
		{"json without reference", "application/json", `{"status":"ok"}`, "", true},
		{"text", "text/plain", " /files/x.mp4 ", "/files/x.mp4", false},
		{"empty", "text/plain", "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReference(tt.contentType, []byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
