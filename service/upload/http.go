package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/config"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

type httpService struct {
	CfgSvc config.IService
	Client *http.Client
	Tracer trace.Tracer
}

// NewHTTP posts blobs as multipart/form-data to the configured endpoint.
func NewHTTP(cfgSvc config.IService, client *http.Client, tracer trace.Tracer) IService {
	if client == nil {
		client = &http.Client{Timeout: cfgSvc.GetUploadTimeout()}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("upload")
	}
	return &httpService{
		CfgSvc: cfgSvc,
		Client: client,
		Tracer: tracer,
	}
}

func (svc *httpService) Upload(ctx context.Context, blob *model.VideoBlob, onProgress ProgressFunc) (string, error) {
	if blob == nil || len(blob.Data) == 0 {
		return "", xerrors.New("empty blob")
	}

	ctx, span := svc.Tracer.Start(ctx, "upload.http")
	defer span.End()

	body, contentType, err := encodeMultipart(svc.CfgSvc.GetUploadFieldName(), blob)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	total := int64(len(body))
	reader := &progressReader{r: bytes.NewReader(body), total: total, onProgress: onProgress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.CfgSvc.GetUploadURL(), reader)
	if err != nil {
		span.RecordError(err)
		return "", xerrors.Errorf("create request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json, text/plain")

	lgr.Logger.Debug(
		"upload starting",
		slog.String("blob", blob.ID),
		slog.String("url", svc.CfgSvc.GetUploadURL()),
		slog.Int64("bytes", total),
	)

	resp, err := svc.Client.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", xerrors.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		span.RecordError(statusErr)
		return "", statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return "", xerrors.Errorf("read response: %w", err)
	}

	ref, err := parseReference(resp.Header.Get("Content-Type"), data)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	// The body was fully consumed by the transport.
	reader.finish()
	return ref, nil
}

func encodeMultipart(field string, blob *model.VideoBlob) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     field,
		"filename": fileName(blob),
	}))
	mediaType := blob.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	h.Set("Content-Type", mediaType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", xerrors.Errorf("create part: %w", err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return nil, "", xerrors.Errorf("write part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", xerrors.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func fileName(blob *model.VideoBlob) string {
	if blob.Name != "" {
		return blob.Name
	}
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(blob.MediaType); len(exts) > 0 {
		ext = exts[0]
	}
	return "video" + ext
}

// referenceBody covers the response shapes processors commonly return.
type referenceBody struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	Output string `json:"output"`
	Result string `json:"result"`
}

func parseReference(contentType string, data []byte) (string, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", xerrors.New("empty response from transfer endpoint")
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err == nil && s != "" {
			return s, nil
		}
		var body referenceBody
		if err := json.Unmarshal(data, &body); err != nil {
			return "", xerrors.Errorf("decode response: %w", err)
		}
		for _, v := range []string{body.URL, body.Path, body.Output, body.Result} {
			if v != "" {
				return v, nil
			}
		}
		return "", xerrors.New("response carries no artifact reference")
	}

	return text, nil
}

// progressReader reports cumulative bytes as the transport reads the body.
type progressReader struct {
	r          io.Reader
	total      int64
	onProgress ProgressFunc

	mu   sync.Mutex
	sent int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.sent += int64(n)
		sent := p.sent
		p.mu.Unlock()
		if p.onProgress != nil {
			p.onProgress(sent, p.total)
		}
	}
	return n, err
}

func (p *progressReader) finish() {
	p.mu.Lock()
	done := p.sent == p.total
	p.mu.Unlock()
	if !done && p.onProgress != nil {
		p.onProgress(p.total, p.total)
	}
}
