package feed

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/milan604/feedclient/pkg/apperr"
	feedhttp "github.com/milan604/feedclient/pkg/http"
)

// DefaultMaxUploadBytes is the local upload limit when none is configured.
const DefaultMaxUploadBytes int64 = 100 << 20

// Media is a file to upload. The content is opened once per attempt, so a replayed request
// re-reads it from the start.
type Media struct {
	Name        string
	Size        int64
	ContentType string
	open        func() (io.ReadCloser, error)
}

// NewMedia describes content the caller can open repeatedly. An empty contentType is sniffed
// from the data when the upload is validated.
func NewMedia(name string, size int64, contentType string, open func() (io.ReadCloser, error)) *Media {
	return &Media{Name: name, Size: size, ContentType: contentType, open: open}
}

// MediaFromFile describes a file on disk.
func MediaFromFile(path string) (*Media, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, apperr.New(apperr.ErrorCodeFileUnreadable).Wrap(err)
	}
	if fi.IsDir() {
		return nil, apperr.Newf(apperr.ErrorCodeFileUnreadable, "%s is a directory", path)
	}
	return NewMedia(filepath.Base(path), fi.Size(), "", func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}

// MediaFromBytes describes in-memory content.
func MediaFromBytes(name string, data []byte) *Media {
	return NewMedia(name, int64(len(data)), mimetype.Detect(data).String(), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Kind is "image", "video" or "" for anything else.
func (m *Media) Kind() string {
	base, _, _ := strings.Cut(m.ContentType, ";")
	switch {
	case strings.HasPrefix(base, "image/"):
		return "image"
	case strings.HasPrefix(base, "video/"):
		return "video"
	}
	return ""
}

func (m *Media) sniff() error {
	if m.ContentType != "" {
		return nil
	}
	if m.open == nil {
		return apperr.Newf(apperr.ErrorCodeFileUnreadable, "%s has no content", m.Name)
	}
	rc, err := m.open()
	if err != nil {
		return apperr.New(apperr.ErrorCodeFileUnreadable).Wrap(err)
	}
	defer rc.Close()
	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return apperr.New(apperr.ErrorCodeFileUnreadable).Wrap(err)
	}
	m.ContentType = mt.String()
	return nil
}

func (m *Media) part(field string) feedhttp.FilePart {
	return feedhttp.FilePart{
		Field:       field,
		FileName:    m.Name,
		ContentType: m.ContentType,
		Size:        m.Size,
		Open:        m.open,
	}
}

// checkMedia rejects uploads the backend would refuse, before anything is sent. Size is checked
// first so an oversized file is never opened.
func (s *Service) checkMedia(ctx context.Context, m *Media, allowVideo bool) error {
	if m.Size > s.maxUpload {
		return apperr.New(apperr.ErrorCodeFileTooLarge).WithMessage(s.tr.TCtx(ctx, "feed:upload.too_large", map[string]any{
			"size": humanize.IBytes(uint64(m.Size)),
			"max":  humanize.IBytes(uint64(s.maxUpload)),
		}))
	}
	if err := m.sniff(); err != nil {
		return err
	}
	kind := m.Kind()
	if kind == "" || (kind == "video" && !allowVideo) {
		return apperr.New(apperr.ErrorCodeUnsupportedFormat).WithMessage(s.tr.TCtx(ctx, "feed:upload.unsupported",
			map[string]any{"mime": m.ContentType}))
	}
	return nil
}

// uploadError maps the statuses and failures specific to uploads onto upload errors.
func (s *Service) uploadError(ctx context.Context, err error, fields ...string) error {
	appErr, ok := apperr.As(err)
	if !ok {
		return err
	}
	switch {
	case appErr.Status == 413:
		return appErr.WithCode(apperr.ErrorCodeFileTooLarge)
	case appErr.Status == 415:
		return appErr.WithCode(apperr.ErrorCodeUnsupportedFormat)
	case apperr.IsCode(appErr, apperr.ErrorCodeUploadTimeout):
		return appErr.WithMessage(s.tr.TCtx(ctx, "feed:upload.timeout", nil))
	}
	if msg, ok := appErr.BackendMessage(fields...); ok {
		return appErr.Summarize(msg)
	}
	return appErr
}
