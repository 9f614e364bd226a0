package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"live-service/internal/livepost"
)

var ErrUnsupportedMedia = errors.New("unsupported media")

// SupportedMimeTypes lists the image types a live post may carry.
var SupportedMimeTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
}

const maxImageBytes = 20 << 20

// File is an attachment as reported by an upstream platform.
type File struct {
	Name     string `json:"name"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	// Authorization is sent when downloading URL, e.g. a Slack bot token.
	Authorization string `json:"-"`
	// Private marks URLs viewers cannot load or must not see. Such files are
	// only usable when mirrored to a store.
	Private bool `json:"-"`
}

// Store is where mirrored images are written.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	URL(ctx context.Context, key string) (string, error)
}

// Processor turns upstream attachments into image blocks.
type Processor struct {
	store  Store
	client *http.Client
	log    *slog.Logger
}

// NewProcessor builds a processor. A nil store keeps the upstream URL instead
// of mirroring the file.
func NewProcessor(store Store, client *http.Client, logger *slog.Logger) *Processor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, client: client, log: logger}
}

// Process validates f and returns the image to attach. Errors wrap
// ErrUnsupportedMedia when the file should be skipped.
func (p *Processor) Process(ctx context.Context, f File) (livepost.Image, error) {
	title := f.Title
	if title == "" {
		title = strings.TrimSuffix(f.Name, path.Ext(f.Name))
	}
	img := livepost.Image{
		Title:    title,
		Name:     f.Name,
		URL:      f.URL,
		MimeType: strings.ToLower(f.MimeType),
		Width:    f.Width,
		Height:   f.Height,
	}
	if _, ok := SupportedMimeTypes[img.MimeType]; !ok {
		return livepost.Image{}, fmt.Errorf("%w: %s has type %q", ErrUnsupportedMedia, title, f.MimeType)
	}

	if f.Private && p.store == nil {
		return livepost.Image{}, fmt.Errorf("%w: %s is private and no media store is configured", ErrUnsupportedMedia, title)
	}

	needDims := img.Width <= 0 || img.Height <= 0
	if !needDims && p.store == nil {
		return img, nil
	}

	data, err := p.download(ctx, f)
	if err != nil {
		return livepost.Image{}, err
	}
	if needDims {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
			return livepost.Image{}, fmt.Errorf("%w: dimensions of %s unknown", ErrUnsupportedMedia, title)
		}
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	if p.store == nil {
		return img, nil
	}

	key := "live/" + uuid.NewString() + SupportedMimeTypes[img.MimeType]
	if err := p.store.Put(ctx, key, img.MimeType, data); err != nil {
		return livepost.Image{}, fmt.Errorf("store %s: %w", title, err)
	}
	u, err := p.store.URL(ctx, key)
	if err != nil {
		return livepost.Image{}, fmt.Errorf("link %s: %w", title, err)
	}
	img.URL = u
	return img, nil
}

func (p *Processor) download(ctx context.Context, f File) ([]byte, error) {
	if f.URL == "" {
		return nil, fmt.Errorf("%w: %s has no url", ErrUnsupportedMedia, f.Name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", f.Name, err)
	}
	if f.Authorization != "" {
		req.Header.Set("Authorization", f.Authorization)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", f.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", f.Name, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", f.Name, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrUnsupportedMedia, f.Name, maxImageBytes)
	}
	return data, nil
}
