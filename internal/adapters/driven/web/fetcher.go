// Package web fetches links shared in trip chat and extracts their readable text.
package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.LinkFetcher = (*Fetcher)(nil)

// Default configuration values.
const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 5 << 20
	userAgent       = "tripctx-link-fetcher/1.0"
)

// Config holds fetcher configuration.
type Config struct {
	// Timeout bounds the whole request (default: 15s).
	Timeout time.Duration

	// MaxBytes caps how much of the body is read (default: 5 MiB).
	MaxBytes int64
}

// Fetcher downloads pages and runs them through readability.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a link fetcher.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBytes,
	}
}

// Fetch downloads rawURL and returns its title and main text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*driven.FetchedPage, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: not an http(s) URL: %q", domain.ErrInvalidInput, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", u.Host, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err == nil && mt != "text/html" && mt != "application/xhtml+xml" {
			return nil, fmt.Errorf("%w: %s serves %s", domain.ErrUnsupportedType, u.Host, mt)
		}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, f.maxBytes), u)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", u.Host, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("%w: no readable text at %s", domain.ErrInvalidInput, u.String())
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = u.Host + u.Path
	}
	logger.Debug("Fetched %s: %q (%d chars)", u.String(), title, len(text))

	return &driven.FetchedPage{URL: u.String(), Title: title, Text: text}, nil
}
