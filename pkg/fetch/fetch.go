// Package fetch retrieves describable image content from URLs posted in
// rooms. Content is gated by MIME type and declared size before any bytes
// reach the vision backend.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats the vision backend accepts for image comprehension.
var acceptableFormats = map[string]struct{}{
	"image/png":  {},
	"image/jpg":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/heic": {},
	"image/heif": {},
}

// Silent-skip outcomes: the URL is simply not describable, no reply is owed.
var (
	ErrUnsupportedContentType = errors.New("content type not supported for description")
	ErrSizeLimitExceeded      = errors.New("declared content length exceeds the configured maximum")
)

const DefaultMaxFileMiB = 10

type Config struct {
	// MaxFileMiB caps the declared content length, in MiB.
	MaxFileMiB  int    `yaml:"max_file_mib" json:"max_file_len"`
	TimeoutSecs int    `yaml:"timeout_secs" json:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" json:"user_agent"`

	// AllowPrivate disables the private-range host block. Meant for
	// deployments on closed networks.
	AllowPrivate bool `yaml:"allow_private" json:"allow_private"`
}

func (c *Config) WithDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.MaxFileMiB <= 0 {
		c.MaxFileMiB = DefaultMaxFileMiB
	}
	if c.TimeoutSecs <= 0 {
		c.TimeoutSecs = 30
	}
	if c.UserAgent == "" {
		c.UserAgent = "gemini-matrix/1.0"
	}
	return c
}

// ImageFetcher is the URL fetch collaborator.
type ImageFetcher struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

func NewImageFetcher(cfg *Config, log zerolog.Logger) *ImageFetcher {
	cfg = cfg.WithDefaults()
	return &ImageFetcher{
		cfg:        *cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		log:        log.With().Str("component", "fetch").Logger(),
	}
}

// MaxBytes returns the configured size cap in bytes.
func (f *ImageFetcher) MaxBytes() int64 {
	return int64(f.cfg.MaxFileMiB) * 1024 * 1024
}

// Fetch downloads the content behind rawURL. It returns
// ErrUnsupportedContentType or ErrSizeLimitExceeded when the content is not
// describable; any other error is a retrieval failure.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (data []byte, mimeType string, err error) {
	if !f.cfg.AllowPrivate && !isAllowedURL(rawURL) {
		return nil, "", fmt.Errorf("url not allowed: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("http %d: %s", resp.StatusCode, resp.Status)
	}

	// Fall back to jpeg when the server doesn't declare a type.
	mimeType = normalizeContentType(resp.Header.Get("Content-Type"))
	if mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	if _, ok := acceptableFormats[mimeType]; !ok {
		return nil, "", ErrUnsupportedContentType
	}

	maxBytes := f.MaxBytes()
	if resp.ContentLength > maxBytes {
		f.log.Debug().Str("url", rawURL).Int64("declared_length", resp.ContentLength).Msg("Skipping oversized file")
		return nil, "", ErrSizeLimitExceeded
	}

	// The declared length can lie, so the read is capped too.
	data, err = io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrSizeLimitExceeded
	}
	return data, mimeType, nil
}

func normalizeContentType(value string) string {
	if value == "" {
		return "application/octet-stream"
	}
	parts := strings.Split(value, ";")
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

var fetchBlockedCIDRs = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("::1/128"),
}

func mustParseCIDR(value string) *net.IPNet {
	_, parsed, err := net.ParseCIDR(value)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %q: %v", value, err))
	}
	return parsed
}

func isAllowedURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	if ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		for _, cidr := range fetchBlockedCIDRs {
			if cidr.Contains(ip) {
				return false
			}
		}
	}
	return true
}
