// Package imagegen calls the NanoGPT image generation API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://nano-gpt.com/api"

// Config selects the image model and output dimensions.
type Config struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
	BaseURL string `yaml:"base_url" json:"base_url"`

	// TimeoutSecs bounds one generation call. Image backends can take a
	// while, so the default is generous.
	TimeoutSecs int `yaml:"timeout_secs" json:"timeout_secs"`
}

func (c *Config) WithDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Width <= 0 {
		c.Width = 1024
	}
	if c.Height <= 0 {
		c.Height = 1024
	}
	if c.TimeoutSecs <= 0 {
		c.TimeoutSecs = 90
	}
	return c
}

// Client is the image-generation collaborator.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg *Config, log zerolog.Logger) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		cfg:        *cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		log:        log.With().Str("component", "imagegen").Logger(),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type generateResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate requests images for prompt and returns the decoded blobs in
// response order. An empty result with a nil error means the backend
// produced nothing; entries it could not deliver are skipped.
func (c *Client) Generate(ctx context.Context, prompt string) ([][]byte, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Width:  c.cfg.Width,
		Height: c.cfg.Height,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/generate-image", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}

	blobs := make([][]byte, 0, len(result.Data))
	for i, entry := range result.Data {
		if entry.B64JSON == "" {
			continue
		}
		data, err := decodeBase64(entry.B64JSON)
		if err != nil {
			c.log.Warn().Err(err).Int("index", i).Msg("Skipping undecodable image payload")
			continue
		}
		blobs = append(blobs, data)
	}
	return blobs, nil
}

func decodeBase64(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err == nil {
		return data, nil
	}
	// Some backends hand out URL-safe base64.
	data, err = base64.URLEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	return data, nil
}
