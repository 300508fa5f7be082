// Package botcfg loads the bot configuration from YAML or JSON5 files, with
// environment variables overriding the secrets.
package botcfg

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.mau.fi/util/ptr"
	"gopkg.in/yaml.v3"

	"github.com/jjj333-p/gemini-matrix/pkg/fetch"
	"github.com/jjj333-p/gemini-matrix/pkg/imagegen"
	"github.com/jjj333-p/gemini-matrix/pkg/llm"
)

//go:embed example-config.yaml
var ExampleConfig string

type MatrixConfig struct {
	Homeserver string `yaml:"homeserver" json:"homeserver"`
	UserID     string `yaml:"user_id" json:"user_id"`
	Password   string `yaml:"password" json:"password"`

	// DisplayName is the nick used for mention matching in rooms.
	DisplayName string   `yaml:"display_name" json:"displayname"`
	Rooms       []string `yaml:"rooms" json:"rooms"`

	// Database holds the E2EE crypto store (SQLite).
	Database  string `yaml:"database" json:"database"`
	PickleKey string `yaml:"pickle_key" json:"pickle_key"`
}

type BotConfig struct {
	// ImageTrigger is the literal prefix requesting image generation.
	// Defaults to the image model name.
	ImageTrigger string `yaml:"image_trigger" json:"image_trigger"`

	ModelTimeoutSecs  int `yaml:"model_timeout_secs" json:"model_timeout_secs"`
	UploadTimeoutSecs int `yaml:"upload_timeout_secs" json:"upload_timeout_secs"`
}

type LoggingConfig struct {
	// Level is a zerolog level name.
	Level   string `yaml:"level" json:"level"`
	Console *bool  `yaml:"console" json:"console"`

	// File enables rotating file output when set.
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
}

type Config struct {
	Matrix  MatrixConfig    `yaml:"matrix" json:"matrix"`
	Bot     BotConfig       `yaml:"bot" json:"bot"`
	LLM     llm.Config      `yaml:"llm" json:"llm"`
	Image   imagegen.Config `yaml:"image" json:"image"`
	Fetch   fetch.Config    `yaml:"fetch" json:"fetch"`
	Logging LoggingConfig   `yaml:"logging" json:"logging"`
}

func (c *Config) WithDefaults() *Config {
	if c.Matrix.Database == "" {
		c.Matrix.Database = "gemini-matrix.db"
	}
	if c.Bot.ImageTrigger == "" {
		c.Bot.ImageTrigger = c.Image.Model
	}
	if c.Bot.ModelTimeoutSecs <= 0 {
		c.Bot.ModelTimeoutSecs = 60
	}
	if c.Bot.UploadTimeoutSecs <= 0 {
		c.Bot.UploadTimeoutSecs = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Console == nil {
		c.Logging.Console = ptr.Ptr(true)
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 20
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 5
	}
	c.Image = *c.Image.WithDefaults()
	c.Fetch = *c.Fetch.WithDefaults()
	return c
}

// Load reads path (YAML, or JSON5 for .json/.json5 files), applies defaults
// and environment overrides, and validates the required fields.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		err = json5.Unmarshal(raw, &cfg)
	default:
		err = yaml.Unmarshal(raw, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.WithDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MATRIX_PASSWORD"); v != "" {
		c.Matrix.Password = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("NANOGPT_API_KEY"); v != "" {
		c.Image.APIKey = v
	}
}

func (c *Config) validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.DisplayName == "" {
		return fmt.Errorf("matrix.display_name is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set GEMINI_API_KEY)")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}
