package botcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalYAML = `
matrix:
    homeserver: https://matrix.example.org
    user_id: "@gemini:example.org"
    password: hunter2
    display_name: Gemini
    rooms: ["#lounge:example.org"]
llm:
    api_key: gem-key
    model: gemini-2.0-flash
image:
    api_key: img-key
    model: hidream
`

func TestLoadYAMLWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Matrix.DisplayName != "Gemini" {
		t.Fatalf("display_name = %q", cfg.Matrix.DisplayName)
	}
	if cfg.Bot.ImageTrigger != "hidream" {
		t.Fatalf("image trigger must default to the image model, got %q", cfg.Bot.ImageTrigger)
	}
	if cfg.Bot.ModelTimeoutSecs != 60 || cfg.Bot.UploadTimeoutSecs != 10 {
		t.Fatalf("timeout defaults wrong: %+v", cfg.Bot)
	}
	if cfg.Fetch.MaxFileMiB != 10 {
		t.Fatalf("fetch.max_file_mib default = %d, want 10", cfg.Fetch.MaxFileMiB)
	}
	if cfg.Matrix.Database != "gemini-matrix.db" {
		t.Fatalf("database default = %q", cfg.Matrix.Database)
	}
	if cfg.Logging.Console == nil || !*cfg.Logging.Console {
		t.Fatalf("console logging must default to on")
	}
}

func TestLoadJSON5(t *testing.T) {
	cfg, err := Load(writeConfig(t, "login.json5", `{
	// comments are allowed here
	matrix: {
		homeserver: "https://matrix.example.org",
		user_id: "@gemini:example.org",
		password: "hunter2",
		displayname: "Gemini",
		rooms: ["#lounge:example.org"],
	},
	llm: {api_key: "gem-key", model: "gemini-2.0-flash"},
	image: {model: "hidream"},
}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Matrix.DisplayName != "Gemini" {
		t.Fatalf("display name = %q", cfg.Matrix.DisplayName)
	}
	if cfg.Bot.ImageTrigger != "hidream" {
		t.Fatalf("image trigger = %q", cfg.Bot.ImageTrigger)
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-gem-key")
	t.Setenv("NANOGPT_API_KEY", "env-img-key")

	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "env-gem-key" {
		t.Fatalf("llm api key = %q, want the env override", cfg.LLM.APIKey)
	}
	if cfg.Image.APIKey != "env-img-key" {
		t.Fatalf("image api key = %q, want the env override", cfg.Image.APIKey)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing homeserver",
			content: `
matrix: {user_id: "@a:b", display_name: X}
llm: {api_key: k, model: m}
`,
		},
		{
			name: "missing model",
			content: `
matrix: {homeserver: "https://x", user_id: "@a:b", display_name: X}
llm: {api_key: k}
`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, "config.yaml", tc.content)); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}
}

func TestExampleConfigParses(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.yaml", ExampleConfig)); err == nil {
		t.Fatalf("the example config has no API keys and must not validate as-is")
	}
	t.Setenv("GEMINI_API_KEY", "k")
	cfg, err := Load(writeConfig(t, "config.yaml", ExampleConfig))
	if err != nil {
		t.Fatalf("example config with keys must load: %v", err)
	}
	if cfg.LLM.Model == "" {
		t.Fatalf("example config must pin a model")
	}
}
