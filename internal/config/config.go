package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	LLM      LLMConfig      `toml:"llm"`
	Loop     LoopConfig     `toml:"loop"`
	Search   SearchConfig   `toml:"search"`
	Breach   BreachConfig   `toml:"breach"`
	Sandbox  SandboxConfig  `toml:"sandbox"`
	Database DatabaseConfig `toml:"database"`
	Observer ObserverConfig `toml:"observer"`
}

type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	PromptPath     string   `toml:"prompt_path"`
	IgnoreList     []string `toml:"ignore_list"`
	IgnoreListPath string   `toml:"ignore_list_path"`
}

type LLMConfig struct {
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	Temperature *float64 `toml:"temperature"`
}

type LoopConfig struct {
	MaxToolCalls int `toml:"max_tool_calls"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type BreachConfig struct {
	APIKey string `toml:"api_key"`
}

type SandboxConfig struct {
	Enabled     bool    `toml:"enabled"`
	Image       string  `toml:"image"`
	MemoryMB    int64   `toml:"memory_mb"`
	CPUs        float64 `toml:"cpus"`
	TimeoutSecs int     `toml:"timeout_secs"`
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"` // "sqlite" or "postgres"
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Loop: LoopConfig{MaxToolCalls: 25},
		Sandbox: SandboxConfig{
			Image:       "python:3.12-slim",
			MemoryMB:    256,
			CPUs:        1,
			TimeoutSecs: 30,
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "sift.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "sift.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("SIFT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SIFT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SIFT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SIFT_LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = &f
		}
	}
	if v := os.Getenv("SIFT_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("SIFT_BREACH_API_KEY"); v != "" {
		cfg.Breach.APIKey = v
	}
	if v := os.Getenv("SIFT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SIFT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("SIFT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SIFT_POSTGRES_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("SIFT_IGNORE_LIST"); v != "" {
		cfg.Server.IgnoreList = splitList(v)
	}
	if v := os.Getenv("SIFT_SANDBOX_ENABLED"); v == "true" || v == "1" {
		cfg.Sandbox.Enabled = true
	}
	if v := os.Getenv("SIFT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}

// splitList parses a comma-separated env value into trimmed entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
