// Package config provides application settings loaded from a YAML file
// and environment variables.
//
// Settings are created via Load() which handles:
// - Default value application
// - Optional YAML file decoding with unknown-field rejection
// - Environment variable overrides with validation
// - Provider-specific configuration lookup

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "cinematic.yaml"

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig     `yaml:"llm"`
	HelperLLM LLMConfig     `yaml:"helper_llm"`
	Agent     AgentConfig   `yaml:"agent"`
	Radarr    MediaServer   `yaml:"radarr"`
	Sonarr    MediaServer   `yaml:"sonarr"`
	Search    SearchConfig  `yaml:"search"`
	Storage   StorageConfig `yaml:"storage"`
	Discord   DiscordConfig `yaml:"discord"`
	LogLevel  string        `yaml:"log_level"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Streaming   bool    `yaml:"streaming"`
}

// AgentConfig holds loop and dispatch configuration.
type AgentConfig struct {
	MaxDepth        int           `yaml:"max_depth"`
	ContextTokens   int           `yaml:"context_tokens"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	DispatchWorkers int           `yaml:"dispatch_workers"`
	Retries         int           `yaml:"retries"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	HistoryWindow   time.Duration `yaml:"history_window"`
}

// MediaServer holds connection settings for Radarr or Sonarr.
type MediaServer struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	AuthUser   string `yaml:"auth_user"`
	AuthPass   string `yaml:"auth_pass"`
	RootFolder string `yaml:"root_folder"`
}

// Enabled reports whether the server is configured.
func (m MediaServer) Enabled() bool {
	return m.URL != ""
}

// SearchConfig selects the web search backend.
type SearchConfig struct {
	Provider   string `yaml:"provider"`
	MaxResults int    `yaml:"max_results"`
	Brave      struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"brave"`
	SearXNG struct {
		URL string `yaml:"url"`
	} `yaml:"searxng"`
}

// Enabled reports whether the selected backend has what it needs.
func (s SearchConfig) Enabled() bool {
	switch s.Provider {
	case "brave":
		return s.Brave.APIKey != ""
	case "searxng":
		return s.SearXNG.URL != ""
	default:
		return false
	}
}

// StorageConfig locates the database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DiscordConfig holds bot settings.
type DiscordConfig struct {
	Token       string   `yaml:"token"`
	AdminIDs    []string `yaml:"admin_ids"`
	Debug       bool     `yaml:"debug"`
	DebugPrefix string   `yaml:"debug_prefix"`
}

// IsAdmin reports whether the Discord user id is an admin.
func (d DiscordConfig) IsAdmin(id string) bool {
	for _, admin := range d.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	s := Settings{
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   4096,
			Temperature: 0.7,
			Streaming:   true,
		},
		Agent: AgentConfig{
			MaxDepth:        3,
			ContextTokens:   4000,
			FlushInterval:   time.Second,
			DispatchWorkers: 4,
			Retries:         2,
			CallTimeout:     30 * time.Second,
			HistoryWindow:   20 * time.Minute,
		},
		Storage:  StorageConfig{Path: ".cinematic/cinematic.db"},
		Discord:  DiscordConfig{DebugPrefix: "!"},
		LogLevel: "info",
	}
	s.Search.Provider = "brave"
	s.Search.MaxResults = 8
	return s
}

// Load reads path (DefaultPath when empty), applies environment overrides
// and validates the result. A missing file is not an error.
func Load(path string) (Settings, error) {
	if path == "" {
		path = DefaultPath
	}

	settings := Default()
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if settings, err = Parse(f); err != nil {
			return Settings{}, fmt.Errorf("%s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Settings{}, fmt.Errorf("failed to open config: %w", err)
	}

	if err := settings.applyEnv(); err != nil {
		return Settings{}, err
	}
	settings.normalize()

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Parse decodes YAML onto the defaults. Unknown keys are rejected and an
// empty document yields the defaults.
func Parse(r io.Reader) (Settings, error) {
	settings := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return settings, nil
}

// applyEnv overrides settings from environment variables.
func (s *Settings) applyEnv() error {
	s.LLM.Provider = getEnvString("LLM_PROVIDER", s.LLM.Provider)
	s.LLM.Model = getEnvString("LLM_MODEL", s.LLM.Model)
	s.HelperLLM.Provider = getEnvString("HELPER_LLM_PROVIDER", s.HelperLLM.Provider)
	s.HelperLLM.Model = getEnvString("HELPER_LLM_MODEL", s.HelperLLM.Model)

	var err error
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}
	if s.Agent.MaxDepth, err = getEnvInt("AGENT_MAX_DEPTH", s.Agent.MaxDepth); err != nil {
		return err
	}
	if s.Agent.ContextTokens, err = getEnvInt("AGENT_CONTEXT_TOKENS", s.Agent.ContextTokens); err != nil {
		return err
	}
	if s.Agent.CallTimeout, err = getEnvDuration("AGENT_CALL_TIMEOUT", s.Agent.CallTimeout); err != nil {
		return err
	}

	s.Radarr.URL = getEnvString("RADARR_URL", s.Radarr.URL)
	s.Radarr.APIKey = getEnvString("RADARR_API_KEY", s.Radarr.APIKey)
	s.Sonarr.URL = getEnvString("SONARR_URL", s.Sonarr.URL)
	s.Sonarr.APIKey = getEnvString("SONARR_API_KEY", s.Sonarr.APIKey)
	s.Search.Brave.APIKey = getEnvString("BRAVE_API_KEY", s.Search.Brave.APIKey)
	s.Search.SearXNG.URL = getEnvString("SEARXNG_URL", s.Search.SearXNG.URL)
	s.Storage.Path = getEnvString("CINEMATIC_DB", s.Storage.Path)
	s.Discord.Token = getEnvString("DISCORD_TOKEN", s.Discord.Token)
	if ids := os.Getenv("DISCORD_ADMIN_IDS"); ids != "" {
		s.Discord.AdminIDs = splitList(ids)
	}
	s.LogLevel = getEnvString("LOG_LEVEL", s.LogLevel)
	return nil
}

// normalize canonicalises provider names, fills models from the provider
// table and makes the helper model default to the main one.
func (s *Settings) normalize() {
	s.LLM.Provider = normalizeProvider(s.LLM.Provider)
	if s.LLM.Model == "" {
		s.LLM.Model, _ = ModelFor(s.LLM.Provider)
	}

	if s.HelperLLM.Provider == "" {
		streaming := s.HelperLLM.Streaming
		model := s.HelperLLM.Model
		s.HelperLLM = s.LLM
		s.HelperLLM.Streaming = streaming
		if model != "" {
			s.HelperLLM.Model = model
		}
	}
	s.HelperLLM.Provider = normalizeProvider(s.HelperLLM.Provider)
	if s.HelperLLM.Model == "" {
		s.HelperLLM.Model, _ = ModelFor(s.HelperLLM.Provider)
	}
	if s.HelperLLM.MaxTokens == 0 {
		s.HelperLLM.MaxTokens = s.LLM.MaxTokens
	}

	s.Search.Provider = strings.ToLower(strings.TrimSpace(s.Search.Provider))
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
}

// Validate reports every invalid setting at once.
func (s Settings) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	for name, l := range map[string]LLMConfig{"llm": s.LLM, "helper_llm": s.HelperLLM} {
		if _, err := getProviderInfo(normalizeProvider(l.Provider)); err != nil {
			invalid("%s.provider: unknown provider %q", name, l.Provider)
		}
		if l.Temperature < 0 || l.Temperature > 2 {
			invalid("%s.temperature: %v is outside [0, 2]", name, l.Temperature)
		}
	}
	if s.Agent.MaxDepth < 0 {
		invalid("agent.max_depth: must not be negative")
	}
	if s.Agent.ContextTokens <= 0 {
		invalid("agent.context_tokens: must be positive")
	}
	if s.Agent.DispatchWorkers <= 0 {
		invalid("agent.dispatch_workers: must be positive")
	}
	if s.Agent.Retries < 0 {
		invalid("agent.retries: must not be negative")
	}
	if s.Agent.CallTimeout <= 0 {
		invalid("agent.call_timeout: must be positive")
	}
	switch s.Search.Provider {
	case "", "brave", "searxng":
	default:
		invalid("search.provider: %q is not brave or searxng", s.Search.Provider)
	}
	if s.Search.MaxResults < 0 {
		invalid("search.max_results: must not be negative")
	}
	if !logLevels[s.LogLevel] {
		invalid("log_level: %q is not debug, info, warn or error", s.LogLevel)
	}

	return errors.Join(errs...)
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
