package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// EncryptedPrefix marks an API key stored with EncryptValue.
const EncryptedPrefix = "enc:"

// MasterKeyEnv names the variable holding the passphrase for encrypted keys.
const MasterKeyEnv = "COUNCIL_MASTER_KEY"

// Config is the top-level application configuration.
type Config struct {
	Logger         LoggerConfig         `yaml:"logger"`
	Tracer         TracerConfig         `yaml:"tracer"`
	Council        CouncilConfig        `yaml:"council"`
	Agents         []AgentConfig        `yaml:"agents"`
	Roles          RolesConfig          `yaml:"roles"`
	Permissions    PermissionsConfig    `yaml:"permissions"`
	Providers      []ProviderConfig     `yaml:"providers"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Storage        StorageConfig        `yaml:"storage"`
	Tools          ToolsConfig          `yaml:"tools"`
	Tokenizer      TokenizerConfig      `yaml:"tokenizer"`
}

// CouncilConfig holds orchestration settings.
type CouncilConfig struct {
	MaxTurns         int               `yaml:"max_turns"`
	OpinionCharLimit int               `yaml:"opinion_char_limit"`
	HistoryWindow    int               `yaml:"history_window"` // messages forwarded to members
	MaxAttempts      int               `yaml:"max_attempts"`
	RetryDelay       time.Duration     `yaml:"retry_delay"`
	MaxTokens        int               `yaml:"max_tokens"`
	SystemPrompt     string            `yaml:"system_prompt,omitempty"` // appended to the chair prompt
	Timeouts         TimeoutsConfig    `yaml:"timeouts"`
	Compaction       CompactionConfig  `yaml:"compaction"`
	ContextLimits    map[string]int    `yaml:"context_limits,omitempty"` // model substring → tokens
	Scoring          ScoringConfig     `yaml:"scoring"`
	ProjectFile      string            `yaml:"project_file"`
}

// TimeoutsConfig holds per-attempt provider timeouts.
type TimeoutsConfig struct {
	Standard  time.Duration `yaml:"standard"`
	Reasoning time.Duration `yaml:"reasoning"`
}

// CompactionConfig holds history compaction ratios.
type CompactionConfig struct {
	TriggerRatio  float64 `yaml:"trigger_ratio"`
	TargetRatio   float64 `yaml:"target_ratio"`
	MinKeep       int     `yaml:"min_keep"`
	DefaultLimit  int     `yaml:"default_limit"`
	ReserveTokens int     `yaml:"reserve_tokens"`
}

// ScoringConfig holds efficiency scorer settings.
type ScoringConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ResetOnStart    bool          `yaml:"reset_on_start"`
	AdviceCharLimit int           `yaml:"advice_char_limit"`
	Timeout         time.Duration `yaml:"timeout"`
}

// AgentConfig defines one council agent.
type AgentConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name,omitempty"`
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	Enabled      bool   `yaml:"enabled"`
	ContextLimit int    `yaml:"context_limit,omitempty"`
}

// RolesConfig holds role assignments by agent id.
type RolesConfig struct {
	Chair     string `yaml:"chair,omitempty"`
	Secretary string `yaml:"secretary,omitempty"`
}

// PermissionsConfig gates each tool category.
type PermissionsConfig struct {
	Command   bool `yaml:"command"`
	FileRead  bool `yaml:"file_read"`
	FileWrite bool `yaml:"file_write"`
	FileEdit  bool `yaml:"file_edit"`
	Browser   bool `yaml:"browser"`
	Desktop   bool `yaml:"desktop"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	Type              string        `yaml:"type"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	APIKey            string        `yaml:"api_key,omitempty"`
	Region            string        `yaml:"region,omitempty"`
	ConnTimeout       time.Duration `yaml:"conn_timeout,omitempty"`
	RespTimeout       time.Duration `yaml:"resp_timeout,omitempty"`
	Pool              PoolConfig    `yaml:"pool,omitempty"`
	ThinkingBudget    int           `yaml:"thinking_budget,omitempty"`
	RequestsPerMinute int           `yaml:"requests_per_minute,omitempty"`
}

// StorageConfig selects the history and stats backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	DataDir string `yaml:"data_dir"`
}

// ToolsConfig holds tool executor settings.
type ToolsConfig struct {
	SandboxRoot        string        `yaml:"sandbox_root"`
	ShellPath          string        `yaml:"shell_path"`
	ShellTimeout       time.Duration `yaml:"shell_timeout"`
	OutputLimit        int           `yaml:"output_limit"`
	MaxFileSize        int64         `yaml:"max_file_size"`
	DiagnosticsCommand string        `yaml:"diagnostics_command,omitempty"`
	Browser            BrowserConfig `yaml:"browser"`
	Search             SearchConfig  `yaml:"search"`
	Desktop            DesktopConfig `yaml:"desktop"`
}

// BrowserConfig holds chromedp settings.
type BrowserConfig struct {
	CDPURL   string        `yaml:"cdp_url,omitempty"` // attach to a running Chrome instead of launching
	Headless bool          `yaml:"headless"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	SearXNGURL string        `yaml:"searxng_url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DesktopConfig holds the external commands used for desktop control.
// Placeholders {file}, {x}, {y}, {text} and {key} are substituted per call.
type DesktopConfig struct {
	ScreenshotCommand string `yaml:"screenshot_command"`
	ClickCommand      string `yaml:"click_command"`
	MoveCommand       string `yaml:"move_command"`
	TypeCommand       string `yaml:"type_command"`
	KeyCommand        string `yaml:"key_command"`
}

// TokenizerConfig selects the token counter.
type TokenizerConfig struct {
	Backend  string `yaml:"backend"` // "estimate" or "tiktoken"
	Encoding string `yaml:"encoding"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Output   string `yaml:"output,omitempty"`
}

// HomeDir returns $HOME/.council, or ".council" when $HOME is unknown.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".council"
	}
	return filepath.Join(home, ".council")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := HomeDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: filepath.Join(dataDir, "council.log"),
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Council: CouncilConfig{
			MaxTurns:         5,
			OpinionCharLimit: 4000,
			HistoryWindow:    10,
			MaxAttempts:      2,
			RetryDelay:       2 * time.Second,
			MaxTokens:        8192,
			Timeouts: TimeoutsConfig{
				Standard:  3 * time.Minute,
				Reasoning: 10 * time.Minute,
			},
			Compaction: CompactionConfig{
				TriggerRatio:  0.8,
				TargetRatio:   0.5,
				MinKeep:       5,
				DefaultLimit:  128000,
				ReserveTokens: 0,
			},
			Scoring: ScoringConfig{
				Enabled:         true,
				ResetOnStart:    false,
				AdviceCharLimit: 1500,
				Timeout:         5 * time.Minute,
			},
			ProjectFile: filepath.Join(".council", "project.yaml"),
		},
		Permissions: PermissionsConfig{FileRead: true},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "file",
			DataDir: dataDir,
		},
		Tools: ToolsConfig{
			SandboxRoot:  ".",
			ShellPath:    "/bin/sh",
			ShellTimeout: 2 * time.Minute,
			OutputLimit:  20000,
			MaxFileSize:  10 * 1024 * 1024,
			Browser: BrowserConfig{
				Headless: true,
				Timeout:  30 * time.Second,
			},
			Search: SearchConfig{
				SearXNGURL: "http://localhost:8888",
				MaxResults: 8,
				Timeout:    15 * time.Second,
			},
			Desktop: DesktopConfig{
				ScreenshotCommand: "import -window root {file}",
				ClickCommand:      "xdotool mousemove {x} {y} click 1",
				MoveCommand:       "xdotool mousemove {x} {y}",
				TypeCommand:       "xdotool type -- {text}",
				KeyCommand:        "xdotool key {key}",
			},
		},
		Tokenizer: TokenizerConfig{
			Backend:  "estimate",
			Encoding: "cl100k_base",
		},
	}
}

// Read loads a YAML config file over the defaults without env overrides or
// secret decryption. The result is suitable for editing and Save.
// A missing file yields the defaults.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validatePermissions(path); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(MasterKeyEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename, mode 0600).
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides maps COUNCIL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COUNCIL_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("COUNCIL_LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("COUNCIL_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("COUNCIL_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("COUNCIL_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("COUNCIL_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("COUNCIL_SANDBOX_ROOT"); v != "" {
		cfg.Tools.SandboxRoot = v
	}
	if v := os.Getenv("COUNCIL_SEARXNG_URL"); v != "" {
		cfg.Tools.Search.SearXNGURL = v
	}
	if v := os.Getenv("COUNCIL_CDP_URL"); v != "" {
		cfg.Tools.Browser.CDPURL = v
	}
	if v := os.Getenv("COUNCIL_TOKENIZER"); v != "" {
		cfg.Tokenizer.Backend = v
	}
	if v := os.Getenv("COUNCIL_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Council.MaxTurns = n
		}
	}
	for i := range cfg.Providers {
		if v := os.Getenv(ProviderKeyEnv(cfg.Providers[i].Name)); v != "" {
			cfg.Providers[i].APIKey = v
		}
	}
}

// ProviderKeyEnv returns the env var that overrides a provider's API key,
// e.g. COUNCIL_OPEN_ROUTER_API_KEY for "open-router".
func ProviderKeyEnv(name string) string {
	name = strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
	return "COUNCIL_" + name + "_API_KEY"
}

// Provider returns the provider named name.
func (c *Config) Provider(name string) (*ProviderConfig, bool) {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], true
		}
	}
	return nil, false
}

// Agent returns the agent with the given id.
func (c *Config) Agent(id string) (*AgentConfig, bool) {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i], true
		}
	}
	return nil, false
}

// decryptSecrets finds "enc:..." values in provider API keys and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Providers {
		key := cfg.Providers[i].APIKey
		if strings.HasPrefix(key, EncryptedPrefix) {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, EncryptedPrefix), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.Providers[i].Name, err)
			}
			cfg.Providers[i].APIKey = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
