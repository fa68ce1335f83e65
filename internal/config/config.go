package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults for values left empty in a config file.
const (
	DefaultProviderType    = "nasa"
	DefaultAPIKey          = "DEMO_KEY"
	DefaultEndpoint        = "https://api.nasa.gov/planetary/apod"
	DefaultTimeoutSeconds  = 30
	DefaultRequestsPerHour = 30
	DefaultMaxImageBytes   = 64 << 20
	DefaultWallpaperType   = "auto"
	DefaultDatabaseType    = "sqlite"
	DefaultLogLevel        = "info"
	DefaultMirrorType      = "none"
	DefaultEncryptionType  = "none"
)

// Config represents the main configuration for apod.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"`
	ImageDir   string           `toml:"image_dir,omitempty"` // used when the CLI is given no IMAGE_DIR
	Provider   ProviderConfig   `toml:"provider"`
	Wallpaper  WallpaperConfig  `toml:"wallpaper"`
	Database   DatabaseConfig   `toml:"database"`
	Mirror     VaultConfig      `toml:"mirror"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// ProviderConfig configures where pictures come from.
type ProviderConfig struct {
	Type            string `toml:"type"` // "nasa"
	APIKey          string `toml:"api_key"`
	Endpoint        string `toml:"endpoint"`
	HD              bool   `toml:"hd"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	RequestsPerHour int    `toml:"requests_per_hour"` // <= 0 disables client-side limiting
	MaxImageBytes   int64  `toml:"max_image_bytes"`
}

// WallpaperConfig selects how the desktop background is set.
type WallpaperConfig struct {
	Type    string   `toml:"type"`              // "auto", "command" or "none"
	Command []string `toml:"command,omitempty"` // argv for type=command; "{path}" is replaced with the image path
}

// EncryptionConfig holds paths to the age key pair used for mirror encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for the mirror backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "none", "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the image catalog.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // sqlite file; defaults to <image_dir>/apod_images.db
}

// NewConfig creates a new Config with the provided values and defaults for everything else.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		Provider: ProviderConfig{
			HD: true,
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "apod.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "apod.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in zero-valued fields. HD is left alone since false is meaningful.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	p := &c.Provider
	if p.Type == "" {
		p.Type = DefaultProviderType
	}
	if p.APIKey == "" {
		p.APIKey = DefaultAPIKey
	}
	if p.Endpoint == "" {
		p.Endpoint = DefaultEndpoint
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if p.RequestsPerHour == 0 {
		p.RequestsPerHour = DefaultRequestsPerHour
	}
	if p.MaxImageBytes <= 0 {
		p.MaxImageBytes = DefaultMaxImageBytes
	}

	if c.Wallpaper.Type == "" {
		c.Wallpaper.Type = DefaultWallpaperType
	}
	if c.Database.Type == "" {
		c.Database.Type = DefaultDatabaseType
	}
	if c.Mirror.Type == "" {
		c.Mirror.Type = DefaultMirrorType
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = DefaultEncryptionType
	}
}

// Validate reports configuration values that can never work.
func (c *Config) Validate() error {
	if c.Wallpaper.Type == "command" && len(c.Wallpaper.Command) == 0 {
		return fmt.Errorf("wallpaper type %q requires a command", c.Wallpaper.Type)
	}
	if c.Mirror.Type != "" && c.Mirror.Type != "none" && c.HostID == "" {
		return fmt.Errorf("mirror type %q requires host_id", c.Mirror.Type)
	}
	if c.Mirror.Type == "s3" && c.Mirror.S3Bucket == "" {
		return fmt.Errorf("mirror type %q requires s3_bucket", c.Mirror.Type)
	}
	if c.Mirror.Type == "filesystem" && c.Mirror.FSVaultRoot == "" {
		return fmt.Errorf("mirror type %q requires fs_vault_root", c.Mirror.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Config{Provider: ProviderConfig{HD: true}}
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, or returns defaults rooted at baseDir when
// the file does not exist. Defaults are applied either way.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfig("", baseDir), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = baseDir
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
