package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddr = "127.0.0.1:8000"
	DefaultServerURL  = "http://127.0.0.1:8000"
	DefaultDataDir    = "data"
	DefaultLogLevel   = "info"
	DefaultFileName   = "apkd.toml"

	// DefaultUploadToken is a placeholder secret. Deployments must override it.
	DefaultUploadToken = "my-secret-token"

	DefaultUploadMaxBytes        int64 = 512 * 1024 * 1024
	DefaultUploadMultipartMemory int64 = 8 * 1024 * 1024
	DefaultWriteTimeout                = 10 * time.Minute
	DefaultAuthMaxFailures             = 10
	DefaultAuthFailureWindow           = time.Minute
	DefaultAuthBlockDuration           = 5 * time.Minute

	DefaultMetadataBackend = "file"
	DefaultContentBackend  = "local"

	configPathEnvKey = "APKD_CONFIG"
)

var metadataFileNames = map[string]string{
	"file":   "meta.json",
	"sqlite": "meta.db",
	"bolt":   "meta.bolt",
	"memory": "",
}

var contentBackends = map[string]struct{}{
	"local":  {},
	"s3":     {},
	"gcs":    {},
	"memory": {},
}

// Duration is a time.Duration that reads and writes TOML strings like "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	PublicURL         string   `toml:"public_url"`
	TrustProxyHeaders bool     `toml:"trust_proxy_headers"`
	WriteTimeout      Duration `toml:"write_timeout"`
}

// AuthConfig controls upload authorization.
type AuthConfig struct {
	UploadToken     string   `toml:"upload_token"`
	UploadTokenHash string   `toml:"upload_token_hash"`
	MaxFailures     int      `toml:"max_failures"`
	FailureWindow   Duration `toml:"failure_window"`
	BlockDuration   Duration `toml:"block_duration"`
}

// UploadConfig bounds request bodies on /upload.
type UploadConfig struct {
	MaxBytes        int64 `toml:"max_bytes"`
	MultipartMemory int64 `toml:"multipart_memory"`
}

// MetadataConfig selects the release record backend.
type MetadataConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// ContentConfig selects the artifact storage backend.
type ContentConfig struct {
	Backend  string `toml:"backend"`
	Dir      string `toml:"dir"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Region   string `toml:"region"`
	Profile  string `toml:"profile"`
	Endpoint string `toml:"endpoint"`
}

// Config defines runtime configuration for apkd.
type Config struct {
	ListenAddr string         `toml:"listen_addr"`
	ServerURL  string         `toml:"server_url"`
	DataDir    string         `toml:"data_dir"`
	LogLevel   string         `toml:"log_level"`
	Server     ServerConfig   `toml:"server"`
	Auth       AuthConfig     `toml:"auth"`
	Upload     UploadConfig   `toml:"upload"`
	Metadata   MetadataConfig `toml:"metadata"`
	Content    ContentConfig  `toml:"content"`
	LoadedPath string         `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		ServerURL:  DefaultServerURL,
		DataDir:    DefaultDataDir,
		LogLevel:   DefaultLogLevel,
		Server: ServerConfig{
			WriteTimeout: Duration{DefaultWriteTimeout},
		},
		Auth: AuthConfig{
			UploadToken:   DefaultUploadToken,
			MaxFailures:   DefaultAuthMaxFailures,
			FailureWindow: Duration{DefaultAuthFailureWindow},
			BlockDuration: Duration{DefaultAuthBlockDuration},
		},
		Upload: UploadConfig{
			MaxBytes:        DefaultUploadMaxBytes,
			MultipartMemory: DefaultUploadMultipartMemory,
		},
		Metadata: MetadataConfig{Backend: DefaultMetadataBackend},
		Content:  ContentConfig{Backend: DefaultContentBackend},
	}
}

// Path returns the config file location: $APKD_CONFIG or ./apkd.toml.
func Path() (string, error) {
	if path := strings.TrimSpace(os.Getenv(configPathEnvKey)); path != "" {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultFileName), nil
}

// Load reads the config file when present and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	loaded, err := loadFileIfExists(path, &cfg)
	if err != nil {
		return nil, err
	}
	if loaded {
		cfg.LoadedPath = path
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		keys []string
		dst  *string
	}{
		{keys: []string{"APKD_LISTEN_ADDR"}, dst: &c.ListenAddr},
		{keys: []string{"APKD_SERVER_URL"}, dst: &c.ServerURL},
		{keys: []string{"APKD_DATA_DIR"}, dst: &c.DataDir},
		{keys: []string{"APKD_PUBLIC_URL"}, dst: &c.Server.PublicURL},
		{keys: []string{"APKD_UPLOAD_TOKEN", "UPLOAD_TOKEN"}, dst: &c.Auth.UploadToken},
		{keys: []string{"APKD_UPLOAD_TOKEN_HASH"}, dst: &c.Auth.UploadTokenHash},
		{keys: []string{"APKD_METADATA_BACKEND"}, dst: &c.Metadata.Backend},
		{keys: []string{"APKD_METADATA_PATH"}, dst: &c.Metadata.Path},
		{keys: []string{"APKD_CONTENT_BACKEND"}, dst: &c.Content.Backend},
		{keys: []string{"APKD_CONTENT_DIR"}, dst: &c.Content.Dir},
		{keys: []string{"APKD_CONTENT_BUCKET"}, dst: &c.Content.Bucket},
	}
	for _, o := range overrides {
		for _, key := range o.keys {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				*o.dst = value
				break
			}
		}
	}
}

func (c *Config) normalize() error {
	defaults := Default()

	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if strings.TrimSpace(c.ServerURL) == "" {
		c.ServerURL = defaults.ServerURL
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaults.DataDir
	}
	if c.Server.WriteTimeout.Duration <= 0 {
		c.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if c.Auth.MaxFailures <= 0 {
		c.Auth.MaxFailures = defaults.Auth.MaxFailures
	}
	if c.Auth.FailureWindow.Duration <= 0 {
		c.Auth.FailureWindow = defaults.Auth.FailureWindow
	}
	if c.Auth.BlockDuration.Duration <= 0 {
		c.Auth.BlockDuration = defaults.Auth.BlockDuration
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = defaults.Upload.MaxBytes
	}
	if c.Upload.MultipartMemory <= 0 {
		c.Upload.MultipartMemory = defaults.Upload.MultipartMemory
	}

	c.Metadata.Backend = strings.ToLower(strings.TrimSpace(c.Metadata.Backend))
	if c.Metadata.Backend == "" {
		c.Metadata.Backend = DefaultMetadataBackend
	}
	fileName, ok := metadataFileNames[c.Metadata.Backend]
	if !ok {
		return fmt.Errorf("unknown metadata.backend %q", c.Metadata.Backend)
	}
	if c.Metadata.Path == "" && fileName != "" {
		c.Metadata.Path = filepath.Join(c.DataDir, fileName)
	}

	c.Content.Backend = strings.ToLower(strings.TrimSpace(c.Content.Backend))
	if c.Content.Backend == "" {
		c.Content.Backend = DefaultContentBackend
	}
	if _, ok := contentBackends[c.Content.Backend]; !ok {
		return fmt.Errorf("unknown content.backend %q", c.Content.Backend)
	}
	if c.Content.Dir == "" {
		c.Content.Dir = filepath.Join(c.DataDir, "apk")
	}
	if (c.Content.Backend == "s3" || c.Content.Backend == "gcs") && strings.TrimSpace(c.Content.Bucket) == "" {
		return fmt.Errorf("content.bucket is required for the %s backend", c.Content.Backend)
	}

	if raw := strings.TrimSpace(c.Server.PublicURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.public_url must be an absolute URL, got %q", raw)
		}
		c.Server.PublicURL = strings.TrimRight(raw, "/")
	}

	return nil
}

// InsecureDefaultToken reports whether uploads are protected only by the
// placeholder secret.
func (c *Config) InsecureDefaultToken() bool {
	return c.Auth.UploadTokenHash == "" && c.Auth.UploadToken == DefaultUploadToken
}

var allowedKeys = []string{
	"listen_addr",
	"server_url",
	"data_dir",
	"log_level",
	"server.public_url",
	"server.trust_proxy_headers",
	"server.write_timeout",
	"auth.upload_token",
	"auth.upload_token_hash",
	"auth.max_failures",
	"auth.failure_window",
	"auth.block_duration",
	"upload.max_bytes",
	"upload.multipart_memory",
	"metadata.backend",
	"metadata.path",
	"content.backend",
	"content.dir",
	"content.bucket",
	"content.prefix",
	"content.region",
	"content.profile",
	"content.endpoint",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. Secrets are redacted.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "listen_addr":
		return c.ListenAddr, nil
	case "server_url":
		return c.ServerURL, nil
	case "data_dir":
		return c.DataDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "server.public_url":
		return c.Server.PublicURL, nil
	case "server.trust_proxy_headers":
		return strconv.FormatBool(c.Server.TrustProxyHeaders), nil
	case "server.write_timeout":
		return c.Server.WriteTimeout.String(), nil
	case "auth.upload_token":
		return redact(c.Auth.UploadToken), nil
	case "auth.upload_token_hash":
		return c.Auth.UploadTokenHash, nil
	case "auth.max_failures":
		return strconv.Itoa(c.Auth.MaxFailures), nil
	case "auth.failure_window":
		return c.Auth.FailureWindow.String(), nil
	case "auth.block_duration":
		return c.Auth.BlockDuration.String(), nil
	case "upload.max_bytes":
		return strconv.FormatInt(c.Upload.MaxBytes, 10), nil
	case "upload.multipart_memory":
		return strconv.FormatInt(c.Upload.MultipartMemory, 10), nil
	case "metadata.backend":
		return c.Metadata.Backend, nil
	case "metadata.path":
		return c.Metadata.Path, nil
	case "content.backend":
		return c.Content.Backend, nil
	case "content.dir":
		return c.Content.Dir, nil
	case "content.bucket":
		return c.Content.Bucket, nil
	case "content.prefix":
		return c.Content.Prefix, nil
	case "content.region":
		return c.Content.Region, nil
	case "content.profile":
		return c.Content.Profile, nil
	case "content.endpoint":
		return c.Content.Endpoint, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "upload.max_bytes", "upload.multipart_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "auth.max_failures":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "server.trust_proxy_headers":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "server.write_timeout", "auth.failure_window", "auth.block_duration":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 30s or 5m", key)
		}
		return parsed.String(), nil
	case "metadata.backend":
		if _, ok := metadataFileNames[strings.ToLower(value)]; !ok {
			return nil, fmt.Errorf("%s must be one of file, sqlite, bolt, memory", key)
		}
		return strings.ToLower(value), nil
	case "content.backend":
		if _, ok := contentBackends[strings.ToLower(value)]; !ok {
			return nil, fmt.Errorf("%s must be one of local, s3, gcs, memory", key)
		}
		return strings.ToLower(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if secret == DefaultUploadToken {
		return secret + " (insecure default)"
	}
	return "********"
}
