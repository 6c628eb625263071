// Package config loads the client configuration from an INI file, the
// environment and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"github.com/neptunelabs/fsi-client/internal/constants"
)

// Config holds everything needed to talk to an FSI server.
//
// INI format:
//
//	[server]
//	url = https://fsi.example.com
//	user = editor
//	password =
//	language = en
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	no_proxy = localhost,10.0.0.0/8
//
//	[transfer]
//	max_retries = 4
//	requests_per_second = 20
//	continue_on_error = false
//	max_recursive_depth = 0
//
//	[cloud]
//	s3_region = eu-central-1
//	azure_service_url = https://account.blob.core.windows.net/?sv=...
type Config struct {
	// Server settings
	ServerURL string
	User      string
	Password  string
	Language  string

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Retry and rate settings
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	Burst             int

	// Queue defaults
	ContinueOnError   bool
	MaxRecursiveDepth int

	// Download sinks
	S3Region        string
	S3Profile       string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	AzureServiceURL string

	// MetricsFile receives a Prometheus textfile after each run when set.
	MetricsFile string
}

// Validation errors
var (
	ErrMissingServerURL = errors.New("server url is required")
	ErrInvalidServerURL = errors.New("server url must be an absolute http(s) url")
	ErrInvalidProxyMode = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrInvalidRetries   = errors.New("max_retries must be between 0 and 20")
)

// New returns a config with default values.
func New() *Config {
	return &Config{
		ProxyMode:         "no-proxy",
		MaxRetries:        constants.DefaultMaxRetries,
		RetryWaitMin:      constants.DefaultRetryWaitMin,
		RetryWaitMax:      constants.DefaultRetryWaitMax,
		RequestsPerSecond: constants.DefaultRequestsPerSecond,
		Burst:             constants.DefaultBurst,
	}
}

// Load reads the INI file at path. A missing file yields the defaults. An
// empty path means DefaultConfigPath.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	server := f.Section("server")
	cfg.ServerURL = server.Key("url").String()
	cfg.User = server.Key("user").String()
	cfg.Password = server.Key("password").String()
	cfg.Language = server.Key("language").String()

	proxy := f.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)

	transfer := f.Section("transfer")
	cfg.MaxRetries = transfer.Key("max_retries").MustInt(cfg.MaxRetries)
	cfg.RetryWaitMin = transfer.Key("retry_wait_min").MustDuration(cfg.RetryWaitMin)
	cfg.RetryWaitMax = transfer.Key("retry_wait_max").MustDuration(cfg.RetryWaitMax)
	cfg.RequestsPerSecond = transfer.Key("requests_per_second").MustFloat64(cfg.RequestsPerSecond)
	cfg.Burst = transfer.Key("burst").MustInt(cfg.Burst)
	cfg.ContinueOnError = transfer.Key("continue_on_error").MustBool(false)
	cfg.MaxRecursiveDepth = transfer.Key("max_recursive_depth").MustInt(0)
	cfg.MetricsFile = transfer.Key("metrics_file").String()

	cloud := f.Section("cloud")
	cfg.S3Region = cloud.Key("s3_region").String()
	cfg.S3Profile = cloud.Key("s3_profile").String()
	cfg.S3Endpoint = cloud.Key("s3_endpoint").String()
	cfg.S3AccessKey = cloud.Key("s3_access_key").String()
	cfg.S3SecretKey = cloud.Key("s3_secret_key").String()
	cfg.AzureServiceURL = cloud.Key("azure_service_url").String()

	return cfg, nil
}

// LoadEnvFiles loads KEY=VALUE files (default: .env in the working directory)
// into the process environment without overriding variables already set.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides values from FSI_* environment variables.
func (c *Config) ApplyEnv() {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	str("FSI_SERVER", &c.ServerURL)
	str("FSI_USER", &c.User)
	str("FSI_PASSWORD", &c.Password)
	str("FSI_LANG", &c.Language)
	str("FSI_PROXY_MODE", &c.ProxyMode)
	str("FSI_PROXY_HOST", &c.ProxyHost)
	str("FSI_PROXY_USER", &c.ProxyUser)
	str("FSI_PROXY_PASSWORD", &c.ProxyPassword)
	str("FSI_NO_PROXY", &c.NoProxy)
	str("FSI_S3_REGION", &c.S3Region)
	str("FSI_S3_PROFILE", &c.S3Profile)
	str("FSI_S3_ENDPOINT", &c.S3Endpoint)
	str("FSI_S3_ACCESS_KEY", &c.S3AccessKey)
	str("FSI_S3_SECRET_KEY", &c.S3SecretKey)
	str("FSI_AZURE_SERVICE_URL", &c.AzureServiceURL)
	str("FSI_METRICS_FILE", &c.MetricsFile)

	if v := os.Getenv("FSI_PROXY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.ProxyPort = port
		}
	}
	if v := os.Getenv("FSI_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("FSI_CONTINUE_ON_ERROR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ContinueOnError = b
		}
	}
	// HTTPS_PROXY is honored through system mode.
	if c.ProxyMode == "" || c.ProxyMode == "no-proxy" {
		if os.Getenv("HTTPS_PROXY") != "" || os.Getenv("https_proxy") != "" {
			c.ProxyMode = "system"
		}
	}
}

// Validate checks the configuration before a client is built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return ErrMissingServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, c.ServerURL)
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProxyMode, c.ProxyMode)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 20 {
		return ErrInvalidRetries
	}
	return nil
}

// BaseURL returns ServerURL without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.ServerURL, "/")
}

// Save writes the configuration to path. Passwords are only written when
// withSecrets is set.
func Save(cfg *Config, path string, withSecrets bool) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f := ini.Empty()

	server, err := f.NewSection("server")
	if err != nil {
		return fmt.Errorf("failed to create server section: %w", err)
	}
	server.Key("url").SetValue(cfg.ServerURL)
	server.Key("user").SetValue(cfg.User)
	if withSecrets {
		server.Key("password").SetValue(cfg.Password)
	}
	if cfg.Language != "" {
		server.Key("language").SetValue(cfg.Language)
	}

	proxy, err := f.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.ProxyMode)
	proxy.Key("host").SetValue(cfg.ProxyHost)
	proxy.Key("port").SetValue(strconv.Itoa(cfg.ProxyPort))
	proxy.Key("user").SetValue(cfg.ProxyUser)
	if withSecrets {
		proxy.Key("password").SetValue(cfg.ProxyPassword)
	}
	proxy.Key("no_proxy").SetValue(cfg.NoProxy)

	transfer, err := f.NewSection("transfer")
	if err != nil {
		return fmt.Errorf("failed to create transfer section: %w", err)
	}
	transfer.Key("max_retries").SetValue(strconv.Itoa(cfg.MaxRetries))
	transfer.Key("retry_wait_min").SetValue(cfg.RetryWaitMin.String())
	transfer.Key("retry_wait_max").SetValue(cfg.RetryWaitMax.String())
	transfer.Key("requests_per_second").SetValue(strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64))
	transfer.Key("burst").SetValue(strconv.Itoa(cfg.Burst))
	transfer.Key("continue_on_error").SetValue(strconv.FormatBool(cfg.ContinueOnError))
	transfer.Key("max_recursive_depth").SetValue(strconv.Itoa(cfg.MaxRecursiveDepth))
	if cfg.MetricsFile != "" {
		transfer.Key("metrics_file").SetValue(cfg.MetricsFile)
	}

	cloud, err := f.NewSection("cloud")
	if err != nil {
		return fmt.Errorf("failed to create cloud section: %w", err)
	}
	cloud.Key("s3_region").SetValue(cfg.S3Region)
	cloud.Key("s3_profile").SetValue(cfg.S3Profile)
	cloud.Key("s3_endpoint").SetValue(cfg.S3Endpoint)
	if withSecrets {
		cloud.Key("s3_access_key").SetValue(cfg.S3AccessKey)
		cloud.Key("s3_secret_key").SetValue(cfg.S3SecretKey)
	}
	cloud.Key("azure_service_url").SetValue(cfg.AzureServiceURL)

	tmpPath := path + ".tmp"
	if err := f.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
