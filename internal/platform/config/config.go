package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultClientTimeout  = 8 * time.Second
	defaultPollInterval   = 5 * time.Second
	defaultPollMaxWait    = 30 * time.Minute
	defaultEphemeralTTL   = 45 * time.Minute
	defaultStorePath      = "storefront.db"
	defaultCurrency       = "PKR"
	defaultPlaceholderImg = "/placeholder.png"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	OrderAPI UpstreamConfig
	Catalog  UpstreamConfig
	Notifier UpstreamConfig
	Poller   PollerConfig
	Store    StoreConfig
	Merchant MerchantProfile
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// UpstreamConfig points at one external REST collaborator.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PollerConfig controls the order-status poller cadence.
type PollerConfig struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// StoreConfig configures the client-state store backends.
type StoreConfig struct {
	Path         string
	EphemeralTTL time.Duration
}

// MerchantProfile carries store identity and the manual-transfer payment
// instructions shown to buyers. Loaded from a YAML file when configured.
type MerchantProfile struct {
	StoreName        string `yaml:"store_name"`
	Currency         string `yaml:"currency"`
	TransferAccount  string `yaml:"transfer_account"`
	TransferName     string `yaml:"transfer_name"`
	PlaceholderImage string `yaml:"placeholder_image"`
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups.
// Values in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment (tests).
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load resolves configuration from the environment (dotenv < OS env <
// explicit env map) and the optional merchant profile YAML.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) string {
		return strings.TrimSpace(values[key])
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         defaultString(lookup("STOREFRONT_PORT"), defaultString(lookup("PORT"), defaultPort)),
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		OrderAPI: UpstreamConfig{
			BaseURL: lookup("STOREFRONT_ORDER_API_URL"),
			Timeout: defaultClientTimeout,
		},
		Catalog: UpstreamConfig{
			BaseURL: defaultString(lookup("STOREFRONT_CATALOG_API_URL"), lookup("STOREFRONT_ORDER_API_URL")),
			Timeout: defaultClientTimeout,
		},
		Notifier: UpstreamConfig{
			BaseURL: defaultString(lookup("STOREFRONT_NOTIFIER_URL"), lookup("STOREFRONT_ORDER_API_URL")),
			Timeout: defaultClientTimeout,
		},
		Poller: PollerConfig{
			Interval: defaultPollInterval,
			MaxWait:  defaultPollMaxWait,
		},
		Store: StoreConfig{
			Path:         defaultString(lookup("STOREFRONT_STORE_PATH"), defaultStorePath),
			EphemeralTTL: defaultEphemeralTTL,
		},
		Merchant: MerchantProfile{
			Currency:         defaultCurrency,
			PlaceholderImage: defaultPlaceholderImg,
		},
	}

	if raw := lookup("STOREFRONT_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: STOREFRONT_POLL_INTERVAL must be a positive duration: %q", raw)
		}
		cfg.Poller.Interval = d
	}
	if raw := lookup("STOREFRONT_POLL_MAX_WAIT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: STOREFRONT_POLL_MAX_WAIT must be a positive duration: %q", raw)
		}
		cfg.Poller.MaxWait = d
	}

	if cfg.OrderAPI.BaseURL == "" {
		return Config{}, errors.New("config: STOREFRONT_ORDER_API_URL is required")
	}

	if profilePath := lookup("STOREFRONT_MERCHANT_PROFILE"); profilePath != "" {
		profile, err := loadMerchantProfile(profilePath)
		if err != nil {
			return Config{}, err
		}
		cfg.Merchant = mergeMerchantProfile(cfg.Merchant, profile)
	}

	return cfg, nil
}

func loadMerchantProfile(path string) (MerchantProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return MerchantProfile{}, fmt.Errorf("config: read merchant profile: %w", err)
	}
	var profile MerchantProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return MerchantProfile{}, fmt.Errorf("config: parse merchant profile: %w", err)
	}
	return profile, nil
}

func mergeMerchantProfile(base, override MerchantProfile) MerchantProfile {
	out := base
	if v := strings.TrimSpace(override.StoreName); v != "" {
		out.StoreName = v
	}
	if v := strings.ToUpper(strings.TrimSpace(override.Currency)); v != "" {
		out.Currency = v
	}
	if v := strings.TrimSpace(override.TransferAccount); v != "" {
		out.TransferAccount = v
	}
	if v := strings.TrimSpace(override.TransferName); v != "" {
		out.TransferName = v
	}
	if v := strings.TrimSpace(override.PlaceholderImage); v != "" {
		out.PlaceholderImage = v
	}
	return out
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	for k, v := range dotEnvValues {
		values[k] = v
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			values[key] = parts[1]
		}
	}

	for k, v := range options.envMap {
		values[k] = v
	}

	return values, nil
}

// loadDotEnv reads simple KEY=VALUE pairs; a missing file is not an error.
func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan %s: %w", path, err)
	}
	return values, nil
}

func defaultString(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}
