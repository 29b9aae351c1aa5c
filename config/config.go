package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPath = "./pricefeed.json"
	envPrefix   = "PRICEFEED"
)

const (
	FetchHTTP    = "http"
	FetchBrowser = "browser"
	FetchDir     = "dir"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	DatabasePath string        `json:"databasePath" mapstructure:"database-path"`
	ListenAddr   string        `json:"listenAddr" mapstructure:"listen-addr"`
	LogLevel     string        `json:"logLevel" mapstructure:"log-level"`
	Workers      int           `json:"workers" mapstructure:"workers"`
	FetchTimeout time.Duration `json:"fetchTimeout" mapstructure:"fetch-timeout"`
	FetchMode    string        `json:"fetchMode" mapstructure:"fetch-mode"`
	FetchBaseURL string        `json:"fetchBaseUrl" mapstructure:"fetch-base-url"`
	DownloadDir  string        `json:"downloadDir" mapstructure:"download-dir"`
	CatalogPath  string        `json:"catalogPath" mapstructure:"catalog-path"`
	TopProducts  int           `json:"topProducts" mapstructure:"top-products"`
	Headless     bool          `json:"headless" mapstructure:"headless"`
}

// field: default value
var defaults = map[string]any{
	"database-path":  "./pricefeed.db",
	"listen-addr":    ":8080",
	"log-level":      "INFO",
	"workers":        4,
	"fetch-timeout":  60 * time.Second,
	"fetch-mode":     FetchDir,
	"fetch-base-url": "",
	"download-dir":   "./downloads",
	"catalog-path":   "",
	"top-products":   50,
	"headless":       true,
}

var (
	cfg Config
	mu  sync.RWMutex
)

// Load reads the JSON config at path, applies PRICEFEED_* environment
// overrides (PRICEFEED_FETCH_MODE for fetch-mode) and fills in defaults. A
// missing file is not an error.
func Load(path string) (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("could not read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return Config{}, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return Config{}, err
	}
	cfg = loaded
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.FetchMode {
	case FetchHTTP, FetchBrowser:
		if c.FetchBaseURL == "" {
			return fmt.Errorf("%w: fetch-mode %s needs fetch-base-url", ErrInvalidConfig, c.FetchMode)
		}
	case FetchDir:
		if c.DownloadDir == "" {
			return fmt.Errorf("%w: fetch-mode dir needs download-dir", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown fetch-mode %q", ErrInvalidConfig, c.FetchMode)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch-timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}
