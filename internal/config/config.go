// Package config resolves runtime settings once at startup from defaults,
// an optional wardrobe.yaml, and WARDROBE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "wardrobe"
	configFileType = "yaml"
	envPrefix      = "WARDROBE"

	KeyAnalyzerURL       = "analyzer_url"
	KeyUploadTimeout     = "upload_timeout"
	KeyCameraPermission  = "permissions.camera"
	KeyLibraryPermission = "permissions.library"
	KeyProvider          = "stylist.provider"
	KeyModel             = "stylist.model"
	KeyOllamaURL         = "stylist.ollama_url"
	KeyPort              = "port"
)

// Config holds every setting the commands read
type Config struct {
	AnalyzerURL   string
	UploadTimeout time.Duration
	Permissions   Permissions
	Stylist       Stylist
	Port          string
}

// Permissions is the grant table used in place of OS permission prompts
type Permissions struct {
	Camera  bool
	Library bool
}

type Stylist struct {
	Provider  string
	Model     string
	OllamaURL string
}

// Load reads configuration. An empty path searches the working directory
// for wardrobe.yaml; a missing file is not an error unless path was given.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyAnalyzerURL, "http://localhost:3000")
	v.SetDefault(KeyUploadTimeout, "60s")
	v.SetDefault(KeyCameraPermission, true)
	v.SetDefault(KeyLibraryPermission, true)
	v.SetDefault(KeyProvider, "ollama")
	v.SetDefault(KeyModel, "")
	v.SetDefault(KeyOllamaURL, "")
	v.SetDefault(KeyPort, "3000")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		AnalyzerURL:   strings.TrimRight(v.GetString(KeyAnalyzerURL), "/"),
		UploadTimeout: v.GetDuration(KeyUploadTimeout),
		Permissions: Permissions{
			Camera:  v.GetBool(KeyCameraPermission),
			Library: v.GetBool(KeyLibraryPermission),
		},
		Stylist: Stylist{
			Provider:  v.GetString(KeyProvider),
			Model:     v.GetString(KeyModel),
			OllamaURL: v.GetString(KeyOllamaURL),
		},
		Port: v.GetString(KeyPort),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.AnalyzerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid analyzer_url %q: must be an http(s) URL", c.AnalyzerURL)
	}
	if c.UploadTimeout < 0 {
		return fmt.Errorf("upload_timeout must not be negative")
	}
	return nil
}
