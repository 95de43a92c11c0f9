// Package config loads service settings from config.yaml, .env and the
// process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/plantid/internal/model"
)

// DefaultPath is read when neither --config nor PLANTID_CONFIG is set.
const DefaultPath = "config.yaml"

type Config struct {
	ModelURL       string        `yaml:"model_url"`
	ONNXLibrary    string        `yaml:"onnx_library"`
	ImageSize      int           `yaml:"image_size"`
	Labels         []string      `yaml:"labels"`
	Port           string        `yaml:"port"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	RemoteURL      string        `yaml:"remote_url"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout"`
}

func Default() Config {
	return Config{
		ModelURL:       "models/flowers",
		ImageSize:      model.DefaultImageSize,
		Labels:         slices.Clone(model.DefaultLabels),
		Port:           "8080",
		MaxUploadBytes: 10 << 20,
		LogLevel:       "info",
		LogFormat:      "auto",
		RemoteURL:      "http://127.0.0.1:5000/predict",
		RemoteTimeout:  30 * time.Second,
	}
}

// Load builds the configuration. An explicit path must exist; the default
// path is optional.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
		if envPath := os.Getenv("PLANTID_CONFIG"); envPath != "" {
			path, explicit = envPath, true
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.ModelURL == "" {
		errs = append(errs, errors.New("model_url is required"))
	}
	if c.ImageSize <= 0 {
		errs = append(errs, fmt.Errorf("image_size must be positive, got %d", c.ImageSize))
	}
	if len(c.Labels) == 0 {
		errs = append(errs, errors.New("labels must not be empty"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.RemoteTimeout < 0 {
		errs = append(errs, fmt.Errorf("remote_timeout must not be negative, got %s", c.RemoteTimeout))
	}
	return errors.Join(errs...)
}

func applyEnv(c *Config) error {
	envOverride(&c.ModelURL, "PLANTID_MODEL_URL")
	envOverride(&c.ONNXLibrary, "ONNXRUNTIME_SHARED_LIBRARY")
	envOverride(&c.Port, "PORT")
	envOverride(&c.LogLevel, "PLANTID_LOG_LEVEL")
	envOverride(&c.LogFormat, "PLANTID_LOG_FORMAT")
	envOverride(&c.RemoteURL, "PLANTID_REMOTE_URL")

	if v := os.Getenv("PLANTID_LABELS"); v != "" {
		var labels []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		c.Labels = labels
	}
	if v := os.Getenv("PLANTID_IMAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PLANTID_IMAGE_SIZE: %w", err)
		}
		c.ImageSize = n
	}
	if v := os.Getenv("PLANTID_REMOTE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PLANTID_REMOTE_TIMEOUT: %w", err)
		}
		c.RemoteTimeout = d
	}
	return nil
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
