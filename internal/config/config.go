// Package config assembles the effective TenderWatch configuration from the
// tier preset, an optional YAML file and TENDERWATCH_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/tenderwatch/internal/domain"
)

const (
	// EnvPrefix prefixes every environment override, e.g. TENDERWATCH_SERVER_PORT.
	EnvPrefix = "TENDERWATCH"

	// FileName is the config file searched for when no path is given.
	FileName = "tenderwatch"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Load builds the configuration. Precedence, lowest first: tier preset,
// config file, environment. An explicit path must exist; otherwise
// tenderwatch.yaml is searched in . and $HOME/.tenderwatch.
func Load(v *viper.Viper, path string) (*domain.Config, error) {
	file, tier, err := locate(path)
	if err != nil {
		return nil, err
	}

	preset, err := Preset(tier)
	if err != nil {
		return nil, err
	}

	raw, err := yaml.Marshal(preset)
	if err != nil {
		return nil, fmt.Errorf("encode %s preset: %w", tier, err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load %s preset: %w", tier, err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	bindEnv(v)

	var cfg domain.Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Tier = preset.Tier
	applyEnvShortcuts(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Preset returns the built-in configuration of a tier.
func Preset(tier domain.DeploymentTier) (*domain.Config, error) {
	switch tier {
	case "", domain.TierCommunity:
		return domain.DefaultConfig(), nil
	case domain.TierPro:
		return domain.ProConfig(), nil
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidConfig, tier)
	}
}

// locate finds the config file and the tier it, or the environment, selects.
func locate(path string) (file string, tier domain.DeploymentTier, err error) {
	probe := viper.New()
	bindEnv(probe)

	if path != "" {
		probe.SetConfigFile(path)
	} else {
		probe.SetConfigName(FileName)
		probe.SetConfigType("yaml")
		probe.AddConfigPath(".")
		if home, herr := os.UserHomeDir(); herr == nil {
			probe.AddConfigPath(filepath.Join(home, ".tenderwatch"))
		}
	}

	if err := probe.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return "", "", fmt.Errorf("read config: %w", err)
		}
	}

	return probe.ConfigFileUsed(), domain.DeploymentTier(strings.ToLower(probe.GetString("tier"))), nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// applyEnvShortcuts honours the conventional variables that do not follow
// the TENDERWATCH_SECTION_KEY scheme.
func applyEnvShortcuts(cfg *domain.Config) {
	if os.Getenv(EnvPrefix+"_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Opinion.APIKey == "" {
		cfg.Opinion.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate rejects settings the server cannot start with.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, cfg.Server.Port)
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return err
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, cfg.Logging.Format)
	}

	c := cfg.Policy.Classification
	if !(0 < c.MediumScore && c.MediumScore < c.HighScore && c.HighScore < c.CriticalScore && c.CriticalScore <= 100) {
		return fmt.Errorf("%w: policy.classification thresholds must rise within (0,100]", ErrInvalidConfig)
	}
	b := cfg.Policy.Blend
	if b.CoreWeight < 0 || b.OpinionWeight < 0 || b.CoreWeight+b.OpinionWeight == 0 {
		return fmt.Errorf("%w: policy.blend weights must be non-negative and not both zero", ErrInvalidConfig)
	}
	return nil
}
