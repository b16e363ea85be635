package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlatformConfig holds operational tunables that may change without a redeploy.
type PlatformConfig struct {
	ProviderTimeoutSeconds  int   `mapstructure:"providerTimeoutSeconds"`
	WebhookToleranceSeconds int   `mapstructure:"webhookToleranceSeconds"`
	WebhookRateLimitPerMin  int   `mapstructure:"webhookRateLimitPerMin"`
	WebhookRateLimitBurst   int   `mapstructure:"webhookRateLimitBurst"`
	DefaultRevisionRounds   int   `mapstructure:"defaultRevisionRounds"`
	MaxDealAmountCents      int64 `mapstructure:"maxDealAmountCents"`
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		ProviderTimeoutSeconds:  15,
		WebhookToleranceSeconds: 300,
		WebhookRateLimitPerMin:  600,
		WebhookRateLimitBurst:   100,
		DefaultRevisionRounds:   2,
		MaxDealAmountCents:      100_000_000,
	}
}

func (c PlatformConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func (c PlatformConfig) WebhookTolerance() time.Duration {
	return time.Duration(c.WebhookToleranceSeconds) * time.Second
}

// PlatformConfigHolder exposes the current PlatformConfig and hot-reloads it
// when the underlying file changes.
type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformConfig
}

func NewPlatformConfigHolder(log *zap.Logger) (*PlatformConfigHolder, error) {
	log = log.Named("platform.config")
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/mngr/config")
	v.AddConfigPath("/etc/mngr")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MNGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlatformConfig()
	v.SetDefault("platform.providerTimeoutSeconds", defaults.ProviderTimeoutSeconds)
	v.SetDefault("platform.webhookToleranceSeconds", defaults.WebhookToleranceSeconds)
	v.SetDefault("platform.webhookRateLimitPerMin", defaults.WebhookRateLimitPerMin)
	v.SetDefault("platform.webhookRateLimitBurst", defaults.WebhookRateLimitBurst)
	v.SetDefault("platform.defaultRevisionRounds", defaults.DefaultRevisionRounds)
	v.SetDefault("platform.maxDealAmountCents", defaults.MaxDealAmountCents)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PlatformConfig
	if err := v.UnmarshalKey("platform", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlatformConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlatformConfig
		if err := v.UnmarshalKey("platform", &updated); err != nil {
			log.Error("reload failed", zap.Error(err))
			return
		}
		if err := validatePlatformConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticPlatformConfigHolder wraps a fixed config, with no file watching.
func NewStaticPlatformConfigHolder(cfg PlatformConfig) *PlatformConfigHolder {
	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlatformConfigHolder) Get() PlatformConfig {
	return h.current.Load().(PlatformConfig)
}

func validatePlatformConfig(cfg PlatformConfig) error {
	if cfg.ProviderTimeoutSeconds <= 0 {
		return errors.New("platform.providerTimeoutSeconds must be positive")
	}
	if cfg.WebhookToleranceSeconds <= 0 {
		return errors.New("platform.webhookToleranceSeconds must be positive")
	}
	if cfg.MaxDealAmountCents <= 0 {
		return errors.New("platform.maxDealAmountCents must be positive")
	}
	return nil
}
