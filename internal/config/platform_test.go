package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewPlatformConfigHolderFallsBackToDefaults(t *testing.T) {
	holder, err := NewPlatformConfigHolder(zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatformConfig(), holder.Get())
}

func TestStaticHolderPinsConfig(t *testing.T) {
	cfg := DefaultPlatformConfig()
	cfg.MaxDealAmountCents = 42

	holder := NewStaticPlatformConfigHolder(cfg)
	assert.Equal(t, int64(42), holder.Get().MaxDealAmountCents)
}

func TestValidatePlatformConfig(t *testing.T) {
	valid := DefaultPlatformConfig()
	assert.NoError(t, validatePlatformConfig(valid))

	bad := valid
	bad.ProviderTimeoutSeconds = 0
	assert.Error(t, validatePlatformConfig(bad))

	bad = valid
	bad.WebhookToleranceSeconds = -1
	assert.Error(t, validatePlatformConfig(bad))

	bad = valid
	bad.MaxDealAmountCents = 0
	assert.Error(t, validatePlatformConfig(bad))
}
