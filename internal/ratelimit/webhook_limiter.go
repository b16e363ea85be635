package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/mngrhq/mngr/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyWebhook = "webhook:%s"

type WebhookLimiterParams struct {
	fx.In

	Cfg    config.Config
	Holder *config.PlatformConfigHolder
	Log    *zap.Logger
}

// WebhookLimiter throttles inbound webhook deliveries per provider. With no
// redis configured it is disabled and allows everything.
type WebhookLimiter struct {
	enabled bool
	bucket  *TokenBucket
	holder  *config.PlatformConfigHolder
	log     *zap.Logger
}

func NewWebhookLimiter(p WebhookLimiterParams) *WebhookLimiter {
	addr := strings.TrimSpace(p.Cfg.RedisAddr)
	if addr == "" {
		return &WebhookLimiter{enabled: false}
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	return &WebhookLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		holder:  p.Holder,
		log:     p.Log.Named("ratelimit.webhook"),
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow fails open: if redis is down, deliveries still flow and the outage
// is logged.
func (l *WebhookLimiter) Allow(ctx context.Context, provider string) bool {
	if !l.Enabled() {
		return true
	}

	cfg := l.holder.Get()
	rate := float64(cfg.WebhookRateLimitPerMin) / 60.0
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWebhook, provider), rate, cfg.WebhookRateLimitBurst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing delivery", zap.Error(err))
		return true
	}
	return res.Allowed
}
