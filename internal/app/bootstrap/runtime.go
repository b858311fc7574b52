package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/physio-voice-agent/internal/config"
	"github.com/wolfman30/physio-voice-agent/internal/notify"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildNotificationBus picks the UI notification fan-out. A "redis" bus needs
// a reachable server; otherwise the in-process bus is used. The returned
// client is nil unless Redis is in use and must be closed by the caller.
func BuildNotificationBus(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.Bus, *redis.Client) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || cfg.NotificationBus != "redis" {
		return notify.NewMemoryBus(logger), nil
	}
	client := BuildRedisClient(ctx, cfg, logger, true)
	if client == nil {
		logger.Warn("falling back to in-memory notification bus", "redis_addr", cfg.RedisAddr)
		return notify.NewMemoryBus(logger), nil
	}
	logger.Info("notification bus: redis", "redis_addr", cfg.RedisAddr)
	return notify.NewRedisBus(client, logger), client
}

// BuildEmailSender returns the booking confirmation sender for the configured
// provider. Missing credentials fall back to logging the message.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewLogEmailSender(logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil {
			return sender
		}
		logger.Warn("sendgrid api key missing, logging confirmation emails instead")
	case "ses":
		sender := notify.NewSESSender(ses, notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil {
			return sender
		}
		logger.Warn("ses client unavailable, logging confirmation emails instead")
	}
	return notify.NewLogEmailSender(logger)
}
