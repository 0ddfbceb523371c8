package app

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/cooktodor/notifier/internal/realtime"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults fills values that must exist before the server starts
// and rejects combinations the realtime layer cannot honour. The returned map
// names the keys whose values were generated so callers can log them without
// exposing the values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	generated := make(map[string]bool)
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := generateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	normalizeRealtime(&cfg.Realtime)

	var errs error
	if cfg.Realtime.HeartbeatInterval >= cfg.Realtime.MaxLifetime {
		errs = multierr.Append(errs, fmt.Errorf("realtime.heartbeat_interval (%s) must be shorter than realtime.max_lifetime (%s)",
			cfg.Realtime.HeartbeatInterval, cfg.Realtime.MaxLifetime))
	}
	if limit := cfg.Realtime.ConnectLimit; limit.Requests > 0 && limit.Window <= 0 {
		errs = multierr.Append(errs, errors.New("realtime.connect_limit.window must be positive when requests is set"))
	}
	if cfg.Events.Kafka.Enabled && len(cfg.Events.Kafka.ConsumerConfig().Brokers) == 0 {
		errs = multierr.Append(errs, errors.New("events.kafka.brokers must not be empty when kafka is enabled"))
	}
	if errs != nil {
		return nil, errs
	}

	return generated, nil
}

// normalizeRealtime replaces unset durations with the registry defaults.
func normalizeRealtime(cfg *RealtimeConfig) {
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = realtime.DefaultMaxLifetime
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = realtime.DefaultHeartbeatInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = realtime.DefaultWriteTimeout
	}
}

func generateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
