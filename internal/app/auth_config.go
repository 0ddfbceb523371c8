package app

import (
	"strings"

	"github.com/cooktodor/notifier/internal/auth"
	"github.com/cooktodor/notifier/internal/database"
	"github.com/cooktodor/notifier/internal/events"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		Audience:       c.JWT.Audience,
		AccessTokenTTL: ttl,
		Leeway:         c.JWT.Leeway,
	}
}

// DatabaseConnConfig maps the configured driver section onto database.Config.
func (c DatabaseConfig) DatabaseConnConfig() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{
		Driver:          driver,
		Path:            c.Path,
		DSN:             c.DSN,
		MaxOpenConns:    c.Pool.MaxOpenConns,
		MaxIdleConns:    c.Pool.MaxIdleConns,
		ConnMaxLifetime: c.Pool.ConnMaxLifetime,
	}

	var section DBAuthConfig
	switch driver {
	case "postgres", "postgresql":
		section = c.Postgres
	case "mysql":
		section = c.MySQL
	default:
		return cfg
	}

	cfg.Host = section.Host
	cfg.Port = section.Port
	cfg.Name = section.Database
	cfg.User = section.Username
	cfg.Password = section.Password
	cfg.Options = section.Options
	return cfg
}

// ConsumerConfig converts KafkaConfig into the consumer group settings.
func (c KafkaConfig) ConsumerConfig() events.KafkaConfig {
	brokers := make([]string, 0, len(c.Brokers))
	for _, broker := range c.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return events.KafkaConfig{
		Brokers:  brokers,
		Topic:    strings.TrimSpace(c.Topic),
		Group:    strings.TrimSpace(c.Group),
		ClientID: strings.TrimSpace(c.ClientID),
	}
}
