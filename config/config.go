package config

import (
	"time"

	"sessionguard/utils"
)

type ServerConfig struct {
	Port           string
	MaxRequestSize int64
}

type MongoConfig struct {
	URI             string
	Database        string
	UsersCollection string
	AuditCollection string
	MaxPoolSize     uint64
}

type RedisConfig struct {
	URL string
}

// TokenConfig carries the signing material for the token codec. Access and
// refresh tokens use distinct secrets so a leak of one cannot mint the other.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type SessionConfig struct {
	MaxSessions     int
	TTL             time.Duration
	ExtendedTTL     time.Duration
	FingerprintSalt string
	StoreTimeout    time.Duration
}

type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Tokens  TokenConfig
	Session SessionConfig
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:           utils.GetEnvAsString("PORT", "8080"),
			MaxRequestSize: int64(utils.GetEnvAsInt("MAX_REQUEST_SIZE", 1<<20)),
		},
		Mongo: MongoConfig{
			URI:             utils.GetEnvAsString("MONGO_URI", "mongodb://localhost:27017"),
			Database:        utils.GetEnvAsString("MONGO_DB", "sessionguard"),
			UsersCollection: utils.GetEnvAsString("USERS_COLLECTION", "users"),
			AuditCollection: utils.GetEnvAsString("AUDIT_COLLECTION", "audit_logs"),
			MaxPoolSize:     uint64(utils.GetEnvAsInt("MONGO_MAX_POOL_SIZE", 100)),
		},
		Redis: RedisConfig{
			URL: utils.GetEnvAsString("REDIS_URL", "redis://localhost:6379/0"),
		},
		Tokens: TokenConfig{
			AccessSecret:  utils.GetEnvAsString("JWT_SECRET_KEY", ""),
			RefreshSecret: utils.GetEnvAsString("JWT_REFRESH_SECRET_KEY", ""),
			AccessTTL:     utils.GetEnvAsDuration("JWT_EXPIRATION_TIME", time.Hour),
			RefreshTTL:    utils.GetEnvAsDuration("REFRESH_TOKEN_EXPIRATION_TIME", 7*24*time.Hour),
			Issuer:        utils.GetEnvAsString("JWT_ISSUER", "sessionguard"),
		},
		Session: SessionConfig{
			MaxSessions:     utils.GetEnvAsInt("MAX_ACTIVE_SESSIONS", 5),
			TTL:             utils.GetEnvAsDuration("SESSION_DURATION", 24*time.Hour),
			ExtendedTTL:     utils.GetEnvAsDuration("EXTENDED_SESSION_DURATION", 7*24*time.Hour),
			FingerprintSalt: utils.GetEnvAsString("FINGERPRINT_SALT", ""),
			StoreTimeout:    utils.GetEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		},
	}
}
