package config

import (
	"os"
	"strconv"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// PaymentConfig points at the external payment processor.
type PaymentConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// BlobConfig points at the object store holding photos and documents.
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

// AdminConfig holds the bcrypt hash of the operator token guarding the
// outbox replay endpoints.
type AdminConfig struct {
	TokenHash string `yaml:"token_hash"`
}

func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

func OverridePaymentFromEnv(cfg *PaymentConfig) {
	if url := os.Getenv("PAYMENT_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if key := os.Getenv("PAYMENT_API_KEY"); key != "" {
		cfg.APIKey = key
	}
}

func OverrideBlobFromEnv(cfg *BlobConfig) {
	if endpoint := os.Getenv("BLOB_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if key := os.Getenv("BLOB_ACCESS_KEY"); key != "" {
		cfg.AccessKey = key
	}
	if secret := os.Getenv("BLOB_SECRET_KEY"); secret != "" {
		cfg.SecretKey = secret
	}
	if bucket := os.Getenv("BLOB_BUCKET"); bucket != "" {
		cfg.Bucket = bucket
	}
}

func OverrideAdminFromEnv(cfg *AdminConfig) {
	if hash := os.Getenv("ADMIN_TOKEN_HASH"); hash != "" {
		cfg.TokenHash = hash
	}
}
