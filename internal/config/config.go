package config

import (
	"log"

	"gopkg.in/yaml.v3"

	"milestone-service/pkg/config"
)

type Config struct {
	Server  config.ServerConfig  `yaml:"server"`
	DB      config.DBConfig      `yaml:"db"`
	MQ      config.MQConfig      `yaml:"mq"`
	Redis   config.RedisConfig   `yaml:"redis"`
	JWT     config.JWTConfig     `yaml:"jwt"`
	Payment config.PaymentConfig `yaml:"payment"`
	Blob    config.BlobConfig    `yaml:"blob"`
	Admin   config.AdminConfig   `yaml:"admin"`

	Dedup struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"dedup"`
}

func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	// env vars win over every file layer
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverridePaymentFromEnv(&cfg.Payment)
	config.OverrideBlobFromEnv(&cfg.Blob)
	config.OverrideAdminFromEnv(&cfg.Admin)

	if cfg.Dedup.TTLSeconds <= 0 {
		cfg.Dedup.TTLSeconds = 86400
	}
	return &cfg
}
