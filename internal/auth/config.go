package auth

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	JWTSecret string        `mapstructure:"JWTSecret"`
	Issuer    string        `mapstructure:"Issuer"`
	TokenTTL  time.Duration `mapstructure:"TokenTTL"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("Issuer", "tenderdocs")
	v.SetDefault("TokenTTL", 12*time.Hour)

	v.BindEnv("JWTSecret", "AUTH_JWT_SECRET")
	v.BindEnv("Issuer", "AUTH_ISSUER")
	v.BindEnv("TokenTTL", "AUTH_TOKEN_TTL")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: auth config %s not loaded, using environment: %v\n", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWTSecret must be at least 32 bytes")
	}

	return &cfg, nil
}
