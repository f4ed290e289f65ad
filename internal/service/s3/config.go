package s3

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Provider        string `mapstructure:"Provider"`
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Bucket          string `mapstructure:"Bucket"`
	UseSSL          bool   `mapstructure:"UseSSL"`
	UsePathStyle    bool   `mapstructure:"UsePathStyle"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("Provider", ProviderS3)
	v.SetDefault("Region", "us-east-1")
	v.SetDefault("UseSSL", true)

	v.BindEnv("Provider", "STORAGE_PROVIDER")
	v.BindEnv("Endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("Region", "STORAGE_REGION")
	v.BindEnv("AccessKeyID", "STORAGE_ACCESS_KEY_ID")
	v.BindEnv("SecretAccessKey", "STORAGE_SECRET_ACCESS_KEY")
	v.BindEnv("Bucket", "STORAGE_BUCKET")
	v.BindEnv("UseSSL", "STORAGE_USE_SSL")
	v.BindEnv("UsePathStyle", "STORAGE_USE_PATH_STYLE")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: storage config %s not loaded, using environment: %v\n", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case ProviderS3:
	case ProviderMinio:
		if c.Endpoint == "" {
			return fmt.Errorf("Endpoint is required for provider %s", ProviderMinio)
		}
	default:
		return fmt.Errorf("unsupported storage provider %q", c.Provider)
	}
	if c.AccessKeyID == "" {
		return fmt.Errorf("AccessKeyID is required")
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("SecretAccessKey is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("Bucket is required")
	}
	return nil
}
