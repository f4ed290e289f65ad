package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultPartSizeBytes = 8 * 1024 * 1024 // 8MB
	defaultMaxParts      = 500
	minPartSizeBytes     = 5 * 1024 * 1024 // минимальный размер части у S3
)

type Config struct {
	Env      string         `mapstructure:"Env"`
	LogLevel string         `mapstructure:"LogLevel"`
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Upload   UploadConfig   `mapstructure:"Upload"`
	Redis    RedisConfig    `mapstructure:"Redis"`
	Debug    DebugConfig    `mapstructure:"Debug"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"Port"`
	GRPCPort       string        `mapstructure:"GRPCPort"`
	AllowedOrigins []string      `mapstructure:"AllowedOrigins"`
	RequestTimeout time.Duration `mapstructure:"RequestTimeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

// UploadConfig задает параметры многочастной загрузки
type UploadConfig struct {
	PartSizeBytes       int64         `mapstructure:"PartSizeBytes"`
	MaxParts            int           `mapstructure:"MaxParts"`
	SinglePartThreshold int64         `mapstructure:"SinglePartThreshold"`
	SessionTTL          time.Duration `mapstructure:"SessionTTL"`
	PresignTTL          time.Duration `mapstructure:"PresignTTL"`
	StorageTimeout      time.Duration `mapstructure:"StorageTimeout"`
	SweepInterval       time.Duration `mapstructure:"SweepInterval"`
	SweepBatchSize      int           `mapstructure:"SweepBatchSize"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"Addr"`
	Password  string        `mapstructure:"Password"`
	DB        int           `mapstructure:"DB"`
	StatusTTL time.Duration `mapstructure:"StatusTTL"`
}

// DebugConfig управляет выдачей диагностических деталей клиенту
type DebugConfig struct {
	ExposeErrors bool `mapstructure:"ExposeErrors"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	v.SetDefault("Env", "production")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.AllowedOrigins", []string{"*"})
	v.SetDefault("Server.RequestTimeout", 2*time.Minute)
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Upload.PartSizeBytes", defaultPartSizeBytes)
	v.SetDefault("Upload.MaxParts", defaultMaxParts)
	v.SetDefault("Upload.SessionTTL", 24*time.Hour)
	v.SetDefault("Upload.PresignTTL", time.Hour)
	v.SetDefault("Upload.StorageTimeout", 30*time.Second)
	v.SetDefault("Upload.SweepInterval", time.Hour)
	v.SetDefault("Upload.SweepBatchSize", 100)
	v.SetDefault("Redis.StatusTTL", 30*time.Second)

	// Привязываем переменные окружения
	v.BindEnv("Env", "APP_ENV")
	v.BindEnv("LogLevel", "LOG_LEVEL")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.GRPCPort", "GRPC_PORT")
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Upload.PartSizeBytes", "UPLOAD_PART_SIZE_BYTES")
	v.BindEnv("Upload.MaxParts", "UPLOAD_MAX_PARTS")
	v.BindEnv("Upload.SinglePartThreshold", "UPLOAD_SINGLE_PART_THRESHOLD")
	v.BindEnv("Upload.SessionTTL", "UPLOAD_SESSION_TTL")
	v.BindEnv("Upload.PresignTTL", "UPLOAD_PRESIGN_TTL")
	v.BindEnv("Upload.SweepInterval", "UPLOAD_SWEEP_INTERVAL")
	v.BindEnv("Redis.Addr", "REDIS_ADDR")
	v.BindEnv("Redis.Password", "REDIS_PASSWORD")
	v.BindEnv("Redis.DB", "REDIS_DB")
	v.BindEnv("Debug.ExposeErrors", "DEBUG_EXPOSE_ERRORS")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет заполненность обязательных полей и согласованность лимитов
func (c *Config) Validate() error {
	if c.Database.Host == "" ||
		c.Database.Port == "" ||
		c.Database.User == "" ||
		c.Database.Password == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}

	return c.Upload.Validate()
}

func (u *UploadConfig) Validate() error {
	if u.PartSizeBytes < minPartSizeBytes {
		return fmt.Errorf("upload part size must be at least %d bytes, got %d", minPartSizeBytes, u.PartSizeBytes)
	}
	if u.MaxParts < 1 || u.MaxParts > 10000 {
		return fmt.Errorf("upload max parts must be within [1, 10000], got %d", u.MaxParts)
	}
	if u.SinglePartThreshold <= 0 {
		u.SinglePartThreshold = u.PartSizeBytes
	}
	if u.SinglePartThreshold > u.PartSizeBytes {
		return fmt.Errorf("single part threshold %d exceeds part size %d", u.SinglePartThreshold, u.PartSizeBytes)
	}
	if u.SessionTTL <= 0 {
		return fmt.Errorf("upload session ttl must be positive")
	}
	if u.PresignTTL <= 0 || u.PresignTTL > 7*24*time.Hour {
		return fmt.Errorf("presign ttl must be within (0, 168h], got %s", u.PresignTTL)
	}
	return nil
}

// MaxFileSize возвращает верхнюю границу размера файла
func (u UploadConfig) MaxFileSize() int64 {
	return u.PartSizeBytes * int64(u.MaxParts)
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL возвращает адрес базы в формате, который ожидает golang-migrate
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}
