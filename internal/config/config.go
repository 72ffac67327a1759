package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	App               App               `mapstructure:",squash"`
	Server            Server            `mapstructure:",squash"`
	Database          Database          `mapstructure:",squash"`
	Facebook          Facebook          `mapstructure:",squash"`
	DeliverySync      DeliverySync      `mapstructure:",squash"`
	DestinationHealth DestinationHealth `mapstructure:",squash"`
}

type Server struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type Database struct {
	DSN      string `mapstructure:"-"`
	Driver   string `mapstructure:"database_driver"`
	Password string `mapstructure:"database_password"`
	URL      string `mapstructure:"database_url"`
	User     string `mapstructure:"database_user"`
}

type Facebook struct {
	BaseURL     string `mapstructure:"facebook_base_url"`
	URL         string `mapstructure:"-"`
	Version     string `mapstructure:"facebook_version"`
	AccessToken string `mapstructure:"facebook_access_token"`
	AdAccountID string `mapstructure:"facebook_ad_account_id"`
}

type App struct {
	LogLevel string `mapstructure:"log_level"`
}

// DeliverySync configures the recurring-delivery scheduler
type DeliverySync struct {
	CronSchedule        string `mapstructure:"delivery_sync_cron"`
	RequestDelaySeconds int    `mapstructure:"delivery_sync_request_delay_seconds"`
	MaxConcurrentJobs   int    `mapstructure:"delivery_sync_max_concurrent_jobs"`
	Enabled             bool   `mapstructure:"delivery_sync_enabled"`
}

// DestinationHealth configures the connection-health scheduler
type DestinationHealth struct {
	CronSchedule string `mapstructure:"destination_health_cron"`
	Enabled      bool   `mapstructure:"destination_health_enabled"`
}

func SetDefaults() {
	viper.SetDefault("HOST", "localhost")
	viper.SetDefault("PORT", 8000)

	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("DATABASE_URL", "localhost:5432/audience")
	viper.SetDefault("DATABASE_USER", "postgres")
	viper.SetDefault("DATABASE_PASSWORD", "root")

	viper.SetDefault("FACEBOOK_BASE_URL", "https://graph.facebook.com")
	viper.SetDefault("FACEBOOK_VERSION", "v22.0")
	viper.SetDefault("FACEBOOK_ACCESS_TOKEN", "your_access_token") // ONLY LOCAL
	viper.SetDefault("FACEBOOK_AD_ACCOUNT_ID", "")

	// Scheduler cadence: 15 minutes is the documented minimum granularity
	viper.SetDefault("DELIVERY_SYNC_CRON", "*/15 * * * *")
	viper.SetDefault("DELIVERY_SYNC_REQUEST_DELAY_SECONDS", 2)
	viper.SetDefault("DELIVERY_SYNC_MAX_CONCURRENT_JOBS", 3)
	viper.SetDefault("DELIVERY_SYNC_ENABLED", false)

	viper.SetDefault("DESTINATION_HEALTH_CRON", "*/15 * * * *")
	viper.SetDefault("DESTINATION_HEALTH_ENABLED", false)

	viper.SetDefault("LOG_LEVEL", "debug")
}

func NewConfig() (*Config, error) {
	// Load the .env file first with godotenv
	loadEnvFile() // ONLY LOCAL

	config := &Config{}

	SetDefaults()

	viper.SetConfigType("env")
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logrus.Info("using variables loaded by godotenv (viper could not read .env):", err)
	} else {
		logrus.Info(".env file read by viper")
	}

	err := viper.Unmarshal(&config, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, err
	}

	config.Facebook.URL = fmt.Sprintf("%s/%s", config.Facebook.BaseURL, config.Facebook.Version)

	config.Database.DSN = fmt.Sprintf(
		"%s://%s:%s@%s",
		config.Database.Driver,
		config.Database.User,
		config.Database.Password,
		config.Database.URL,
	)

	return config, nil
}

// loadEnvFile tries the usual locations for a local .env file
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		logrus.Warn("could not determine the current directory:", err)
		return
	}

	locations := []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(filepath.Dir(cwd), ".env"),
		filepath.Join(cwd, "../.env"),
		filepath.Join(cwd, "../../.env"),
	}

	for _, location := range locations {
		if err := godotenv.Load(location); err == nil {
			logrus.Info(".env file loaded from:", location)
			return
		}
	}

	logrus.Warn("no .env file found in any known location")
}
