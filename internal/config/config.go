// Package config загружает конфигурацию сервиса из файла config.yaml
// и переменных окружения с префиксом PPMS_
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ppms-analytics/internal/analytics"
)

// Config содержит конфигурацию сервиса
type Config struct {
	ServerAddr      string        `mapstructure:"server_addr"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisRequired   bool          `mapstructure:"redis_required"`
	WorkerCount     int           `mapstructure:"worker_count"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`
	TrendTimezone   string        `mapstructure:"trend_timezone"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`

	Anomaly     AnomalyConfig     `mapstructure:"anomaly"`
	Reliability ReliabilityConfig `mapstructure:"reliability"`
	Forecast    ForecastConfig    `mapstructure:"forecast"`
}

// AnomalyConfig значения по умолчанию для детектора аномалий
type AnomalyConfig struct {
	HoursBack  int     `mapstructure:"hours_back"`
	ZThreshold float64 `mapstructure:"z_threshold"`
	Limit      int     `mapstructure:"limit"`
}

// ReliabilityConfig значения по умолчанию для анализа надежности
type ReliabilityConfig struct {
	WindowDays int `mapstructure:"window_days"`
	FutureDays int `mapstructure:"future_days"`
	TrendWeeks int `mapstructure:"trend_weeks"`
}

// ForecastConfig значения по умолчанию для прогноза
type ForecastConfig struct {
	Days         int     `mapstructure:"days"`
	Alpha        float64 `mapstructure:"alpha"`
	ServiceLevel float64 `mapstructure:"service_level"`
	LeadDays     int     `mapstructure:"lead_days"`
	ReviewDays   int     `mapstructure:"review_days"`
	ContinuousZ  bool    `mapstructure:"continuous_z"`
}

// SetDefaults регистрирует значения по умолчанию
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_required", false)
	v.SetDefault("worker_count", runtime.NumCPU())
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("read_timeout", 15*time.Second)
	v.SetDefault("write_timeout", 15*time.Second)
	v.SetDefault("idle_timeout", 60*time.Second)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("snapshot_ttl", 24*time.Hour)
	v.SetDefault("trend_timezone", "UTC")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("anomaly.hours_back", analytics.DefaultHoursBack)
	v.SetDefault("anomaly.z_threshold", analytics.DefaultZThreshold)
	v.SetDefault("anomaly.limit", analytics.DefaultLimit)

	v.SetDefault("reliability.window_days", analytics.DefaultWindowDays)
	v.SetDefault("reliability.future_days", analytics.DefaultFutureDays)
	v.SetDefault("reliability.trend_weeks", analytics.DefaultTrendWeeks)

	v.SetDefault("forecast.days", analytics.DefaultForecastDays)
	v.SetDefault("forecast.alpha", analytics.DefaultAlpha)
	v.SetDefault("forecast.service_level", analytics.DefaultServiceLevel)
	v.SetDefault("forecast.lead_days", analytics.DefaultLeadDays)
	v.SetDefault("forecast.review_days", analytics.DefaultReviewDays)
	v.SetDefault("forecast.continuous_z", false)
}

// Load читает конфигурацию. Если configFile пуст, файл config.yaml ищется
// в текущем каталоге и /etc/ppms/; отсутствие файла не ошибка.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ppms/")
	}

	v.SetEnvPrefix("PPMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &cfg, nil
}

// AnomalyOptions параметры детектора по умолчанию
func (c *Config) AnomalyOptions() analytics.AnomalyOptions {
	return analytics.AnomalyOptions{
		HoursBack:  c.Anomaly.HoursBack,
		ZThreshold: c.Anomaly.ZThreshold,
		Limit:      c.Anomaly.Limit,
	}.Normalize()
}

// ReliabilityOptions параметры анализа надежности по умолчанию
func (c *Config) ReliabilityOptions() analytics.ReliabilityOptions {
	return analytics.ReliabilityOptions{
		WindowDays: c.Reliability.WindowDays,
		FutureDays: c.Reliability.FutureDays,
	}.Normalize()
}

// ForecastOptions параметры прогноза по умолчанию
func (c *Config) ForecastOptions() analytics.ForecastOptions {
	return analytics.ForecastOptions{
		Days:            c.Forecast.Days,
		Alpha:           c.Forecast.Alpha,
		ServiceLevel:    c.Forecast.ServiceLevel,
		DefaultLeadDays: c.Forecast.LeadDays,
		ReviewDays:      c.Forecast.ReviewDays,
		ContinuousZ:     c.Forecast.ContinuousZ,
	}.Normalize()
}

// TrendLocation часовой пояс для понедельного тренда
func (c *Config) TrendLocation() (*time.Location, error) {
	if c.TrendTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TrendTimezone)
}
