package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		_ = godotenv.Load()
		viper.AutomaticEnv()

		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("database_path", "DATABASE_PATH")
		viper.BindEnv("calendar_dir", "CALENDAR_DIR")
		viper.BindEnv("reference_timezone", "REFERENCE_TIMEZONE")
		viper.BindEnv("warning_window", "WARNING_WINDOW")
		viper.BindEnv("release_grace", "RELEASE_GRACE")
		viper.BindEnv("tick_interval", "TICK_INTERVAL")
		viper.BindEnv("cleanup_interval", "CLEANUP_INTERVAL")
		viper.BindEnv("retention", "RETENTION")
		viper.BindEnv("refresh_interval", "REFRESH_INTERVAL")
		viper.BindEnv("dispatch_timeout", "DISPATCH_TIMEOUT")
		viper.BindEnv("dispatch_attempts", "DISPATCH_ATTEMPTS")
		viper.BindEnv("dispatch_backoff", "DISPATCH_BACKOFF")

		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("database_path", "/app/data/bot.db")
		viper.SetDefault("calendar_dir", "/app/data/calendar")
		viper.SetDefault("reference_timezone", "America/New_York")
		viper.SetDefault("warning_window", "5m")
		viper.SetDefault("release_grace", "60s")
		viper.SetDefault("tick_interval", "60s")
		viper.SetDefault("cleanup_interval", "1h")
		viper.SetDefault("retention", "48h")
		viper.SetDefault("refresh_interval", "15m")
		viper.SetDefault("dispatch_timeout", "10s")
		viper.SetDefault("dispatch_attempts", 3)
		viper.SetDefault("dispatch_backoff", "2s")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
