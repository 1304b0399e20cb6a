package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	WAQIToken   string `mapstructure:"waqi_api_token" validate:"required"`
	WAQIBaseURL string `mapstructure:"waqi_base_url" validate:"required,url"`
	// WAQIMaxRetries is 0 by default: each query is issued once.
	WAQIMaxRetries int `mapstructure:"waqi_max_retries" validate:"gte=0"`

	// HTTPTimeout bounds outbound calls. Zero means no timeout; queries are
	// still aborted when their widget unmounts.
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gte=0"`

	MapCenterLat float64 `mapstructure:"map_center_lat" validate:"gte=-90,lte=90"`
	MapCenterLon float64 `mapstructure:"map_center_lon" validate:"gte=-180,lte=180"`
	MapZoom      int     `mapstructure:"map_zoom" validate:"gte=0,lte=22"`
	MapTileURL   string  `mapstructure:"map_tile_url" validate:"required"`
	MapMaxZoom   int     `mapstructure:"map_max_zoom" validate:"gte=0,lte=22"`

	// LocationsFile overrides the embedded city list.
	LocationsFile  string `mapstructure:"locations_file"`
	GeocoderAPIKey string `mapstructure:"geocoder_api_key"`

	// REST-mounted sessions idle longer than SessionTTL are unmounted.
	SessionTTL          time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	SessionReapInterval time.Duration `mapstructure:"session_reap_interval" validate:"gt=0"`
	SnapshotWait        time.Duration `mapstructure:"snapshot_wait" validate:"gt=0"`

	// Map sockets are pinged every SocketPingInterval and dropped after two
	// intervals without a pong.
	SocketPingInterval time.Duration `mapstructure:"socket_ping_interval" validate:"gt=0"`

	Port      string `mapstructure:"port" validate:"required,numeric"`
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json text"`
}

var validate = validator.New()

// Load reads configuration from .env, an optional config.yaml and the
// environment, in increasing order of precedence.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// WAQI_API_TOKEN -> waqi_api_token
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	// AutomaticEnv only applies to keys viper knows about, so every key
	// gets a default, even an empty one.
	v.SetDefault("waqi_api_token", "")
	v.SetDefault("waqi_base_url", "https://api.waqi.info")
	v.SetDefault("waqi_max_retries", 0)
	v.SetDefault("http_timeout", "0s")
	v.SetDefault("map_center_lat", 2.5)
	v.SetDefault("map_center_lon", 17.5)
	v.SetDefault("map_zoom", 3)
	v.SetDefault("map_tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map_max_zoom", 19)
	v.SetDefault("locations_file", "")
	v.SetDefault("geocoder_api_key", "")
	v.SetDefault("session_ttl", "10m")
	v.SetDefault("session_reap_interval", "1m")
	v.SetDefault("snapshot_wait", "30s")
	v.SetDefault("socket_ping_interval", "30s")
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
