package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPublicBaseURL   = "http://127.0.0.1:8080"
	DefaultDataRoot        = "data"
	DefaultMaxAssetMB      = 50
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "omnirelay"
	DefaultPGSSLMode       = "disable"
	DefaultTelegramAPI     = "https://api.telegram.org/bot%s/%s"
	DefaultTelegramPoll    = 30
	DefaultGreenAPIURL     = "https://api.green-api.com"
	DefaultGreenAPIReceive = 20
	DefaultOwner           = "1C"
	DefaultChannel         = "secondary"
	DefaultReconcile       = "@every 30m"
	DefaultDedupTTL        = "24h"
	DefaultReconnect       = "1m"
	DefaultAMQPExchange    = "omnirelay.events"
	DefaultAMQPRoutingKey  = "relay.event"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	AMQP     AMQPConfig     `toml:"amqp"`
	Telegram TelegramConfig `toml:"telegram"`
	GreenAPI GreenAPIConfig `toml:"greenapi"`
	Storage  StorageConfig  `toml:"storage"`
	Relay    RelayConfig    `toml:"relay"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// APIKey protects the pull API when set. Empty disables the check.
	APIKey        string `toml:"api_key"`
	PublicBaseURL string `toml:"public_base_url"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the connection string understood by pgx.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type RedisConfig struct {
	// URL enables the redis-backed duplicate guard, e.g. redis://localhost:6379/0.
	URL string `toml:"url"`
}

type AMQPConfig struct {
	// URL enables event fan-out to RabbitMQ when set.
	URL        string `toml:"url"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	// GroupChatID is the forum-enabled staff supergroup.
	GroupChatID        int64  `toml:"group_chat_id"`
	APIEndpoint        string `toml:"api_endpoint"`
	PollTimeoutSeconds int    `toml:"poll_timeout_seconds"`
}

func (c TelegramConfig) Enabled() bool {
	return strings.TrimSpace(c.BotToken) != ""
}

type GreenAPIConfig struct {
	APIURL                string `toml:"api_url"`
	IDInstance            string `toml:"id_instance"`
	APIToken              string `toml:"api_token"`
	ReceiveTimeoutSeconds int    `toml:"receive_timeout_seconds"`
}

func (c GreenAPIConfig) Enabled() bool {
	return strings.TrimSpace(c.IDInstance) != "" && strings.TrimSpace(c.APIToken) != ""
}

type StorageConfig struct {
	DataRoot   string `toml:"data_root"`
	MaxAssetMB int64  `toml:"max_asset_mb"`
}

// MaxAssetBytes returns the per-attachment limit in bytes.
func (c StorageConfig) MaxAssetBytes() int64 {
	if c.MaxAssetMB <= 0 {
		return DefaultMaxAssetMB * 1024 * 1024
	}
	return c.MaxAssetMB * 1024 * 1024
}

type RelayConfig struct {
	// DefaultOwner is the source-of-record owner used when nobody claimed a client.
	DefaultOwner      string `toml:"default_owner"`
	DefaultChannel    string `toml:"default_channel"`
	ReconcileSchedule string `toml:"reconcile_schedule"`
	DedupTTL          string `toml:"dedup_ttl"`
	FetchLimit        int    `toml:"fetch_limit"`
	// ReconnectInterval is how often stopped receivers are restarted.
	ReconnectInterval string `toml:"reconnect_interval"`
}

// DedupWindow parses DedupTTL, falling back to the default on bad input.
func (c RelayConfig) DedupWindow() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.DedupTTL))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultDedupTTL)
	}
	return d
}

// ReconnectEvery parses ReconnectInterval, falling back to the default on bad input.
func (c RelayConfig) ReconnectEvery() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.ReconnectInterval))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultReconnect)
	}
	return d
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:          DefaultHTTPAddr,
			PublicBaseURL: DefaultPublicBaseURL,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		AMQP: AMQPConfig{
			Exchange:   DefaultAMQPExchange,
			RoutingKey: DefaultAMQPRoutingKey,
		},
		Telegram: TelegramConfig{
			APIEndpoint:        DefaultTelegramAPI,
			PollTimeoutSeconds: DefaultTelegramPoll,
		},
		GreenAPI: GreenAPIConfig{
			APIURL:                DefaultGreenAPIURL,
			ReceiveTimeoutSeconds: DefaultGreenAPIReceive,
		},
		Storage: StorageConfig{
			DataRoot:   DefaultDataRoot,
			MaxAssetMB: DefaultMaxAssetMB,
		},
		Relay: RelayConfig{
			DefaultOwner:      DefaultOwner,
			DefaultChannel:    DefaultChannel,
			ReconcileSchedule: DefaultReconcile,
			DedupTTL:          DefaultDedupTTL,
			ReconnectInterval: DefaultReconnect,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
