package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Privacy    PrivacyConfig    `mapstructure:"privacy"`
	Federation FederationConfig `mapstructure:"federation"`
	Chain      ChainConfig      `mapstructure:"chain"`
	IPFS       IPFSConfig       `mapstructure:"ipfs"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host      string          `mapstructure:"host"`
	Port      string          `mapstructure:"port"`
	Endpoint  string          `mapstructure:"endpoint"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
}

type WebsocketConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// PrivacyConfig carries the default noise parameters handed to contributors
// that do not supply their own.
type PrivacyConfig struct {
	DefaultEpsilon     float64 `mapstructure:"default_epsilon"`
	DefaultSensitivity float64 `mapstructure:"default_sensitivity"`
	DefaultDelta       float64 `mapstructure:"default_delta"`
}

type FederationConfig struct {
	MinContributors           int     `mapstructure:"min_contributors"`
	MaxRounds                 int     `mapstructure:"max_rounds"`
	DefaultAccuracyThreshold  float64 `mapstructure:"default_accuracy_threshold"`
	AggregationWorkers        int     `mapstructure:"aggregation_workers"`
	MaxConcurrentAggregations int     `mapstructure:"max_concurrent_aggregations"`
}

type ChainConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	RPC                 string `mapstructure:"rpc"`
	ChainID             int64  `mapstructure:"chain_id"`
	RegistryAddress     string `mapstructure:"registry_address"`
	AnchorContributions bool   `mapstructure:"anchor_contributions"`
}

type IPFSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Retries    int           `mapstructure:"retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type TelemetryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ServiceName     string        `mapstructure:"service_name"`
	OTLPEndpoint    string        `mapstructure:"otlp_endpoint"`
	CaptureTraces   bool          `mapstructure:"capture_traces"`
	CaptureMetrics  bool          `mapstructure:"capture_metrics"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	setDefaults(&config)

	return &config, nil
}

func setDefaults(config *Config) {
	if config.Server.Websocket.WriteWait == 0 {
		config.Server.Websocket.WriteWait = 10 * time.Second
	}
	if config.Server.Websocket.PongWait == 0 {
		config.Server.Websocket.PongWait = 60 * time.Second
	}
	if config.Server.Websocket.StatusInterval == 0 {
		config.Server.Websocket.StatusInterval = 5 * time.Second
	}
	if config.Auth.TokenExpiry == 0 {
		config.Auth.TokenExpiry = 24 * time.Hour
	}
	if config.Privacy.DefaultEpsilon == 0 {
		config.Privacy.DefaultEpsilon = 1.0
	}
	if config.Privacy.DefaultSensitivity == 0 {
		config.Privacy.DefaultSensitivity = 1.0
	}
	if config.Privacy.DefaultDelta == 0 {
		config.Privacy.DefaultDelta = 1e-5
	}
	if config.Federation.MinContributors == 0 {
		config.Federation.MinContributors = 3
	}
	if config.Federation.MaxRounds == 0 {
		config.Federation.MaxRounds = 10
	}
	if config.Federation.DefaultAccuracyThreshold == 0 {
		config.Federation.DefaultAccuracyThreshold = 0.5
	}
	if config.Federation.AggregationWorkers == 0 {
		config.Federation.AggregationWorkers = 4
	}
	if config.Federation.MaxConcurrentAggregations == 0 {
		config.Federation.MaxConcurrentAggregations = 2
	}
	if config.Notify.Retries == 0 {
		config.Notify.Retries = 3
	}
	if config.Notify.Timeout == 0 {
		config.Notify.Timeout = 10 * time.Second
	}
	if config.Telemetry.ServiceName == "" {
		config.Telemetry.ServiceName = "sentinel-server"
	}
	if config.Telemetry.MetricsInterval == 0 {
		config.Telemetry.MetricsInterval = 15 * time.Second
	}
}
