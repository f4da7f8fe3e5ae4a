package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	AdminPort  int    `mapstructure:"admin_port"`
	EnableGzip bool   `mapstructure:"enable_gzip"`
	// StatusResponse is the body served on /status. An empty string answers with 204 No Content.
	StatusResponse string `mapstructure:"status_response"`
	// AuctionTimeoutMS is used when an auction is started without a timeout of its own.
	AuctionTimeoutMS uint64 `mapstructure:"auction_timeout_ms"`
	// MaxAuctionTimeoutMS caps the timeout any caller may ask for.
	MaxAuctionTimeoutMS uint64 `mapstructure:"max_auction_timeout_ms"`
	// PriceGranularity picks the bucket table used for hb_pb.
	PriceGranularity string `mapstructure:"price_granularity"`
	// MaxKeyLength truncates targeting keys for ad servers with a key length limit. 0 means no limit.
	MaxKeyLength int `mapstructure:"max_key_length"`
	// LiveAuctionsReportIntervalMS sets how often the number of tracked auctions is reported to metrics.
	LiveAuctionsReportIntervalMS uint64 `mapstructure:"live_auctions_report_interval_ms"`
	// AuctionRetentionMS is how long a closed auction started over HTTP stays around for lookups. 0 keeps it until it is deleted.
	AuctionRetentionMS uint64 `mapstructure:"auction_retention_ms"`

	MaxRequestSize int64              `mapstructure:"max_request_size"`
	Client         HTTPClient         `mapstructure:"http_client"`
	Adapters       map[string]Adapter `mapstructure:"adapters"`
	Metrics        Metrics            `mapstructure:"metrics"`
	Analytics      Analytics          `mapstructure:"analytics"`
}

// HTTPClient tunes the client bidders are called with.
type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
	// DialTimeout is in milliseconds. 0 keeps the Go default.
	DialTimeout int `mapstructure:"dial_timeout_ms"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

type InfluxMetrics struct {
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// MetricSendInterval is in seconds.
	MetricSendInterval int `mapstructure:"metric_send_interval"`
}

type PrometheusMetrics struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	// TimeoutMillisRaw bounds a single scrape. 0 means no limit.
	TimeoutMillisRaw int `mapstructure:"timeout_ms"`
}

func (cfg *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMillisRaw) * time.Millisecond
}

func (cfg *InfluxMetrics) validate(errs []error) []error {
	if cfg.Host == "" {
		return errs
	}
	if cfg.MetricSendInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.influxdb.metric_send_interval must be positive, got %d", cfg.MetricSendInterval))
	}
	if cfg.Database == "" {
		errs = append(errs, errors.New("metrics.influxdb.database must be set when metrics.influxdb.host is"))
	}
	return errs
}

type Analytics struct {
	File      FileLogs        `mapstructure:"file"`
	Collector CollectorConfig `mapstructure:"collector"`
}

// FileLogs configures the transaction log. Leave Filename empty to disable it.
type FileLogs struct {
	Filename string `mapstructure:"filename"`
}

// CollectorConfig configures batched delivery of auction events to a remote collector.
type CollectorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Buffers  struct {
		EventCount int    `mapstructure:"count"`
		BufferSize string `mapstructure:"size"`
		Timeout    string `mapstructure:"timeout"`
	} `mapstructure:"buffers"`
}

func (cfg *CollectorConfig) validate(errs []error) []error {
	if !cfg.Enabled {
		return errs
	}
	if !isValidURL(cfg.Endpoint) {
		errs = append(errs, fmt.Errorf("analytics.collector.endpoint %q is not a valid URL", cfg.Endpoint))
	}
	if cfg.Buffers.EventCount <= 0 {
		errs = append(errs, fmt.Errorf("analytics.collector.buffers.count must be positive, got %d", cfg.Buffers.EventCount))
	}
	if _, err := time.ParseDuration(cfg.Buffers.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("analytics.collector.buffers.timeout: %v", err))
	}
	return errs
}

func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.AuctionTimeoutMS == 0 {
		errs = append(errs, errors.New("auction_timeout_ms must be positive"))
	}
	if cfg.MaxAuctionTimeoutMS != 0 && cfg.MaxAuctionTimeoutMS < cfg.AuctionTimeoutMS {
		errs = append(errs, fmt.Errorf("max_auction_timeout_ms (%d) must not be less than auction_timeout_ms (%d)", cfg.MaxAuctionTimeoutMS, cfg.AuctionTimeoutMS))
	}
	if !isValidGranularity(cfg.PriceGranularity) {
		errs = append(errs, fmt.Errorf("price_granularity %q must be one of low, med, high, auto or dense", cfg.PriceGranularity))
	}
	if cfg.MaxKeyLength < 0 {
		errs = append(errs, fmt.Errorf("max_key_length must not be negative, got %d", cfg.MaxKeyLength))
	}
	errs = validateAdapters(cfg.Adapters, errs)
	errs = cfg.Metrics.Influxdb.validate(errs)
	errs = cfg.Analytics.Collector.validate(errs)
	return errs
}

// The bucket tables live in pbs, which this package can't import.
func isValidGranularity(granularity string) bool {
	switch granularity {
	case "low", "med", "high", "auto", "dense":
		return true
	}
	return false
}

// AuctionTimeout returns the default auction timeout.
func (cfg *Configuration) AuctionTimeout() time.Duration {
	return time.Duration(cfg.AuctionTimeoutMS) * time.Millisecond
}

// MaxAuctionTimeout returns the longest timeout an auction may run with, or 0 for no limit.
func (cfg *Configuration) MaxAuctionTimeout() time.Duration {
	return time.Duration(cfg.MaxAuctionTimeoutMS) * time.Millisecond
}

func (cfg *Configuration) AuctionRetention() time.Duration {
	return time.Duration(cfg.AuctionRetentionMS) * time.Millisecond
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	if glog.V(1) {
		glog.Infof("auction timeout %dms (max %dms), price granularity %s, %d adapters configured",
			c.AuctionTimeoutMS, c.MaxAuctionTimeoutMS, c.PriceGranularity, len(c.Adapters))
	}
	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateErrors("validation errors", errs)
	}
	return &c, nil
}

// SetupViper sets the defaults and wires up config files and environment variables.
//
// Any setting can be overridden from the environment with the PBA_ prefix, for example
// PBA_AUCTION_TIMEOUT_MS=500 or PBA_ADAPTERS_AMAZON_ENDPOINT=https://example.com.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("auction_timeout_ms", 1000)
	v.SetDefault("max_auction_timeout_ms", 5000)
	v.SetDefault("price_granularity", "med")
	v.SetDefault("max_key_length", 0)
	v.SetDefault("live_auctions_report_interval_ms", 10000)
	v.SetDefault("auction_retention_ms", 60000)
	v.SetDefault("max_request_size", 1024*256)
	v.SetDefault("http_client.max_connections_per_host", 0)
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("http_client.dial_timeout_ms", 0)

	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)

	v.SetDefault("analytics.file.filename", "")
	v.SetDefault("analytics.collector.enabled", false)
	v.SetDefault("analytics.collector.endpoint", "")
	v.SetDefault("analytics.collector.buffers.count", 100)
	v.SetDefault("analytics.collector.buffers.size", "2MB")
	v.SetDefault("analytics.collector.buffers.timeout", "15m")

	v.SetDefault("adapters.amazon.endpoint", "https://c.amazon-adsystem.com/e/dtb/bid")
	v.SetDefault("adapters.amazon.disabled", false)

	v.SetConfigType("yaml")
	if filename != "" {
		if err := v.ReadInConfig(); err != nil {
			glog.Warningf("Viper was unable to read configurations: %v", err)
		}
	}

	v.SetEnvPrefix("PBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
