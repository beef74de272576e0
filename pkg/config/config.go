package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"VolPull/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Date is a calendar date written as YYYY-MM-DD in YAML.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, ok := util.ParseDate(s)
	if !ok {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`
	Mode        string `yaml:"mode" default:"all" validate:"oneof=rates ingest history serve all"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Backend struct {
		Type string `yaml:"type" default:"clickhouse" validate:"oneof=clickhouse postgres memory"`
	} `yaml:"backend"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"volpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLife  time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"volpull"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"volpull.index_values"`
		RequiredAcks int           `yaml:"required_acks" default:"1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	Provider struct {
		BaseURL           string        `yaml:"base_url" default:"https://restapi.ivolatility.com"`
		ChainPath         string        `yaml:"chain_path" default:"/equities/eod/stock-opts-by-param"`
		APIKey            string        `yaml:"api_key"`
		Timeout           time.Duration `yaml:"timeout" default:"60s"`
		DownloadTimeout   time.Duration `yaml:"download_timeout" default:"15s"`
		MaxRetries        int           `yaml:"max_retries" default:"6" validate:"gte=0"`
		BackoffBase       time.Duration `yaml:"backoff_base" default:"1s"`
		BackoffMax        time.Duration `yaml:"backoff_max" default:"64s"`
		PollInterval      time.Duration `yaml:"poll_interval" default:"500ms"`
		PollFactor        float64       `yaml:"poll_factor" default:"1.3" validate:"gte=1"`
		PollMaxInterval   time.Duration `yaml:"poll_max_interval" default:"5s"`
		PollTimeout       time.Duration `yaml:"poll_timeout" default:"180s"`
		MaxInFlight       int           `yaml:"max_in_flight" default:"5" validate:"gt=0"`
		RequestsPerSecond float64       `yaml:"requests_per_second" default:"10"`
	} `yaml:"provider"`
	Ingest struct {
		Symbols          []string      `yaml:"symbols"`
		StartDate        Date          `yaml:"start_date"`
		EndDate          Date          `yaml:"end_date"`
		Workers          int           `yaml:"workers" default:"4" validate:"gt=0"`
		Horizons         []int         `yaml:"horizons"`
		MaxExpiryBackoff int           `yaml:"max_expiry_backoff" default:"3" validate:"gte=0"`
		LockTTL          time.Duration `yaml:"lock_ttl" default:"6h"`
	} `yaml:"ingest"`
	History struct {
		Symbols       []string `yaml:"symbols"`
		IndexTypes    []string `yaml:"index_types"`
		StartDate     Date     `yaml:"start_date"`
		EndDate       Date     `yaml:"end_date"`
		ClearExisting bool     `yaml:"clear_existing"`
	} `yaml:"history"`
	Rates struct {
		SourceURL string        `yaml:"source_url" default:"https://fred.stlouisfed.org/graph/fredgraph.csv"`
		StartDate Date          `yaml:"start_date"`
		EndDate   Date          `yaml:"end_date"`
		Overwrite bool          `yaml:"overwrite"`
		CacheTTL  time.Duration `yaml:"cache_ttl" default:"24h"`
	} `yaml:"rates"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file and fills defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML, applies .env and environment overrides,
// then validates the result.
func LoadWithEnv(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if len(c.Ingest.Horizons) == 0 {
		c.Ingest.Horizons = []int{30, 90}
	}
	if len(c.History.IndexTypes) == 0 {
		c.History.IndexTypes = []string{"VIX", "VIX3M"}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("IVOL_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("API_URL"); v != "" {
		c.Provider.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Ingest.Symbols = util.SplitList(v)
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if c.Backend.Type == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required for backend 'postgres'")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	needsProvider := c.Mode == "ingest" || c.Mode == "all"
	if needsProvider && len(c.Ingest.Symbols) == 0 {
		return fmt.Errorf("ingest.symbols cannot be empty")
	}
	if needsProvider && c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	if (c.Mode == "history" || c.Mode == "all") && len(c.HistorySymbols()) == 0 {
		return fmt.Errorf("history.symbols or ingest.symbols must list at least one symbol")
	}
	for _, t := range c.History.IndexTypes {
		if t != "VIX" && t != "VIX3M" {
			return fmt.Errorf("history.index_types: unknown index type %q", t)
		}
	}
	for _, h := range c.Ingest.Horizons {
		if h < 7 {
			return fmt.Errorf("ingest.horizons: %d is too short, want >= 7 days", h)
		}
	}
	if !c.Ingest.EndDate.IsZero() && c.Ingest.EndDate.Before(c.Ingest.StartDate.Time) {
		return fmt.Errorf("ingest.end_date is before ingest.start_date")
	}
	if c.Provider.BackoffMax < c.Provider.BackoffBase {
		return fmt.Errorf("provider.backoff_max must be >= provider.backoff_base")
	}
	return nil
}

// HistorySymbols returns history.symbols, falling back to ingest.symbols.
func (c *Config) HistorySymbols() []string {
	if len(c.History.Symbols) > 0 {
		return c.History.Symbols
	}
	return c.Ingest.Symbols
}
