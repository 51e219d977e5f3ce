package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration reads "30s" style strings from TOML and YAML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type ServerConfig struct {
	Port           string   `toml:"port" yaml:"port"`
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
	MaxUploadBytes int64    `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	MaxRows        int      `toml:"max_rows" yaml:"max_rows"`
	PreviewRows    int      `toml:"preview_rows" yaml:"preview_rows"`
}

type EmbeddingConfig struct {
	Provider          string   `toml:"provider" yaml:"provider"`
	Model             string   `toml:"model" yaml:"model"`
	APIKey            string   `toml:"api_key" yaml:"api_key"`
	BaseURL           string   `toml:"base_url" yaml:"base_url"`
	BatchSize         int      `toml:"batch_size" yaml:"batch_size"`
	Concurrency       int      `toml:"concurrency" yaml:"concurrency"`
	RequestsPerSecond float64  `toml:"requests_per_second" yaml:"requests_per_second"`
	Timeout           Duration `toml:"timeout" yaml:"timeout"`
	MaxRetries        int      `toml:"max_retries" yaml:"max_retries"`
	Dimensions        int      `toml:"dimensions" yaml:"dimensions"`
}

type AnalysisConfig struct {
	DefaultThreshold float64 `toml:"default_threshold" yaml:"default_threshold"`
	Separator        string  `toml:"separator" yaml:"separator"`
}

type SessionConfig struct {
	IdleTTL       Duration `toml:"idle_ttl" yaml:"idle_ttl"`
	SweepInterval Duration `toml:"sweep_interval" yaml:"sweep_interval"`
}

type RedisConfig struct {
	Addr      string `toml:"addr" yaml:"addr"`
	Password  string `toml:"password" yaml:"password"`
	DB        int    `toml:"db" yaml:"db"`
	KeyPrefix string `toml:"key_prefix" yaml:"key_prefix"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri" yaml:"uri"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
}

type StoreConfig struct {
	Backend  string         `toml:"backend" yaml:"backend"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	Memgraph MemgraphConfig `toml:"memgraph" yaml:"memgraph"`
}

type LogConfig struct {
	Mode string `toml:"mode" yaml:"mode"`
}

type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Embedding EmbeddingConfig `toml:"embedding" yaml:"embedding"`
	Analysis  AnalysisConfig  `toml:"analysis" yaml:"analysis"`
	Session   SessionConfig   `toml:"session" yaml:"session"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNeo4j  = "neo4j"
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
			MaxUploadBytes: 32 << 20,
			MaxRows:        20000,
			PreviewRows:    5,
		},
		Embedding: EmbeddingConfig{
			Provider:          "ollama",
			Model:             "all-minilm",
			BaseURL:           "http://localhost:11434",
			BatchSize:         64,
			Concurrency:       4,
			RequestsPerSecond: 10,
			Timeout:           Duration(2 * time.Minute),
			MaxRetries:        2,
			Dimensions:        384,
		},
		Analysis: AnalysisConfig{
			DefaultThreshold: 0.85,
			Separator:        " ",
		},
		Session: SessionConfig{
			IdleTTL:       Duration(2 * time.Hour),
			SweepInterval: Duration(5 * time.Minute),
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "dsstrack:session:",
			},
			Memgraph: MemgraphConfig{
				URI: "bolt://localhost:7687",
			},
		},
		Log: LogConfig{Mode: "dev"},
	}
}

// Load reads a TOML file, or YAML when the extension is .yaml/.yml, on top
// of Default. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when set.
func (c *Config) ApplyEnv() error {
	setString("PORT", &c.Server.Port)
	setString("LOG_MODE", &c.Log.Mode)
	setString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setString("EMBEDDING_MODEL", &c.Embedding.Model)
	setString("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	setString("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setString("STORE_BACKEND", &c.Store.Backend)
	setString("REDIS_ADDR", &c.Store.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Store.Redis.Password)
	setString("NEO4J_URI", &c.Store.Memgraph.URI)
	setString("NEO4J_USER", &c.Store.Memgraph.User)
	setString("NEO4J_PASSWORD", &c.Store.Memgraph.Password)

	if err := parseEnvDuration("SESSION_IDLE_TTL", &c.Session.IdleTTL); err != nil {
		return err
	}
	if err := parseEnvDuration("EMBEDDING_TIMEOUT", &c.Embedding.Timeout); err != nil {
		return err
	}
	if err := parseEnvInt("EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize); err != nil {
		return err
	}
	if err := parseEnvFloat("DEFAULT_THRESHOLD", &c.Analysis.DefaultThreshold); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port must be set"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Server.PreviewRows < 0 {
		errs = append(errs, errors.New("server.preview_rows must not be negative"))
	}
	if c.Embedding.Provider == "" {
		errs = append(errs, errors.New("embedding.provider must be set"))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, errors.New("embedding.batch_size must be positive"))
	}
	if c.Embedding.Concurrency <= 0 {
		errs = append(errs, errors.New("embedding.concurrency must be positive"))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("embedding.requests_per_second must not be negative"))
	}
	if c.Embedding.MaxRetries < 0 {
		errs = append(errs, errors.New("embedding.max_retries must not be negative"))
	}
	if c.Embedding.Timeout <= 0 {
		errs = append(errs, errors.New("embedding.timeout must be positive"))
	}
	if t := c.Analysis.DefaultThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("analysis.default_threshold must be in (0, 1], got %v", t))
	}
	if c.Analysis.Separator == "" {
		errs = append(errs, errors.New("analysis.separator must not be empty"))
	}
	if c.Session.IdleTTL < 0 || c.Session.SweepInterval < 0 {
		errs = append(errs, errors.New("session durations must not be negative"))
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendNeo4j:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory, redis, neo4j", c.Store.Backend))
	}
	return errors.Join(errs...)
}

func setString(key string, dest *string) {
	if v := os.Getenv(key); v != "" {
		*dest = v
	}
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvDuration(key string, dest *Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	if err := dest.UnmarshalText([]byte(value)); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
