package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the transcription service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	API           APIConfig           `mapstructure:"api"`
	Model         ModelConfig         `mapstructure:"model"`
	Audio         AudioConfig         `mapstructure:"audio"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	ReadHeaderTimeout     time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

type APIConfig struct {
	Prefix      string   `mapstructure:"prefix"`
	APIKey      string   `mapstructure:"api_key"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type ModelConfig struct {
	Name         string        `mapstructure:"name"`
	SidecarURL   string        `mapstructure:"sidecar_url"`
	Device       string        `mapstructure:"device"`
	LoadTimeout  time.Duration `mapstructure:"load_timeout"`
	InferTimeout time.Duration `mapstructure:"infer_timeout"`
	WarmupDir    string        `mapstructure:"warmup_dir"`
}

type AudioConfig struct {
	MaxUploadMB    int           `mapstructure:"max_upload_mb"`
	TempDir        string        `mapstructure:"temp_dir"`
	FFmpegBin      string        `mapstructure:"ffmpeg_bin"`
	FFprobeBin     string        `mapstructure:"ffprobe_bin"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ConvertTimeout time.Duration `mapstructure:"convert_timeout"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	ParallelRequests  int `mapstructure:"parallel_requests"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// MaxUploadBytes converts the configured upload cap to bytes.
func (a AudioConfig) MaxUploadBytes() int64 {
	return int64(a.MaxUploadMB) * 1024 * 1024
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else {
		if cfg := os.Getenv("PARAKEET_CONFIG_FILE"); cfg != "" {
			v.SetConfigFile(cfg)
			explicitFile = true
		}
	}

	if !explicitFile {
		// Allow standard lookup locations when no explicit file is provided.
		v.SetConfigName("parakeet")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("PARAKEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and normalizes derived fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr must be provided")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}

	c.API.Prefix = normalizePrefix(c.API.Prefix)
	c.API.CORSOrigins = normalizeStringSlice(c.API.CORSOrigins)

	if strings.TrimSpace(c.Model.Name) == "" {
		return fmt.Errorf("model.name must be provided")
	}
	if strings.TrimSpace(c.Model.SidecarURL) == "" {
		return fmt.Errorf("model.sidecar_url must be provided")
	}
	if c.Model.LoadTimeout <= 0 {
		return fmt.Errorf("model.load_timeout must be > 0")
	}
	if c.Model.InferTimeout <= 0 {
		return fmt.Errorf("model.infer_timeout must be > 0")
	}

	if c.Audio.MaxUploadMB <= 0 {
		return fmt.Errorf("audio.max_upload_mb must be > 0")
	}
	if strings.TrimSpace(c.Audio.FFmpegBin) == "" {
		return fmt.Errorf("audio.ffmpeg_bin must be provided")
	}
	if strings.TrimSpace(c.Audio.FFprobeBin) == "" {
		return fmt.Errorf("audio.ffprobe_bin must be provided")
	}
	if c.Audio.ProbeTimeout <= 0 {
		return fmt.Errorf("audio.probe_timeout must be > 0")
	}
	if c.Audio.ConvertTimeout <= 0 {
		return fmt.Errorf("audio.convert_timeout must be > 0")
	}

	if c.RateLimits.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limits.requests_per_minute must be >= 0")
	}
	if c.RateLimits.ParallelRequests < 0 {
		return fmt.Errorf("rate_limits.parallel_requests must be >= 0")
	}
	if (c.RateLimits.RequestsPerMinute > 0 || c.RateLimits.ParallelRequests > 0) && c.Redis.URL == "" {
		return fmt.Errorf("redis.url must be provided when rate limiting is enabled")
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}

	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "/v1"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8011")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.request_timeout", "300s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("api.prefix", "/v1")
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("model.name", "parakeet-tdt-0.6b-v2")
	v.SetDefault("model.sidecar_url", "http://127.0.0.1:8387")
	v.SetDefault("model.device", "auto")
	v.SetDefault("model.load_timeout", "10m")
	v.SetDefault("model.infer_timeout", "5m")

	v.SetDefault("audio.max_upload_mb", 100)
	v.SetDefault("audio.ffmpeg_bin", "ffmpeg")
	v.SetDefault("audio.ffprobe_bin", "ffprobe")
	v.SetDefault("audio.probe_timeout", "30s")
	v.SetDefault("audio.convert_timeout", "120s")

	v.SetDefault("rate_limits.requests_per_minute", 0)
	v.SetDefault("rate_limits.parallel_requests", 0)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
