package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PEAKCLIPS"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

const (
	minClipSeconds = 8.0
	maxClipSeconds = 10.0
)

type Config struct {
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	DataDir           string `mapstructure:"data_dir" yaml:"data_dir"`
	PublicBaseURL     string `mapstructure:"public_base_url" yaml:"public_base_url"`
	ResultRedirectURL string `mapstructure:"result_redirect_url" yaml:"result_redirect_url,omitempty"`

	Workers      int           `mapstructure:"workers" yaml:"workers"`
	NumClips     int           `mapstructure:"num_clips" yaml:"num_clips"`
	ClipSeconds  float64       `mapstructure:"clip_seconds" yaml:"clip_seconds"`
	ClipTimeout  time.Duration `mapstructure:"clip_timeout" yaml:"-"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"-"`
	MaxUploadMB  int           `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	Retention    time.Duration `mapstructure:"retention" yaml:"-"`
	Store        string        `mapstructure:"store" yaml:"store"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	FFmpegPath  string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
	YtDlpPath   string `mapstructure:"ytdlp_path" yaml:"ytdlp_path"`

	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

func (c *Config) ClipsDir() string {
	return filepath.Join(c.DataDir, "clips")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("public_base_url", "")
	v.SetDefault("result_redirect_url", "")

	v.SetDefault("workers", 2)
	v.SetDefault("num_clips", 4)
	v.SetDefault("clip_seconds", minClipSeconds)
	v.SetDefault("clip_timeout", "5m")
	v.SetDefault("fetch_timeout", "10m")
	v.SetDefault("max_upload_mb", 500)
	v.SetDefault("retention", "24h")
	v.SetDefault("store", StoreMemory)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("ytdlp_path", "yt-dlp")

	v.SetDefault("cors_origins", []string{"*"})
}

// Load reads configuration from defaults, an optional config file, an
// optional .env file and PEAKCLIPS_* environment variables, in increasing
// order of precedence. An empty configFile searches for peakclips.yaml in the
// working directory and /etc/peakclips.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("peakclips")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/peakclips")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	hooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	cfg.ClipSeconds = clampClipSeconds(cfg.ClipSeconds)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if cfg.PublicBaseURL == "" {
		host := cfg.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		cfg.PublicBaseURL = fmt.Sprintf("http://%s:%d", host, cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.NumClips < 1 {
		return fmt.Errorf("num_clips must be at least 1, got %d", c.NumClips)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", c.MaxUploadMB)
	}
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	return nil
}

// YAML renders the effective configuration in config file form. Durations
// are written as strings so the output can be fed back through Load.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(struct {
		Config       `yaml:",inline"`
		ClipTimeout  string `yaml:"clip_timeout"`
		FetchTimeout string `yaml:"fetch_timeout"`
		Retention    string `yaml:"retention"`
	}{
		Config:       *c,
		ClipTimeout:  c.ClipTimeout.String(),
		FetchTimeout: c.FetchTimeout.String(),
		Retention:    c.Retention.String(),
	})
}

func clampClipSeconds(s float64) float64 {
	if s < minClipSeconds {
		return minClipSeconds
	}
	if s > maxClipSeconds {
		return maxClipSeconds
	}
	return s
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
