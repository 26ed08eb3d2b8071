package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/menta2k/pose-cropper/pkg/detection"
)

// EnvPrefix prefixes environment overrides, e.g. POSE_CROPPER_SERVER_PORT
const EnvPrefix = "POSE_CROPPER"

// Config holds the application configuration
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Detection DetectionConfig `mapstructure:"detection"`
	Pose      PoseConfig      `mapstructure:"pose"`
	Output    OutputConfig    `mapstructure:"output"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

// BackendConfig selects the vision model server
type BackendConfig struct {
	Kind      string `mapstructure:"kind"`
	URL       string `mapstructure:"url"`
	Model     string `mapstructure:"model"`
	PoseModel string `mapstructure:"pose_model"`
	SendSize  int    `mapstructure:"send_size"`
	SendFmt   string `mapstructure:"send_format"`
	SendQ     int    `mapstructure:"send_quality"`
}

// DetectionConfig holds subject selection settings
type DetectionConfig struct {
	Class    string  `mapstructure:"class"`
	MinScore float64 `mapstructure:"min_score"`
	Policy   string  `mapstructure:"policy"`
}

// PoseConfig holds pose model input settings
type PoseConfig struct {
	InputSize     int     `mapstructure:"input_size"`
	MaxPoses      int     `mapstructure:"max_poses"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Format   string `mapstructure:"format"`
	Quality  int    `mapstructure:"quality"`
	Lossless bool   `mapstructure:"lossless"`
	Overlay  bool   `mapstructure:"overlay"`
	Labels   bool   `mapstructure:"labels"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig holds result cache settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// UploadConfig holds upload limits
type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.kind", "ollama")
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.model", "openbmb/minicpm-v4.5")
	v.SetDefault("backend.pose_model", "")
	v.SetDefault("backend.send_size", 1536)
	v.SetDefault("backend.send_format", "jpg")
	v.SetDefault("backend.send_quality", 85)

	v.SetDefault("detection.class", detection.PersonClass)
	v.SetDefault("detection.min_score", detection.DefaultMinScore)
	v.SetDefault("detection.policy", string(detection.HighestScore))

	v.SetDefault("pose.input_size", 192)
	v.SetDefault("pose.max_poses", 1)
	v.SetDefault("pose.min_confidence", 0.3)

	v.SetDefault("output.dir", "./out")
	v.SetDefault("output.format", "jpg")
	v.SetDefault("output.quality", 90)
	v.SetDefault("output.lossless", false)
	v.SetDefault("output.overlay", true)
	v.SetDefault("output.labels", false)

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg", "image/webp"})
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns a configuration with default values and environment
// overrides applied
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a YAML configuration file on top of the defaults. An empty
// path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Kind {
	case "ollama", "llamacpp":
	default:
		errs = append(errs, fmt.Errorf("backend.kind must be ollama or llamacpp, got %q", c.Backend.Kind))
	}

	if c.Backend.Model == "" {
		errs = append(errs, fmt.Errorf("backend.model cannot be empty"))
	}

	if c.Detection.MinScore < 0 || c.Detection.MinScore >= 1 {
		errs = append(errs, fmt.Errorf("detection.min_score must be in [0,1)"))
	}

	if !detection.SelectionPolicy(c.Detection.Policy).Valid() {
		errs = append(errs, fmt.Errorf("detection.policy must be highest or first, got %q", c.Detection.Policy))
	}

	if c.Pose.InputSize < 1 {
		errs = append(errs, fmt.Errorf("pose.input_size must be positive"))
	}

	if c.Pose.MaxPoses < 1 {
		errs = append(errs, fmt.Errorf("pose.max_poses must be positive"))
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		errs = append(errs, fmt.Errorf("output.quality must be between 1 and 100"))
	}

	switch strings.ToLower(c.Output.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		errs = append(errs, fmt.Errorf("output.format must be jpg, png or webp"))
	}

	if c.Upload.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_size must be positive"))
	}

	return errors.Join(errs...)
}

// BackendURL returns the configured server URL or the backend default
func (c *Config) BackendURL() string {
	if c.Backend.URL != "" {
		return c.Backend.URL
	}
	if c.Backend.Kind == "llamacpp" {
		return "http://localhost:8080"
	}
	return "http://localhost:11434"
}

// PoseModel returns the pose model name, falling back to the detection model
func (c *Config) PoseModel() string {
	if c.Backend.PoseModel != "" {
		return c.Backend.PoseModel
	}
	return c.Backend.Model
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "pose-cropper", "config.yaml")
}
