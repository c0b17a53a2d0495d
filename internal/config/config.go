package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     App     `mapstructure:"app"`
	AI      AI      `mapstructure:"ai"`
	Reddit  Reddit  `mapstructure:"reddit"`
	Collect Collect `mapstructure:"collect"`
	Filter  Filter  `mapstructure:"filter"`
	Cluster Cluster `mapstructure:"cluster"`
	Report  Report  `mapstructure:"report"`
	Store   Store   `mapstructure:"store"`
}

// App holds general application configuration
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// AI holds LLM provider configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	Model         string  `mapstructure:"model"`
	MaxTokens     int32   `mapstructure:"max_tokens"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxConcurrent int64   `mapstructure:"max_concurrent"`
}

// Reddit holds content-platform client configuration
type Reddit struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
	Timeout   string `mapstructure:"timeout"`
}

// Collect holds collector configuration
type Collect struct {
	ItemsPerKeyword   int    `mapstructure:"items_per_keyword"`
	MaxKeywords       int    `mapstructure:"max_keywords"`
	CommentsPerPost   int    `mapstructure:"comments_per_post"`
	TopPostsWithComms int    `mapstructure:"top_posts_with_comments"`
	CallsPerMinute    int    `mapstructure:"calls_per_minute"`
	TimeFilter        string `mapstructure:"time_filter"`
}

// Filter holds relevance-filter configuration
type Filter struct {
	Threshold       float64 `mapstructure:"threshold"`
	MinHighQuality  int     `mapstructure:"min_high_quality"`
	MaxContentItems int     `mapstructure:"max_content_items"`
	BatchSize       int     `mapstructure:"batch_size"`
}

// Cluster holds topic-clustering configuration
type Cluster struct {
	MinClusterSize int `mapstructure:"min_cluster_size"`
	MaxClusters    int `mapstructure:"max_clusters"`
	SampleSize     int `mapstructure:"sample_size"`
	AssignBatch    int `mapstructure:"assign_batch"`
}

// Report holds synthesis configuration
type Report struct {
	DefaultLength        string  `mapstructure:"default_length"`
	ConsistencyThreshold float64 `mapstructure:"consistency_threshold"`
}

// Store holds persistence configuration
type Store struct {
	Directory string `mapstructure:"directory"`
}

var globalConfig *Config

// Load loads configuration from the config file, environment, and defaults.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".pulse")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".pulse")

	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.3)
	viper.SetDefault("ai.gemini.max_concurrent", 5)

	viper.SetDefault("reddit.base_url", "https://www.reddit.com")
	viper.SetDefault("reddit.user_agent", "pulse/1.0 (keyword analysis)")
	viper.SetDefault("reddit.timeout", "30s")

	viper.SetDefault("collect.items_per_keyword", 15)
	viper.SetDefault("collect.max_keywords", 10)
	viper.SetDefault("collect.comments_per_post", 5)
	viper.SetDefault("collect.top_posts_with_comments", 5)
	viper.SetDefault("collect.calls_per_minute", 59)
	viper.SetDefault("collect.time_filter", "all")

	viper.SetDefault("filter.threshold", 6.0)
	viper.SetDefault("filter.min_high_quality", 10)
	viper.SetDefault("filter.max_content_items", 50)
	viper.SetDefault("filter.batch_size", 10)

	viper.SetDefault("cluster.min_cluster_size", 3)
	viper.SetDefault("cluster.max_clusters", 7)
	viper.SetDefault("cluster.sample_size", 30)
	viper.SetDefault("cluster.assign_batch", 20)

	viper.SetDefault("report.default_length", "moderate")
	viper.SetDefault("report.consistency_threshold", 0.7)

	viper.SetDefault("store.directory", ".pulse")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
}

// bindEnvKeys binds the first set environment variable in the list to a config key
func bindEnvKeys(configKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(configKey, value)
			return
		}
	}
}

// validateConfig checks constraints the pipeline depends on
func validateConfig(config *Config) error {
	if config.Collect.CallsPerMinute <= 0 {
		return fmt.Errorf("collect.calls_per_minute must be positive, got %d", config.Collect.CallsPerMinute)
	}
	if config.Filter.BatchSize <= 0 {
		return fmt.Errorf("filter.batch_size must be positive, got %d", config.Filter.BatchSize)
	}
	if config.Cluster.MaxClusters < 3 {
		return fmt.Errorf("cluster.max_clusters must be at least 3, got %d", config.Cluster.MaxClusters)
	}
	switch config.Report.DefaultLength {
	case "simple", "moderate", "detailed":
	default:
		return fmt.Errorf("report.default_length must be simple, moderate, or detailed, got %q", config.Report.DefaultLength)
	}
	return nil
}

// Reset clears the cached global config. Test hook.
func Reset() {
	globalConfig = nil
	viper.Reset()
}
