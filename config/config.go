package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultPath = "config/config.yml"

type AppConfig struct {
	ServerName  string         `mapstructure:"server_name" yaml:"server_name"`
	Version     string         `mapstructure:"version" yaml:"version"`
	Environment string         `mapstructure:"environment" yaml:"environment"`
	Port        int            `mapstructure:"port" yaml:"port"`
	Log         LogConfig      `mapstructure:"log" yaml:"log"`
	Postgres    PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis       RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Consul      ConsulConfig   `mapstructure:"consul" yaml:"consul"`
	Auth        AuthConfig     `mapstructure:"auth" yaml:"auth"`
	LLM         LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Stream      StreamConfig   `mapstructure:"stream" yaml:"stream"`
	OCR         OCRConfig      `mapstructure:"ocr" yaml:"ocr"`
	RocketMQ    RocketMQConfig `mapstructure:"rocketmq" yaml:"rocketmq"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

type PostgresConfig struct {
	Address  string        `mapstructure:"address" yaml:"address"`
	Port     int           `mapstructure:"port" yaml:"port"`
	User     string        `mapstructure:"user" yaml:"user"`
	Password string        `mapstructure:"password" yaml:"password"`
	DBName   string        `mapstructure:"db_name" yaml:"db_name"`
	TimeZone string        `mapstructure:"time_zone" yaml:"time_zone"`
	MaxIdle  int           `mapstructure:"max_idle" yaml:"max_idle"`
	MaxOpen  int           `mapstructure:"max_open" yaml:"max_open"`
	MaxLife  time.Duration `mapstructure:"max_life" yaml:"max_life"`
}

type RedisConfig struct {
	Address        string        `mapstructure:"address" yaml:"address"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Password       string        `mapstructure:"password" yaml:"password"`
	Database       int           `mapstructure:"database" yaml:"database"`
	Prefix         string        `mapstructure:"prefix" yaml:"prefix"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	PoolSize       int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CacheJitterSec int           `mapstructure:"cache_jitter_sec" yaml:"cache_jitter_sec"`
	RateLimitQPS   int           `mapstructure:"rate_limit_qps" yaml:"rate_limit_qps"`
}

type ConsulConfig struct {
	Address    string `mapstructure:"address" yaml:"address"`
	Scheme     string `mapstructure:"scheme" yaml:"scheme"`
	Datacenter string `mapstructure:"datacenter" yaml:"datacenter"`
}

type AuthConfig struct {
	JwtSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel string        `mapstructure:"default_model" yaml:"default_model"`
	ServiceName  string        `mapstructure:"service_name" yaml:"service_name"`
	SpeechModel  string        `mapstructure:"speech_model" yaml:"speech_model"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// StreamConfig tunes the adaptive buffering of streamed replies.
type StreamConfig struct {
	MinChars     int           `mapstructure:"min_chars" yaml:"min_chars"`
	MaxWait      time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	Boundary     string        `mapstructure:"boundary" yaml:"boundary"`
	EmitThinking bool          `mapstructure:"emit_thinking" yaml:"emit_thinking"`
}

type OCRConfig struct {
	Model           string        `mapstructure:"model" yaml:"model"`
	DefaultLanguage string        `mapstructure:"default_language" yaml:"default_language"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	MaxImageBytes   int64         `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
}

type RocketMQConfig struct {
	NameServers []string `mapstructure:"name_servers" yaml:"name_servers"`
	MaxRetries  int      `mapstructure:"max_retries" yaml:"max_retries"`
	GroupName   string   `mapstructure:"group_name" yaml:"group_name"`
	Topics      struct {
		ChatEvent string `mapstructure:"chat_event" yaml:"chat_event"`
	} `mapstructure:"topics" yaml:"topics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_name", "chat-service")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)

	v.SetDefault("log.level", "info")

	v.SetDefault("postgres.address", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.time_zone", "Asia/Shanghai")
	v.SetDefault("postgres.max_idle", 10)
	v.SetDefault("postgres.max_open", 100)
	v.SetDefault("postgres.max_life", time.Hour)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "chat:")
	v.SetDefault("redis.cache_ttl", time.Hour)
	v.SetDefault("redis.cache_jitter_sec", 600)
	v.SetDefault("redis.rate_limit_qps", 10)

	v.SetDefault("consul.scheme", "http")
	v.SetDefault("consul.datacenter", "dc1")

	v.SetDefault("llm.default_model", "deepseek-chat")
	v.SetDefault("llm.speech_model", "whisper-1")
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("stream.min_chars", 60)
	v.SetDefault("stream.max_wait", 180*time.Millisecond)
	v.SetDefault("stream.emit_thinking", true)

	v.SetDefault("ocr.model", "gpt-4o-mini")
	v.SetDefault("ocr.default_language", "chi_sim")
	v.SetDefault("ocr.fetch_timeout", 15*time.Second)
	v.SetDefault("ocr.max_image_bytes", 10<<20)

	v.SetDefault("rocketmq.max_retries", 2)
	v.SetDefault("rocketmq.group_name", "chat-service")
	v.SetDefault("rocketmq.topics.chat_event", "chat_event")
}

// LoadConfig reads the YAML file at path (DefaultPath when empty) and applies
// environment overrides such as LLM_API_KEY or POSTGRES_PASSWORD.
func LoadConfig(path string) (*AppConfig, error) {
	var config AppConfig
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return &config, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&config); err != nil {
		return &config, fmt.Errorf("decode config: %w", err)
	}
	return &config, nil
}

// DSN builds the postgres connection string for gorm.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=%s",
		c.Address, c.User, c.Password, c.DBName, c.Port, c.TimeZone,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}
