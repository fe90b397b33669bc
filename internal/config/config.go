// Package config centralizes how ClassBuddy reads its settings. An optional
// YAML file provides the base values and environment variables override them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for every binary.
type Config struct {
	Address  string         `yaml:"address"`
	LogLevel string         `yaml:"logLevel"`
	Schedule string         `yaml:"schedule"`
	Courses  CoursesConfig  `yaml:"courses"`
	Store    StoreConfig    `yaml:"store"`
	Publish  PublishConfig  `yaml:"publish"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Google   GoogleConfig   `yaml:"google"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Redis    RedisConfig    `yaml:"redis"`
}

// CoursesConfig selects which courses a run scans.
type CoursesConfig struct {
	IDs        []string `yaml:"ids"`
	All        bool     `yaml:"all"`
	SinceHours int      `yaml:"sinceHours"`
}

// StoreConfig selects the State Store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlitePath"`
	DatabaseURL string `yaml:"databaseUrl"`
}

// PublishConfig selects where generated artifacts land.
type PublishConfig struct {
	Driver      string `yaml:"driver"`
	Dir         string `yaml:"dir"`
	S3Endpoint  string `yaml:"s3Endpoint"`
	S3AccessKey string `yaml:"s3AccessKey"`
	S3SecretKey string `yaml:"s3SecretKey"`
	S3UseSSL    bool   `yaml:"s3UseSSL"`
	S3Region    string `yaml:"s3Region"`
	Bucket      string `yaml:"bucket"`
	DriveFolder string `yaml:"driveFolder"`
}

// LLMConfig describes the completion backend.
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"apiKey"`
	Endpoint          string  `yaml:"endpoint"`
	MaxTokens         int     `yaml:"maxTokens"`
	Temperature       float64 `yaml:"temperature"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	InputTokenBudget  int     `yaml:"inputTokenBudget"`
}

// TTSConfig describes the speech synthesis backend.
type TTSConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
	Mock     bool   `yaml:"mock"`
}

// GoogleConfig holds the Classroom and Drive REST settings.
type GoogleConfig struct {
	ClassroomBase string `yaml:"classroomBase"`
	DriveBase     string `yaml:"driveBase"`
	UploadBase    string `yaml:"uploadBase"`
	Token         string `yaml:"token"`
}

// PipelineConfig tunes concurrency and retry behaviour.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	FanOut        int           `yaml:"fanOut"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	CallTimeout   time.Duration `yaml:"callTimeout"`
	CommitTimeout time.Duration `yaml:"commitTimeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	// Classifier is "keyword" or "llm".
	Classifier string `yaml:"classifier"`
}

// RedisConfig is only used in queue mode.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

const (
	configPathEnv = "CLASSBUDDY_CONFIG"

	defaultAddress       = ":8080"
	defaultLogLevel      = "info"
	defaultSchedule      = "@every 30m"
	defaultSinceHours    = 24
	defaultStoreDriver   = "sqlite"
	defaultSQLitePath    = "data/classbuddy.db"
	defaultPublishDriver = "filesystem"
	defaultPublishDir    = "artifacts"
	defaultBucket        = "classbuddy-artifacts"
	defaultRegion        = "us-east-1"
	defaultLLMProvider   = "anthropic"
	defaultLLMModel      = "claude-3-5-haiku-latest"
	defaultMaxTokens     = 4096
	defaultTemperature   = 0.3
	defaultRPS           = 1.0
	defaultTokenBudget   = 60000
	defaultTTSModel      = "tts-1"
	defaultTTSVoice      = "alloy"
	defaultClassroomBase = "https://classroom.googleapis.com/v1"
	defaultDriveBase     = "https://www.googleapis.com/drive/v3"
	defaultUploadBase    = "https://www.googleapis.com/upload/drive/v3"
	defaultWorkerCount   = 2
	defaultFanOut        = 4
	defaultMaxAttempts   = 3
	defaultCallTimeout   = 2 * time.Minute
	defaultCommitTimeout = 10 * time.Second
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
	defaultRedisAddr     = "localhost:6379"
	defaultClassifier    = "keyword"
)

// Default returns a configuration filled with defaults only.
func Default() *Config {
	return &Config{
		Address:  defaultAddress,
		LogLevel: defaultLogLevel,
		Schedule: defaultSchedule,
		Courses:  CoursesConfig{SinceHours: defaultSinceHours},
		Store:    StoreConfig{Driver: defaultStoreDriver, SQLitePath: defaultSQLitePath},
		Publish: PublishConfig{
			Driver:   defaultPublishDriver,
			Dir:      defaultPublishDir,
			Bucket:   defaultBucket,
			S3Region: defaultRegion,
		},
		LLM: LLMConfig{
			Provider:          defaultLLMProvider,
			Model:             defaultLLMModel,
			MaxTokens:         defaultMaxTokens,
			Temperature:       defaultTemperature,
			RequestsPerSecond: defaultRPS,
			InputTokenBudget:  defaultTokenBudget,
		},
		TTS: TTSConfig{Model: defaultTTSModel, Voice: defaultTTSVoice},
		Google: GoogleConfig{
			ClassroomBase: defaultClassroomBase,
			DriveBase:     defaultDriveBase,
			UploadBase:    defaultUploadBase,
		},
		Pipeline: PipelineConfig{
			Workers:       defaultWorkerCount,
			FanOut:        defaultFanOut,
			MaxAttempts:   defaultMaxAttempts,
			CallTimeout:   defaultCallTimeout,
			CommitTimeout: defaultCommitTimeout,
			RetryAttempts: defaultRetryAttempts,
			RetryDelay:    defaultRetryDelay,
			Classifier:    defaultClassifier,
		},
		Redis: RedisConfig{Addr: defaultRedisAddr},
	}
}

// Load reads the YAML file named by CLASSBUDDY_CONFIG (if any), applies
// environment overrides and clamps invalid values back to defaults.
func Load() (*Config, error) {
	cfg := Default()
	if path := readEnv(configPathEnv, ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	// Unmarshalling over the defaults keeps every field the file omits.
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Address = readEnv("CLASSBUDDY_ADDRESS", c.Address)
	c.LogLevel = readEnv("CLASSBUDDY_LOG_LEVEL", c.LogLevel)
	c.Schedule = readEnv("CLASSBUDDY_SCHEDULE", c.Schedule)

	c.Courses.IDs = parseList("CLASSBUDDY_COURSES", c.Courses.IDs)
	c.Courses.All = parseBool("CLASSBUDDY_ALL_COURSES", c.Courses.All)
	c.Courses.SinceHours = parseInt("CLASSBUDDY_SINCE_HOURS", c.Courses.SinceHours)

	c.Store.Driver = readEnv("CLASSBUDDY_STORE", c.Store.Driver)
	c.Store.SQLitePath = readEnv("CLASSBUDDY_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.DatabaseURL = readEnv("DATABASE_URL", c.Store.DatabaseURL)

	c.Publish.Driver = readEnv("CLASSBUDDY_PUBLISHER", c.Publish.Driver)
	c.Publish.Dir = readEnv("CLASSBUDDY_PUBLISH_DIR", c.Publish.Dir)
	c.Publish.S3Endpoint = readEnv("S3_ENDPOINT", c.Publish.S3Endpoint)
	c.Publish.S3AccessKey = readEnv("S3_ACCESS_KEY", c.Publish.S3AccessKey)
	c.Publish.S3SecretKey = readEnv("S3_SECRET_KEY", c.Publish.S3SecretKey)
	c.Publish.S3UseSSL = parseBool("S3_USE_SSL", c.Publish.S3UseSSL)
	c.Publish.S3Region = readEnv("S3_REGION", c.Publish.S3Region)
	c.Publish.Bucket = readEnv("S3_BUCKET", c.Publish.Bucket)
	c.Publish.DriveFolder = readEnv("CLASSBUDDY_DRIVE_FOLDER", c.Publish.DriveFolder)

	c.LLM.Provider = readEnv("CLASSBUDDY_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = readEnv("CLASSBUDDY_LLM_MODEL", c.LLM.Model)
	c.LLM.Endpoint = readEnv("CLASSBUDDY_LLM_ENDPOINT", c.LLM.Endpoint)
	c.LLM.APIKey = readEnv("CLASSBUDDY_LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = readEnv("ANTHROPIC_API_KEY", "")
	}
	c.LLM.MaxTokens = parseInt("CLASSBUDDY_LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = parseFloat("CLASSBUDDY_LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.RequestsPerSecond = parseFloat("CLASSBUDDY_LLM_RPS", c.LLM.RequestsPerSecond)
	c.LLM.InputTokenBudget = parseInt("CLASSBUDDY_LLM_TOKEN_BUDGET", c.LLM.InputTokenBudget)

	c.TTS.Endpoint = readEnv("CLASSBUDDY_TTS_ENDPOINT", c.TTS.Endpoint)
	c.TTS.APIKey = readEnv("CLASSBUDDY_TTS_API_KEY", c.TTS.APIKey)
	c.TTS.Model = readEnv("CLASSBUDDY_TTS_MODEL", c.TTS.Model)
	c.TTS.Voice = readEnv("CLASSBUDDY_TTS_VOICE", c.TTS.Voice)
	c.TTS.Mock = parseBool("CLASSBUDDY_TTS_MOCK", c.TTS.Mock)

	c.Google.ClassroomBase = readEnv("CLASSBUDDY_CLASSROOM_BASE", c.Google.ClassroomBase)
	c.Google.DriveBase = readEnv("CLASSBUDDY_DRIVE_BASE", c.Google.DriveBase)
	c.Google.UploadBase = readEnv("CLASSBUDDY_UPLOAD_BASE", c.Google.UploadBase)
	c.Google.Token = readEnv("CLASSBUDDY_GOOGLE_TOKEN", c.Google.Token)

	c.Pipeline.Workers = parseInt("CLASSBUDDY_WORKERS", c.Pipeline.Workers)
	c.Pipeline.FanOut = parseInt("CLASSBUDDY_FANOUT", c.Pipeline.FanOut)
	c.Pipeline.MaxAttempts = parseInt("CLASSBUDDY_MAX_ATTEMPTS", c.Pipeline.MaxAttempts)
	c.Pipeline.CallTimeout = parseDuration("CLASSBUDDY_CALL_TIMEOUT", c.Pipeline.CallTimeout)
	c.Pipeline.CommitTimeout = parseDuration("CLASSBUDDY_COMMIT_TIMEOUT", c.Pipeline.CommitTimeout)
	c.Pipeline.RetryAttempts = parseInt("CLASSBUDDY_RETRY_ATTEMPTS", c.Pipeline.RetryAttempts)
	c.Pipeline.RetryDelay = parseDuration("CLASSBUDDY_RETRY_DELAY", c.Pipeline.RetryDelay)
	c.Pipeline.Classifier = readEnv("CLASSBUDDY_CLASSIFIER", c.Pipeline.Classifier)

	c.Redis.Addr = readEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = readEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = parseInt("REDIS_DB", c.Redis.DB)
}

func (c *Config) normalize() {
	if c.Courses.SinceHours <= 0 {
		c.Courses.SinceHours = defaultSinceHours
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkerCount
	}
	if c.Pipeline.FanOut <= 0 {
		c.Pipeline.FanOut = defaultFanOut
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = defaultMaxAttempts
	}
	if c.Pipeline.CallTimeout <= 0 {
		c.Pipeline.CallTimeout = defaultCallTimeout
	}
	if c.Pipeline.CommitTimeout <= 0 {
		c.Pipeline.CommitTimeout = defaultCommitTimeout
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = defaultRetryAttempts
	}
	if c.Pipeline.RetryDelay <= 0 {
		c.Pipeline.RetryDelay = defaultRetryDelay
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultMaxTokens
	}
	if c.LLM.RequestsPerSecond <= 0 {
		c.LLM.RequestsPerSecond = defaultRPS
	}
	if c.LLM.InputTokenBudget <= 0 {
		c.LLM.InputTokenBudget = defaultTokenBudget
	}
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	c.Publish.Driver = strings.ToLower(c.Publish.Driver)
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	c.Pipeline.Classifier = strings.ToLower(c.Pipeline.Classifier)
	if c.Pipeline.Classifier == "" {
		c.Pipeline.Classifier = defaultClassifier
	}
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key string, def []string) []string {
	v := readEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
