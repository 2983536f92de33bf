// Package config provides the configuration structure for the podcast-service.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied by Validate to unset fields.
const (
	DefaultNATSURL          = "nats://127.0.0.1:4222"
	DefaultJobsStream       = "PODCAST_JOBS"
	DefaultJobsSubject      = "podcast.jobs"
	DefaultJobsConsumer     = "podcast-workers"
	DefaultJobsBucket       = "PODCAST_JOB_RECORDS"
	DefaultDocumentsBucket  = "PODCAST_DOCUMENTS"
	DefaultJobTTLHours      = 72
	DefaultAckWaitSeconds   = 60
	DefaultMaxInFlight      = 2
	DefaultLLMModel         = "gpt-4o-mini"
	DefaultLLMTimeout       = 600
	DefaultSpeechModel      = "tts-1"
	DefaultSpeaker1Voice    = "alloy"
	DefaultSpeaker2Voice    = "echo"
	DefaultSpeechTimeout    = 120
	DefaultSpeechWorkers    = 4
	DefaultURLTTLSeconds    = 7200
	DefaultLibraryPath      = "podcast-library.db"
	DefaultServerHost       = "127.0.0.1"
	DefaultServerPort       = 8080
	DefaultScratchMaxAgeHrs = 24
)

// ErrStorageBucketRequired is returned when no artifact bucket is configured.
var ErrStorageBucketRequired = errors.New("storage.bucket is required")

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL             string `toml:"url"`
	JobsStream      string `toml:"jobs_stream"`
	JobsSubject     string `toml:"jobs_subject"`
	JobsConsumer    string `toml:"jobs_consumer"`
	JobsBucket      string `toml:"jobs_bucket"`
	JobTTLHours     int    `toml:"job_ttl_hours"`
	DocumentsBucket string `toml:"documents_bucket"`
	AckWaitSeconds  int    `toml:"ack_wait_seconds"`
	MaxInFlight     int    `toml:"max_in_flight"`
}

// LLMConfig configures the dialogue language model.
type LLMConfig struct {
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	APIKey           string `toml:"api_key"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	MaxSchemaRetries int    `toml:"max_schema_retries"`
}

// SpeechConfig configures the speech synthesis service.
type SpeechConfig struct {
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	APIKey            string  `toml:"api_key"`
	Speaker1Voice     string  `toml:"speaker_1_voice"`
	Speaker2Voice     string  `toml:"speaker_2_voice"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	Concurrency       int     `toml:"concurrency"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// StorageConfig configures the S3 artifact bucket.
type StorageConfig struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Profile         string `toml:"profile"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	ForcePathStyle  bool   `toml:"force_path_style"`
	CDNBaseURL      string `toml:"cdn_base_url"`
	URLTTLSeconds   int    `toml:"url_ttl_seconds"`
}

// LibraryConfig locates the metadata library database.
type LibraryConfig struct {
	Path string `toml:"path"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PathsConfig holds the configuration for file paths.
// Local document references are only read below DocumentsDir; empty disables them.
type PathsConfig struct {
	BaseLogsDir  string `toml:"base_logs_dir"`
	ScratchDir   string `toml:"scratch_dir"`
	DocumentsDir string `toml:"documents_dir"`
}

// PipelineConfig holds pipeline-wide defaults.
type PipelineConfig struct {
	DefaultProfile     string `toml:"default_profile"`
	ScratchMaxAgeHours int    `toml:"scratch_max_age_hours"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	LLM      LLMConfig      `toml:"llm"`
	Speech   SpeechConfig   `toml:"speech"`
	Storage  StorageConfig  `toml:"storage"`
	Library  LibraryConfig  `toml:"library"`
	Server   ServerConfig   `toml:"server"`
	Paths    PathsConfig    `toml:"paths"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

// Load loads the configuration for the podcast-service and validates it.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate fills defaults for unset fields and rejects missing required ones.
func (c *Config) Validate() error {
	c.applyNATSDefaults()
	c.applyModelDefaults()

	if c.Storage.Bucket == "" {
		return ErrStorageBucketRequired
	}

	if c.Storage.URLTTLSeconds <= 0 {
		c.Storage.URLTTLSeconds = DefaultURLTTLSeconds
	}

	c.Library.Path = orDefault(c.Library.Path, DefaultLibraryPath)
	c.Server.Host = orDefault(c.Server.Host, DefaultServerHost)

	if c.Server.Port <= 0 {
		c.Server.Port = DefaultServerPort
	}

	c.Paths.BaseLogsDir = orDefault(c.Paths.BaseLogsDir, "logs")
	c.Paths.ScratchDir = orDefault(c.Paths.ScratchDir, "scratch")

	if c.Pipeline.ScratchMaxAgeHours <= 0 {
		c.Pipeline.ScratchMaxAgeHours = DefaultScratchMaxAgeHrs
	}

	return nil
}

func (c *Config) applyNATSDefaults() {
	c.NATS.URL = orDefault(c.NATS.URL, DefaultNATSURL)
	c.NATS.JobsStream = orDefault(c.NATS.JobsStream, DefaultJobsStream)
	c.NATS.JobsSubject = orDefault(c.NATS.JobsSubject, DefaultJobsSubject)
	c.NATS.JobsConsumer = orDefault(c.NATS.JobsConsumer, DefaultJobsConsumer)
	c.NATS.JobsBucket = orDefault(c.NATS.JobsBucket, DefaultJobsBucket)
	c.NATS.DocumentsBucket = orDefault(c.NATS.DocumentsBucket, DefaultDocumentsBucket)

	if c.NATS.JobTTLHours <= 0 {
		c.NATS.JobTTLHours = DefaultJobTTLHours
	}

	if c.NATS.AckWaitSeconds <= 0 {
		c.NATS.AckWaitSeconds = DefaultAckWaitSeconds
	}

	if c.NATS.MaxInFlight <= 0 {
		c.NATS.MaxInFlight = DefaultMaxInFlight
	}
}

func (c *Config) applyModelDefaults() {
	c.LLM.Model = orDefault(c.LLM.Model, DefaultLLMModel)

	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = DefaultLLMTimeout
	}

	if c.LLM.MaxSchemaRetries < 0 {
		c.LLM.MaxSchemaRetries = 0
	}

	c.Speech.Model = orDefault(c.Speech.Model, DefaultSpeechModel)
	c.Speech.Speaker1Voice = orDefault(c.Speech.Speaker1Voice, DefaultSpeaker1Voice)
	c.Speech.Speaker2Voice = orDefault(c.Speech.Speaker2Voice, DefaultSpeaker2Voice)
	c.Speech.APIKey = orDefault(c.Speech.APIKey, c.LLM.APIKey)

	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = DefaultSpeechTimeout
	}

	if c.Speech.Concurrency <= 0 {
		c.Speech.Concurrency = DefaultSpeechWorkers
	}
}

// JobTTL is how long job records are retained.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.NATS.JobTTLHours) * time.Hour
}

// AckWait is the job message acknowledgement deadline.
func (c *Config) AckWait() time.Duration {
	return time.Duration(c.NATS.AckWaitSeconds) * time.Second
}

// URLTTL is the lifetime of presigned retrieval URLs.
func (c *Config) URLTTL() time.Duration {
	return time.Duration(c.Storage.URLTTLSeconds) * time.Second
}

// ScratchMaxAge is the age past which scratch artifacts are swept.
func (c *Config) ScratchMaxAge() time.Duration {
	return time.Duration(c.Pipeline.ScratchMaxAgeHours) * time.Hour
}

// ListenAddress is the host:port the HTTP server binds.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
