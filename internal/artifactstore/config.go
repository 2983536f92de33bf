package artifactstore

import "time"

// DefaultAWSRegion is the fallback region when neither config nor environment supplies one.
const DefaultAWSRegion = "us-east-1"

// DefaultURLTTL is the lifetime of presigned retrieval URLs.
const DefaultURLTTL = 2 * time.Hour

// Config configures the S3 artifact store.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and SecretAccessKey
// are both set. Endpoint and ForcePathStyle target S3-compatible stores such as MinIO.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}

	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
