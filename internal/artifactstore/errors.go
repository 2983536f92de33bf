package artifactstore

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Classified storage failures.
var (
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("request throttled")
	ErrUnavailable        = errors.New("storage unavailable")
)

// StorageError wraps an S3 failure with the operation and object it concerned.
type StorageError struct {
	Op     string
	Bucket string
	Key    string
	Kind   error
	Err    error
}

func (e *StorageError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("s3 %s s3://%s/%s: %v: %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
	}

	return fmt.Sprintf("s3 %s s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *StorageError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}

	return []error{e.Kind, e.Err}
}

func (s *Store) wrapError(op, key string, err error) error {
	wrapped := &StorageError{Op: op, Bucket: s.bucket, Key: key, Kind: nil, Err: err}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		wrapped.Kind = ErrBucketNotFound

		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			wrapped.Kind = ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Kind = ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Kind = ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Kind = ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Kind = ErrUnavailable
		}
	}

	return wrapped
}
