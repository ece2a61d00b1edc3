// Package extract reads tabular objects from S3 into a dataset.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/cloud"
	"github.com/systmms/dsload/internal/dataset"
	dserrors "github.com/systmms/dsload/internal/errors"
	"github.com/systmms/dsload/internal/logging"
)

// Format is a supported object format
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// UnsupportedFormatError is returned for object keys with an unknown extension
type UnsupportedFormatError struct {
	Key       string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("unsupported file format for '%s': no extension", e.Key)
	}
	return fmt.Sprintf("unsupported file format '%s' for '%s' (supported: .csv, .parquet, .json)", e.Extension, e.Key)
}

// ObjectNotFoundError is returned when the bucket has no such key
type ObjectNotFoundError struct {
	Bucket string
	Key    string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("object s3://%s/%s not found", e.Bucket, e.Key)
}

// FormatOf selects the decoder from the key's extension
func FormatOf(key string) (Format, error) {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", &UnsupportedFormatError{Key: key, Extension: ext}
	}
}

// S3API is the subset of the S3 client used here
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Extractor reads objects through an S3 client
type Extractor struct {
	client S3API
	logger *logging.Logger
}

// New creates an Extractor
func New(client S3API, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Extractor{client: client, logger: logger}
}

// NewS3Client builds an S3 client for a storage block. creds may be nil to
// use the default AWS credential chain.
func NewS3Client(ctx context.Context, storage *blocks.Storage, creds *blocks.Credentials) (*s3.Client, error) {
	cfg, err := cloud.AWSConfig(ctx, creds, storage.Region)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(storage.Endpoint)
		}
		o.UsePathStyle = storage.PathStyle
	}), nil
}

// Read fetches key from the storage block's bucket and decodes it by
// extension. The format is checked before any network call.
func (e *Extractor) Read(ctx context.Context, storage *blocks.Storage, key string) (*dataset.Dataset, error) {
	format, err := FormatOf(key)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Reading s3://%s/%s as %s", storage.BucketName, key, format)

	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(storage.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &ObjectNotFoundError{Bucket: storage.BucketName, Key: key}
		}
		return nil, dserrors.BackendError("s3", "GetObject", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", storage.BucketName, key, err)
	}

	var ds *dataset.Dataset
	switch format {
	case FormatCSV:
		ds, err = DecodeCSV(data)
	case FormatParquet:
		ds, err = DecodeParquet(data)
	case FormatJSON:
		ds, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	e.logger.Debug("Read %d rows, %d columns from %s", ds.Rows(), len(ds.Columns), key)
	return ds, nil
}
