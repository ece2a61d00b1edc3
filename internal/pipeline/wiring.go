package pipeline

import (
	"context"
	"time"

	"github.com/systmms/dsload/internal/blocks"
	"github.com/systmms/dsload/internal/extract"
	"github.com/systmms/dsload/internal/logging"
	"github.com/systmms/dsload/internal/warehouse"
)

// S3Readers returns a ReaderFactory building an S3 client per storage
// block. A storage block naming a credentials block uses it; otherwise the
// default AWS credential chain applies.
func S3Readers(store blocks.Store, logger *logging.Logger) ReaderFactory {
	return func(ctx context.Context, storage *blocks.Storage) (Reader, error) {
		var creds *blocks.Credentials
		if storage.Credentials != "" {
			var err error
			if creds, err = store.LoadCredentials(storage.Credentials); err != nil {
				return nil, err
			}
		}
		client, err := extract.NewS3Client(ctx, storage, creds)
		if err != nil {
			return nil, err
		}
		return extract.New(client, logger), nil
	}
}

// WarehouseSinks returns a SinkOpener connecting with database/sql
func WarehouseSinks(timeout time.Duration, logger *logging.Logger) SinkOpener {
	return func(ctx context.Context, c *warehouse.Connector) (Sink, error) {
		return warehouse.Open(ctx, c, warehouse.Options{Timeout: timeout, Logger: logger})
	}
}
