package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/config"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
	"gocloud.dev/gcerrors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrNotFound = errors.New("artifact not found")

// ArtifactStore keeps generated spreadsheets in a blob bucket.
type ArtifactStore struct {
	bucket *blob.Bucket
	prefix string
	logger zerolog.Logger
}

// Open opens the bucket named by cfg.BucketURL (mem://, file://, s3://, gs://).
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*ArtifactStore, error) {
	url := cfg.BucketURL
	if url == "" {
		url = "mem://"
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return NewArtifactStore(bucket, cfg.Prefix, logger), nil
}

func NewArtifactStore(bucket *blob.Bucket, prefix string, logger zerolog.Logger) *ArtifactStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ArtifactStore{
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "storage").Logger(),
	}
}

// ExportKey is where the spreadsheet of an export job lives.
func (s *ArtifactStore) ExportKey(tenantID, jobID string) string {
	return s.prefix + tenantID + "/" + jobID + ".xlsx"
}

// PutSpreadsheet writes an XLSX document under key.
func (s *ArtifactStore) PutSpreadsheet(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: xlsxContentType})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("artifact stored")
	return nil
}

// Get reads the artifact stored under key.
func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *ArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

// Close releases the bucket connection.
func (s *ArtifactStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
