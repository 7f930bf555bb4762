package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType names an image storage backend.
type StoreType string

const (
	StoreTypeFS     StoreType = "fs"
	StoreTypeMemory StoreType = "memory"
	StoreTypeS3     StoreType = "s3"
	StoreTypeGCS    StoreType = "gcs"
)

// NewStoreFromEnv creates an image store from environment variables.
//
//   - IMAGE_STORAGE_TYPE: "fs" (default), "memory", "s3", or "gcs"
//   - DATA_DIR: base directory for the filesystem store (default "data")
//
// S3 reads IMAGE_S3_BUCKET (required), IMAGE_S3_REGION or AWS_REGION,
// IMAGE_S3_ENDPOINT and IMAGE_S3_PREFIX. GCS reads IMAGE_GCS_BUCKET (required)
// and IMAGE_GCS_PREFIX.
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storeType := StoreType(os.Getenv("IMAGE_STORAGE_TYPE"))
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		return newFileStoreFromEnv()
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeS3:
		return newS3StoreFromEnv(ctx)
	case StoreTypeGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported image storage type: %s", storeType)
	}
}

func newFileStoreFromEnv() (Store, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	return NewFileStore(filepath.Join(dataDir, "images"))
}

func newS3StoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("IMAGE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("IMAGE_S3_BUCKET is required for S3 storage")
	}

	region := os.Getenv("IMAGE_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Store(ctx, S3StoreConfig{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("IMAGE_S3_ENDPOINT"),
		Prefix:   os.Getenv("IMAGE_S3_PREFIX"),
	})
}
