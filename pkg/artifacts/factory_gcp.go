//go:build gcp

package artifacts

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("IMAGE_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("IMAGE_GCS_BUCKET is required for GCS storage")
	}
	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("IMAGE_GCS_PREFIX"),
	})
}
