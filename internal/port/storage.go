package port

import "context"

// ObjectStorage abstracts cloud object storage reads used for s3://
// document references.
type ObjectStorage interface {
	Download(ctx context.Context, bucket, key string) ([]byte, string, error)
}
