package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Lister implements Lister over the S3 ListObjectsV2 API, walking every
// page of the listing before returning.
type S3Lister struct {
	client s3.ListObjectsV2APIClient
}

// Compile-time interface check.
var _ Lister = (*S3Lister)(nil)

// NewS3Lister creates an S3Lister. The client should be initialized from the
// shared AWS config.
func NewS3Lister(client s3.ListObjectsV2APIClient) *S3Lister {
	return &S3Lister{client: client}
}

// ListObjects enumerates all objects under bucket/prefix. Page tokens never
// leave this method; a mid-listing failure discards the partial result.
func (l *S3Lister) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &prefix,
	})

	var objects []Object
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 ListObjectsV2 page %d: %w", pages+1, err)
		}
		pages++
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			o := Object{Key: *obj.Key}
			if obj.Size != nil {
				o.Size = *obj.Size
			}
			objects = append(objects, o)
		}
	}

	log.Debug().
		Int("objectCount", len(objects)).
		Int("pages", pages).
		Str("bucket", bucket).
		Str("prefix", prefix).
		Msg("S3 ListObjectsV2 completed")

	return objects, nil
}
