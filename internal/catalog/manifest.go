package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// ObjectGetter is the subset of the S3 client used to read the manifest object.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ManifestMarkerSet reads the processed set from a newline-delimited manifest
// object in S3, one asset key per line. The manifest is written by the
// downstream pipeline; this side never mutates it.
type ManifestMarkerSet struct {
	getter ObjectGetter
	bucket string
	key    string

	mu     sync.Mutex
	loaded bool
	keys   map[string]struct{}
}

// Compile-time interface check.
var _ MarkerSet = (*ManifestMarkerSet)(nil)

// NewManifestMarkerSet creates a marker set backed by the manifest object at
// bucket/key. The manifest is fetched lazily on first lookup and cached for
// the rest of the run.
func NewManifestMarkerSet(getter ObjectGetter, bucket, key string) *ManifestMarkerSet {
	return &ManifestMarkerSet{
		getter: getter,
		bucket: bucket,
		key:    key,
	}
}

// IsProcessed reports whether key appears in the manifest. The manifest's own
// key always reads as processed so it can never be dispatched as an asset.
func (m *ManifestMarkerSet) IsProcessed(ctx context.Context, key string) (bool, error) {
	if key == m.key {
		return true, nil
	}
	if err := m.load(ctx); err != nil {
		return false, err
	}
	_, found := m.keys[key]
	return found, nil
}

// load fetches and parses the manifest once. A missing manifest means no
// asset has been processed yet; any other failure is surfaced to the caller.
func (m *ManifestMarkerSet) load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}

	result, err := m.getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &m.bucket,
		Key:    &m.key,
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			log.Info().
				Str("bucket", m.bucket).
				Str("key", m.key).
				Msg("Processed manifest not found, treating all assets as unprocessed")
			m.keys = make(map[string]struct{})
			m.loaded = true
			return nil
		}
		return fmt.Errorf("S3 GetObject %s/%s: %w", m.bucket, m.key, err)
	}
	defer result.Body.Close()

	keys := make(map[string]struct{})
	scanner := bufio.NewScanner(result.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		keys[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read manifest %s/%s: %w", m.bucket, m.key, err)
	}

	m.keys = keys
	m.loaded = true

	log.Debug().
		Int("processedCount", len(keys)).
		Str("key", m.key).
		Msg("Processed manifest loaded")

	return nil
}
