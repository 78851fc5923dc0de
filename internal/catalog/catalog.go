// Package catalog determines the universe of candidate media assets under a
// bucket prefix and classifies each one as processed or unprocessed against
// an external marker store. The catalog only reads: marking an asset as
// processed is the downstream pipeline's job.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable wraps any failure that prevents the catalog from producing a
// complete result (listing or marker lookup). A run must treat it as fatal;
// no partial catalog is ever returned.
var ErrUnavailable = errors.New("catalog unavailable")

// AssetRef identifies one object under the scanned folder.
type AssetRef struct {
	Bucket string
	Key    string // full object key
	Name   string // folder-relative key
}

// Object is one entry from a storage listing.
type Object struct {
	Key  string
	Size int64
}

// Lister enumerates all objects under a bucket prefix. Implementations hide
// the storage API's pagination; callers see one finite result.
type Lister interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}

// MarkerSet reports whether an asset key has already been handed to the
// pipeline. Injected so tests can substitute an in-memory fake.
type MarkerSet interface {
	IsProcessed(ctx context.Context, key string) (bool, error)
}

// BulkMarkerSet is implemented by marker sets that can classify many keys in
// one round trip. The catalog prefers it over per-key IsProcessed calls.
type BulkMarkerSet interface {
	ProcessedSubset(ctx context.Context, keys []string) (map[string]struct{}, error)
}

// Catalog lists unprocessed assets under a configured prefix.
type Catalog struct {
	lister  Lister
	markers MarkerSet
	ext     string // lowercase extension filter (e.g. ".mp4"), empty disables
}

// New creates a Catalog. ext restricts candidates to keys with the given
// extension; pass "" to consider every object.
func New(lister Lister, markers MarkerSet, ext string) *Catalog {
	return &Catalog{
		lister:  lister,
		markers: markers,
		ext:     strings.ToLower(ext),
	}
}

// ListUnprocessed enumerates every object under bucket/folder, drops folder
// placeholder objects and non-matching extensions, and returns the assets not
// present in the marker set. The result reflects the marker state at call
// time only; there is no lock against concurrent marker mutation.
func (c *Catalog) ListUnprocessed(ctx context.Context, bucket, folder string) ([]AssetRef, error) {
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}

	objects, err := c.lister.ListObjects(ctx, bucket, folder)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s/%s: %v", ErrUnavailable, bucket, folder, err)
	}

	candidates := make([]AssetRef, 0, len(objects))
	for _, obj := range objects {
		if !c.isCandidate(obj, folder) {
			continue
		}
		candidates = append(candidates, AssetRef{
			Bucket: bucket,
			Key:    obj.Key,
			Name:   strings.TrimPrefix(obj.Key, folder),
		})
	}

	unprocessed, err := c.filterProcessed(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: marker lookup: %v", ErrUnavailable, err)
	}

	log.Debug().
		Int("objects", len(objects)).
		Int("candidates", len(candidates)).
		Int("unprocessed", len(unprocessed)).
		Str("bucket", bucket).
		Str("folder", folder).
		Msg("Catalog listing complete")

	return unprocessed, nil
}

// isCandidate filters out folder placeholders and non-media keys.
func (c *Catalog) isCandidate(obj Object, folder string) bool {
	// Pseudo-directories show up as zero-byte keys ending in "/".
	if strings.HasSuffix(obj.Key, "/") {
		return false
	}
	if obj.Key == folder {
		return false
	}
	if c.ext != "" && strings.ToLower(path.Ext(obj.Key)) != c.ext {
		return false
	}
	return true
}

// filterProcessed removes candidates present in the marker set, preserving
// listing order. Uses the bulk path when the marker set supports it.
func (c *Catalog) filterProcessed(ctx context.Context, candidates []AssetRef) ([]AssetRef, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	if bulk, ok := c.markers.(BulkMarkerSet); ok {
		keys := make([]string, len(candidates))
		for i, a := range candidates {
			keys[i] = a.Key
		}
		processed, err := bulk.ProcessedSubset(ctx, keys)
		if err != nil {
			return nil, err
		}
		out := make([]AssetRef, 0, len(candidates))
		for _, a := range candidates {
			if _, found := processed[a.Key]; !found {
				out = append(out, a)
			}
		}
		return out, nil
	}

	out := make([]AssetRef, 0, len(candidates))
	for _, a := range candidates {
		done, err := c.markers.IsProcessed(ctx, a.Key)
		if err != nil {
			return nil, err
		}
		if !done {
			out = append(out, a)
		}
	}
	return out, nil
}
