// Package sampler draws a uniform random subset of eligible assets for one
// run. Sampling is pure: it never touches storage or the network.
package sampler

import (
	"math/rand/v2"

	"github.com/dffilms/batch-runner/internal/catalog"
)

// Sample returns min(count, len(assets)) elements drawn uniformly without
// replacement. When count covers the whole input, every element is returned:
// a short run processes whatever is left rather than erroring out. The input
// slice is never modified.
func Sample(assets []catalog.AssetRef, count int) []catalog.AssetRef {
	if count <= 0 || len(assets) == 0 {
		return []catalog.AssetRef{}
	}

	// Fisher-Yates over a copy, then take the head. Shuffling the whole set
	// avoids any bias toward enumeration order.
	shuffled := make([]catalog.AssetRef, len(assets))
	copy(shuffled, assets)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if count < len(shuffled) {
		shuffled = shuffled[:count]
	}
	return shuffled
}
