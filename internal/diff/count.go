package diff

import (
	"context"
	"encoding/binary"

	"github.com/kart-vcs/kart/internal/annotations"
	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/objstore"
)

// FeatureCount returns the total number of feature-part deltas between
// trees a and b, restricted to filter. When cache is non-nil it is
// consulted first under the symmetric (a, b) pair, and the computed count
// is memoised back into it, so a second "exact" count request for the
// same pair of trees never re-walks either tree.
//
// A cache hit is only trusted for an unfiltered count: a filtered count is
// a different number for the same tree pair, so it is never read from or
// written to the cache, which only ever stores whole-repository counts.
func FeatureCount(ctx context.Context, cache *annotations.Store, repo *objstore.Repository, a, b hash.Hash, filter Filter) (int, error) {
	useCache := cache != nil && filter.MatchAll
	key := annotations.SymmetricRangeKey(a.String(), b.String())

	if useCache {
		raw, found, err := cache.Get(ctx, annotations.FeatureCountKind, key)
		if err != nil {
			return 0, err
		}
		if found && len(raw) == 8 {
			return int(binary.BigEndian.Uint64(raw)), nil
		}
	}

	repoDiff, err := TreeDiff(ctx, repo, a, b, filter)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, dd := range repoDiff {
		count += dd.Feature.Len()
	}

	if useCache {
		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, uint64(count))
		if err := cache.Put(ctx, annotations.FeatureCountKind, key, raw); err != nil {
			return 0, err
		}
	}

	return count, nil
}
