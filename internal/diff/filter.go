package diff

// PartFilter controls which feature/tile keys within one dataset part are
// of interest to a traversal. MatchAll short-circuits the Keys set.
type PartFilter struct {
	MatchAll bool
	Keys     map[string]bool
}

// Allows reports whether key passes this filter.
func (f PartFilter) Allows(key string) bool {
	if f.MatchAll {
		return true
	}
	if f.Keys == nil {
		return false
	}
	return f.Keys[key]
}

// MatchAllParts is the permissive PartFilter used when a caller hasn't
// narrowed a traversal.
var MatchAllParts = PartFilter{MatchAll: true}

// DatasetFilter narrows a traversal to specific meta-items and/or feature
// or tile keys within a single dataset.
type DatasetFilter struct {
	Meta    PartFilter
	Feature PartFilter
	Tile    PartFilter
}

// MatchAllDataset is the permissive DatasetFilter.
var MatchAllDataset = DatasetFilter{Meta: MatchAllParts, Feature: MatchAllParts, Tile: MatchAllParts}

// Filter narrows a repo-wide traversal to specific datasets, and within
// each, specific parts/keys. The zero Filter puts no dataset in scope;
// MatchAllFilter matches everything.
type Filter struct {
	MatchAll bool
	Datasets map[string]DatasetFilter
}

// MatchAllFilter is the permissive Filter used for a full repository diff.
var MatchAllFilter = Filter{MatchAll: true}

// ForDataset returns the filter to apply within datasetPath, and whether
// the dataset itself is in scope at all.
func (f Filter) ForDataset(datasetPath string) (DatasetFilter, bool) {
	if f.MatchAll {
		return MatchAllDataset, true
	}
	if f.Datasets == nil {
		return DatasetFilter{}, false
	}
	df, ok := f.Datasets[datasetPath]
	return df, ok
}
